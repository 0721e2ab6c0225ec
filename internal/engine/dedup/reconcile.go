// internal/engine/dedup/reconcile.go
package dedup

import "deal-engine/internal/models"

// MetaSourceID holds the upstream id of a deal that was re-keyed on append
// because its id was already taken in the working set.
const MetaSourceID = "sourceId"

// ReconcileResult is the working set after merging incoming deals.
type ReconcileResult struct {
	Deals []models.DealNormalized
	// Merged counts incoming deals folded into an existing entry.
	Merged int
	// Added counts incoming deals appended as new entries.
	Added int
	// Changed holds the indexes into Deals that were merged or added.
	Changed []int
}

// Reconcile merges each incoming deal into the first working-set deal it
// duplicates, or appends it. The working set starts as a copy of existing
// and grows as deals are appended, so later incoming deals may merge into
// earlier ones. Matching is pairwise and greedy; no chain closure is done.
// An appended deal whose id is already taken gets a fresh id so that upserting
// the result never overwrites an unrelated row.
func (r *Resolver) Reconcile(existing, incoming []models.DealNormalized) ReconcileResult {
	res := ReconcileResult{Deals: make([]models.DealNormalized, 0, len(existing)+len(incoming))}
	for _, d := range existing {
		res.Deals = append(res.Deals, d.Clone())
	}
	changed := make(map[int]bool)
	ids := make(map[string]bool, cap(res.Deals))
	for _, d := range res.Deals {
		ids[d.ID] = true
	}

	for i := range incoming {
		in := &incoming[i]
		target := -1
		for j := range res.Deals {
			if r.AreDuplicates(&res.Deals[j], in) {
				target = j
				break
			}
		}
		if target < 0 {
			added := in.Clone()
			if added.ID == "" || ids[added.ID] {
				r.rekey(&added, ids)
			}
			ids[added.ID] = true
			res.Deals = append(res.Deals, added)
			target = len(res.Deals) - 1
			res.Added++
		} else {
			res.Deals[target] = r.MergeDuplicates(&res.Deals[target], in)
			res.Merged++
		}
		if !changed[target] {
			changed[target] = true
			res.Changed = append(res.Changed, target)
		}
	}
	return res
}

func (r *Resolver) rekey(d *models.DealNormalized, taken map[string]bool) {
	if d.Metadata == nil {
		d.Metadata = make(map[string]interface{})
	}
	if d.ID != "" {
		d.Metadata[MetaSourceID] = d.ID
	}
	id := r.newID()
	for taken[id] {
		id = r.newID()
	}
	d.ID = id
}
