// internal/repository/deal_store.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"deal-engine/internal/models"

	"github.com/lib/pq"
)

// DefaultCandidateLimit caps the city neighbours loaded per reconciliation.
const DefaultCandidateLimit = 500

const schemaDDL = `
CREATE TABLE IF NOT EXISTS deals (
	id               TEXT PRIMARY KEY,
	source           TEXT NOT NULL,
	address          TEXT NOT NULL,
	city             TEXT NOT NULL,
	lat              DOUBLE PRECISION,
	lng              DOUBLE PRECISION,
	surface          DOUBLE PRECISION,
	price_ask        DOUBLE PRECISION,
	zoning_hint      TEXT NOT NULL DEFAULT '',
	policy           TEXT NOT NULL,
	trust            DOUBLE PRECISION NOT NULL,
	fingerprint_hash TEXT NOT NULL DEFAULT '',
	fingerprint      JSONB,
	discovered_at    TIMESTAMPTZ,
	updated_at       TIMESTAMPTZ,
	metadata         JSONB
);
CREATE INDEX IF NOT EXISTS deals_city_idx ON deals (city);
CREATE INDEX IF NOT EXISTS deals_fingerprint_hash_idx ON deals (fingerprint_hash);`

const selectColumns = `id, source, address, city, lat, lng, surface, price_ask, zoning_hint,
		policy, trust, fingerprint, discovered_at, updated_at, metadata`

const upsertSQL = `
	INSERT INTO deals (id, source, address, city, lat, lng, surface, price_ask, zoning_hint,
		policy, trust, fingerprint_hash, fingerprint, discovered_at, updated_at, metadata)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	ON CONFLICT (id) DO UPDATE SET
		source = EXCLUDED.source,
		address = EXCLUDED.address,
		city = EXCLUDED.city,
		lat = EXCLUDED.lat,
		lng = EXCLUDED.lng,
		surface = EXCLUDED.surface,
		price_ask = EXCLUDED.price_ask,
		zoning_hint = EXCLUDED.zoning_hint,
		policy = EXCLUDED.policy,
		trust = EXCLUDED.trust,
		fingerprint_hash = EXCLUDED.fingerprint_hash,
		fingerprint = EXCLUDED.fingerprint,
		discovered_at = EXCLUDED.discovered_at,
		updated_at = EXCLUDED.updated_at,
		metadata = EXCLUDED.metadata`

// DealStore persists normalized deals in PostgreSQL.
type DealStore struct {
	db             *sql.DB
	candidateLimit int
}

func NewDealStore(db *sql.DB, candidateLimit int) *DealStore {
	if candidateLimit <= 0 {
		candidateLimit = DefaultCandidateLimit
	}
	return &DealStore{db: db, candidateLimit: candidateLimit}
}

// Migrate creates the deals table and its indexes when missing.
func (s *DealStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("migrate deals table: %w", err)
	}
	return nil
}

const candidatesByIDSQL = `
	SELECT ` + selectColumns + `
	FROM deals
	WHERE id = ANY($1)
	ORDER BY discovered_at, id`

// The most recent city neighbours, returned oldest first. Rows already matched
// by id are excluded.
const candidatesByCitySQL = `
	SELECT * FROM (
		SELECT ` + selectColumns + `
		FROM deals
		WHERE city = ANY($1) AND NOT (id = ANY($2))
		ORDER BY discovered_at DESC NULLS LAST, id
		LIMIT $3
	) recent
	ORDER BY discovered_at, id`

// FindCandidates loads every stored deal whose id is in ids, followed by up to
// the candidate limit of the most recent deals whose city is in cities. The id
// matches are never cut by the limit.
func (s *DealStore) FindCandidates(ctx context.Context, ids, cities []string) ([]models.DealNormalized, error) {
	out := []models.DealNormalized{}
	if len(ids) > 0 {
		byID, err := s.queryDeals(ctx, candidatesByIDSQL, pq.Array(ids))
		if err != nil {
			return nil, err
		}
		out = append(out, byID...)
	}
	if len(cities) > 0 {
		if ids == nil {
			ids = []string{}
		}
		byCity, err := s.queryDeals(ctx, candidatesByCitySQL, pq.Array(cities), pq.Array(ids), s.candidateLimit)
		if err != nil {
			return nil, err
		}
		out = append(out, byCity...)
	}
	return out, nil
}

func (s *DealStore) queryDeals(ctx context.Context, query string, args ...interface{}) ([]models.DealNormalized, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query candidate deals: %w", err)
	}
	defer rows.Close()

	out := []models.DealNormalized{}
	for rows.Next() {
		deal, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, deal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidate deals: %w", err)
	}
	return out, nil
}

// Upsert writes deals in a single transaction, replacing rows with the same id.
func (s *DealStore) Upsert(ctx context.Context, deals []models.DealNormalized) error {
	if len(deals) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, d := range deals {
		args, err := upsertArgs(d)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("upsert deal %s: %w", d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

func upsertArgs(d models.DealNormalized) ([]interface{}, error) {
	var fpHash string
	var fpJSON []byte
	if d.Fingerprint != nil {
		fpHash = d.Fingerprint.Hash
		b, err := json.Marshal(d.Fingerprint)
		if err != nil {
			return nil, fmt.Errorf("encode fingerprint of %s: %w", d.ID, err)
		}
		fpJSON = b
	}

	var metaJSON []byte
	if d.Metadata != nil {
		b, err := json.Marshal(d.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata of %s: %w", d.ID, err)
		}
		metaJSON = b
	}

	return []interface{}{
		d.ID, d.Source, d.Address, d.City,
		nullFloat(d.Lat), nullFloat(d.Lng), nullFloat(d.Surface), nullFloat(d.PriceAsk),
		string(d.ZoningHint), string(d.Policy), d.Trust,
		fpHash, fpJSON,
		nullTime(d.DiscoveredAt), nullTime(d.UpdatedAt),
		metaJSON,
	}, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDeal(row scanner) (models.DealNormalized, error) {
	var (
		d                        models.DealNormalized
		lat, lng, surface, price sql.NullFloat64
		zoning, policy           string
		fpJSON, metaJSON         []byte
		discoveredAt, updatedAt  sql.NullTime
	)

	if err := row.Scan(
		&d.ID, &d.Source, &d.Address, &d.City,
		&lat, &lng, &surface, &price,
		&zoning, &policy, &d.Trust,
		&fpJSON, &discoveredAt, &updatedAt, &metaJSON,
	); err != nil {
		return models.DealNormalized{}, fmt.Errorf("scan deal: %w", err)
	}

	d.Lat = floatPtr(lat)
	d.Lng = floatPtr(lng)
	d.Surface = floatPtr(surface)
	d.PriceAsk = floatPtr(price)
	d.ZoningHint = models.Zoning(zoning)
	d.Policy = models.ParsePolicy(policy)
	if discoveredAt.Valid {
		d.DiscoveredAt = discoveredAt.Time.UTC()
	}
	if updatedAt.Valid {
		d.UpdatedAt = updatedAt.Time.UTC()
	}

	if len(fpJSON) > 0 {
		var fp models.Fingerprint
		if err := json.Unmarshal(fpJSON, &fp); err != nil {
			return models.DealNormalized{}, fmt.Errorf("decode fingerprint of %s: %w", d.ID, err)
		}
		d.Fingerprint = &fp
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &d.Metadata); err != nil {
			return models.DealNormalized{}, fmt.Errorf("decode metadata of %s: %w", d.ID, err)
		}
	}
	return d, nil
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
