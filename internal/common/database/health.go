package database

import (
	"context"
	"sort"
)

// Pinger is a dependency that can report its own reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CheckAll pings every dependency and returns the names that failed, sorted,
// with their errors. A nil dependency is skipped.
func CheckAll(ctx context.Context, deps map[string]Pinger) (failed []string, errs map[string]error) {
	errs = make(map[string]error)
	for name, dep := range deps {
		if dep == nil {
			continue
		}
		if err := dep.Ping(ctx); err != nil {
			errs[name] = err
			failed = append(failed, name)
		}
	}
	sort.Strings(failed)
	return failed, errs
}
