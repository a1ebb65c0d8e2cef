package search

import (
	"strings"

	"github.com/BrandonDHaskell/oretrack/internal/oretrack/types"
)

// Keep reports whether r passes f. Contractor compares case-insensitively;
// the date bounds are inclusive and compare as YYYY-MM-DD strings.
func Keep(r types.Record, f types.Filters) bool {
	if c := strings.TrimSpace(f.Contractor); c != "" && !strings.EqualFold(r.Contractor, c) {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.DateStart != "" && r.Date < f.DateStart {
		return false
	}
	if f.DateEnd != "" && r.Date > f.DateEnd {
		return false
	}
	return true
}

// Filter returns the records passing f, preserving order.
func Filter(records []types.Record, f types.Filters) []types.Record {
	if f == (types.Filters{}) {
		return records
	}
	out := make([]types.Record, 0, len(records))
	for _, r := range records {
		if Keep(r, f) {
			out = append(out, r)
		}
	}
	return out
}
