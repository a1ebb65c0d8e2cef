// Package search ranks stockpile records against a free-text query.
//
// Every candidate gets the lowest applicable tier:
//
//	1 exact stock id
//	2 stock id prefix
//	3 stock id substring
//	4 contractor substring
//	5 positional distance <= MaxFuzzyDistance (local backends only)
//
// Matches sort by tier, then stock id length, then stock id. The SQL store
// reproduces tiers 1-4 in its ORDER BY; the parity fixtures in searchtest
// keep the two implementations aligned.
package search

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/BrandonDHaskell/oretrack/internal/oretrack/types"
)

type Tier int

const (
	TierExact      Tier = 1
	TierPrefix     Tier = 2
	TierSubstring  Tier = 3
	TierContractor Tier = 4
	TierFuzzy      Tier = 5
)

// MaxFuzzyDistance bounds the tier-5 positional distance.
const MaxFuzzyDistance = 2

// Options controls which optional parts of the ranking run.
type Options struct {
	// Fuzzy enables tier 5.
	Fuzzy bool
	// LengthGate rejects fuzzy candidates whose length differs from the
	// query by more than MaxFuzzyDistance before computing the distance.
	// Results are identical either way; it only skips work.
	LengthGate bool
}

// Local is the configuration used by in-process backends.
var Local = Options{Fuzzy: true, LengthGate: true}

// Match pairs a record with the tier it matched on.
type Match struct {
	Record types.Record
	Tier   Tier
}

// Normalize lower-cases and trims a query. A blank result means "no ranking".
func Normalize(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// Classify returns the tier of r for an already normalised, non-blank query.
func Classify(q string, r types.Record, opts Options) (Tier, bool) {
	sid := strings.ToLower(r.StockID)
	switch {
	case sid == q:
		return TierExact, true
	case strings.HasPrefix(sid, q):
		return TierPrefix, true
	case strings.Contains(sid, q):
		return TierSubstring, true
	case strings.Contains(strings.ToLower(r.Contractor), q):
		return TierContractor, true
	}

	if !opts.Fuzzy {
		return 0, false
	}
	if opts.LengthGate {
		diff := utf8.RuneCountInString(sid) - utf8.RuneCountInString(q)
		if diff > MaxFuzzyDistance || diff < -MaxFuzzyDistance {
			return 0, false
		}
	}
	if Distance(sid, q, MaxFuzzyDistance) <= MaxFuzzyDistance {
		return TierFuzzy, true
	}
	return 0, false
}

// Distance counts positions where a and b differ, comparing up to the
// longer length so missing trailing characters count as mismatches. It is
// not an edit distance. Counting stops as soon as the total exceeds limit,
// so the result is only exact when it is <= limit.
func Distance(a, b string, limit int) int {
	ra, rb := []rune(a), []rune(b)
	n := len(ra)
	if len(rb) > n {
		n = len(rb)
	}
	d := 0
	for i := 0; i < n; i++ {
		if i >= len(ra) || i >= len(rb) || ra[i] != rb[i] {
			d++
			if d > limit {
				return d
			}
		}
	}
	return d
}

// Less is the ranking order: tier, stock id length, then stock id.
func Less(a, b Match) bool {
	if a.Tier != b.Tier {
		return a.Tier < b.Tier
	}
	la, lb := utf8.RuneCountInString(a.Record.StockID), utf8.RuneCountInString(b.Record.StockID)
	if la != lb {
		return la < lb
	}
	return a.Record.StockID < b.Record.StockID
}

// RankMatches returns the matching records with their tiers in ranked order.
// A blank query returns nil; use Rank when the unranked passthrough is wanted.
func RankMatches(query string, records []types.Record, opts Options) []Match {
	q := Normalize(query)
	if q == "" {
		return nil
	}
	out := make([]Match, 0, len(records))
	for _, r := range records {
		if t, ok := Classify(q, r, opts); ok {
			out = append(out, Match{Record: r, Tier: t})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out
}

// Rank orders records by relevance to query. A blank query returns every
// record in its original order.
func Rank(query string, records []types.Record, opts Options) []types.Record {
	if Normalize(query) == "" {
		out := make([]types.Record, len(records))
		copy(out, records)
		return out
	}
	ms := RankMatches(query, records, opts)
	out := make([]types.Record, len(ms))
	for i, m := range ms {
		out[i] = m.Record
	}
	return out
}

// Top caps a ranked result. Apply it after Rank, never before.
func Top(records []types.Record, n int) []types.Record {
	if n <= 0 || len(records) <= n {
		return records
	}
	return records[:n]
}

// Window slices a ranked result for pagination. A negative offset counts
// as zero.
func Window(records []types.Record, p types.Page) []types.Record {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Offset >= len(records) {
		return []types.Record{}
	}
	end := len(records)
	if p.Limit > 0 && p.Offset+p.Limit < end {
		end = p.Offset + p.Limit
	}
	return records[p.Offset:end]
}
