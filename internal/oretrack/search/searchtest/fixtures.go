// Package searchtest holds the query fixtures every search backend must
// agree on.
package searchtest

import "github.com/BrandonDHaskell/oretrack/internal/oretrack/types"

// Case is one query with its expected stock id order.
type Case struct {
	Name  string
	Query string
	Want  []string
	// WantWithoutFuzzy is the order for backends that skip tier 5. Nil
	// means the fuzzy tier contributes nothing and Want applies.
	WantWithoutFuzzy []string
}

// Expected returns the order a backend should produce.
func (c Case) Expected(fuzzy bool) []string {
	if !fuzzy && c.WantWithoutFuzzy != nil {
		return c.WantWithoutFuzzy
	}
	return c.Want
}

// Records is the shared data set, in id order. RL-2001 deliberately comes
// before RL-200 so insertion order cannot explain an exact-match win.
func Records() []types.Record {
	return []types.Record{
		{ID: 1, Contractor: "Acme Earthworks", Date: "2024-05-01", Shift: types.ShiftDay, StockID: "BB.D.5348", Status: types.StatusBuilding},
		{ID: 2, Contractor: "Acme Earthworks", Date: "2024-05-01", Shift: types.ShiftNight, StockID: "BB.D.5349", Status: types.StatusComplete},
		{ID: 3, Contractor: "Northfield Haulage", Date: "2024-05-02", Shift: types.ShiftDay, StockID: "5348", Status: types.StatusBuilding},
		{ID: 4, Contractor: "Northfield Haulage", Date: "2024-05-02", Shift: types.ShiftNight, StockID: "5348.A", Status: types.StatusReclaiming},
		{ID: 5, Contractor: "Ridgeline Mining", Date: "2024-05-03", Shift: types.ShiftDay, StockID: "RL-2001", Status: types.StatusComplete},
		{ID: 6, Contractor: "Ridgeline Mining", Date: "2024-05-03", Shift: types.ShiftNight, StockID: "RL-200", Status: types.StatusDepleted},
		{ID: 7, Contractor: "Bassett & Sons", Date: "2024-05-04", Shift: types.ShiftDay, StockID: "X9-17", Status: types.StatusBuilding},
	}
}

// Cases lists the parity queries.
func Cases() []Case {
	return []Case{
		{
			Name:  "blank query keeps input order",
			Query: "   ",
			Want:  []string{"BB.D.5348", "BB.D.5349", "5348", "5348.A", "RL-2001", "RL-200", "X9-17"},
		},
		{
			Name:  "numeric fragment matches composite code",
			Query: "5348",
			Want:  []string{"5348", "5348.A", "BB.D.5348"},
		},
		{
			Name:             "exact beats fuzzy neighbour",
			Query:            "BB.D.5348",
			Want:             []string{"BB.D.5348", "BB.D.5349"},
			WantWithoutFuzzy: []string{"BB.D.5348"},
		},
		{
			Name:             "exact match is case-insensitive",
			Query:            "5348.a",
			Want:             []string{"5348.A", "5348"},
			WantWithoutFuzzy: []string{"5348.A"},
		},
		{
			Name:  "exact outranks prefix regardless of insertion order",
			Query: "rl-200",
			Want:  []string{"RL-200", "RL-2001"},
		},
		{
			Name:  "prefix ties break on length",
			Query: "rl-20",
			Want:  []string{"RL-200", "RL-2001"},
		},
		{
			Name:  "prefix ties break lexicographically",
			Query: "bb.d",
			Want:  []string{"BB.D.5348", "BB.D.5349"},
		},
		{
			Name:  "substring in the middle",
			Query: "D.53",
			Want:  []string{"BB.D.5348", "BB.D.5349"},
		},
		{
			Name:  "contractor match",
			Query: "haul",
			Want:  []string{"5348", "5348.A"},
		},
		{
			Name:  "contractor match ordered by stock id length",
			Query: "RIDGE",
			Want:  []string{"RL-200", "RL-2001"},
		},
		{
			Name:  "contractor with punctuation",
			Query: "&",
			Want:  []string{"X9-17"},
		},
		{
			Name:             "fuzzy only",
			Query:            "x9-18",
			Want:             []string{"X9-17"},
			WantWithoutFuzzy: []string{},
		},
		{
			Name:             "fuzzy one digit off",
			Query:            "5347",
			Want:             []string{"5348"},
			WantWithoutFuzzy: []string{},
		},
		{
			Name:  "no match",
			Query: "zzz",
			Want:  []string{},
		},
		{
			Name:  "percent is literal",
			Query: "%",
			Want:  []string{},
		},
		{
			Name:  "underscore is literal",
			Query: "_",
			Want:  []string{},
		},
	}
}

// StockIDs projects records to their stock ids for comparison.
func StockIDs(records []types.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.StockID
	}
	return out
}
