package sqlstore

import (
	"strings"

	dbpkg "github.com/BrandonDHaskell/oretrack/internal/db"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/search"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/types"
)

// tierOrder maps search tiers 1-4 onto one ORDER BY expression. Tier 5
// (fuzzy) has no SQL form; rows only reach the ELSE branch when the WHERE
// clause is bypassed, which it never is for a non-blank query.
const tierOrder = `CASE
  WHEN LOWER(stock_id) = ? THEN 1
  WHEN LOWER(stock_id) LIKE ? ESCAPE '\' THEN 2
  WHEN LOWER(stock_id) LIKE ? ESCAPE '\' THEN 3
  WHEN LOWER(contractor) LIKE ? ESCAPE '\' THEN 4
  ELSE 5
END`

type searchQuery struct {
	count     string
	countArgs []any
	rows      string
	rowArgs   []any
}

func buildSearch(d dbpkg.Dialect, p types.SearchParams) searchQuery {
	var (
		where []string
		args  []any
	)

	if c := strings.TrimSpace(p.Filters.Contractor); c != "" {
		where = append(where, "LOWER(contractor) = ?")
		args = append(args, strings.ToLower(c))
	}
	if p.Filters.Status != "" {
		where = append(where, "stock_status = ?")
		args = append(args, p.Filters.Status)
	}
	if p.Filters.DateStart != "" {
		where = append(where, "date >= ?")
		args = append(args, p.Filters.DateStart)
	}
	if p.Filters.DateEnd != "" {
		where = append(where, "date <= ?")
		args = append(args, p.Filters.DateEnd)
	}

	q := search.Normalize(p.Query)
	order := "id"
	var orderArgs []any
	if q != "" {
		esc := escapeLike(q)
		contains := "%" + esc + "%"
		where = append(where, `(LOWER(stock_id) LIKE ? ESCAPE '\' OR LOWER(contractor) LIKE ? ESCAPE '\')`)
		args = append(args, contains, contains)

		order = tierOrder + ", LENGTH(stock_id), stock_id" + d.BinaryCollate() + ", id"
		orderArgs = []any{q, esc + "%", contains, contains}
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	rowArgs := make([]any, 0, len(args)+len(orderArgs)+2)
	rowArgs = append(rowArgs, args...)
	rowArgs = append(rowArgs, orderArgs...)
	rowArgs = append(rowArgs, p.Page.Limit, p.Page.Offset)

	return searchQuery{
		count:     d.Rebind("SELECT COUNT(*) FROM tos" + whereSQL + ";"),
		countArgs: args,
		rows: d.Rebind("SELECT " + recordColumns + " FROM tos" + whereSQL +
			" ORDER BY " + order + " LIMIT ? OFFSET ?;"),
		rowArgs: rowArgs,
	}
}

// escapeLike makes LIKE metacharacters in user input literal.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
