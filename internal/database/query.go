package database

import (
	"strconv"
	"strings"
)

// selectQuery accumulates predicate clauses and their positional bindings.
// Clauses use '?' placeholders; callers rebind the built text for the driver.
type selectQuery struct {
	columns string
	from    string
	clauses []string
	args    []any
	orderBy string
	limit   int
}

func newSelect(columns, from string) *selectQuery {
	return &selectQuery{columns: columns, from: from}
}

// where adds a clause ANDed with the others. The number of '?' in clause must
// match len(args).
func (q *selectQuery) where(clause string, args ...any) *selectQuery {
	q.clauses = append(q.clauses, clause)
	q.args = append(q.args, args...)
	return q
}

func (q *selectQuery) order(by string) *selectQuery {
	q.orderBy = by
	return q
}

func (q *selectQuery) limitTo(n int) *selectQuery {
	q.limit = n
	return q
}

func (q *selectQuery) build() (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(q.columns)
	b.WriteString(" FROM ")
	b.WriteString(q.from)
	for i, c := range q.clauses {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		b.WriteString(c)
	}
	if q.orderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(q.orderBy)
	}
	if q.limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(q.limit))
	}
	return b.String(), q.args
}
