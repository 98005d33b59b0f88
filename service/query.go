package service

import (
	"strconv"
	"strings"
)

// Filter restricts a queried field to a set of literal values.
type Filter struct {
	Field string
	In    []string
}

// Query is a structured SELECT against one object. Filters are combined with
// FilterJoin ("AND" by default); Condition is an opaque predicate ANDed on
// top. Backends render and log the query in their own dialect; SOQL() renders
// the service's query language.
type Query struct {
	Object     string
	Fields     []string
	Scope      string
	Filters    []Filter
	FilterJoin string
	Condition  string
	OrderBy    string
	Limit      int
	Offset     int
}

// QuoteString renders a single-quoted literal with embedded quotes doubled.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// WhereClause renders the predicate part of the query (without the leading
// WHERE), quoting identifiers through quoteIdent. An empty string means the
// query is unfiltered.
func (q Query) WhereClause(quoteIdent func(string) string) string {
	join := q.FilterJoin
	if join == "" {
		join = "AND"
	}
	var filters []string
	for _, f := range q.Filters {
		if len(f.In) == 0 {
			continue
		}
		values := make([]string, len(f.In))
		for i, v := range f.In {
			values[i] = QuoteString(v)
		}
		filters = append(filters, quoteIdent(f.Field)+" IN ("+strings.Join(values, ", ")+")")
	}
	var parts []string
	if len(filters) > 0 {
		clause := strings.Join(filters, " "+join+" ")
		if len(filters) > 1 && q.Condition != "" {
			clause = "(" + clause + ")"
		}
		parts = append(parts, clause)
	}
	if q.Condition != "" {
		parts = append(parts, q.Condition)
	}
	return strings.Join(parts, " AND ")
}

// SOQL renders the query as service query-language text.
func (q Query) SOQL() string {
	ident := func(name string) string { return name }
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(q.Fields, ", "))
	b.WriteString(" FROM ")
	b.WriteString(q.Object)
	if q.Scope != "" {
		b.WriteString(" USING SCOPE ")
		b.WriteString(q.Scope)
	}
	if where := q.WhereClause(ident); where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	if q.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(q.OrderBy)
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(q.Offset))
	}
	return b.String()
}
