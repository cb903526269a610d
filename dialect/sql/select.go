package sql

import (
	"strconv"

	"github.com/gamewizzzz/data-api-builder/dialect"
)

// Query is a completed read structure. It is dialect-neutral: aliases,
// predicates and parameter references are already resolved, and rendering
// only decides statement text.
//
// The top level of a Query renders its own columns as plain result
// columns; every Join renders as one additional JSON-valued column, so a
// structure of arbitrary nesting depth is still a single statement and a
// single round trip.
type Query struct {
	Schema  string
	Table   string
	Alias   string
	Columns []ResultColumn
	Joins   []*Join
	Where   *P
	OrderBy []OrderColumn
	Limit   int // 0 means no limit
}

// Join is a related sub-query attached to a parent query. The correlation
// predicate linking the sub-query to the parent alias is part of the
// sub-query's Where.
type Join struct {
	Alias string // exposed field name of the JSON column
	Many  bool   // JSON array when true, single JSON object when false
	Query *Query
}

// outputFields lists the exposed names of a query's result, columns first
// then joins, in declaration order. JSON object keys follow this order.
func (q *Query) outputFields() []string {
	fields := make([]string, 0, len(q.Columns)+len(q.Joins))
	for _, c := range q.Columns {
		fields = append(fields, c.Alias)
	}
	for _, j := range q.Joins {
		fields = append(fields, j.Alias)
	}
	return fields
}

// RenderQuery renders a read structure into statement text.
func (r *Renderer) RenderQuery(q *Query) (string, error) {
	b := r.Builder()
	if err := r.selectInto(b, q); err != nil {
		return "", err
	}
	return b.String(), nil
}

// selectInto renders a full SELECT for q, plain columns plus one JSON
// column per join.
func (r *Renderer) selectInto(b *Builder, q *Query) error {
	b.WriteString("SELECT ")
	if q.Limit > 0 && r.dialect == dialect.SQLServer {
		b.WriteString("TOP ")
		writeInt(b, q.Limit)
		b.WriteByte(' ')
	}
	for i, c := range q.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Column(C(q.Alias, c.Name))
		b.WriteString(" AS ")
		b.Quote(c.Alias)
	}
	for i, j := range q.Joins {
		if i > 0 || len(q.Columns) > 0 {
			b.WriteString(", ")
		}
		if err := r.joinColumn(b, j); err != nil {
			return err
		}
		b.WriteString(" AS ")
		b.Quote(j.Alias)
	}
	b.WriteString(" FROM ")
	b.Ident(q.Schema, q.Table)
	b.WriteString(" AS ")
	b.Quote(q.Alias)
	if q.Where != nil {
		b.WriteString(" WHERE ")
		b.Predicate(q.Where)
	}
	if len(q.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		for i, c := range q.OrderBy {
			if i > 0 {
				b.WriteString(", ")
			}
			b.Column(c)
			b.WriteString(" ASC")
		}
	}
	if q.Limit > 0 && r.dialect != dialect.SQLServer {
		b.WriteString(" LIMIT ")
		writeInt(b, q.Limit)
	}
	return nil
}

// joinColumn renders one correlated sub-query as a scalar JSON expression.
func (r *Renderer) joinColumn(b *Builder, j *Join) error {
	if r.dialect == dialect.SQLServer {
		return r.joinColumnMSSQL(b, j)
	}
	if j.Many {
		return r.joinColumnMany(b, j)
	}
	return r.joinColumnOne(b, j)
}

// joinColumnOne renders a to-one join: a scalar sub-query returning one
// JSON object, or NULL when no related row exists.
func (r *Renderer) joinColumnOne(b *Builder, j *Join) error {
	q := j.Query
	b.WriteString("(SELECT ")
	b.WriteString(r.jsonObjectFunc())
	b.WriteByte('(')
	if err := r.jsonPairs(b, q, q.Alias); err != nil {
		return err
	}
	b.WriteString(") FROM ")
	b.Ident(q.Schema, q.Table)
	b.WriteString(" AS ")
	b.Quote(q.Alias)
	if q.Where != nil {
		b.WriteString(" WHERE ")
		b.Predicate(q.Where)
	}
	b.WriteString(" LIMIT 1)")
	return nil
}

// joinColumnMany renders a to-many join: the sub-query is kept as a
// derived table so its ordering and limit apply before aggregation, and
// the aggregate coalesces to an empty array when no rows match.
func (r *Renderer) joinColumnMany(b *Builder, j *Join) error {
	q := j.Query
	b.WriteString("(SELECT COALESCE(")
	b.WriteString(r.jsonArrayAggFunc())
	b.WriteByte('(')
	b.WriteString(r.jsonObjectFunc())
	b.WriteByte('(')
	fields := q.outputFields()
	for i, f := range fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.StringLiteral(f)
		b.WriteString(", ")
		b.Column(C("sub", f))
	}
	b.WriteString(")), ")
	b.WriteString(r.emptyJSONArray())
	b.WriteString(") FROM (")
	if err := r.selectInto(b, q); err != nil {
		return err
	}
	b.WriteString(") AS ")
	b.Quote("sub")
	b.WriteByte(')')
	return nil
}

// jsonPairs writes the key/value list of a JSON object built directly
// over the source table alias. Nested joins recurse.
func (r *Renderer) jsonPairs(b *Builder, q *Query, table string) error {
	written := false
	for _, c := range q.Columns {
		if written {
			b.WriteString(", ")
		}
		b.StringLiteral(c.Alias)
		b.WriteString(", ")
		b.Column(C(table, c.Name))
		written = true
	}
	for _, j := range q.Joins {
		if written {
			b.WriteString(", ")
		}
		b.StringLiteral(j.Alias)
		b.WriteString(", ")
		if err := r.joinColumn(b, j); err != nil {
			return err
		}
		written = true
	}
	return nil
}

// joinColumnMSSQL renders a join with FOR JSON PATH. FOR JSON yields NULL
// for an empty set, so to-many joins coalesce to an empty array, and
// JSON_QUERY keeps the result from being re-escaped by an enclosing
// FOR JSON level.
func (r *Renderer) joinColumnMSSQL(b *Builder, j *Join) error {
	q := j.Query
	b.WriteString("JSON_QUERY(")
	if j.Many {
		b.WriteString("COALESCE(")
	}
	b.WriteByte('(')
	inner := *q
	if !j.Many {
		inner.Limit = 1
	}
	if err := r.selectInto(b, &inner); err != nil {
		return err
	}
	b.WriteString(" FOR JSON PATH")
	if !j.Many {
		b.WriteString(", WITHOUT_ARRAY_WRAPPER")
	}
	b.WriteByte(')')
	if j.Many {
		b.WriteString(", '[]')")
	}
	b.WriteByte(')')
	return nil
}

func (r *Renderer) jsonObjectFunc() string {
	switch r.dialect {
	case dialect.Postgres:
		return "jsonb_build_object"
	case dialect.MySQL:
		return "JSON_OBJECT"
	case dialect.SQLite:
		return "json_object"
	}
	return ""
}

func (r *Renderer) jsonArrayAggFunc() string {
	switch r.dialect {
	case dialect.Postgres:
		return "jsonb_agg"
	case dialect.MySQL:
		return "JSON_ARRAYAGG"
	case dialect.SQLite:
		return "json_group_array"
	}
	return ""
}

func (r *Renderer) emptyJSONArray() string {
	switch r.dialect {
	case dialect.Postgres:
		return "'[]'::jsonb"
	case dialect.MySQL:
		return "JSON_ARRAY()"
	case dialect.SQLite:
		return "json_array()"
	}
	return ""
}

func writeInt(b *Builder, n int) {
	b.WriteString(strconv.Itoa(n))
}
