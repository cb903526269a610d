package sql

import (
	dab "github.com/gamewizzzz/data-api-builder"
	"github.com/gamewizzzz/data-api-builder/dialect"
)

// Assign is one column assignment in an insert or update. A nil Value
// assigns SQL NULL; anything else is a parameter reference.
type Assign struct {
	Column string
	Value  Operand
}

// Insert is a completed single-row insert structure.
type Insert struct {
	Schema    string
	Table     string
	Assigns   []Assign
	Returning []ResultColumn
}

// Update is a completed update structure. The predicate always pins the
// statement to a single row by primary key.
type Update struct {
	Schema    string
	Table     string
	Assigns   []Assign
	Where     *P
	Returning []ResultColumn
}

// Delete is a completed delete structure.
type Delete struct {
	Schema    string
	Table     string
	Where     *P
	Returning []ResultColumn
}

// CallArg is one stored-procedure argument: the declared parameter name
// plus its bound value.
type CallArg struct {
	Name  string
	Value Param
}

// Call is a stored-procedure invocation structure.
type Call struct {
	Schema string
	Name   string
	Args   []CallArg
}

// UpsertPlan is the two-statement plan behind an upsert: the update is
// attempted first, and the insert runs only when the update touched no
// row. The pair must execute inside a single serializable transaction;
// ExecUpsert does that.
type UpsertPlan struct {
	Update *Update
	Insert *Insert
}

// ReturningSupported reports whether the dialect can return the affected
// row from a mutation statement. When false, callers read the row back
// with a follow-up query inside the same transaction.
func (r *Renderer) ReturningSupported() bool {
	return r.dialect != dialect.MySQL
}

// RenderInsert renders an insert structure.
func (r *Renderer) RenderInsert(ins *Insert) (string, error) {
	b := r.Builder()
	b.WriteString("INSERT INTO ")
	b.Ident(ins.Schema, ins.Table)
	b.WriteString(" (")
	for i, a := range ins.Assigns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Quote(a.Column)
	}
	b.WriteByte(')')
	if r.dialect == dialect.SQLServer {
		r.output(b, "INSERTED", ins.Returning)
	}
	b.WriteString(" VALUES (")
	for i, a := range ins.Assigns {
		if i > 0 {
			b.WriteString(", ")
		}
		r.assignValue(b, a)
	}
	b.WriteByte(')')
	r.returning(b, ins.Returning)
	return b.String(), nil
}

// RenderUpdate renders an update structure.
func (r *Renderer) RenderUpdate(upd *Update) (string, error) {
	b := r.Builder()
	b.WriteString("UPDATE ")
	b.Ident(upd.Schema, upd.Table)
	b.WriteString(" SET ")
	for i, a := range upd.Assigns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Quote(a.Column)
		b.WriteString(" = ")
		r.assignValue(b, a)
	}
	if r.dialect == dialect.SQLServer {
		r.output(b, "INSERTED", upd.Returning)
	}
	if upd.Where != nil {
		b.WriteString(" WHERE ")
		b.Predicate(upd.Where)
	}
	r.returning(b, upd.Returning)
	return b.String(), nil
}

// RenderDelete renders a delete structure.
func (r *Renderer) RenderDelete(del *Delete) (string, error) {
	b := r.Builder()
	b.WriteString("DELETE FROM ")
	b.Ident(del.Schema, del.Table)
	if r.dialect == dialect.SQLServer {
		r.output(b, "DELETED", del.Returning)
	}
	if del.Where != nil {
		b.WriteString(" WHERE ")
		b.Predicate(del.Where)
	}
	r.returning(b, del.Returning)
	return b.String(), nil
}

// RenderCall renders a stored-procedure invocation. SQLite has no stored
// procedures, so rendering one for it is reported as unsupported.
func (r *Renderer) RenderCall(call *Call) (string, error) {
	b := r.Builder()
	switch r.dialect {
	case dialect.Postgres:
		b.WriteString("SELECT * FROM ")
		b.Ident(call.Schema, call.Name)
		b.WriteByte('(')
		for i, a := range call.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			b.Placeholder(a.Value)
		}
		b.WriteByte(')')
	case dialect.MySQL:
		b.WriteString("CALL ")
		b.Ident(call.Schema, call.Name)
		b.WriteByte('(')
		for i, a := range call.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			b.Placeholder(a.Value)
		}
		b.WriteByte(')')
	case dialect.SQLServer:
		b.WriteString("EXEC ")
		b.Ident(call.Schema, call.Name)
		for i, a := range call.Args {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(" @")
			b.WriteString(a.Name)
			b.WriteString(" = ")
			b.Placeholder(a.Value)
		}
	default:
		return "", dab.NewRenderUnsupportedError(r.dialect, "stored procedures")
	}
	return b.String(), nil
}

func (r *Renderer) assignValue(b *Builder, a Assign) {
	if a.Value == nil {
		b.WriteString("NULL")
		return
	}
	b.Operand(a.Value)
}

// returning appends a RETURNING clause on dialects that place it at the
// end of the statement. SQL Server uses output instead; MySQL has no
// equivalent and callers read the row back.
func (r *Renderer) returning(b *Builder, cols []ResultColumn) {
	if len(cols) == 0 {
		return
	}
	if r.dialect != dialect.Postgres && r.dialect != dialect.SQLite {
		return
	}
	b.WriteString(" RETURNING ")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Quote(c.Name)
		b.WriteString(" AS ")
		b.Quote(c.Alias)
	}
}

// output appends an OUTPUT clause for SQL Server.
func (r *Renderer) output(b *Builder, source string, cols []ResultColumn) {
	if len(cols) == 0 {
		return
	}
	b.WriteString(" OUTPUT ")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(source)
		b.WriteByte('.')
		b.Quote(c.Name)
		b.WriteString(" AS ")
		b.Quote(c.Alias)
	}
}
