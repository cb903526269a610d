package sql

import (
	"strconv"
	"strings"

	"github.com/gamewizzzz/data-api-builder/dialect"
)

// Renderer turns completed query and mutation structures into statement
// text for one dialect. A Renderer is stateless and safe for concurrent
// use; per-statement state lives in the Builder it creates.
type Renderer struct {
	dialect string
}

// NewRenderer returns a renderer for the given dialect.
func NewRenderer(d string) *Renderer {
	return &Renderer{dialect: d}
}

// Dialect returns the renderer's dialect name.
func (r *Renderer) Dialect() string { return r.dialect }

// Builder is the statement-text accumulator used while rendering one
// structure. It knows how to quote identifiers and emit placeholders for
// its dialect, and nothing else: values never pass through it.
type Builder struct {
	dialect string
	sb      strings.Builder
}

// Builder returns a fresh statement builder.
func (r *Renderer) Builder() *Builder {
	return &Builder{dialect: r.dialect}
}

// WriteString appends raw statement text.
func (b *Builder) WriteString(s string) *Builder {
	b.sb.WriteString(s)
	return b
}

// WriteByte appends a single byte of statement text.
func (b *Builder) WriteByte(c byte) *Builder {
	b.sb.WriteByte(c)
	return b
}

// Quote appends a quoted identifier. Quote characters embedded in the
// identifier are doubled, so metadata-supplied names cannot break out of
// the quoted region.
func (b *Builder) Quote(ident string) *Builder {
	switch b.dialect {
	case dialect.MySQL:
		b.sb.WriteByte('`')
		b.sb.WriteString(strings.ReplaceAll(ident, "`", "``"))
		b.sb.WriteByte('`')
	case dialect.SQLServer:
		b.sb.WriteByte('[')
		b.sb.WriteString(strings.ReplaceAll(ident, "]", "]]"))
		b.sb.WriteByte(']')
	default:
		b.sb.WriteByte('"')
		b.sb.WriteString(strings.ReplaceAll(ident, `"`, `""`))
		b.sb.WriteByte('"')
	}
	return b
}

// StringLiteral appends a single-quoted string literal with embedded
// quotes doubled. Only metadata-supplied names go through here; request
// values always bind as parameters.
func (b *Builder) StringLiteral(s string) *Builder {
	b.sb.WriteByte('\'')
	b.sb.WriteString(strings.ReplaceAll(s, "'", "''"))
	b.sb.WriteByte('\'')
	return b
}

// Ident appends a possibly qualified identifier, quoting each part.
func (b *Builder) Ident(parts ...string) *Builder {
	written := false
	for _, part := range parts {
		if part == "" {
			continue
		}
		if written {
			b.sb.WriteByte('.')
		}
		b.Quote(part)
		written = true
	}
	return b
}

// Column appends a quoted column reference.
func (b *Builder) Column(c Column) *Builder {
	return b.Ident(c.Table, c.Name)
}

// Placeholder appends the dialect placeholder for a parameter.
func (b *Builder) Placeholder(p Param) *Builder {
	switch b.dialect {
	case dialect.Postgres:
		b.sb.WriteByte('$')
		b.sb.WriteString(strconv.Itoa(p.index))
	case dialect.SQLServer:
		b.sb.WriteString("@p")
		b.sb.WriteString(strconv.Itoa(p.index))
	default:
		b.sb.WriteByte('?')
	}
	return b
}

// Operand appends a column reference or a placeholder.
func (b *Builder) Operand(o Operand) *Builder {
	switch o := o.(type) {
	case Column:
		return b.Column(o)
	case Param:
		return b.Placeholder(o)
	}
	return b
}

// Predicate appends a predicate tree. Logical nodes are parenthesized so
// rendered text is unambiguous regardless of how the tree was merged.
func (b *Builder) Predicate(p *P) *Builder {
	if p == nil {
		return b
	}
	switch p.Op {
	case OpNot:
		b.WriteString("NOT (")
		b.Predicate(p.LeftP)
		b.WriteByte(')')
	case OpAnd, OpOr:
		b.WriteByte('(')
		b.Predicate(p.LeftP)
		b.WriteByte(' ')
		b.WriteString(p.Op.String())
		b.WriteByte(' ')
		b.Predicate(p.RightP)
		b.WriteByte(')')
	case OpIsNull, OpNotNull:
		b.Operand(p.Left)
		b.WriteByte(' ')
		b.WriteString(p.Op.String())
	default:
		b.Operand(p.Left)
		b.WriteByte(' ')
		b.WriteString(p.Op.String())
		b.WriteByte(' ')
		b.Operand(p.Right)
	}
	return b
}

// String returns the accumulated statement text.
func (b *Builder) String() string {
	return b.sb.String()
}
