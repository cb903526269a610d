// Package sql holds the expression model shared by every query and
// mutation structure, and the dialect renderer that turns completed
// structures into executable statements.
//
// The model never escapes identifiers or values itself: identifier quoting
// is deferred to the renderer, and values never enter statement text at
// all. Every literal is registered in a request-scoped parameter store
// and only its placeholder is rendered.
package sql

import (
	"fmt"
)

// Params is the request-scoped ordered parameter store. Every literal that
// reaches rendered statement text must first be registered here; rendering
// emits the placeholder for the registered ordinal, never the value.
type Params struct {
	values []any
}

// NewParams returns an empty parameter store.
func NewParams() *Params {
	return &Params{}
}

// Add registers a literal and returns its parameter reference.
func (p *Params) Add(v any) Param {
	p.values = append(p.values, v)
	return Param{index: len(p.values)}
}

// Values returns the ordered bind values.
func (p *Params) Values() []any {
	return p.values
}

// Value returns the bound value of a parameter.
func (p *Params) Value(param Param) any {
	return p.values[param.index-1]
}

// Len returns the number of registered parameters.
func (p *Params) Len() int {
	return len(p.values)
}

// Column is a quoted column reference: an optional table alias plus the
// physical column name. The zero Table renders an unqualified reference.
type Column struct {
	Table string
	Name  string
}

// C returns a column reference qualified by a table alias.
func C(table, name string) Column {
	return Column{Table: table, Name: name}
}

func (Column) operand() {}

// String returns an unquoted debug representation.
func (c Column) String() string {
	if c.Table == "" {
		return c.Name
	}
	return c.Table + "." + c.Name
}

// Param is a reference to a registered parameter. Ordinals are 1-based.
type Param struct {
	index int
}

func (Param) operand() {}

// String returns a debug representation.
func (p Param) String() string { return fmt.Sprintf("$%d", p.index) }

// Operand is either a Column or a Param. The closed set keeps literal
// values out of the predicate tree by construction.
type Operand interface {
	fmt.Stringer
	operand()
}

// Op is a predicate operator.
type Op uint8

// Predicate operators.
const (
	OpEQ Op = iota
	OpNEQ
	OpGT
	OpGTE
	OpLT
	OpLTE
	OpIsNull
	OpNotNull
	OpAnd
	OpOr
	OpNot
)

var opText = [...]string{
	OpEQ:      "=",
	OpNEQ:     "<>",
	OpGT:      ">",
	OpGTE:     ">=",
	OpLT:      "<",
	OpLTE:     "<=",
	OpIsNull:  "IS NULL",
	OpNotNull: "IS NOT NULL",
	OpAnd:     "AND",
	OpOr:      "OR",
	OpNot:     "NOT",
}

// String returns the SQL text of the operator.
func (o Op) String() string { return opText[o] }

// P is a predicate node. Comparison nodes carry two operands; logical
// nodes carry one or two child predicates. Predicates are pure values:
// two predicates are structurally equal exactly when their rendered text
// is identical.
type P struct {
	Op    Op
	Left  Operand
	Right Operand
	// LeftP and RightP are set on logical nodes only.
	LeftP  *P
	RightP *P
}

func compare(op Op, left, right Operand) *P {
	return &P{Op: op, Left: left, Right: right}
}

// EQ returns a left = right predicate.
func EQ(left, right Operand) *P { return compare(OpEQ, left, right) }

// NEQ returns a left <> right predicate.
func NEQ(left, right Operand) *P { return compare(OpNEQ, left, right) }

// GT returns a left > right predicate.
func GT(left, right Operand) *P { return compare(OpGT, left, right) }

// GTE returns a left >= right predicate.
func GTE(left, right Operand) *P { return compare(OpGTE, left, right) }

// LT returns a left < right predicate.
func LT(left, right Operand) *P { return compare(OpLT, left, right) }

// LTE returns a left <= right predicate.
func LTE(left, right Operand) *P { return compare(OpLTE, left, right) }

// IsNull returns a column IS NULL predicate.
func IsNull(c Column) *P { return &P{Op: OpIsNull, Left: c} }

// NotNull returns a column IS NOT NULL predicate.
func NotNull(c Column) *P { return &P{Op: OpNotNull, Left: c} }

// Not negates a predicate.
func Not(p *P) *P { return &P{Op: OpNot, LeftP: p} }

// And conjoins predicates into a left-leaning binary tree. Nil entries are
// skipped, so optional predicate sources can be merged unconditionally.
func And(ps ...*P) *P { return fold(OpAnd, ps) }

// Or disjoins predicates into a left-leaning binary tree.
func Or(ps ...*P) *P { return fold(OpOr, ps) }

func fold(op Op, ps []*P) *P {
	var root *P
	for _, p := range ps {
		if p == nil {
			continue
		}
		if root == nil {
			root = p
			continue
		}
		root = &P{Op: op, LeftP: root, RightP: p}
	}
	return root
}

// logical reports whether the node combines child predicates.
func (p *P) logical() bool {
	return p.Op == OpAnd || p.Op == OpOr || p.Op == OpNot
}

// String returns an unquoted debug representation of the tree.
func (p *P) String() string {
	if p == nil {
		return ""
	}
	switch p.Op {
	case OpNot:
		return "NOT (" + p.LeftP.String() + ")"
	case OpAnd, OpOr:
		return "(" + p.LeftP.String() + " " + p.Op.String() + " " + p.RightP.String() + ")"
	case OpIsNull, OpNotNull:
		return p.Left.String() + " " + p.Op.String()
	default:
		return p.Left.String() + " " + p.Op.String() + " " + p.Right.String()
	}
}

// Equal reports structural equality of two predicate trees.
func (p *P) Equal(other *P) bool {
	if p == nil || other == nil {
		return p == other
	}
	if p.Op != other.Op || p.Left != other.Left || p.Right != other.Right {
		return false
	}
	return p.LeftP.Equal(other.LeftP) && p.RightP.Equal(other.RightP)
}

// ResultColumn is one output column of a query structure: the physical
// column name plus the exposed name it is aliased to in the result.
type ResultColumn struct {
	Name  string // physical column name
	Alias string // exposed field name
}

// OrderColumn is one ordering term. Ordering is always by primary key,
// ascending, so only the column reference is carried.
type OrderColumn = Column
