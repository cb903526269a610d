// Package odata parses the restricted OData filter grammar used by
// authorization policies. An expression compares `@item.<field>`
// references against literals and combines comparisons with `and`, `or`
// and `not`:
//
//	@item.ownerId eq 42 and (@item.state eq 'published' or @item.public eq true)
//
// The parsed tree is a closed variant over comparisons, logical
// connectives, field references and literals; callers walk it directly.
package odata

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// CompareOp is a comparison operator of the filter grammar.
type CompareOp uint8

// Comparison operators.
const (
	OpEQ CompareOp = iota
	OpNE
	OpGT
	OpGE
	OpLT
	OpLE
)

var compareOps = map[string]CompareOp{
	"eq": OpEQ,
	"ne": OpNE,
	"gt": OpGT,
	"ge": OpGE,
	"lt": OpLT,
	"le": OpLE,
}

// String returns the source text of the operator.
func (o CompareOp) String() string {
	for s, op := range compareOps {
		if op == o {
			return s
		}
	}
	return fmt.Sprintf("CompareOp(%d)", o)
}

// LiteralKind tags the value carried by a Literal.
type LiteralKind uint8

// Literal kinds.
const (
	LiteralString LiteralKind = iota
	LiteralNumber
	LiteralBool
	LiteralNull
)

// Literal is a literal value of a comparison.
type Literal struct {
	Kind   LiteralKind
	String string
	Number float64
	Bool   bool
}

// Value returns the literal as a plain Go value: string, float64, bool
// or nil.
func (l Literal) Value() any {
	switch l.Kind {
	case LiteralString:
		return l.String
	case LiteralNumber:
		return l.Number
	case LiteralBool:
		return l.Bool
	}
	return nil
}

// NodeKind tags a parsed filter tree node.
type NodeKind uint8

// Node kinds.
const (
	NodeComparison NodeKind = iota
	NodeAnd
	NodeOr
	NodeNot
)

// Node is one node of the parsed filter tree. Comparison nodes carry
// Field, Op and Value; logical nodes carry Left (and Right, except for
// NodeNot).
type Node struct {
	Kind  NodeKind
	Field string
	Op    CompareOp
	Value Literal
	Left  *Node
	Right *Node
}

// filterLexer tokenizes the filter grammar. Keywords (eq, and, not,
// true, null, ...) lex as plain identifiers and are matched by value in
// the grammar.
var filterLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Field", Pattern: `@item\.[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "String", Pattern: `'(?:''|[^'])*'`},
	{Name: "Number", Pattern: `-?\d+(?:\.\d+)?`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "LParen", Pattern: `\(`},
	{Name: "RParen", Pattern: `\)`},
	{Name: "Whitespace", Pattern: `\s+`},
})

// The raw parse tree mirrors the grammar with explicit precedence
// levels: or binds loosest, then and, then not.
type rawExpression struct {
	First *rawAnd   `@@`
	Rest  []*rawAnd `( "or" @@ )*`
}

type rawAnd struct {
	First *rawUnary   `@@`
	Rest  []*rawUnary `( "and" @@ )*`
}

type rawUnary struct {
	Not        *rawUnary      `"not" @@`
	Group      *rawExpression `| LParen @@ RParen`
	Comparison *rawComparison `| @@`
}

type rawComparison struct {
	// A field is referenced as "@item.name" or by its bare name.
	Field string      `@(Field | Ident)`
	Op    string      `@("eq" | "ne" | "gt" | "ge" | "lt" | "le")`
	Value *rawLiteral `@@`
}

type rawLiteral struct {
	Str  *string  `@String`
	Num  *float64 `| @Number`
	Bool *string  `| @("true" | "false")`
	Null bool     `| @"null"`
}

var parser = participle.MustBuild[rawExpression](
	participle.Lexer(filterLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

// Parse parses one filter expression into its tree form.
func Parse(input string) (*Node, error) {
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("odata: empty filter expression")
	}
	raw, err := parser.ParseString("", input)
	if err != nil {
		return nil, fmt.Errorf("odata: %w", err)
	}
	return convertExpression(raw), nil
}

func convertExpression(raw *rawExpression) *Node {
	node := convertAnd(raw.First)
	for _, next := range raw.Rest {
		node = &Node{Kind: NodeOr, Left: node, Right: convertAnd(next)}
	}
	return node
}

func convertAnd(raw *rawAnd) *Node {
	node := convertUnary(raw.First)
	for _, next := range raw.Rest {
		node = &Node{Kind: NodeAnd, Left: node, Right: convertUnary(next)}
	}
	return node
}

func convertUnary(raw *rawUnary) *Node {
	switch {
	case raw.Not != nil:
		return &Node{Kind: NodeNot, Left: convertUnary(raw.Not)}
	case raw.Group != nil:
		return convertExpression(raw.Group)
	default:
		return convertComparison(raw.Comparison)
	}
}

func convertComparison(raw *rawComparison) *Node {
	return &Node{
		Kind:  NodeComparison,
		Field: strings.TrimPrefix(raw.Field, "@item."),
		Op:    compareOps[raw.Op],
		Value: convertLiteral(raw.Value),
	}
}

func convertLiteral(raw *rawLiteral) Literal {
	switch {
	case raw.Str != nil:
		return Literal{Kind: LiteralString, String: unquote(*raw.Str)}
	case raw.Num != nil:
		return Literal{Kind: LiteralNumber, Number: *raw.Num}
	case raw.Bool != nil:
		return Literal{Kind: LiteralBool, Bool: *raw.Bool == "true"}
	default:
		return Literal{Kind: LiteralNull}
	}
}

// unquote strips the single quotes of an OData string literal and folds
// the '' escape.
func unquote(s string) string {
	s = s[1 : len(s)-1]
	return strings.ReplaceAll(s, "''", "'")
}

// String renders the node back to filter-grammar text, for diagnostics.
func (n *Node) String() string {
	switch n.Kind {
	case NodeAnd:
		return "(" + n.Left.String() + " and " + n.Right.String() + ")"
	case NodeOr:
		return "(" + n.Left.String() + " or " + n.Right.String() + ")"
	case NodeNot:
		return "not " + n.Left.String()
	default:
		return "@item." + n.Field + " " + n.Op.String() + " " + literalString(n.Value)
	}
}

func literalString(l Literal) string {
	switch l.Kind {
	case LiteralString:
		return "'" + strings.ReplaceAll(l.String, "'", "''") + "'"
	case LiteralNumber:
		return strconv.FormatFloat(l.Number, 'f', -1, 64)
	case LiteralBool:
		return strconv.FormatBool(l.Bool)
	}
	return "null"
}
