// Package policy compiles authorization filter expressions into predicate
// trees. Policies are declared per entity, role and operation in the
// restricted OData grammar (see the odata package); the compiled predicate
// is conjoined with every caller filter so it can never be bypassed.
package policy

import (
	"fmt"

	dab "github.com/gamewizzzz/data-api-builder"
	"github.com/gamewizzzz/data-api-builder/dialect/sql"
	"github.com/gamewizzzz/data-api-builder/metadata"
	"github.com/gamewizzzz/data-api-builder/odata"
)

// Source supplies the raw policy expression for an entity, role and
// operation. The boolean is false when no policy applies, which means
// unrestricted access for that combination.
type Source interface {
	Policy(entity, role string, op dab.Op) (string, bool)
}

// SourceFunc allows the use of ordinary functions as policy sources.
type SourceFunc func(entity, role string, op dab.Op) (string, bool)

// Policy calls f(entity, role, op).
func (f SourceFunc) Policy(entity, role string, op dab.Op) (string, bool) {
	return f(entity, role, op)
}

// Static is a fixed in-memory policy source keyed by entity, role and
// operation mask. The first entry whose mask covers the requested
// operation wins.
type Static map[string]map[string][]Rule

// Rule is one role-scoped policy entry.
type Rule struct {
	// Ops is the operation mask the rule applies to.
	Ops dab.Op
	// Filter is the raw policy expression.
	Filter string
}

// Policy implements Source.
func (s Static) Policy(entity, role string, op dab.Op) (string, bool) {
	rules, ok := s[entity][role]
	if !ok {
		return "", false
	}
	for _, r := range rules {
		if op.Is(r.Ops) {
			return r.Filter, true
		}
	}
	return "", false
}

// Compiler resolves and compiles policies against entity metadata.
type Compiler struct {
	source Source
}

// NewCompiler returns a compiler reading policies from the given source.
func NewCompiler(source Source) *Compiler {
	return &Compiler{source: source}
}

// Predicate compiles the policy for (entity, role, op) into a predicate
// scoped to the given table alias, registering every literal in params.
// It returns (nil, nil) when no policy applies. A policy that fails to
// parse, references an unknown field, or carries an uncoercible literal
// fails with a policy-malformed error, which the request boundary must
// surface as access denied.
func (c *Compiler) Predicate(ent *metadata.Entity, role string, op dab.Op, alias string, params *sql.Params) (*sql.P, error) {
	raw, ok := c.source.Policy(ent.Name, role, op)
	if !ok {
		return nil, nil
	}
	return Compile(raw, ent, role, op, alias, params)
}

// Compile compiles one raw policy expression into a predicate scoped to
// the given table alias.
func Compile(raw string, ent *metadata.Entity, role string, op dab.Op, alias string, params *sql.Params) (*sql.P, error) {
	node, err := odata.Parse(raw)
	if err != nil {
		return nil, dab.NewPolicyMalformedError(ent.Name, role, op, err)
	}
	p, err := FilterPredicate(node, ent, alias, params)
	if err != nil {
		return nil, dab.NewPolicyMalformedError(ent.Name, role, op, err)
	}
	return p, nil
}

// FilterPredicate compiles a parsed filter tree against entity metadata:
// field references resolve through the exposed-to-backing mapping, every
// literal is coerced to its column type and registered in params. It is
// shared between policy expressions and caller-supplied filters; only the
// error the caller wraps it in differs.
func FilterPredicate(node *odata.Node, ent *metadata.Entity, alias string, params *sql.Params) (*sql.P, error) {
	switch node.Kind {
	case odata.NodeAnd, odata.NodeOr:
		left, err := FilterPredicate(node.Left, ent, alias, params)
		if err != nil {
			return nil, err
		}
		right, err := FilterPredicate(node.Right, ent, alias, params)
		if err != nil {
			return nil, err
		}
		if node.Kind == odata.NodeAnd {
			return sql.And(left, right), nil
		}
		return sql.Or(left, right), nil
	case odata.NodeNot:
		inner, err := FilterPredicate(node.Left, ent, alias, params)
		if err != nil {
			return nil, err
		}
		return sql.Not(inner), nil
	default:
		return compileComparison(node, ent, alias, params)
	}
}

func compileComparison(node *odata.Node, ent *metadata.Entity, alias string, params *sql.Params) (*sql.P, error) {
	backing, ok := ent.BackingName(node.Field)
	if !ok {
		return nil, fmt.Errorf("unknown field %q", node.Field)
	}
	col, ok := ent.Table.Column(backing)
	if !ok {
		return nil, fmt.Errorf("unknown column %q", backing)
	}
	ref := sql.C(alias, col.Name)
	if node.Value.Kind == odata.LiteralNull {
		switch node.Op {
		case odata.OpEQ:
			return sql.IsNull(ref), nil
		case odata.OpNE:
			return sql.NotNull(ref), nil
		default:
			return nil, fmt.Errorf("field %q: null supports only eq and ne", node.Field)
		}
	}
	v, err := col.Kind.Coerce(node.Value.Value())
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", node.Field, err)
	}
	param := params.Add(v)
	switch node.Op {
	case odata.OpEQ:
		return sql.EQ(ref, param), nil
	case odata.OpNE:
		return sql.NEQ(ref, param), nil
	case odata.OpGT:
		return sql.GT(ref, param), nil
	case odata.OpGE:
		return sql.GTE(ref, param), nil
	case odata.OpLT:
		return sql.LT(ref, param), nil
	default:
		return sql.LTE(ref, param), nil
	}
}
