// Package compile is the query compilation engine: it turns a validated
// data-access request into a single dialect-specific statement plus its
// ordered bind values and a result shape descriptor.
//
// Compilation is a pure function of the request and the metadata store.
// Every request carries its own parameter store and alias counter, so the
// compiler is safe to call concurrently; nothing it touches is mutated
// after load time.
package compile

import (
	"fmt"

	"github.com/google/uuid"

	dab "github.com/gamewizzzz/data-api-builder"
	"github.com/gamewizzzz/data-api-builder/dialect/sql"
	"github.com/gamewizzzz/data-api-builder/metadata"
	"github.com/gamewizzzz/data-api-builder/odata"
	"github.com/gamewizzzz/data-api-builder/paginate"
	"github.com/gamewizzzz/data-api-builder/policy"
)

// DefaultPageSize is the page size used when a request does not name one.
const DefaultPageSize = 100

// MetadataSource yields the current metadata store. A reloadable source
// may swap stores between requests; one compilation always reads a single
// snapshot.
type MetadataSource interface {
	Store() *metadata.Store
}

type storeSource struct{ store *metadata.Store }

func (s storeSource) Store() *metadata.Store { return s.store }

// FixedStore adapts a single immutable store into a MetadataSource.
func FixedStore(s *metadata.Store) MetadataSource {
	return storeSource{store: s}
}

// Compiler compiles requests against one dialect. It is stateless across
// requests and safe for concurrent use.
type Compiler struct {
	meta     MetadataSource
	policies *policy.Compiler
	renderer *sql.Renderer
	pageSize int
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithDefaultPageSize overrides the page size used when a request does
// not name one.
func WithDefaultPageSize(n int) Option {
	return func(c *Compiler) { c.pageSize = n }
}

// New returns a compiler for the given dialect, reading metadata from
// meta and policies from policies.
func New(meta MetadataSource, policies policy.Source, dialectName string, opts ...Option) *Compiler {
	c := &Compiler{
		meta:     meta,
		policies: policy.NewCompiler(policies),
		renderer: sql.NewRenderer(dialectName),
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dialect returns the dialect the compiler renders for.
func (c *Compiler) Dialect() string { return c.renderer.Dialect() }

// Selection names the output fields and nested relationship selections of
// a request. An empty Fields list selects every exposed column.
type Selection struct {
	Fields  []string
	Related []RelatedSelection
}

// RelatedSelection selects a relationship: the target entity name plus
// the selection applied to it.
type RelatedSelection struct {
	Target    string
	Selection Selection
}

// QueryRequest is a read request. Op must be OpRead (single row, Keys
// required) or OpReadMany (list, paginated).
type QueryRequest struct {
	Entity    string
	Op        dab.Op
	Selection Selection

	// Keys holds the primary-key values of a single-row read, keyed by
	// exposed field name.
	Keys map[string]any

	// Filter is a caller-supplied filter expression in the same grammar
	// as policies. Optional.
	Filter string

	// After is the continuation token of the previous page. Optional.
	After string

	// First is the requested page size; 0 means the compiler default.
	First int

	// Parameters holds stored-procedure arguments by declared name.
	Parameters map[string]any

	Role string
}

// CompiledQuery is a compiled read: one statement, however deep the
// relationship selection.
type CompiledQuery struct {
	// ID identifies the compilation for logging and tracing.
	ID string

	Entity    string
	Statement sql.Statement
	Shape     *Shape

	// PageSize is the effective page size. The statement fetches one row
	// more than this; a full fetch means another page exists.
	PageSize int

	// Warnings reports non-fatal metadata ambiguities encountered while
	// compiling, such as several foreign keys between one entity pair.
	Warnings []string
}

// buildContext is the per-request compilation state: the parameter store
// and the alias counter. Aliases are generated per request, never from
// global state, so concurrent compilations cannot collide.
type buildContext struct {
	id       string
	params   *sql.Params
	aliases  int
	warnings []string
}

func newBuildContext() *buildContext {
	return &buildContext{id: uuid.NewString(), params: sql.NewParams()}
}

func (bc *buildContext) alias() string {
	a := fmt.Sprintf("table%d", bc.aliases)
	bc.aliases++
	return a
}

func (bc *buildContext) warnf(format string, args ...any) {
	bc.warnings = append(bc.warnings, fmt.Sprintf(format, args...))
}

// CompileQuery compiles a read request into a single statement.
func (c *Compiler) CompileQuery(req QueryRequest) (*CompiledQuery, error) {
	if !req.Op.Is(dab.OpRead | dab.OpReadMany) {
		return nil, dab.NewInvalidParameterValueError("operation",
			fmt.Errorf("%s is not a read operation", req.Op))
	}
	store := c.meta.Store()
	ent, err := store.Entity(req.Entity)
	if err != nil {
		return nil, err
	}
	bc := newBuildContext()
	if ent.Procedure != nil {
		return c.compileCall(bc, ent, req)
	}
	pageSize := req.First
	if pageSize <= 0 {
		pageSize = c.pageSize
	}
	q, shape, err := c.buildQuery(bc, store, ent, req, pageSize)
	if err != nil {
		return nil, err
	}
	text, err := c.renderer.RenderQuery(q)
	if err != nil {
		return nil, err
	}
	return &CompiledQuery{
		ID:        bc.id,
		Entity:    ent.Name,
		Statement: sql.Statement{Text: text, Args: bc.params.Values()},
		Shape:     shape,
		PageSize:  pageSize,
		Warnings:  bc.warnings,
	}, nil
}

// buildQuery assembles the top-level query structure. Join sub-structures
// are built before the predicate so parameter registration order matches
// the order placeholders appear in the rendered text.
func (c *Compiler) buildQuery(bc *buildContext, store *metadata.Store, ent *metadata.Entity, req QueryRequest, pageSize int) (*sql.Query, *Shape, error) {
	many := req.Op.Is(dab.OpReadMany)
	alias := bc.alias()
	q := &sql.Query{
		Schema: ent.Object.Schema,
		Table:  ent.Object.Name,
		Alias:  alias,
	}
	shape := &Shape{Entity: ent.Name, Many: many}
	if err := c.selectColumns(q, shape, ent, req.Selection.Fields); err != nil {
		return nil, nil, err
	}
	if err := c.buildJoins(bc, store, q, shape, ent, req.Selection.Related, req.Role, req.Op); err != nil {
		return nil, nil, err
	}

	// Predicate sources merge in a fixed order so rendering stays
	// deterministic: policy, then caller filter, then keys, then the
	// pagination keyset.
	pol, err := c.policies.Predicate(ent, req.Role, req.Op, alias, bc.params)
	if err != nil {
		return nil, nil, err
	}
	filter, err := c.filterPredicate(ent, req.Filter, alias, bc.params)
	if err != nil {
		return nil, nil, err
	}
	var keys *sql.P
	if !many {
		if keys, err = c.keysPredicate(ent, alias, req.Keys, bc.params); err != nil {
			return nil, nil, err
		}
	}
	var keyset *sql.P
	if many && req.After != "" {
		pk := ent.Table.PrimaryKeyColumns()
		values, err := paginate.DecodeToken(req.After, pk)
		if err != nil {
			return nil, nil, err
		}
		if keyset, err = paginate.Keyset(alias, pk, values, bc.params); err != nil {
			return nil, nil, err
		}
	}
	q.Where = sql.And(pol, filter, keys, keyset)

	for _, col := range ent.Table.PrimaryKeyColumns() {
		q.OrderBy = append(q.OrderBy, sql.C(alias, col.Name))
	}
	if many {
		q.Limit = pageSize + 1
	} else {
		q.Limit = 1
	}
	return q, shape, nil
}

// selectColumns resolves the requested fields (or every exposed column)
// into the structure's output list.
func (c *Compiler) selectColumns(q *sql.Query, shape *Shape, ent *metadata.Entity, fields []string) error {
	if len(fields) == 0 {
		for _, col := range ent.Table.Columns {
			exposed, ok := ent.ExposedName(col.Name)
			if !ok {
				continue
			}
			q.Columns = append(q.Columns, sql.ResultColumn{Name: col.Name, Alias: exposed})
			shape.Fields = append(shape.Fields, FieldShape{Name: exposed, Kind: col.Kind, Nullable: col.Nullable})
		}
		return nil
	}
	for _, field := range fields {
		backing, ok := ent.BackingName(field)
		if !ok {
			return dab.NewInvalidParameterValueError("fields",
				fmt.Errorf("entity %q has no field %q", ent.Name, field))
		}
		col, ok := ent.Table.Column(backing)
		if !ok {
			return dab.NewInvalidParameterValueError("fields",
				fmt.Errorf("entity %q has no field %q", ent.Name, field))
		}
		q.Columns = append(q.Columns, sql.ResultColumn{Name: col.Name, Alias: field})
		shape.Fields = append(shape.Fields, FieldShape{Name: field, Kind: col.Kind, Nullable: col.Nullable})
	}
	return nil
}

// buildJoins builds one correlated sub-structure per selected
// relationship, recording each as a join rather than compiling a separate
// statement. This is what keeps an arbitrarily deep selection a single
// round trip.
func (c *Compiler) buildJoins(bc *buildContext, store *metadata.Store, q *sql.Query, shape *Shape, ent *metadata.Entity, related []RelatedSelection, role string, op dab.Op) error {
	for _, rel := range related {
		fks, err := store.Relationship(ent.Name, rel.Target)
		if err != nil {
			return err
		}
		if len(fks) > 1 {
			bc.warnf("entity %q has %d foreign keys to %q; using the first", ent.Name, len(fks), rel.Target)
		}
		fk := fks[0]
		target, err := store.Entity(rel.Target)
		if err != nil {
			return err
		}
		owned := fk.Referencing.Equal(ent.Object)
		childAlias := bc.alias()
		child := &sql.Query{
			Schema: target.Object.Schema,
			Table:  target.Object.Name,
			Alias:  childAlias,
		}
		childShape := &Shape{Entity: target.Name, Many: !owned}
		if err := c.selectColumns(child, childShape, target, rel.Selection.Fields); err != nil {
			return err
		}
		if err := c.buildJoins(bc, store, child, childShape, target, rel.Selection.Related, role, op); err != nil {
			return err
		}
		correlation := correlate(fk, owned, childAlias, q.Alias)
		pol, err := c.policies.Predicate(target, role, op, childAlias, bc.params)
		if err != nil {
			return err
		}
		child.Where = sql.And(correlation, pol)
		if !owned {
			for _, col := range target.Table.PrimaryKeyColumns() {
				child.OrderBy = append(child.OrderBy, sql.C(childAlias, col.Name))
			}
			child.Limit = c.pageSize + 1
		}
		nullable, err := relationshipNullable(fk, owned, ent.Table)
		if err != nil {
			return err
		}
		q.Joins = append(q.Joins, &sql.Join{Alias: rel.Target, Many: !owned, Query: child})
		shape.Fields = append(shape.Fields, FieldShape{
			Name:     rel.Target,
			Nullable: nullable,
			Related:  childShape,
		})
	}
	return nil
}

// correlate builds the predicate linking a child sub-query to its parent
// row. When the parent owns the foreign key the child is the referenced
// side; otherwise the child references the parent.
func correlate(fk metadata.ForeignKey, parentOwns bool, childAlias, parentAlias string) *sql.P {
	var ps []*sql.P
	if parentOwns {
		for i := range fk.ReferencedColumns {
			ps = append(ps, sql.EQ(
				sql.C(childAlias, fk.ReferencedColumns[i]),
				sql.C(parentAlias, fk.ReferencingColumns[i]),
			))
		}
	} else {
		for i := range fk.ReferencingColumns {
			ps = append(ps, sql.EQ(
				sql.C(childAlias, fk.ReferencingColumns[i]),
				sql.C(parentAlias, fk.ReferencedColumns[i]),
			))
		}
	}
	return sql.And(ps...)
}

// relationshipNullable computes relationship field nullability from the
// parent's side of the foreign key: the field is nullable iff any of the
// parent's key columns is nullable. A non-null referencing column
// guarantees a related row exists, so the field is non-null.
func relationshipNullable(fk metadata.ForeignKey, parentOwns bool, parent *metadata.Table) (bool, error) {
	names := fk.ReferencingColumns
	if !parentOwns {
		names = fk.ReferencedColumns
	}
	for _, name := range names {
		col, ok := parent.Column(name)
		if !ok {
			return false, fmt.Errorf("compile: foreign key names unknown column %q on %s", name, parent.Object)
		}
		if col.Nullable {
			return true, nil
		}
	}
	return false, nil
}

// filterPredicate compiles a caller-supplied filter. Unlike policies,
// failures here are the caller's fault and surface as bad requests.
func (c *Compiler) filterPredicate(ent *metadata.Entity, raw, alias string, params *sql.Params) (*sql.P, error) {
	if raw == "" {
		return nil, nil
	}
	node, err := odata.Parse(raw)
	if err != nil {
		return nil, dab.NewInvalidParameterValueError("filter", err)
	}
	p, err := policy.FilterPredicate(node, ent, alias, params)
	if err != nil {
		return nil, dab.NewInvalidParameterValueError("filter", err)
	}
	return p, nil
}

// keysPredicate builds the primary-key equality conjunction of a
// single-row request. Every key column must be supplied.
func (c *Compiler) keysPredicate(ent *metadata.Entity, alias string, keys map[string]any, params *sql.Params) (*sql.P, error) {
	pk := ent.Table.PrimaryKeyColumns()
	ps := make([]*sql.P, 0, len(pk))
	for _, col := range pk {
		name := col.Name
		if exposed, ok := ent.ExposedName(col.Name); ok {
			name = exposed
		}
		v, ok := keys[name]
		if !ok {
			return nil, dab.NewInvalidParameterValueError(name,
				fmt.Errorf("missing primary key value for entity %q", ent.Name))
		}
		coerced, err := metadata.CoerceColumn(col, v)
		if err != nil {
			return nil, err
		}
		ps = append(ps, sql.EQ(sql.C(alias, col.Name), params.Add(coerced)))
	}
	if len(keys) > len(pk) {
		return nil, dab.NewInvalidParameterValueError("keys",
			fmt.Errorf("entity %q has %d primary key columns, got %d values", ent.Name, len(pk), len(keys)))
	}
	return sql.And(ps...), nil
}

// compileCall compiles a read against a stored-procedure-backed entity.
// Relationship and column expansion do not apply; the shape is the
// declared output set or the single synthetic result field.
func (c *Compiler) compileCall(bc *buildContext, ent *metadata.Entity, req QueryRequest) (*CompiledQuery, error) {
	call, err := c.procedureCall(ent, req.Parameters, bc.params)
	if err != nil {
		return nil, err
	}
	text, err := c.renderer.RenderCall(call)
	if err != nil {
		return nil, err
	}
	shape := &Shape{Entity: ent.Name, Many: req.Op.Is(dab.OpReadMany)}
	for _, col := range ent.Procedure.ResultColumns() {
		name := col.Name
		if exposed, ok := ent.ExposedName(col.Name); ok {
			name = exposed
		}
		shape.Fields = append(shape.Fields, FieldShape{Name: name, Kind: col.Kind, Nullable: col.Nullable})
	}
	return &CompiledQuery{
		ID:        bc.id,
		Entity:    ent.Name,
		Statement: sql.Statement{Text: text, Args: bc.params.Values()},
		Shape:     shape,
		Warnings:  bc.warnings,
	}, nil
}

// procedureCall binds the declared parameters in declaration order.
// Missing nullable parameters bind null; missing required ones fail.
func (c *Compiler) procedureCall(ent *metadata.Entity, supplied map[string]any, params *sql.Params) (*sql.Call, error) {
	call := &sql.Call{Schema: ent.Object.Schema, Name: ent.Object.Name}
	declared := make(map[string]struct{}, len(ent.Procedure.Parameters))
	for _, p := range ent.Procedure.Parameters {
		declared[p.Name] = struct{}{}
		v, ok := supplied[p.Name]
		if !ok {
			if !p.Nullable && !p.HasDefault {
				return nil, dab.NewInvalidParameterValueError(p.Name,
					fmt.Errorf("missing required parameter for procedure %q", ent.Name))
			}
			if p.HasDefault {
				continue
			}
			call.Args = append(call.Args, sql.CallArg{Name: p.Name, Value: params.Add(nil)})
			continue
		}
		coerced, err := metadata.CoerceColumn(p, v)
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, sql.CallArg{Name: p.Name, Value: params.Add(coerced)})
	}
	for name := range supplied {
		if _, ok := declared[name]; !ok {
			return nil, dab.NewInvalidParameterValueError(name,
				fmt.Errorf("procedure %q declares no such parameter", ent.Name))
		}
	}
	return call, nil
}
