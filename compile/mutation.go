package compile

import (
	"fmt"

	dab "github.com/gamewizzzz/data-api-builder"
	"github.com/gamewizzzz/data-api-builder/dialect/sql"
	"github.com/gamewizzzz/data-api-builder/metadata"
)

// MutationRequest is a create, update, upsert or delete request.
type MutationRequest struct {
	Entity string
	Op     dab.Op

	// Fields holds the supplied column values keyed by exposed field
	// name. Ignored for delete.
	Fields map[string]any

	// Keys holds the primary-key values keyed by exposed field name.
	// Required for every operation except create.
	Keys map[string]any

	Role string
}

// UpsertStatements is the two-statement upsert plan: the update leg runs
// first and the insert leg runs only when the update touched no row. Both
// must execute in one serializable transaction (sql.ExecUpsert).
type UpsertStatements struct {
	Update sql.Statement
	Insert sql.Statement
}

// CompiledMutation is a compiled mutation. Statement is set for every
// operation except upsert, which carries its two legs in Upsert instead.
type CompiledMutation struct {
	ID     string
	Entity string

	Statement sql.Statement
	Upsert    *UpsertStatements

	// Shape describes the returned row for create/update/upsert; nil for
	// delete and for dialects that cannot return the affected row.
	Shape *Shape

	// NeedsReadBack is true when the dialect cannot return the affected
	// row from the statement itself and the caller must re-read it.
	NeedsReadBack bool

	Warnings []string
}

// CompileMutation compiles a mutation request.
func (c *Compiler) CompileMutation(req MutationRequest) (*CompiledMutation, error) {
	if !req.Op.IsMutation() {
		return nil, dab.NewInvalidParameterValueError("operation",
			fmt.Errorf("%s is not a mutation operation", req.Op))
	}
	store := c.meta.Store()
	ent, err := store.Entity(req.Entity)
	if err != nil {
		return nil, err
	}
	bc := newBuildContext()
	if ent.Procedure != nil {
		return c.compileProcedureMutation(bc, ent, req)
	}
	// Mutations against a view address its base table.
	target := ent.Table.MutationTarget()
	returning := c.returningColumns(ent, target)

	cm := &CompiledMutation{ID: bc.id, Entity: ent.Name}
	switch {
	case req.Op.Is(dab.OpCreate):
		err = c.compileInsert(bc, cm, ent, target, req, returning)
	case req.Op.Is(dab.OpUpdate):
		err = c.compileUpdate(bc, cm, ent, target, req, returning)
	case req.Op.Is(dab.OpUpsert):
		err = c.compileUpsert(cm, ent, target, req, returning)
	default:
		err = c.compileDelete(bc, cm, ent, target, req)
	}
	if err != nil {
		return nil, err
	}
	if len(returning) > 0 && !req.Op.Is(dab.OpDelete) {
		cm.NeedsReadBack = !c.renderer.ReturningSupported()
		if !cm.NeedsReadBack {
			cm.Shape = returningShape(ent, returning)
		}
	}
	cm.Warnings = bc.warnings
	return cm, nil
}

// returningColumns lists the columns a mutation returns: the primary key
// plus auto-generated and defaulted columns, aliased to their exposed
// names. Never the full column set.
func (c *Compiler) returningColumns(ent *metadata.Entity, target *metadata.Table) []sql.ResultColumn {
	pk := make(map[string]bool, len(target.PrimaryKey))
	for _, name := range target.PrimaryKey {
		pk[name] = true
	}
	var cols []sql.ResultColumn
	for _, col := range target.Columns {
		if !pk[col.Name] && !col.AutoGenerated && !col.HasDefault {
			continue
		}
		alias := col.Name
		if exposed, ok := ent.ExposedName(col.Name); ok {
			alias = exposed
		}
		cols = append(cols, sql.ResultColumn{Name: col.Name, Alias: alias})
	}
	return cols
}

func returningShape(ent *metadata.Entity, returning []sql.ResultColumn) *Shape {
	shape := &Shape{Entity: ent.Name}
	for _, rc := range returning {
		col, ok := ent.Table.MutationTarget().Column(rc.Name)
		if !ok {
			continue
		}
		shape.Fields = append(shape.Fields, FieldShape{Name: rc.Alias, Kind: col.Kind, Nullable: col.Nullable})
	}
	return shape
}

func (c *Compiler) compileInsert(bc *buildContext, cm *CompiledMutation, ent *metadata.Entity, target *metadata.Table, req MutationRequest, returning []sql.ResultColumn) error {
	assigns, err := c.fieldAssigns(ent, target, req.Fields, nil, bc.params)
	if err != nil {
		return err
	}
	if len(assigns) == 0 {
		return dab.NewInvalidParameterValueError("fields",
			fmt.Errorf("entity %q: create requires at least one writable field value", ent.Name))
	}
	ins := &sql.Insert{
		Schema:    target.Object.Schema,
		Table:     target.Object.Name,
		Assigns:   assigns,
		Returning: returning,
	}
	text, err := c.renderer.RenderInsert(ins)
	if err != nil {
		return err
	}
	cm.Statement = sql.Statement{Text: text, Args: bc.params.Values()}
	return nil
}

func (c *Compiler) compileUpdate(bc *buildContext, cm *CompiledMutation, ent *metadata.Entity, target *metadata.Table, req MutationRequest, returning []sql.ResultColumn) error {
	upd, err := c.updateStructure(ent, target, req, returning, bc.params)
	if err != nil {
		return err
	}
	text, err := c.renderer.RenderUpdate(upd)
	if err != nil {
		return err
	}
	cm.Statement = sql.Statement{Text: text, Args: bc.params.Values()}
	return nil
}

func (c *Compiler) compileDelete(bc *buildContext, cm *CompiledMutation, ent *metadata.Entity, target *metadata.Table, req MutationRequest) error {
	where, err := c.mutationWhere(ent, target, req.Role, req.Op, req.Keys, bc.params)
	if err != nil {
		return err
	}
	del := &sql.Delete{
		Schema: target.Object.Schema,
		Table:  target.Object.Name,
		Where:  where,
	}
	text, err := c.renderer.RenderDelete(del)
	if err != nil {
		return err
	}
	cm.Statement = sql.Statement{Text: text, Args: bc.params.Values()}
	return nil
}

// compileUpsert builds the two legs with independent parameter stores:
// each leg is a standalone statement with its own placeholder numbering.
func (c *Compiler) compileUpsert(cm *CompiledMutation, ent *metadata.Entity, target *metadata.Table, req MutationRequest, returning []sql.ResultColumn) error {
	for _, col := range target.PrimaryKeyColumns() {
		if col.AutoGenerated {
			return dab.NewInvalidParameterValueError("operation",
				fmt.Errorf("entity %q: upsert requires a client-supplied primary key", ent.Name))
		}
	}

	updParams := sql.NewParams()
	upd, err := c.updateStructure(ent, target, req, returning, updParams)
	if err != nil {
		return err
	}
	updText, err := c.renderer.RenderUpdate(upd)
	if err != nil {
		return err
	}

	insParams := sql.NewParams()
	keyAssigns, err := c.keyAssigns(ent, target, req.Keys, insParams)
	if err != nil {
		return err
	}
	fieldAssigns, err := c.fieldAssigns(ent, target, req.Fields, keyAssigns, insParams)
	if err != nil {
		return err
	}
	ins := &sql.Insert{
		Schema:    target.Object.Schema,
		Table:     target.Object.Name,
		Assigns:   append(keyAssigns, fieldAssigns...),
		Returning: returning,
	}
	insText, err := c.renderer.RenderInsert(ins)
	if err != nil {
		return err
	}

	cm.Upsert = &UpsertStatements{
		Update: sql.Statement{Text: updText, Args: updParams.Values()},
		Insert: sql.Statement{Text: insText, Args: insParams.Values()},
	}
	return nil
}

// updateStructure builds an update with overwrite semantics: every
// exposed, writable column absent from the supplied fields is set to
// null. Auto-generated and key columns are never touched.
func (c *Compiler) updateStructure(ent *metadata.Entity, target *metadata.Table, req MutationRequest, returning []sql.ResultColumn, params *sql.Params) (*sql.Update, error) {
	assigns, err := c.overwriteAssigns(ent, target, req.Fields, params)
	if err != nil {
		return nil, err
	}
	if len(assigns) == 0 {
		return nil, dab.NewInvalidParameterValueError("fields",
			fmt.Errorf("entity %q has no writable column to update", ent.Name))
	}
	where, err := c.mutationWhere(ent, target, req.Role, req.Op, req.Keys, params)
	if err != nil {
		return nil, err
	}
	return &sql.Update{
		Schema:    target.Object.Schema,
		Table:     target.Object.Name,
		Assigns:   assigns,
		Where:     where,
		Returning: returning,
	}, nil
}

// fieldAssigns coerces the supplied fields into assignments, in table
// column order. skip lists assignments already made (the upsert key
// columns); supplying an auto-generated or unknown field is the caller's
// error.
func (c *Compiler) fieldAssigns(ent *metadata.Entity, target *metadata.Table, fields map[string]any, skip []sql.Assign, params *sql.Params) ([]sql.Assign, error) {
	if err := c.checkFieldNames(ent, target, fields); err != nil {
		return nil, err
	}
	skipped := make(map[string]bool, len(skip))
	for _, a := range skip {
		skipped[a.Column] = true
	}
	var assigns []sql.Assign
	for _, col := range target.Columns {
		if skipped[col.Name] {
			continue
		}
		exposed, ok := ent.ExposedName(col.Name)
		if !ok {
			continue
		}
		v, ok := fields[exposed]
		if !ok {
			continue
		}
		if col.AutoGenerated {
			return nil, dab.NewInvalidParameterValueError(exposed,
				fmt.Errorf("column is auto-generated and not writable"))
		}
		coerced, err := metadata.CoerceColumn(col, v)
		if err != nil {
			return nil, err
		}
		if coerced == nil {
			assigns = append(assigns, sql.Assign{Column: col.Name})
			continue
		}
		assigns = append(assigns, sql.Assign{Column: col.Name, Value: params.Add(coerced)})
	}
	return assigns, nil
}

// overwriteAssigns is fieldAssigns plus the nullify-unspecified rule for
// overwrite-style updates.
func (c *Compiler) overwriteAssigns(ent *metadata.Entity, target *metadata.Table, fields map[string]any, params *sql.Params) ([]sql.Assign, error) {
	if err := c.checkFieldNames(ent, target, fields); err != nil {
		return nil, err
	}
	pk := make(map[string]bool, len(target.PrimaryKey))
	for _, name := range target.PrimaryKey {
		pk[name] = true
	}
	var assigns []sql.Assign
	for _, col := range target.Columns {
		if col.AutoGenerated || pk[col.Name] {
			continue
		}
		exposed, ok := ent.ExposedName(col.Name)
		if !ok {
			continue
		}
		v, ok := fields[exposed]
		if !ok || v == nil {
			// Unspecified (or explicit null) nullifies the column.
			assigns = append(assigns, sql.Assign{Column: col.Name})
			continue
		}
		coerced, err := metadata.CoerceColumn(col, v)
		if err != nil {
			return nil, err
		}
		assigns = append(assigns, sql.Assign{Column: col.Name, Value: params.Add(coerced)})
	}
	return assigns, nil
}

// checkFieldNames rejects fields that resolve to no writable column.
func (c *Compiler) checkFieldNames(ent *metadata.Entity, target *metadata.Table, fields map[string]any) error {
	for name := range fields {
		backing, ok := ent.BackingName(name)
		if !ok {
			return dab.NewInvalidParameterValueError(name,
				fmt.Errorf("entity %q has no field %q", ent.Name, name))
		}
		if _, ok := target.Column(backing); !ok {
			return dab.NewInvalidParameterValueError(name,
				fmt.Errorf("entity %q has no field %q", ent.Name, name))
		}
	}
	return nil
}

// keyAssigns turns the supplied primary-key values into insert
// assignments, in key order.
func (c *Compiler) keyAssigns(ent *metadata.Entity, target *metadata.Table, keys map[string]any, params *sql.Params) ([]sql.Assign, error) {
	assigns := make([]sql.Assign, 0, len(target.PrimaryKey))
	for _, col := range target.PrimaryKeyColumns() {
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
		assigns = append(assigns, sql.Assign{Column: col.Name, Value: params.Add(coerced)})
	}
	return assigns, nil
}

// mutationWhere merges the mutation's policy predicate with the key
// predicate, policy first. Mutations render without a table alias.
func (c *Compiler) mutationWhere(ent *metadata.Entity, target *metadata.Table, role string, op dab.Op, keys map[string]any, params *sql.Params) (*sql.P, error) {
	pol, err := c.policies.Predicate(ent, role, op, "", params)
	if err != nil {
		return nil, err
	}
	pk := target.PrimaryKeyColumns()
	ps := make([]*sql.P, 0, len(pk)+1)
	ps = append(ps, pol)
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
		ps = append(ps, sql.EQ(sql.C("", col.Name), params.Add(coerced)))
	}
	return sql.And(ps...), nil
}

// compileProcedureMutation executes a procedure-backed entity's mutation:
// the procedure call itself is the mutation.
func (c *Compiler) compileProcedureMutation(bc *buildContext, ent *metadata.Entity, req MutationRequest) (*CompiledMutation, error) {
	call, err := c.procedureCall(ent, req.Fields, bc.params)
	if err != nil {
		return nil, err
	}
	text, err := c.renderer.RenderCall(call)
	if err != nil {
		return nil, err
	}
	return &CompiledMutation{
		ID:        bc.id,
		Entity:    ent.Name,
		Statement: sql.Statement{Text: text, Args: bc.params.Values()},
		Warnings:  bc.warnings,
	}, nil
}
