// Package metadata models the relational objects a data API exposes:
// physical object identity, column definitions, primary keys, foreign keys,
// and the entity-to-object mapping. The Store is built once at load time
// and treated as immutable afterwards, so request handlers may read it
// concurrently without synchronization.
package metadata

import (
	"fmt"
	"slices"
	"strings"
)

// ObjectKind is the kind of a physical database object.
type ObjectKind uint8

// Database object kinds.
const (
	KindTable ObjectKind = iota
	KindView
	KindStoredProcedure
)

// String returns the object kind name.
func (k ObjectKind) String() string {
	switch k {
	case KindTable:
		return "table"
	case KindView:
		return "view"
	case KindStoredProcedure:
		return "stored-procedure"
	default:
		return fmt.Sprintf("ObjectKind(%d)", uint8(k))
	}
}

// DatabaseObject identifies a physical relational object.
type DatabaseObject struct {
	Schema string
	Name   string
	Kind   ObjectKind
}

// Equal reports object identity, which is (schema, name) only.
func (o DatabaseObject) Equal(other DatabaseObject) bool {
	return o.Schema == other.Schema && o.Name == other.Name
}

// String returns "schema.name", or just the name for the default schema.
func (o DatabaseObject) String() string {
	if o.Schema == "" {
		return o.Name
	}
	return o.Schema + "." + o.Name
}

// Column describes one column of a table or view. Columns are immutable
// once loaded and shared by reference across every query referencing them.
type Column struct {
	Name          string
	Kind          Kind
	Nullable      bool
	HasDefault    bool
	AutoGenerated bool
}

// ForeignKey is an ordered pair of objects plus the column lists that
// connect them. Empty column lists mean "use the primary key" of the
// respective side; ResolveColumns fills them in at load time.
type ForeignKey struct {
	Referencing        DatabaseObject
	Referenced         DatabaseObject
	ReferencingColumns []string
	ReferencedColumns  []string
}

// Equal reports structural equality.
func (fk ForeignKey) Equal(other ForeignKey) bool {
	return fk.Referencing.Equal(other.Referencing) &&
		fk.Referenced.Equal(other.Referenced) &&
		slices.Equal(fk.ReferencingColumns, other.ReferencingColumns) &&
		slices.Equal(fk.ReferencedColumns, other.ReferencedColumns)
}

// Table holds the column and key layout of a table or view.
type Table struct {
	Object DatabaseObject

	// PrimaryKey is the ordered primary-key column list. Pagination order
	// is defined by this ordering.
	PrimaryKey []string

	// Columns in declaration order.
	Columns []*Column

	// Source is the base table a view maps onto for mutations. Nil for
	// plain tables and for read-only views.
	Source *Table

	// byName indexes columns case-insensitively.
	byName map[string]*Column
}

// NewTable builds a Table and its case-insensitive column index.
func NewTable(object DatabaseObject, pk []string, columns []*Column) *Table {
	t := &Table{
		Object:     object,
		PrimaryKey: pk,
		Columns:    columns,
		byName:     make(map[string]*Column, len(columns)),
	}
	for _, c := range columns {
		t.byName[strings.ToLower(c.Name)] = c
	}
	return t
}

// Column looks up a column by name, case-insensitively.
func (t *Table) Column(name string) (*Column, bool) {
	c, ok := t.byName[strings.ToLower(name)]
	return c, ok
}

// PrimaryKeyColumns returns the ordered primary-key column definitions.
func (t *Table) PrimaryKeyColumns() []*Column {
	cols := make([]*Column, 0, len(t.PrimaryKey))
	for _, name := range t.PrimaryKey {
		if c, ok := t.Column(name); ok {
			cols = append(cols, c)
		}
	}
	return cols
}

// MutationTarget returns the physical table mutations against this table
// must address: the view's source table when one is configured, otherwise
// the table itself.
func (t *Table) MutationTarget() *Table {
	if t.Source != nil {
		return t.Source
	}
	return t
}

// Procedure describes a stored-procedure-backed entity. A procedure with no
// declared output columns yields a single synthetic "result" field.
type Procedure struct {
	Object DatabaseObject

	// Parameters in declaration order.
	Parameters []*Column

	// Outputs is the declared result column set. May be empty.
	Outputs []*Column
}

// ResultColumns returns the declared outputs, or the synthetic result
// column when none are declared.
func (p *Procedure) ResultColumns() []*Column {
	if len(p.Outputs) > 0 {
		return p.Outputs
	}
	return []*Column{{Name: "result", Kind: KindString, Nullable: true}}
}

// Entity is the logical, configuration-defined name for a database object,
// decoupled from its physical schema and name.
type Entity struct {
	// Name is the exposed entity name.
	Name string

	// CollectionName is the exposed plural name used for list results.
	CollectionName string

	Object DatabaseObject

	// Exactly one of Table or Procedure is set, matching Object.Kind.
	Table     *Table
	Procedure *Procedure

	// relationships maps a target entity name (lower-cased) to the foreign
	// keys connecting to it. Normally one; more than one is a
	// configuration ambiguity the compiler resolves by taking the first.
	relationships map[string][]ForeignKey

	// exposed maps backing column name (lower-cased) to exposed field
	// name; backing is the inverse. Columns absent from exposed are not
	// visible through the API.
	exposed map[string]string
	backing map[string]string
}

// ExposedName resolves a backing column name to its exposed field name.
// The second return value is false for hidden columns.
func (e *Entity) ExposedName(backingName string) (string, bool) {
	name, ok := e.exposed[strings.ToLower(backingName)]
	return name, ok
}

// BackingName resolves an exposed field name to its backing column name.
func (e *Entity) BackingName(exposedName string) (string, bool) {
	name, ok := e.backing[strings.ToLower(exposedName)]
	return name, ok
}

// Relationships returns the foreign keys from this entity to the target
// entity. The boolean is false when no relationship is configured.
func (e *Entity) Relationships(target string) ([]ForeignKey, bool) {
	fks, ok := e.relationships[strings.ToLower(target)]
	return fks, ok
}
