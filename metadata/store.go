package metadata

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/go-openapi/inflect"
	"golang.org/x/sync/singleflight"

	dab "github.com/gamewizzzz/data-api-builder"
)

// Store is the read-only arena of entity metadata. It is populated once by
// a Builder (or re-populated wholesale by a Reloader) and never mutated
// while requests are in flight.
type Store struct {
	entities map[string]*Entity
	ordered  []*Entity
}

// Entity resolves an entity by its exposed name, case-insensitively.
func (s *Store) Entity(name string) (*Entity, error) {
	e, ok := s.entities[strings.ToLower(name)]
	if !ok {
		return nil, dab.NewUnknownEntityError(name)
	}
	return e, nil
}

// Relationship resolves the foreign keys connecting entity to target.
func (s *Store) Relationship(entity, target string) ([]ForeignKey, error) {
	e, err := s.Entity(entity)
	if err != nil {
		return nil, err
	}
	if _, err := s.Entity(target); err != nil {
		return nil, err
	}
	fks, ok := e.Relationships(target)
	if !ok || len(fks) == 0 {
		return nil, dab.NewNoSuchRelationshipError(e.Name, target)
	}
	return fks, nil
}

// ResolveExposedColumnName maps a backing column name to the exposed field
// name for the given entity. The boolean is false when the entity is
// unknown or the column is hidden.
func (s *Store) ResolveExposedColumnName(entity, backingName string) (string, bool) {
	e, err := s.Entity(entity)
	if err != nil {
		return "", false
	}
	return e.ExposedName(backingName)
}

// Entities returns all entities in registration order.
func (s *Store) Entities() []*Entity {
	return s.ordered
}

// EntityOption configures an entity while the store is being built.
type EntityOption func(*Entity)

// WithCollectionName overrides the derived plural collection name.
func WithCollectionName(name string) EntityOption {
	return func(e *Entity) { e.CollectionName = name }
}

// WithFieldMapping renames the exposed field for a backing column. The
// column is no longer addressable by its physical name.
func WithFieldMapping(backingName, exposedName string) EntityOption {
	return func(e *Entity) {
		key := strings.ToLower(backingName)
		if old, ok := e.exposed[key]; ok {
			delete(e.backing, strings.ToLower(old))
		}
		e.exposed[key] = exposedName
		e.backing[strings.ToLower(exposedName)] = backingName
	}
}

// WithHiddenColumn removes a backing column from the exposed field set.
func WithHiddenColumn(backingName string) EntityOption {
	return func(e *Entity) {
		if exposed, ok := e.exposed[strings.ToLower(backingName)]; ok {
			delete(e.backing, strings.ToLower(exposed))
			delete(e.exposed, strings.ToLower(backingName))
		}
	}
}

// WithRelationship declares a foreign key connecting this entity to the
// target entity. Registration order is preserved; the compiler uses the
// first key when several are declared for the same target.
func WithRelationship(target string, fk ForeignKey) EntityOption {
	return func(e *Entity) {
		key := strings.ToLower(target)
		e.relationships[key] = append(e.relationships[key], fk)
	}
}

// Builder assembles a Store at load time. It is not safe for concurrent
// use; hand the built Store to request handlers instead.
type Builder struct {
	store    *Store
	byObject map[string]*Table
	errs     []error
}

// NewBuilder returns an empty store builder.
func NewBuilder() *Builder {
	return &Builder{
		store: &Store{entities: make(map[string]*Entity)},
	}
}

func (b *Builder) add(e *Entity) {
	key := strings.ToLower(e.Name)
	if _, ok := b.store.entities[key]; ok {
		b.errs = append(b.errs, fmt.Errorf("metadata: duplicate entity %q", e.Name))
		return
	}
	b.store.entities[key] = e
	b.store.ordered = append(b.store.ordered, e)
}

// AddTable registers a table- or view-backed entity.
func (b *Builder) AddTable(name string, t *Table, opts ...EntityOption) *Builder {
	e := &Entity{
		Name:           name,
		CollectionName: inflect.Pluralize(name),
		Object:         t.Object,
		Table:          t,
		relationships:  make(map[string][]ForeignKey),
		exposed:        make(map[string]string, len(t.Columns)),
		backing:        make(map[string]string, len(t.Columns)),
	}
	for _, c := range t.Columns {
		e.exposed[strings.ToLower(c.Name)] = c.Name
		e.backing[strings.ToLower(c.Name)] = c.Name
	}
	for _, opt := range opts {
		opt(e)
	}
	b.add(e)
	if b.byObject == nil {
		b.byObject = make(map[string]*Table)
	}
	b.byObject[t.Object.String()] = t
	if t.Source != nil {
		b.byObject[t.Source.Object.String()] = t.Source
	}
	return b
}

// AddProcedure registers a stored-procedure-backed entity.
func (b *Builder) AddProcedure(name string, p *Procedure, opts ...EntityOption) *Builder {
	e := &Entity{
		Name:           name,
		CollectionName: inflect.Pluralize(name),
		Object:         p.Object,
		Procedure:      p,
		relationships:  make(map[string][]ForeignKey),
		exposed:        make(map[string]string),
		backing:        make(map[string]string),
	}
	for _, c := range p.ResultColumns() {
		e.exposed[strings.ToLower(c.Name)] = c.Name
		e.backing[strings.ToLower(c.Name)] = c.Name
	}
	for _, opt := range opts {
		opt(e)
	}
	b.add(e)
	return b
}

// Build finalizes the store. Foreign keys with empty column lists are
// resolved to the primary key of the corresponding side here, so request
// handling never needs to special-case them.
func (b *Builder) Build() (*Store, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	for _, e := range b.store.ordered {
		for target, fks := range e.relationships {
			for i := range fks {
				if err := b.resolveColumns(&fks[i]); err != nil {
					return nil, fmt.Errorf("metadata: entity %q, relationship %q: %w", e.Name, target, err)
				}
			}
		}
	}
	return b.store, nil
}

func (b *Builder) resolveColumns(fk *ForeignKey) error {
	if len(fk.ReferencingColumns) == 0 {
		t, ok := b.byObject[fk.Referencing.String()]
		if !ok {
			return fmt.Errorf("unknown referencing object %s", fk.Referencing)
		}
		fk.ReferencingColumns = append([]string(nil), t.PrimaryKey...)
	}
	if len(fk.ReferencedColumns) == 0 {
		t, ok := b.byObject[fk.Referenced.String()]
		if !ok {
			return fmt.Errorf("unknown referenced object %s", fk.Referenced)
		}
		fk.ReferencedColumns = append([]string(nil), t.PrimaryKey...)
	}
	if len(fk.ReferencingColumns) != len(fk.ReferencedColumns) {
		return fmt.Errorf("column count mismatch: %d referencing, %d referenced",
			len(fk.ReferencingColumns), len(fk.ReferencedColumns))
	}
	return nil
}

// Source loads a complete Store. Implementations include the YAML config
// loader in this package and live-database discovery owned by callers.
type Source interface {
	Load(ctx context.Context) (*Store, error)
}

// SourceFunc adapts an ordinary function to a Source.
type SourceFunc func(ctx context.Context) (*Store, error)

// Load returns f(ctx).
func (f SourceFunc) Load(ctx context.Context) (*Store, error) { return f(ctx) }

// Reloader owns the current Store and replaces it atomically on refresh.
// Concurrent Refresh calls are collapsed into a single Load.
type Reloader struct {
	source Source
	sf     singleflight.Group
	cur    atomic.Pointer[Store]
}

// NewReloader performs the initial load and returns the reloader.
func NewReloader(ctx context.Context, source Source) (*Reloader, error) {
	r := &Reloader{source: source}
	if _, err := r.Refresh(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Store returns the current store. Safe for unsynchronized concurrent use.
func (r *Reloader) Store() *Store {
	return r.cur.Load()
}

// Refresh reloads from the source and swaps the current store in. A failed
// load leaves the previous store in place.
func (r *Reloader) Refresh(ctx context.Context) (*Store, error) {
	v, err, _ := r.sf.Do("refresh", func() (any, error) {
		s, err := r.source.Load(ctx)
		if err != nil {
			return nil, err
		}
		r.cur.Store(s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Store), nil
}
