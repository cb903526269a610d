package metadata

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dab "github.com/gamewizzzz/data-api-builder"
)

func bookStore(t *testing.T) *Store {
	t.Helper()
	authors := NewTable(
		DatabaseObject{Schema: "dbo", Name: "authors"},
		[]string{"id"},
		[]*Column{
			{Name: "id", Kind: KindInt32, AutoGenerated: true},
			{Name: "name", Kind: KindString},
		},
	)
	books := NewTable(
		DatabaseObject{Schema: "dbo", Name: "books"},
		[]string{"id"},
		[]*Column{
			{Name: "id", Kind: KindInt32, AutoGenerated: true},
			{Name: "title", Kind: KindString},
			{Name: "author_id", Kind: KindInt32},
		},
	)
	fk := ForeignKey{
		Referencing:        books.Object,
		Referenced:         authors.Object,
		ReferencingColumns: []string{"author_id"},
	}
	s, err := NewBuilder().
		AddTable("Author", authors, WithRelationship("Book", fk)).
		AddTable("Book", books,
			WithRelationship("Author", fk),
			WithFieldMapping("author_id", "authorId"),
		).
		Build()
	require.NoError(t, err)
	return s
}

func TestStoreEntity(t *testing.T) {
	t.Parallel()
	s := bookStore(t)

	e, err := s.Entity("Book")
	require.NoError(t, err)
	assert.Equal(t, "Book", e.Name)
	assert.Equal(t, "Books", e.CollectionName)
	assert.Equal(t, "dbo.books", e.Object.String())

	// Entity lookup is case-insensitive.
	e2, err := s.Entity("book")
	require.NoError(t, err)
	assert.Same(t, e, e2)

	_, err = s.Entity("Publisher")
	assert.True(t, dab.IsUnknownEntity(err))
}

func TestStoreRelationship(t *testing.T) {
	t.Parallel()
	s := bookStore(t)

	fks, err := s.Relationship("Book", "Author")
	require.NoError(t, err)
	require.Len(t, fks, 1)
	assert.Equal(t, []string{"author_id"}, fks[0].ReferencingColumns)
	// The empty referenced list resolved to the author primary key at build time.
	assert.Equal(t, []string{"id"}, fks[0].ReferencedColumns)

	_, err = s.Relationship("Author", "Publisher")
	assert.True(t, dab.IsUnknownEntity(err))

	books := NewTable(DatabaseObject{Name: "b"}, []string{"id"}, []*Column{{Name: "id", Kind: KindInt32}})
	tags := NewTable(DatabaseObject{Name: "t"}, []string{"id"}, []*Column{{Name: "id", Kind: KindInt32}})
	s2, err := NewBuilder().AddTable("B", books).AddTable("T", tags).Build()
	require.NoError(t, err)
	_, err = s2.Relationship("B", "T")
	assert.True(t, dab.IsNoSuchRelationship(err))
}

func TestExposedColumnMapping(t *testing.T) {
	t.Parallel()
	s := bookStore(t)

	name, ok := s.ResolveExposedColumnName("Book", "author_id")
	assert.True(t, ok)
	assert.Equal(t, "authorId", name)

	name, ok = s.ResolveExposedColumnName("Book", "title")
	assert.True(t, ok)
	assert.Equal(t, "title", name)

	e, err := s.Entity("Book")
	require.NoError(t, err)
	backing, ok := e.BackingName("authorId")
	assert.True(t, ok)
	assert.Equal(t, "author_id", backing)

	_, ok = s.ResolveExposedColumnName("Book", "missing")
	assert.False(t, ok)
}

func TestTableColumnLookup(t *testing.T) {
	t.Parallel()

	table := NewTable(
		DatabaseObject{Name: "books"},
		[]string{"id"},
		[]*Column{{Name: "ID", Kind: KindInt32}, {Name: "Title", Kind: KindString}},
	)
	c, ok := table.Column("id")
	assert.True(t, ok)
	assert.Equal(t, "ID", c.Name)
	c, ok = table.Column("TITLE")
	assert.True(t, ok)
	assert.Equal(t, "Title", c.Name)
	_, ok = table.Column("missing")
	assert.False(t, ok)
}

func TestMutationTarget(t *testing.T) {
	t.Parallel()

	base := NewTable(DatabaseObject{Name: "books"}, []string{"id"}, []*Column{{Name: "id", Kind: KindInt32}})
	view := NewTable(DatabaseObject{Name: "books_v", Kind: KindView}, []string{"id"}, []*Column{{Name: "id", Kind: KindInt32}})
	view.Source = base

	assert.Same(t, base, view.MutationTarget())
	assert.Same(t, base, base.MutationTarget())
}

func TestProcedureResultColumns(t *testing.T) {
	t.Parallel()

	p := &Procedure{Object: DatabaseObject{Name: "sp_totals", Kind: KindStoredProcedure}}
	cols := p.ResultColumns()
	require.Len(t, cols, 1)
	assert.Equal(t, "result", cols[0].Name)

	p.Outputs = []*Column{{Name: "total", Kind: KindInt64}}
	cols = p.ResultColumns()
	require.Len(t, cols, 1)
	assert.Equal(t, "total", cols[0].Name)
}

func TestForeignKeyEqual(t *testing.T) {
	t.Parallel()

	a := ForeignKey{
		Referencing:        DatabaseObject{Schema: "dbo", Name: "books"},
		Referenced:         DatabaseObject{Schema: "dbo", Name: "authors"},
		ReferencingColumns: []string{"author_id"},
		ReferencedColumns:  []string{"id"},
	}
	b := a
	assert.True(t, a.Equal(b))
	b.ReferencingColumns = []string{"editor_id"}
	assert.False(t, a.Equal(b))

	// Object identity ignores the object kind.
	x := DatabaseObject{Schema: "dbo", Name: "books", Kind: KindTable}
	y := DatabaseObject{Schema: "dbo", Name: "books", Kind: KindView}
	assert.True(t, x.Equal(y))
}

func TestReloader(t *testing.T) {
	t.Parallel()

	var loads int
	src := SourceFunc(func(context.Context) (*Store, error) {
		loads++
		b := NewBuilder()
		b.AddTable("Book", NewTable(DatabaseObject{Name: "books"}, []string{"id"},
			[]*Column{{Name: "id", Kind: KindInt32}}))
		return b.Build()
	})

	r, err := NewReloader(context.Background(), src)
	require.NoError(t, err)
	first := r.Store()
	require.NotNil(t, first)
	assert.Equal(t, 1, loads)

	second, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Same(t, second, r.Store())
}

func TestReloaderKeepsStoreOnFailure(t *testing.T) {
	t.Parallel()

	fail := false
	src := SourceFunc(func(context.Context) (*Store, error) {
		if fail {
			return nil, errors.New("discovery offline")
		}
		return NewBuilder().Build()
	})
	r, err := NewReloader(context.Background(), src)
	require.NoError(t, err)
	cur := r.Store()

	fail = true
	_, err = r.Refresh(context.Background())
	assert.Error(t, err)
	assert.Same(t, cur, r.Store(), "failed refresh keeps the previous store")
}
