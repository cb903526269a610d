package policy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dab "github.com/gamewizzzz/data-api-builder"
	"github.com/gamewizzzz/data-api-builder/dialect/sql"
	"github.com/gamewizzzz/data-api-builder/metadata"
	"github.com/gamewizzzz/data-api-builder/policy"
)

func bookEntity(t *testing.T) *metadata.Entity {
	t.Helper()
	object := metadata.DatabaseObject{Schema: "dbo", Name: "books", Kind: metadata.KindTable}
	table := metadata.NewTable(object, []string{"id"}, []*metadata.Column{
		{Name: "id", Kind: metadata.KindInt32, AutoGenerated: true},
		{Name: "title", Kind: metadata.KindString},
		{Name: "owner_id", Kind: metadata.KindInt32},
		{Name: "published", Kind: metadata.KindBool},
		{Name: "year", Kind: metadata.KindInt32, Nullable: true},
	})
	store, err := metadata.NewBuilder().
		AddTable("Book", table, metadata.WithFieldMapping("owner_id", "ownerId")).
		Build()
	require.NoError(t, err)
	ent, err := store.Entity("Book")
	require.NoError(t, err)
	return ent
}

func TestCompile(t *testing.T) {
	t.Parallel()
	ent := bookEntity(t)

	tests := []struct {
		name   string
		raw    string
		want   string
		values []any
	}{
		{
			"Comparison",
			"@item.ownerId eq 42",
			"table0.owner_id = $1",
			[]any{int64(42)},
		},
		{
			"MappedAndDirect",
			"@item.published eq true and @item.year ge 1990",
			"(table0.published = $1 AND table0.year >= $2)",
			[]any{true, int64(1990)},
		},
		{
			"OrNot",
			"not @item.published eq false or @item.title ne 'secret'",
			"(NOT (table0.published = $1) OR table0.title <> $2)",
			[]any{false, "secret"},
		},
		{
			"NullEq",
			"@item.year eq null",
			"table0.year IS NULL",
			nil,
		},
		{
			"NullNe",
			"@item.year ne null",
			"table0.year IS NOT NULL",
			nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := sql.NewParams()
			p, err := policy.Compile(tt.raw, ent, "reader", dab.OpRead, "table0", params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.String())
			assert.Equal(t, tt.values, params.Values())
		})
	}
}

func TestCompileMalformed(t *testing.T) {
	t.Parallel()
	ent := bookEntity(t)

	tests := []struct {
		name string
		raw  string
	}{
		{"ParseError", "@item.ownerId equals 42"},
		{"Empty", ""},
		{"UnknownField", "@item.nope eq 1"},
		{"HiddenBackingName", "@item.owner_id eq 1"},
		{"BadLiteral", "@item.ownerId eq 'abc'"},
		{"FractionalInt", "@item.ownerId eq 4.5"},
		{"NullWithGT", "@item.year gt null"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := sql.NewParams()
			_, err := policy.Compile(tt.raw, ent, "reader", dab.OpRead, "table0", params)
			require.Error(t, err)
			assert.True(t, dab.IsPolicyMalformed(err))
			assert.Zero(t, params.Len(), "no literal may leak into the parameter store")
		})
	}
}

func TestStaticSource(t *testing.T) {
	t.Parallel()
	src := policy.Static{
		"Book": {
			"reader": {
				{Ops: dab.OpRead | dab.OpReadMany, Filter: "@item.published eq true"},
				{Ops: dab.OpDelete, Filter: "@item.ownerId eq 42"},
			},
		},
	}

	filter, ok := src.Policy("Book", "reader", dab.OpReadMany)
	require.True(t, ok)
	assert.Equal(t, "@item.published eq true", filter)

	filter, ok = src.Policy("Book", "reader", dab.OpDelete)
	require.True(t, ok)
	assert.Equal(t, "@item.ownerId eq 42", filter)

	_, ok = src.Policy("Book", "reader", dab.OpCreate)
	assert.False(t, ok)
	_, ok = src.Policy("Book", "admin", dab.OpRead)
	assert.False(t, ok)
	_, ok = src.Policy("Author", "reader", dab.OpRead)
	assert.False(t, ok)
}

func TestCompilerPredicate(t *testing.T) {
	t.Parallel()
	ent := bookEntity(t)
	c := policy.NewCompiler(policy.Static{
		"Book": {
			"reader": {{Ops: dab.OpRead, Filter: "@item.published eq true"}},
		},
	})

	params := sql.NewParams()
	p, err := c.Predicate(ent, "reader", dab.OpRead, "table0", params)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "table0.published = $1", p.String())

	// No policy means unrestricted, not denied.
	p, err = c.Predicate(ent, "admin", dab.OpRead, "table0", params)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestViewerContext(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	assert.Nil(t, policy.ViewerFromContext(ctx))
	assert.Equal(t, policy.AnonymousRole, policy.RoleFromContext(ctx))
	assert.False(t, policy.HasRole(ctx, "admin"))

	viewer := &policy.SimpleViewer{UserID: "u1", Roles: []string{"editor", "reader"}}
	ctx = policy.WithViewer(ctx, viewer)
	assert.Equal(t, viewer, policy.ViewerFromContext(ctx))
	assert.Equal(t, "editor", policy.RoleFromContext(ctx))
	assert.True(t, policy.HasRole(ctx, "reader"))
	assert.False(t, policy.HasRole(ctx, "admin"))

	empty := policy.WithViewer(context.Background(), &policy.SimpleViewer{UserID: "u2"})
	assert.Equal(t, policy.AnonymousRole, policy.RoleFromContext(empty))
}
