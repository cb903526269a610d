package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamewizzzz/data-api-builder/dialect"
)

func TestParams(t *testing.T) {
	t.Parallel()
	p := NewParams()
	first := p.Add(5)
	second := p.Add("hello")
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, []any{5, "hello"}, p.Values())
	assert.Equal(t, 5, p.Value(first))
	assert.Equal(t, "hello", p.Value(second))
}

func TestPredicateString(t *testing.T) {
	t.Parallel()
	p := NewParams()
	id := C("table0", "id")
	title := C("table0", "title")

	tests := []struct {
		name string
		pred *P
		want string
	}{
		{"EQ", EQ(id, p.Add(5)), "table0.id = $1"},
		{"NEQ", NEQ(id, p.Add(5)), "table0.id <> $2"},
		{"GT", GT(id, p.Add(5)), "table0.id > $3"},
		{"IsNull", IsNull(title), "table0.title IS NULL"},
		{"NotNull", NotNull(title), "table0.title IS NOT NULL"},
		{"Not", Not(IsNull(title)), "NOT (table0.title IS NULL)"},
		{
			"And",
			And(EQ(id, p.Add(1)), GT(id, p.Add(2))),
			"(table0.id = $4 AND table0.id > $5)",
		},
		{
			"AndFolding",
			And(EQ(id, p.Add(1)), EQ(id, p.Add(2)), EQ(id, p.Add(3))),
			"((table0.id = $6 AND table0.id = $7) AND table0.id = $8)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pred.String())
		})
	}
}

func TestAndSkipsNil(t *testing.T) {
	t.Parallel()
	p := NewParams()
	id := C("table0", "id")
	only := EQ(id, p.Add(1))

	assert.Nil(t, And())
	assert.Nil(t, And(nil, nil))
	assert.Same(t, only, And(nil, only, nil))
	assert.Same(t, only, Or(only))

	merged := And(nil, EQ(id, p.Add(2)), nil, GT(id, p.Add(3)))
	require.NotNil(t, merged)
	assert.Equal(t, OpAnd, merged.Op)
}

func TestPredicateEqual(t *testing.T) {
	t.Parallel()
	p := NewParams()
	id := C("table0", "id")
	v := p.Add(1)

	assert.True(t, EQ(id, v).Equal(EQ(id, v)))
	assert.False(t, EQ(id, v).Equal(NEQ(id, v)))
	assert.False(t, EQ(id, v).Equal(EQ(C("table1", "id"), v)))
	assert.True(t, And(EQ(id, v), IsNull(id)).Equal(And(EQ(id, v), IsNull(id))))
	assert.False(t, And(EQ(id, v), IsNull(id)).Equal(Or(EQ(id, v), IsNull(id))))

	var nilP *P
	assert.True(t, nilP.Equal(nil))
	assert.False(t, nilP.Equal(EQ(id, v)))
}

func TestBuilderQuote(t *testing.T) {
	t.Parallel()
	tests := []struct {
		dialect string
		ident   string
		want    string
	}{
		{dialect.Postgres, "Book", `"Book"`},
		{dialect.SQLite, "Book", `"Book"`},
		{dialect.MySQL, "Book", "`Book`"},
		{dialect.SQLServer, "Book", "[Book]"},
		{dialect.Postgres, `we"ird`, `"we""ird"`},
		{dialect.MySQL, "we`ird", "`we``ird`"},
		{dialect.SQLServer, "we]ird", "[we]]ird]"},
	}
	for _, tt := range tests {
		t.Run(tt.dialect+"/"+tt.ident, func(t *testing.T) {
			b := NewRenderer(tt.dialect).Builder()
			assert.Equal(t, tt.want, b.Quote(tt.ident).String())
		})
	}
}

func TestBuilderPlaceholder(t *testing.T) {
	t.Parallel()
	p := NewParams()
	p.Add(1)
	second := p.Add(2)

	tests := []struct {
		dialect string
		want    string
	}{
		{dialect.Postgres, "$2"},
		{dialect.MySQL, "?"},
		{dialect.SQLite, "?"},
		{dialect.SQLServer, "@p2"},
	}
	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			b := NewRenderer(tt.dialect).Builder()
			assert.Equal(t, tt.want, b.Placeholder(second).String())
		})
	}
}

func TestBuilderPredicate(t *testing.T) {
	t.Parallel()
	p := NewParams()
	pred := And(
		EQ(C("table0", "id"), p.Add(5)),
		Or(
			GTE(C("table0", "year"), p.Add(1990)),
			IsNull(C("table0", "year")),
		),
	)

	tests := []struct {
		dialect string
		want    string
	}{
		{
			dialect.Postgres,
			`("table0"."id" = $1 AND ("table0"."year" >= $2 OR "table0"."year" IS NULL))`,
		},
		{
			dialect.MySQL,
			"(`table0`.`id` = ? AND (`table0`.`year` >= ? OR `table0`.`year` IS NULL))",
		},
		{
			dialect.SQLServer,
			"([table0].[id] = @p1 AND ([table0].[year] >= @p2 OR [table0].[year] IS NULL))",
		},
	}
	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			b := NewRenderer(tt.dialect).Builder()
			assert.Equal(t, tt.want, b.Predicate(pred).String())
		})
	}
	assert.Equal(t, []any{5, 1990}, p.Values())
}
