package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamewizzzz/data-api-builder/dialect"
)

func bookQuery(p *Params) *Query {
	return &Query{
		Schema: "dbo",
		Table:  "books",
		Alias:  "table0",
		Columns: []ResultColumn{
			{Name: "id", Alias: "id"},
			{Name: "title", Alias: "title"},
		},
		Where:   EQ(C("table0", "id"), p.Add(5)),
		OrderBy: []OrderColumn{C("table0", "id")},
		Limit:   101,
	}
}

func TestRenderQuerySimple(t *testing.T) {
	t.Parallel()
	tests := []struct {
		dialect string
		want    string
	}{
		{
			dialect.Postgres,
			`SELECT "table0"."id" AS "id", "table0"."title" AS "title" ` +
				`FROM "dbo"."books" AS "table0" WHERE "table0"."id" = $1 ` +
				`ORDER BY "table0"."id" ASC LIMIT 101`,
		},
		{
			dialect.MySQL,
			"SELECT `table0`.`id` AS `id`, `table0`.`title` AS `title` " +
				"FROM `dbo`.`books` AS `table0` WHERE `table0`.`id` = ? " +
				"ORDER BY `table0`.`id` ASC LIMIT 101",
		},
		{
			dialect.SQLServer,
			"SELECT TOP 101 [table0].[id] AS [id], [table0].[title] AS [title] " +
				"FROM [dbo].[books] AS [table0] WHERE [table0].[id] = @p1 " +
				"ORDER BY [table0].[id] ASC",
		},
	}
	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			params := NewParams()
			got, err := NewRenderer(tt.dialect).RenderQuery(bookQuery(params))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, []any{5}, params.Values())
		})
	}
}

func TestRenderQueryToOneJoin(t *testing.T) {
	t.Parallel()
	params := NewParams()
	q := bookQuery(params)
	q.Joins = []*Join{{
		Alias: "author",
		Query: &Query{
			Schema:  "dbo",
			Table:   "authors",
			Alias:   "table1",
			Columns: []ResultColumn{{Name: "name", Alias: "name"}},
			Where:   EQ(C("table1", "id"), C("table0", "author_id")),
		},
	}}

	got, err := NewRenderer(dialect.Postgres).RenderQuery(q)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "table0"."id" AS "id", "table0"."title" AS "title", `+
			`(SELECT jsonb_build_object('name', "table1"."name") `+
			`FROM "dbo"."authors" AS "table1" `+
			`WHERE "table1"."id" = "table0"."author_id" LIMIT 1) AS "author" `+
			`FROM "dbo"."books" AS "table0" WHERE "table0"."id" = $1 `+
			`ORDER BY "table0"."id" ASC LIMIT 101`,
		got,
	)
	assert.Equal(t, []any{5}, params.Values())
}

func TestRenderQueryToManyJoin(t *testing.T) {
	t.Parallel()
	params := NewParams()
	q := &Query{
		Schema:  "dbo",
		Table:   "authors",
		Alias:   "table0",
		Columns: []ResultColumn{{Name: "name", Alias: "name"}},
		Joins: []*Join{{
			Alias: "books",
			Many:  true,
			Query: &Query{
				Schema:  "dbo",
				Table:   "books",
				Alias:   "table1",
				Columns: []ResultColumn{{Name: "title", Alias: "title"}},
				Where:   EQ(C("table1", "author_id"), C("table0", "id")),
				OrderBy: []OrderColumn{C("table1", "id")},
				Limit:   100,
			},
		}},
		Where: EQ(C("table0", "id"), params.Add(7)),
	}

	got, err := NewRenderer(dialect.Postgres).RenderQuery(q)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "table0"."name" AS "name", `+
			`(SELECT COALESCE(jsonb_agg(jsonb_build_object('title', "sub"."title")), '[]'::jsonb) FROM (`+
			`SELECT "table1"."title" AS "title" FROM "dbo"."books" AS "table1" `+
			`WHERE "table1"."author_id" = "table0"."id" `+
			`ORDER BY "table1"."id" ASC LIMIT 100`+
			`) AS "sub") AS "books" `+
			`FROM "dbo"."authors" AS "table0" WHERE "table0"."id" = $1`,
		got,
	)
}

func TestRenderQueryToManyJoinSQLite(t *testing.T) {
	t.Parallel()
	params := NewParams()
	q := &Query{
		Table:   "authors",
		Alias:   "table0",
		Columns: []ResultColumn{{Name: "name", Alias: "name"}},
		Joins: []*Join{{
			Alias: "books",
			Many:  true,
			Query: &Query{
				Table:   "books",
				Alias:   "table1",
				Columns: []ResultColumn{{Name: "title", Alias: "title"}},
				Where:   EQ(C("table1", "author_id"), C("table0", "id")),
			},
		}},
		Where: EQ(C("table0", "id"), params.Add(7)),
	}

	got, err := NewRenderer(dialect.SQLite).RenderQuery(q)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "table0"."name" AS "name", `+
			`(SELECT COALESCE(json_group_array(json_object('title', "sub"."title")), json_array()) FROM (`+
			`SELECT "table1"."title" AS "title" FROM "books" AS "table1" `+
			`WHERE "table1"."author_id" = "table0"."id"`+
			`) AS "sub") AS "books" `+
			`FROM "authors" AS "table0" WHERE "table0"."id" = ?`,
		got,
	)
}

func TestRenderQueryJoinMSSQL(t *testing.T) {
	t.Parallel()
	params := NewParams()
	q := &Query{
		Schema:  "dbo",
		Table:   "authors",
		Alias:   "table0",
		Columns: []ResultColumn{{Name: "name", Alias: "name"}},
		Joins: []*Join{{
			Alias: "books",
			Many:  true,
			Query: &Query{
				Schema:  "dbo",
				Table:   "books",
				Alias:   "table1",
				Columns: []ResultColumn{{Name: "title", Alias: "title"}},
				Where:   EQ(C("table1", "author_id"), C("table0", "id")),
				OrderBy: []OrderColumn{C("table1", "id")},
				Limit:   100,
			},
		}},
		Where: EQ(C("table0", "id"), params.Add(7)),
	}

	got, err := NewRenderer(dialect.SQLServer).RenderQuery(q)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT [table0].[name] AS [name], `+
			`JSON_QUERY(COALESCE((`+
			`SELECT TOP 100 [table1].[title] AS [title] FROM [dbo].[books] AS [table1] `+
			`WHERE [table1].[author_id] = [table0].[id] `+
			`ORDER BY [table1].[id] ASC`+
			` FOR JSON PATH), '[]')) AS [books] `+
			`FROM [dbo].[authors] AS [table0] WHERE [table0].[id] = @p1`,
		got,
	)
}

func TestRenderQueryToOneJoinMSSQL(t *testing.T) {
	t.Parallel()
	q := &Query{
		Schema:  "dbo",
		Table:   "books",
		Alias:   "table0",
		Columns: []ResultColumn{{Name: "title", Alias: "title"}},
		Joins: []*Join{{
			Alias: "author",
			Query: &Query{
				Schema:  "dbo",
				Table:   "authors",
				Alias:   "table1",
				Columns: []ResultColumn{{Name: "name", Alias: "name"}},
				Where:   EQ(C("table1", "id"), C("table0", "author_id")),
			},
		}},
	}

	got, err := NewRenderer(dialect.SQLServer).RenderQuery(q)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT [table0].[title] AS [title], `+
			`JSON_QUERY((`+
			`SELECT TOP 1 [table1].[name] AS [name] FROM [dbo].[authors] AS [table1] `+
			`WHERE [table1].[id] = [table0].[author_id]`+
			` FOR JSON PATH, WITHOUT_ARRAY_WRAPPER)) AS [author] `+
			`FROM [dbo].[books] AS [table0]`,
		got,
	)
}

func TestRenderQueryJSONKeyQuoting(t *testing.T) {
	t.Parallel()
	q := &Query{
		Table:   "books",
		Alias:   "table0",
		Columns: []ResultColumn{{Name: "id", Alias: "id"}},
		Joins: []*Join{{
			Alias: "author's note",
			Query: &Query{
				Table:   "notes",
				Alias:   "table1",
				Columns: []ResultColumn{{Name: "body", Alias: "o'body"}},
				Where:   EQ(C("table1", "book_id"), C("table0", "id")),
			},
		}},
	}

	got, err := NewRenderer(dialect.Postgres).RenderQuery(q)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "table0"."id" AS "id", `+
			`(SELECT jsonb_build_object('o''body', "table1"."body") `+
			`FROM "notes" AS "table1" WHERE "table1"."book_id" = "table0"."id" LIMIT 1) AS "author's note" `+
			`FROM "books" AS "table0"`,
		got,
	)

	many := &Query{
		Table:   "authors",
		Alias:   "table0",
		Columns: []ResultColumn{{Name: "name", Alias: "name"}},
		Joins: []*Join{{
			Alias: "books",
			Many:  true,
			Query: &Query{
				Table:   "books",
				Alias:   "table1",
				Columns: []ResultColumn{{Name: "title", Alias: "it's"}},
				Where:   EQ(C("table1", "author_id"), C("table0", "id")),
			},
		}},
	}
	got, err = NewRenderer(dialect.Postgres).RenderQuery(many)
	require.NoError(t, err)
	assert.Contains(t, got, `jsonb_build_object('it''s', "sub"."it's")`)
}

func TestRenderQueryNestedJoins(t *testing.T) {
	t.Parallel()
	q := &Query{
		Table:   "books",
		Alias:   "table0",
		Columns: []ResultColumn{{Name: "title", Alias: "title"}},
		Joins: []*Join{{
			Alias: "author",
			Query: &Query{
				Table:   "authors",
				Alias:   "table1",
				Columns: []ResultColumn{{Name: "name", Alias: "name"}},
				Joins: []*Join{{
					Alias: "publisher",
					Query: &Query{
						Table:   "publishers",
						Alias:   "table2",
						Columns: []ResultColumn{{Name: "name", Alias: "name"}},
						Where:   EQ(C("table2", "id"), C("table1", "publisher_id")),
					},
				}},
				Where: EQ(C("table1", "id"), C("table0", "author_id")),
			},
		}},
	}

	got, err := NewRenderer(dialect.Postgres).RenderQuery(q)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "table0"."title" AS "title", `+
			`(SELECT jsonb_build_object('name', "table1"."name", 'publisher', `+
			`(SELECT jsonb_build_object('name', "table2"."name") `+
			`FROM "publishers" AS "table2" WHERE "table2"."id" = "table1"."publisher_id" LIMIT 1)`+
			`) FROM "authors" AS "table1" WHERE "table1"."id" = "table0"."author_id" LIMIT 1) AS "author" `+
			`FROM "books" AS "table0"`,
		got,
	)
}
