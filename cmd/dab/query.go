package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	dab "github.com/gamewizzzz/data-api-builder"
	"github.com/gamewizzzz/data-api-builder/compile"
	sqldrv "github.com/gamewizzzz/data-api-builder/dialect/sql"
	"github.com/gamewizzzz/data-api-builder/metadata"
	"github.com/gamewizzzz/data-api-builder/paginate"
	"github.com/gamewizzzz/data-api-builder/policy"
)

var queryFlags struct {
	entity  string
	op      string
	fields  []string
	related []string
	keys    []string
	filter  string
	after   string
	first   int
	role    string
	params  []string
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Compile a read request, optionally executing it",
	Example: `  # Compile a paginated list with a caller filter
  dab query --entity Book --op read-many --filter "@item.year ge 1990"

  # Single row by key with a nested relationship
  dab query --entity Book --op read --key id=5 --related Author

  # Execute against a database
  dab query --entity Book --op read-many --dsn "postgres://localhost/shop"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, store, err := newCompiler(ctx)
		if err != nil {
			return err
		}
		op, ok := dab.ParseOp(queryFlags.op)
		if !ok {
			return fmt.Errorf("unknown operation %q", queryFlags.op)
		}
		keys, err := parsePairs("key", queryFlags.keys)
		if err != nil {
			return err
		}
		params, err := parsePairs("param", queryFlags.params)
		if err != nil {
			return err
		}
		sel := compile.Selection{Fields: queryFlags.fields}
		for _, target := range queryFlags.related {
			sel.Related = append(sel.Related, compile.RelatedSelection{Target: target})
		}
		q, err := c.CompileQuery(compile.QueryRequest{
			Entity:     queryFlags.entity,
			Op:         op,
			Selection:  sel,
			Keys:       keys,
			Filter:     queryFlags.filter,
			After:      queryFlags.after,
			First:      queryFlags.first,
			Parameters: params,
			Role:       queryFlags.role,
		})
		if err != nil {
			return err
		}
		for _, w := range q.Warnings {
			slog.Warn(w, "entity", q.Entity)
		}
		printStatement(q.Statement)
		if viper.GetString("dsn") == "" {
			return nil
		}
		return executeQuery(requestContext(ctx, queryFlags.role), q, store)
	},
}

func init() {
	f := queryCmd.Flags()
	f.StringVar(&queryFlags.entity, "entity", "", "entity name")
	f.StringVar(&queryFlags.op, "op", "read-many", "read or read-many")
	f.StringArrayVar(&queryFlags.fields, "field", nil, "field to select (repeatable; default all)")
	f.StringArrayVar(&queryFlags.related, "related", nil, "related entity to embed (repeatable)")
	f.StringArrayVar(&queryFlags.keys, "key", nil, "primary key value, name=value (repeatable)")
	f.StringVar(&queryFlags.filter, "filter", "", "filter expression, e.g. @item.year ge 1990")
	f.StringVar(&queryFlags.after, "after", "", "continuation token of the previous page")
	f.IntVar(&queryFlags.first, "first", 0, "page size (default compiler default)")
	f.StringVar(&queryFlags.role, "role", policy.AnonymousRole, "role the request runs as")
	f.StringArrayVar(&queryFlags.params, "param", nil, "stored-procedure argument, name=value (repeatable)")
	cobra.CheckErr(queryCmd.MarkFlagRequired("entity"))
}

func executeQuery(ctx context.Context, q *compile.CompiledQuery, store *metadata.Store) error {
	drv, stats, err := openDriver()
	if err != nil {
		return err
	}
	defer func() {
		slog.Debug("driver stats", "stats", stats.Stats().String())
		if cerr := drv.Close(); cerr != nil {
			slog.Warn("close driver", "error", cerr)
		}
	}()

	var rows sqldrv.Rows
	if err := drv.Query(ctx, q.Statement.Text, q.Statement.Args, &rows); err != nil {
		return err
	}
	results, err := scanRows(&rows)
	if err != nil {
		return err
	}

	// limit+1: a full fetch means another page exists. Trim the extra row
	// and mint a token from the last row kept.
	var next string
	if q.PageSize > 0 && len(results) > q.PageSize {
		results = results[:q.PageSize]
		ent, err := store.Entity(q.Entity)
		if err == nil {
			next, err = paginate.TokenFromRow(ent, results[len(results)-1])
		}
		if err != nil {
			slog.Warn("cannot build continuation token", "error", err)
		}
	}

	out := map[string]any{"value": results}
	if next != "" {
		out["nextToken"] = next
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// scanRows reads every row into a map keyed by result column name. JSON
// relationship columns arrive as text and are kept as raw JSON.
func scanRows(rows *sqldrv.Rows) (results []map[string]any, err error) {
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = displayValue(vals[i])
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

func displayValue(v any) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	return string(b)
}

func printStatement(s sqldrv.Statement) {
	fmt.Println(s.Text)
	if len(s.Args) > 0 {
		fmt.Printf("-- args: %v\n", s.Args)
	}
}
