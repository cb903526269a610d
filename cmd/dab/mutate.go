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
	"github.com/gamewizzzz/data-api-builder/policy"
)

var mutateFlags struct {
	entity string
	op     string
	sets   []string
	keys   []string
	role   string
}

var mutateCmd = &cobra.Command{
	Use:   "mutate",
	Short: "Compile a mutation, optionally executing it",
	Example: `  # Compile an insert
  dab mutate --entity Book --op create --set title=Go --set authorId=7

  # Overwrite-style update: unspecified fields are nullified
  dab mutate --entity Book --op update --key id=5 --set title=New

  # Upsert executes both legs in one serializable transaction
  dab mutate --entity Review --op upsert --key book_id=5 --key reviewer=ann --set rating=4 --dsn "..."`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, _, err := newCompiler(ctx)
		if err != nil {
			return err
		}
		op, ok := dab.ParseOp(mutateFlags.op)
		if !ok {
			return fmt.Errorf("unknown operation %q", mutateFlags.op)
		}
		fields, err := parsePairs("set", mutateFlags.sets)
		if err != nil {
			return err
		}
		keys, err := parsePairs("key", mutateFlags.keys)
		if err != nil {
			return err
		}
		m, err := c.CompileMutation(compile.MutationRequest{
			Entity: mutateFlags.entity,
			Op:     op,
			Fields: fields,
			Keys:   keys,
			Role:   mutateFlags.role,
		})
		if err != nil {
			return err
		}
		for _, w := range m.Warnings {
			slog.Warn(w, "entity", m.Entity)
		}
		if m.Upsert != nil {
			printStatement(m.Upsert.Update)
			printStatement(m.Upsert.Insert)
		} else {
			printStatement(m.Statement)
		}
		if viper.GetString("dsn") == "" {
			return nil
		}
		return executeMutation(requestContext(ctx, mutateFlags.role), c, m)
	},
}

func init() {
	f := mutateCmd.Flags()
	f.StringVar(&mutateFlags.entity, "entity", "", "entity name")
	f.StringVar(&mutateFlags.op, "op", "", "create, update, upsert or delete")
	f.StringArrayVar(&mutateFlags.sets, "set", nil, "field value, name=value (repeatable)")
	f.StringArrayVar(&mutateFlags.keys, "key", nil, "primary key value, name=value (repeatable)")
	f.StringVar(&mutateFlags.role, "role", policy.AnonymousRole, "role the request runs as")
	cobra.CheckErr(mutateCmd.MarkFlagRequired("entity"))
	cobra.CheckErr(mutateCmd.MarkFlagRequired("op"))
}

func executeMutation(ctx context.Context, c *compile.Compiler, m *compile.CompiledMutation) error {
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

	if m.Upsert != nil {
		returning := sqldrv.NewRenderer(c.Dialect()).ReturningSupported()
		res, err := sqldrv.ExecUpsert(ctx, drv, returning, m.Upsert.Update, m.Upsert.Insert)
		if err != nil {
			return err
		}
		out := map[string]any{"inserted": res.Inserted}
		for i, col := range res.Columns {
			out[col] = displayValue(res.Values[i])
		}
		return printJSON(out)
	}

	// A statement with a returning clause yields rows; everything else
	// reports the affected-row count.
	if m.Shape != nil {
		var rows sqldrv.Rows
		if err := drv.Query(ctx, m.Statement.Text, m.Statement.Args, &rows); err != nil {
			return err
		}
		results, err := scanRows(&rows)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"value": results})
	}
	var res sqldrv.Result
	if err := drv.Exec(ctx, m.Statement.Text, m.Statement.Args, &res); err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if m.NeedsReadBack {
		slog.Info("dialect cannot return the affected row; read it back by key",
			"dialect", c.Dialect())
	}
	return printJSON(map[string]any{"rowsAffected": n})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
