package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	dab "github.com/gamewizzzz/data-api-builder"
	"github.com/gamewizzzz/data-api-builder/compile"
	"github.com/gamewizzzz/data-api-builder/dialect"
	sqldrv "github.com/gamewizzzz/data-api-builder/dialect/sql"
	"github.com/gamewizzzz/data-api-builder/metadata"
	"github.com/gamewizzzz/data-api-builder/policy"
)

var debug bool

var rootCmd = &cobra.Command{
	Use:   "dab",
	Short: "Compile data-API requests into SQL",
	Long: `dab compiles metadata-driven data-API requests into single SQL
statements with ordered bind parameters, one statement per request no
matter how deep the relationship selection.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if debug {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "dab-config.yaml", "entity configuration file")
	rootCmd.PersistentFlags().String("policies", "", "policy configuration file")
	rootCmd.PersistentFlags().String("dialect", dialect.Postgres,
		fmt.Sprintf("target dialect (%s)", strings.Join(dialect.All(), ", ")))
	rootCmd.PersistentFlags().String("dsn", "", "database connection string for execution")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log every driver operation")

	viper.SetEnvPrefix("DAB")
	viper.AutomaticEnv()
	for _, name := range []string{"config", "policies", "dialect", "dsn"} {
		cobra.CheckErr(viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)))
	}

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(mutateCmd)
	rootCmd.AddCommand(watchCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("dab failed", "error", err)
		os.Exit(1)
	}
}

func loadStore(ctx context.Context) (*metadata.Store, error) {
	return metadata.FileSource(viper.GetString("config")).Load(ctx)
}

// policyRule is one entry of the policy configuration file.
type policyRule struct {
	Ops    []string `yaml:"ops"`
	Filter string   `yaml:"filter"`
}

// loadPolicies reads the policy file into a static source. The file maps
// entity name to role to rule list; an empty path means no policies.
func loadPolicies() (policy.Source, error) {
	path := viper.GetString("policies")
	if path == "" {
		return policy.Static{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policies: %w", err)
	}
	var cfg map[string]map[string][]policyRule
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode policies: %w", err)
	}
	static := make(policy.Static, len(cfg))
	for entity, roles := range cfg {
		static[entity] = make(map[string][]policy.Rule, len(roles))
		for role, rules := range roles {
			for _, r := range rules {
				var mask dab.Op
				for _, name := range r.Ops {
					op, ok := dab.ParseOp(name)
					if !ok {
						return nil, fmt.Errorf("policies: entity %q, role %q: unknown operation %q", entity, role, name)
					}
					mask |= op
				}
				static[entity][role] = append(static[entity][role], policy.Rule{Ops: mask, Filter: r.Filter})
			}
		}
	}
	return static, nil
}

func newCompiler(ctx context.Context) (*compile.Compiler, *metadata.Store, error) {
	store, err := loadStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	policies, err := loadPolicies()
	if err != nil {
		return nil, nil, err
	}
	return compile.New(compile.FixedStore(store), policies, viper.GetString("dialect")), store, nil
}

// openDriver opens a stats-collecting driver for the configured dialect
// and DSN, wrapped with operation logging when --debug is set.
func openDriver() (dialect.Driver, *sqldrv.QueryStats, error) {
	dsn := viper.GetString("dsn")
	if dsn == "" {
		return nil, nil, fmt.Errorf("--dsn (or DAB_DSN) is required for execution")
	}
	name := viper.GetString("dialect")
	if name == dialect.SQLServer {
		return nil, nil, fmt.Errorf("no %s driver is bundled; compile-only for this dialect", name)
	}
	drv, stats, err := sqldrv.OpenWithStats(name, dsn, sqldrv.WithSlowQueryLog())
	if err != nil {
		return nil, nil, err
	}
	var d dialect.Driver = drv
	if debug {
		d = dialect.Debug(d)
	}
	return d, stats, nil
}

// requestContext attaches the request role as a session variable for
// dialects whose row-security policies can read it.
func requestContext(ctx context.Context, role string) context.Context {
	switch viper.GetString("dialect") {
	case dialect.Postgres, dialect.MySQL:
		return sqldrv.WithRoleVar(ctx, role)
	}
	return ctx
}

// parsePairs splits repeated key=value flags into a map. Values stay
// strings; the compiler coerces them against column metadata.
func parsePairs(flag string, pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	m := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("--%s %q: expected key=value", flag, p)
		}
		m[k] = v
	}
	return m, nil
}
