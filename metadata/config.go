package metadata

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	dab "github.com/gamewizzzz/data-api-builder"
)

// Config is the declarative entity configuration. It is the file-based
// counterpart of live-database discovery: both produce the same Store.
type Config struct {
	Entities map[string]EntityConfig `yaml:"entities"`
}

// EntityConfig declares one exposed entity.
type EntityConfig struct {
	// Source is the physical object, "schema.name" or bare "name".
	Source string `yaml:"source"`

	// Kind is "table", "view" or "procedure". Defaults to "table".
	Kind string `yaml:"kind"`

	// Base names another configured entity whose table is the mutation
	// target for this view.
	Base string `yaml:"base"`

	PrimaryKey []string       `yaml:"primary-key"`
	Columns    []ColumnConfig `yaml:"columns"`

	// Collection overrides the derived plural name.
	Collection string `yaml:"collection"`

	// Mappings renames exposed fields: backing column name to exposed name.
	Mappings map[string]string `yaml:"mappings"`

	// Hidden lists backing columns excluded from the exposed field set.
	Hidden []string `yaml:"hidden"`

	Relationships map[string]RelationshipConfig `yaml:"relationships"`

	// Parameters apply to procedures only.
	Parameters []ColumnConfig `yaml:"parameters"`
}

// ColumnConfig declares one column or procedure parameter/output.
type ColumnConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Nullable   bool   `yaml:"nullable"`
	HasDefault bool   `yaml:"has-default"`
	Auto       bool   `yaml:"auto"`
}

// RelationshipConfig declares a foreign key to a target entity. When Owner
// is "target" the target side holds the key columns (a to-many
// relationship); the default "self" means this entity holds them.
type RelationshipConfig struct {
	Owner             string   `yaml:"owner"`
	Columns           []string `yaml:"columns"`
	ReferencedColumns []string `yaml:"referenced-columns"`
}

// ParseConfig decodes a YAML entity configuration and builds the Store.
// Unsupported column types fail here, at load time, never per request.
func ParseConfig(data []byte) (*Store, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("metadata: decode config: %w", err)
	}
	return cfg.Build()
}

// Build assembles the Store from the configuration.
func (cfg *Config) Build() (*Store, error) {
	names := make([]string, 0, len(cfg.Entities))
	for name := range cfg.Entities {
		names = append(names, name)
	}
	sort.Strings(names)

	// First pass: objects and tables, so relationships and view bases can
	// refer to any entity regardless of declaration order.
	objects := make(map[string]DatabaseObject, len(names))
	tables := make(map[string]*Table, len(names))
	for _, name := range names {
		ec := cfg.Entities[name]
		object, err := ec.object(name)
		if err != nil {
			return nil, err
		}
		objects[strings.ToLower(name)] = object
		if object.Kind == KindStoredProcedure {
			continue
		}
		cols, err := buildColumns(ec.Columns, ec.PrimaryKey)
		if err != nil {
			return nil, err
		}
		tables[strings.ToLower(name)] = NewTable(object, ec.PrimaryKey, cols)
	}

	b := NewBuilder()
	for _, name := range names {
		ec := cfg.Entities[name]
		object := objects[strings.ToLower(name)]
		if object.Kind == KindStoredProcedure {
			params, err := buildColumns(ec.Parameters, nil)
			if err != nil {
				return nil, err
			}
			outputs, err := buildColumns(ec.Columns, nil)
			if err != nil {
				return nil, err
			}
			b.AddProcedure(name, &Procedure{Object: object, Parameters: params, Outputs: outputs},
				entityOptions(ec, nil)...)
			continue
		}
		t := tables[strings.ToLower(name)]
		if ec.Base != "" {
			base, ok := tables[strings.ToLower(ec.Base)]
			if !ok {
				return nil, fmt.Errorf("metadata: entity %q: unknown base entity %q", name, ec.Base)
			}
			t.Source = base
		}
		opts, err := relationshipOptions(ec, object, objects)
		if err != nil {
			return nil, fmt.Errorf("metadata: entity %q: %w", name, err)
		}
		b.AddTable(name, t, entityOptions(ec, opts)...)
	}
	return b.Build()
}

func (ec *EntityConfig) object(entity string) (DatabaseObject, error) {
	var kind ObjectKind
	switch ec.Kind {
	case "", "table":
		kind = KindTable
	case "view":
		kind = KindView
	case "procedure", "stored-procedure":
		kind = KindStoredProcedure
	default:
		return DatabaseObject{}, fmt.Errorf("metadata: entity %q: unknown kind %q", entity, ec.Kind)
	}
	source := ec.Source
	if source == "" {
		source = entity
	}
	schema, name := "", source
	if i := strings.IndexByte(source, '.'); i >= 0 {
		schema, name = source[:i], source[i+1:]
	}
	return DatabaseObject{Schema: schema, Name: name, Kind: kind}, nil
}

func buildColumns(cc []ColumnConfig, pk []string) ([]*Column, error) {
	cols := make([]*Column, 0, len(cc))
	for _, c := range cc {
		kind, ok := KindOf(c.Type)
		if !ok {
			return nil, dab.NewUnsupportedColumnTypeError(c.Name, c.Type)
		}
		nullable := c.Nullable
		for _, key := range pk {
			if strings.EqualFold(key, c.Name) {
				nullable = false
			}
		}
		cols = append(cols, &Column{
			Name:          c.Name,
			Kind:          kind,
			Nullable:      nullable,
			HasDefault:    c.HasDefault,
			AutoGenerated: c.Auto,
		})
	}
	return cols, nil
}

func entityOptions(ec EntityConfig, opts []EntityOption) []EntityOption {
	if ec.Collection != "" {
		opts = append(opts, WithCollectionName(ec.Collection))
	}
	for backing, exposed := range ec.Mappings {
		opts = append(opts, WithFieldMapping(backing, exposed))
	}
	for _, hidden := range ec.Hidden {
		opts = append(opts, WithHiddenColumn(hidden))
	}
	return opts
}

func relationshipOptions(ec EntityConfig, self DatabaseObject, objects map[string]DatabaseObject) ([]EntityOption, error) {
	targets := make([]string, 0, len(ec.Relationships))
	for target := range ec.Relationships {
		targets = append(targets, target)
	}
	sort.Strings(targets)

	var opts []EntityOption
	for _, target := range targets {
		rc := ec.Relationships[target]
		other, ok := objects[strings.ToLower(target)]
		if !ok {
			return nil, fmt.Errorf("relationship to unknown entity %q", target)
		}
		fk := ForeignKey{
			Referencing:        self,
			Referenced:         other,
			ReferencingColumns: rc.Columns,
			ReferencedColumns:  rc.ReferencedColumns,
		}
		switch rc.Owner {
		case "", "self":
		case "target":
			fk.Referencing, fk.Referenced = other, self
		default:
			return nil, fmt.Errorf("relationship %q: unknown owner %q", target, rc.Owner)
		}
		opts = append(opts, WithRelationship(target, fk))
	}
	return opts, nil
}

// FileSource loads a Store from a YAML config file path.
type FileSource string

// Load reads and parses the config file.
func (f FileSource) Load(_ context.Context) (*Store, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return nil, fmt.Errorf("metadata: read config: %w", err)
	}
	return ParseConfig(data)
}
