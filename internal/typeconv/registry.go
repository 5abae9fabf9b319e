// Package typeconv maps native column types onto GraphQL output types.
//
// Conversion is an ordered table of (predicate, constructor) rules; the first
// rule whose predicate matches builds the type. Enum types are created lazily,
// one per table column, and cached so repeated conversions return the same
// type identity.
package typeconv

import (
	"fmt"
	"strings"
	"sync"

	"relgraph/internal/binding"
	"relgraph/internal/introspection"
	"relgraph/internal/scalars"
	"relgraph/internal/sqltype"

	"github.com/graphql-go/graphql"
)

// CompositeLookup resolves converters for composite columns.
type CompositeLookup interface {
	LookupComposite(class string) (binding.CompositeConverter, binding.LookupResult)
}

type columnRef struct {
	table      string
	column     string
	desc       sqltype.Descriptor
	primaryKey bool
}

type rule struct {
	name  string
	match func(c columnRef) bool
	build func(r *Registry, c columnRef) (graphql.Output, error)
}

func kindIn(kinds ...sqltype.Kind) func(c columnRef) bool {
	return func(c columnRef) bool {
		for _, k := range kinds {
			if c.desc.Kind == k {
				return true
			}
		}
		return false
	}
}

func constant(out graphql.Output) func(*Registry, columnRef) (graphql.Output, error) {
	return func(*Registry, columnRef) (graphql.Output, error) { return out, nil }
}

// defaultRules is evaluated top to bottom; more specific kinds precede generic ones.
func defaultRules() []rule {
	return []rule{
		{
			name:  "string",
			match: kindIn(sqltype.KindDate, sqltype.KindTime, sqltype.KindYear, sqltype.KindText, sqltype.KindBinary, sqltype.KindUUID, sqltype.KindInet),
			build: constant(graphql.String),
		},
		{
			name:  "datetime",
			match: kindIn(sqltype.KindTimestamp),
			build: constant(scalars.DateTime()),
		},
		{
			name:  "integer",
			match: kindIn(sqltype.KindSmallInt, sqltype.KindInt),
			build: func(_ *Registry, c columnRef) (graphql.Output, error) {
				if c.primaryKey {
					return graphql.ID, nil
				}
				return graphql.Int, nil
			},
		},
		{
			name:  "boolean",
			match: kindIn(sqltype.KindBoolean),
			build: constant(graphql.Boolean),
		},
		{
			name:  "float",
			match: kindIn(sqltype.KindFloat, sqltype.KindNumeric, sqltype.KindBigInt),
			build: constant(graphql.Float),
		},
		{
			name: "enum",
			match: func(c columnRef) bool {
				return c.desc.Kind == sqltype.KindEnum && len(c.desc.Values) > 0
			},
			build: (*Registry).enumFor,
		},
		{
			name:  "set",
			match: kindIn(sqltype.KindSet),
			build: constant(graphql.NewList(graphql.String)),
		},
		{
			name: "array",
			match: func(c columnRef) bool {
				return c.desc.Kind == sqltype.KindArray && c.desc.Elem != nil
			},
			build: func(r *Registry, c columnRef) (graphql.Output, error) {
				inner, err := r.convert(columnRef{table: c.table, column: c.column, desc: *c.desc.Elem})
				if err != nil {
					return nil, err
				}
				return graphql.NewList(inner), nil
			},
		},
		{
			name:  "json",
			match: kindIn(sqltype.KindJSON),
			build: constant(scalars.JSONString()),
		},
		{
			name:  "composite",
			match: kindIn(sqltype.KindComposite),
			build: (*Registry).compositeFor,
		},
	}
}

// Registry converts columns and owns the enum types it creates.
type Registry struct {
	composites CompositeLookup
	rules      []rule

	mu    sync.Mutex
	enums map[string]*graphql.Enum
	// enumNames maps each issued enum type name to its table.column.
	enumNames map[string]string
	// converted caches the result per table.column so identity is stable.
	converted map[string]graphql.Output
}

// NewRegistry creates a converter registry. composites may be nil when no
// composite columns are expected.
func NewRegistry(composites CompositeLookup) *Registry {
	return &Registry{
		composites: composites,
		rules:      defaultRules(),
		enums:      make(map[string]*graphql.Enum),
		enumNames:  make(map[string]string),
		converted:  make(map[string]graphql.Output),
	}
}

// Convert returns the nullable GraphQL type for a column.
func (r *Registry) Convert(table string, col introspection.Column) (graphql.Output, error) {
	key := table + "." + col.Name
	r.mu.Lock()
	if out, ok := r.converted[key]; ok {
		r.mu.Unlock()
		return out, nil
	}
	r.mu.Unlock()

	out, err := r.convert(columnRef{table: table, column: col.Name, desc: col.Type, primaryKey: col.IsPrimaryKey})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.converted[key]; ok {
		return existing, nil
	}
	r.converted[key] = out
	return out, nil
}

// FieldType returns the column type wrapped in NonNull when the column is not nullable.
func (r *Registry) FieldType(table string, col introspection.Column) (graphql.Output, error) {
	out, err := r.Convert(table, col)
	if err != nil {
		return nil, err
	}
	if !col.IsNullable {
		return graphql.NewNonNull(out), nil
	}
	return out, nil
}

// RuleFor names the rule that would convert a column, or "" when none matches.
func (r *Registry) RuleFor(col introspection.Column) string {
	ref := columnRef{column: col.Name, desc: col.Type, primaryKey: col.IsPrimaryKey}
	for _, rl := range r.rules {
		if rl.match(ref) {
			return rl.name
		}
	}
	return ""
}

func (r *Registry) convert(c columnRef) (graphql.Output, error) {
	for _, rl := range r.rules {
		if rl.match(c) {
			return rl.build(r, c)
		}
	}
	return nil, &UnsupportedTypeError{Table: c.table, Column: c.column, NativeType: c.desc.String()}
}

func (r *Registry) enumFor(c columnRef) (graphql.Output, error) {
	key := c.table + "." + c.column
	r.mu.Lock()
	defer r.mu.Unlock()
	if enum, ok := r.enums[key]; ok {
		return enum, nil
	}

	values := graphql.EnumValueConfigMap{}
	used := make(map[string]int, len(c.desc.Values))
	for _, raw := range c.desc.Values {
		name := EnumValueName(raw)
		used[name]++
		if n := used[name]; n > 1 {
			name = fmt.Sprintf("%s_%d", name, n)
		}
		values[name] = &graphql.EnumValueConfig{Value: raw}
	}

	name := EnumTypeName(c.table, c.column)
	for n := 2; r.enumNames[name] != ""; n++ {
		name = fmt.Sprintf("%s_%d", EnumTypeName(c.table, c.column), n)
	}
	r.enumNames[name] = key

	enum := graphql.NewEnum(graphql.EnumConfig{
		Name:   name,
		Values: values,
	})
	r.enums[key] = enum
	return enum, nil
}

func (r *Registry) compositeFor(c columnRef) (graphql.Output, error) {
	if r.composites == nil {
		return nil, &CompositeConverterNotFoundError{Table: c.table, Column: c.column, Class: c.desc.Class, Reason: binding.LookupNotRegistered}
	}
	converter, result := r.composites.LookupComposite(c.desc.Class)
	if result != binding.LookupFound {
		return nil, &CompositeConverterNotFoundError{Table: c.table, Column: c.column, Class: c.desc.Class, Reason: result}
	}
	out, err := converter(c.desc)
	if err != nil {
		return nil, fmt.Errorf("composite %q on %s.%s: %w", c.desc.Class, c.table, c.column, err)
	}
	return out, nil
}

// EnumTypeName derives the GraphQL enum name for a table column, e.g. POSTS_STATUS.
// Distinct columns can share a name (a_b.c and a.b_c); the registry suffixes
// later ones with _2, _3 and so on.
func EnumTypeName(table, column string) string {
	return sanitizeName(strings.ToUpper(table + "_" + column))
}

// EnumValueName derives a GraphQL enum value name from a native enum member.
func EnumValueName(raw string) string {
	if raw == "" {
		return "EMPTY"
	}
	return sanitizeName(strings.ToUpper(raw))
}

func sanitizeName(s string) string {
	var sb strings.Builder
	for i, ch := range s {
		switch {
		case ch >= 'A' && ch <= 'Z', ch >= 'a' && ch <= 'z', ch == '_':
			sb.WriteRune(ch)
		case ch >= '0' && ch <= '9':
			if i == 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(ch)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}
