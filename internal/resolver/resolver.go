// Package resolver builds executable GraphQL schemas from introspected entities.
// Column fields read from row maps, relationship fields resolve through the
// per-pass batch loader, and root fields expose list, connection and
// by-primary-key access for every bound entity.
package resolver

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/graphql-go/graphql"

	"relgraph/internal/binding"
	"relgraph/internal/connection"
	"relgraph/internal/dbexec"
	"relgraph/internal/introspection"
	"relgraph/internal/naming"
	"relgraph/internal/planner"
	"relgraph/internal/relation"
	"relgraph/internal/typeconv"
)

// FieldOptions customize one generated field, keyed "entity.field" in Options.Fields.
type FieldOptions struct {
	// Batching overrides Options.Batching for a relationship field.
	Batching *bool
	// ConnectionFactory replaces connection.DefaultFactory for a connection field.
	ConnectionFactory connection.Factory
	// Resolve replaces the generated resolver. It runs once per parent and bypasses batching.
	Resolve graphql.FieldResolveFn
	// Required overrides nullability.
	Required *bool
	// Description overrides the column comment or generated description.
	Description string
}

// Options configure BuildSchema.
type Options struct {
	// Converters maps columns to GraphQL types. A registry backed by the
	// bindings' composite converters is created when nil.
	Converters *typeconv.Registry
	Namer      *naming.Namer
	Executor   dbexec.QueryExecutor
	Fields     map[string]FieldOptions
	// Batching enables the batch loader for relationship fields.
	Batching bool
	Logger   *slog.Logger
}

// ErrNoExecutor is returned when BuildSchema has nothing to run queries with.
var ErrNoExecutor = errors.New("resolver requires a query executor")

type builder struct {
	opts        Options
	bindings    *binding.Registry
	converters  *typeconv.Registry
	namer       *naming.Namer
	classifier  *relation.Classifier
	connections *connection.Types
	logger      *slog.Logger

	tables      map[string]introspection.Table
	columnTypes map[string]map[string]graphql.Output
	usedFields  map[string]bool
}

// BuildSchema declares and binds an object type for every entity, builds the
// root Query type and freezes bindings. Column conversion failures abort the build.
func BuildSchema(entities []introspection.Table, bindings *binding.Registry, opts Options) (graphql.Schema, error) {
	if bindings == nil {
		bindings = binding.NewRegistry()
	}
	if opts.Executor == nil {
		return graphql.Schema{}, ErrNoExecutor
	}
	b := &builder{
		opts:        opts,
		bindings:    bindings,
		converters:  opts.Converters,
		namer:       opts.Namer,
		classifier:  relation.NewClassifier(bindings),
		connections: connection.NewTypes(),
		logger:      opts.Logger,
		tables:      make(map[string]introspection.Table, len(entities)),
		columnTypes: make(map[string]map[string]graphql.Output, len(entities)),
		usedFields:  make(map[string]bool),
	}
	if b.converters == nil {
		b.converters = typeconv.NewRegistry(bindings)
	}
	if b.namer == nil {
		b.namer = naming.New(naming.DefaultConfig(), opts.Logger)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}

	for _, table := range entities {
		b.tables[table.Name] = table
		if err := b.convertColumns(table); err != nil {
			return graphql.Schema{}, err
		}
	}

	objects := make([]*graphql.Object, 0, len(entities))
	for _, table := range entities {
		obj, err := b.bindEntity(table)
		if err != nil {
			return graphql.Schema{}, err
		}
		objects = append(objects, obj)
	}

	queryFields := graphql.Fields{}
	for i, table := range entities {
		b.addRootFields(queryFields, table, objects[i])
	}
	if len(queryFields) == 0 {
		queryFields["_schema"] = &graphql.Field{
			Type:        graphql.String,
			Description: "Placeholder field when no entities are exposed",
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return "No tables found in database", nil
			},
		}
	}

	bindings.Freeze()
	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: queryFields,
		}),
	})
	if err != nil {
		return graphql.Schema{}, fmt.Errorf("failed to build GraphQL schema: %w", err)
	}
	b.warnUnusedFieldOptions()
	return schema, nil
}

func (b *builder) convertColumns(table introspection.Table) error {
	types := make(map[string]graphql.Output, len(table.Columns))
	for _, col := range table.Columns {
		out, err := b.converters.FieldType(table.Name, col)
		if err != nil {
			return fmt.Errorf("failed to map %s.%s: %w", table.Name, col.Name, err)
		}
		types[col.Name] = out
	}
	b.columnTypes[table.Name] = types
	return nil
}

// bindEntity declares a default binding when the caller has not, then binds
// an object whose fields are built lazily so entities may reference each other.
func (b *builder) bindEntity(table introspection.Table) (*graphql.Object, error) {
	decl, ok := b.bindings.Lookup(table.Name)
	if !ok {
		decl = binding.Binding{
			Entity:      table.Name,
			TypeName:    b.namer.TypeName(table.Name),
			Connection:  len(introspection.PrimaryKeyNames(table)) > 0,
			Description: table.Comment,
		}
		if err := b.bindings.Declare(decl); err != nil {
			return nil, fmt.Errorf("failed to declare %s: %w", table.Name, err)
		}
	}
	description := decl.Description
	if description == "" {
		description = table.Comment
	}

	obj := graphql.NewObject(graphql.ObjectConfig{
		Name:        decl.TypeName,
		Description: description,
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return b.entityFields(table, decl.TypeName)
		}),
	})
	if err := b.bindings.Bind(table.Name, obj); err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", table.Name, err)
	}
	return obj, nil
}

func (b *builder) entityFields(table introspection.Table, typeName string) graphql.Fields {
	fields := graphql.Fields{}
	for _, col := range table.Columns {
		name := b.namer.RegisterField(typeName, b.namer.FieldName(col.Name), "column:"+col.Name)
		fields[name] = b.columnField(table, col, name)
	}
	for _, rel := range table.Relationships {
		name := b.namer.RegisterField(typeName, rel.Name, "relationship:"+rel.Identity())
		if field := b.relationshipField(table, rel, name); field != nil {
			fields[name] = field
		}
	}
	return fields
}

func (b *builder) columnField(table introspection.Table, col introspection.Column, name string) *graphql.Field {
	fo := b.fieldOptions(table.Name, name)
	field := &graphql.Field{
		Type:        applyRequired(b.columnTypes[table.Name][col.Name], fo.Required),
		Description: col.Comment,
		Resolve:     columnResolver(col),
	}
	if fo.Description != "" {
		field.Description = fo.Description
	}
	if fo.Resolve != nil {
		field.Resolve = fo.Resolve
	}
	return field
}

func columnResolver(col introspection.Column) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		row, ok := p.Source.(map[string]interface{})
		if !ok {
			return nil, nil
		}
		return normalizeValue(col, row[col.Name]), nil
	}
}

func (b *builder) fieldOptions(entity, field string) FieldOptions {
	key := entity + "." + field
	fo, ok := b.opts.Fields[key]
	if ok {
		b.usedFields[key] = true
	}
	return fo
}

func (b *builder) batchingFor(fo FieldOptions) bool {
	if fo.Batching != nil {
		return *fo.Batching
	}
	return b.opts.Batching
}

func (b *builder) warnUnusedFieldOptions() {
	var unused []string
	for key := range b.opts.Fields {
		if !b.usedFields[key] {
			unused = append(unused, key)
		}
	}
	if len(unused) == 0 {
		return
	}
	sort.Strings(unused)
	b.logger.Warn("field options do not match any generated field",
		slog.String("fields", strings.Join(unused, ", ")),
	)
}

// keyer orders and cursors rows of table by its declared order.
func (b *builder) keyer(table introspection.Table, typeName string) connection.Keyer {
	cols := planner.OrderColumns(table)
	numeric := make([]bool, len(cols))
	for i, name := range cols {
		if col, ok := table.Column(name); ok {
			numeric[i] = col.Type.Kind.IsNumber()
		}
	}
	return connection.Keyer{TypeName: typeName, Columns: cols, Numeric: numeric}
}

func applyRequired(t graphql.Output, required *bool) graphql.Output {
	if required == nil {
		return t
	}
	base := t
	if nn, ok := t.(*graphql.NonNull); ok {
		base = nn.OfType
	}
	if *required {
		return graphql.NewNonNull(base)
	}
	return base
}
