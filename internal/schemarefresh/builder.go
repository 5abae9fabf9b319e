package schemarefresh

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/graphql-go/graphql"

	"relgraph/internal/binding"
	"relgraph/internal/dbexec"
	"relgraph/internal/introspection"
	"relgraph/internal/naming"
	"relgraph/internal/resolver"
	"relgraph/internal/schemafilter"
)

// BuildSchemaConfig defines inputs for shared schema assembly.
type BuildSchemaConfig struct {
	Queryer       introspection.Queryer
	Executor      dbexec.QueryExecutor
	DatabaseName  string
	Filters       schemafilter.Config
	TypeOverrides introspection.TypeOverrides
	Naming        naming.Config
	// ListTables are exposed as plain lists rather than connections.
	ListTables []string
	Composites map[string]binding.CompositeConverter
	Fields     map[string]resolver.FieldOptions
	Batching   bool
	Logger     *slog.Logger
}

// BuildSchemaResult contains schema artifacts produced by BuildSchema.
type BuildSchemaResult struct {
	DBSchema      *introspection.Schema
	GraphQLSchema graphql.Schema
	Bindings      *binding.Registry
}

// BuildSchema runs the canonical schema assembly pipeline used by runtime and tests.
// Every call uses a fresh binding registry and namer, so snapshots never share state.
func BuildSchema(ctx context.Context, cfg BuildSchemaConfig) (*BuildSchemaResult, error) {
	if cfg.Queryer == nil {
		return nil, fmt.Errorf("schema builder requires an introspection queryer")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("schema builder requires a query executor")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	namer := naming.New(cfg.Naming, logger)

	dbSchema, err := introspection.IntrospectDatabase(ctx, cfg.Queryer, cfg.DatabaseName, namer)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect database: %w", err)
	}
	if err := introspection.ApplyTypeOverrides(dbSchema, cfg.TypeOverrides); err != nil {
		return nil, fmt.Errorf("failed to apply type overrides: %w", err)
	}
	schemafilter.Apply(ctx, dbSchema, cfg.Filters, namer)

	bindings, err := declareBindings(dbSchema, cfg, namer)
	if err != nil {
		return nil, err
	}

	graphqlSchema, err := resolver.BuildSchema(dbSchema.Tables, bindings, resolver.Options{
		Namer:    namer,
		Executor: cfg.Executor,
		Fields:   cfg.Fields,
		Batching: cfg.Batching,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	return &BuildSchemaResult{
		DBSchema:      dbSchema,
		GraphQLSchema: graphqlSchema,
		Bindings:      bindings,
	}, nil
}

func declareBindings(dbSchema *introspection.Schema, cfg BuildSchemaConfig, namer *naming.Namer) (*binding.Registry, error) {
	bindings := binding.NewRegistry()
	for class, converter := range cfg.Composites {
		if err := bindings.RegisterComposite(class, converter); err != nil {
			return nil, fmt.Errorf("failed to register composite %s: %w", class, err)
		}
	}
	for _, name := range cfg.ListTables {
		table, ok := dbSchema.Table(name)
		if !ok {
			continue
		}
		err := bindings.Declare(binding.Binding{
			Entity:      table.Name,
			TypeName:    namer.TypeName(table.Name),
			Connection:  false,
			Description: table.Comment,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to declare %s: %w", table.Name, err)
		}
	}
	return bindings, nil
}
