package resolver

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/graphql-go/graphql"
	"go.opentelemetry.io/otel/attribute"

	"relgraph/internal/batch"
	"relgraph/internal/connection"
	"relgraph/internal/dbexec"
	"relgraph/internal/introspection"
	"relgraph/internal/planner"
)

const queryTypeName = "Query"

func (b *builder) addRootFields(fields graphql.Fields, table introspection.Table, obj *graphql.Object) {
	decl, _ := b.bindings.Lookup(table.Name)

	listName := b.namer.RegisterField(queryTypeName, b.namer.ListQueryName(table.Name), "list:"+table.Name)
	fo := b.fieldOptions(queryTypeName, listName)
	if decl.Connection {
		factory := fo.ConnectionFactory
		if factory == nil {
			factory = connection.DefaultFactory
		}
		fields[listName] = factory(b.connections, connection.FieldSpec{
			Node:        obj,
			Keyer:       b.keyer(table, obj.Name()),
			Description: describe(fo, fmt.Sprintf("Paginated %s rows.", table.Name)),
			Source:      b.rootSource(table),
		})
	} else {
		source := b.rootSource(table)
		fields[listName] = &graphql.Field{
			Type:        graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(obj))),
			Description: describe(fo, fmt.Sprintf("All %s rows.", table.Name)),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				rows, err := source(p)
				if err != nil {
					return nil, err
				}
				return rows()
			},
		}
	}
	if fo.Resolve != nil {
		fields[listName].Resolve = fo.Resolve
	}

	pkCols := introspection.PrimaryKeyColumns(table)
	if len(pkCols) == 0 {
		return
	}
	args := graphql.FieldConfigArgument{}
	argColumns := make(map[string]introspection.Column, len(pkCols))
	for _, col := range pkCols {
		input, ok := b.columnTypes[table.Name][col.Name].(graphql.Input)
		if !ok {
			b.logger.Debug("skipping primary key lookup for non-input key type",
				slog.String("table", table.Name),
				slog.String("column", col.Name),
			)
			return
		}
		if _, nonNull := input.(*graphql.NonNull); !nonNull {
			input = graphql.NewNonNull(input)
		}
		argName := b.namer.FieldName(col.Name)
		args[argName] = &graphql.ArgumentConfig{Type: input}
		argColumns[argName] = col
	}

	lookupName := b.namer.RegisterField(queryTypeName, b.namer.SingleQueryName(table.Name), "pk:"+table.Name)
	lfo := b.fieldOptions(queryTypeName, lookupName)
	resolve := lfo.Resolve
	if resolve == nil {
		resolve = b.primaryKeyResolver(table, argColumns)
	}
	fields[lookupName] = &graphql.Field{
		Type:        obj,
		Description: describe(lfo, fmt.Sprintf("Look up one %s row by primary key.", table.Name)),
		Args:        args,
		Resolve:     resolve,
	}
}

// rootSource loads every row of table in declared order with one statement.
func (b *builder) rootSource(table introspection.Table) connection.Source {
	exec := b.opts.Executor
	return func(p graphql.ResolveParams) (func() ([]connection.Row, error), error) {
		planned, err := planner.PlanList(table, nil)
		if err != nil {
			return nil, err
		}
		ctx, span := startResolverSpan(p.Context, "resolver.list",
			attribute.String("db.table", table.Name),
		)
		rows, err := dbexec.QueryMaps(ctx, exec, planned.SQL, planned.Args...)
		finishResolverSpan(span, err)
		if err != nil {
			err = normalizeQueryError(err)
		}
		return func() ([]batch.Row, error) { return rows, err }, nil
	}
}

func (b *builder) primaryKeyResolver(table introspection.Table, argColumns map[string]introspection.Column) graphql.FieldResolveFn {
	exec := b.opts.Executor
	return func(p graphql.ResolveParams) (interface{}, error) {
		values := make(map[string]interface{}, len(argColumns))
		for argName, col := range argColumns {
			values[col.Name] = keyArg(col, p.Args[argName])
		}
		planned, err := planner.PlanByPrimaryKey(table, nil, values)
		if err != nil {
			return nil, err
		}
		ctx, span := startResolverSpan(p.Context, "resolver.primary_key",
			attribute.String("db.table", table.Name),
		)
		rows, err := dbexec.QueryMaps(ctx, exec, planned.SQL, planned.Args...)
		finishResolverSpan(span, err)
		if err != nil {
			return nil, normalizeQueryError(err)
		}
		if len(rows) == 0 {
			return nil, nil
		}
		return rows[0], nil
	}
}

// keyArg converts ID arguments back to integers for integer key columns.
func keyArg(col introspection.Column, value interface{}) interface{} {
	s, ok := value.(string)
	if !ok || !col.Type.Kind.IsInteger() {
		return value
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return value
}

func describe(fo FieldOptions, fallback string) string {
	if fo.Description != "" {
		return fo.Description
	}
	return fallback
}
