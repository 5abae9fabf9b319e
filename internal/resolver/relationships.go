package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/graphql-go/graphql"
	"go.opentelemetry.io/otel/attribute"

	"relgraph/internal/batch"
	"relgraph/internal/connection"
	"relgraph/internal/dbexec"
	"relgraph/internal/introspection"
	"relgraph/internal/logging"
	"relgraph/internal/observability"
	"relgraph/internal/planner"
	"relgraph/internal/relation"
)

const (
	skipReasonDisabled = "disabled"
	skipReasonNoLoader = "no_loader"
	skipReasonCustom   = "custom_resolver"
)

// rowSource yields the rows related to the parent in p, possibly suspended.
type rowSource func(p graphql.ResolveParams) (func() ([]batch.Row, error), error)

func (b *builder) relationshipField(table introspection.Table, rel introspection.Relationship, name string) *graphql.Field {
	fo := b.fieldOptions(table.Name, name)
	shape := b.classifier.Classify(rel, relation.Hints{
		DisableBatching: !b.batchingFor(fo),
		CustomResolver:  fo.Resolve != nil,
	})

	target, ok := shape.Target.Resolve()
	targetTable, known := b.tables[rel.Target]
	if !ok || !known {
		err := &relation.MissingTypeBindingError{Source: table.Name, Field: name, Target: rel.Target}
		b.logger.Debug("omitting relationship field", slog.String("error", err.Error()))
		return nil
	}

	description := fo.Description
	if description == "" {
		description = relationshipDescription(rel)
	}
	kind := relationKind(rel)
	source := b.rowSource(shape, targetTable)

	var field *graphql.Field
	switch shape.Kind {
	case relation.ShapeSingle:
		field = &graphql.Field{
			Type:        applyRequired(target, fo.Required),
			Description: description,
			Resolve:     b.singleResolver(shape, targetTable),
		}
	case relation.ShapeList:
		field = &graphql.Field{
			Type:        applyRequired(graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(target))), fo.Required),
			Description: description,
			Resolve:     listResolver(source),
		}
	default:
		factory := fo.ConnectionFactory
		if factory == nil {
			factory = connection.DefaultFactory
		}
		field = factory(b.connections, connection.FieldSpec{
			Node:        target,
			Keyer:       b.keyer(targetTable, target.Name()),
			Description: description,
			Source: func(p graphql.ResolveParams) (func() ([]connection.Row, error), error) {
				return source(p)
			},
		})
	}

	if shape.Strategy == relation.StrategyCustom {
		field.Resolve = customResolver(kind, fo.Resolve)
	}
	return field
}

func listResolver(source rowSource) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		rows, err := source(p)
		if err != nil {
			return nil, err
		}
		return func() (interface{}, error) {
			return rows()
		}, nil
	}
}

func (b *builder) singleResolver(shape relation.Shape, target introspection.Table) graphql.FieldResolveFn {
	rel := shape.Relationship
	key := batch.Key{Relationship: rel.Identity(), Kind: relationKind(rel)}
	fetch := b.fetcher(rel, target)

	return func(p graphql.ResolveParams) (interface{}, error) {
		row, ok := p.Source.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("unexpected source %T for %s", p.Source, rel.Name)
		}
		parent := parentID(row, rel.LocalColumns)

		if shape.Strategy == relation.StrategyBatched {
			if loader, ok := batch.FromContext(p.Context); ok {
				one := loader.LoadOne(p.Context, key, parent, fetch)
				return func() (interface{}, error) {
					related, err := one()
					if err != nil || related == nil {
						return nil, err
					}
					return related, nil
				}, nil
			}
		}

		rows, err := fetchDirect(p.Context, key, parent, fetch, skipReason(shape.Strategy))
		if err != nil || len(rows) == 0 {
			return nil, err
		}
		if len(rows) > 1 {
			if loader, ok := batch.FromContext(p.Context); ok {
				loader.WarnCardinality(p.Context, key, parent, len(rows))
			} else {
				warning := &batch.CardinalityViolationError{Key: key, Parent: parent.String(), Rows: len(rows)}
				logging.FromContext(p.Context).Warn("single-valued relationship matched several rows",
					slog.String("error", warning.Error()),
				)
			}
		}
		return rows[0], nil
	}
}

func (b *builder) rowSource(shape relation.Shape, target introspection.Table) rowSource {
	rel := shape.Relationship
	key := batch.Key{Relationship: rel.Identity(), Kind: relationKind(rel)}
	fetch := b.fetcher(rel, target)

	return func(p graphql.ResolveParams) (func() ([]batch.Row, error), error) {
		row, ok := p.Source.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("unexpected source %T for %s", p.Source, rel.Name)
		}
		parent := parentID(row, rel.LocalColumns)

		if shape.Strategy == relation.StrategyBatched {
			if loader, ok := batch.FromContext(p.Context); ok {
				return loader.Load(p.Context, key, parent, fetch), nil
			}
		}
		rows, err := fetchDirect(p.Context, key, parent, fetch, skipReason(shape.Strategy))
		return func() ([]batch.Row, error) { return rows, err }, nil
	}
}

func skipReason(strategy relation.Strategy) string {
	if strategy == relation.StrategyDirect {
		return skipReasonDisabled
	}
	return skipReasonNoLoader
}

// fetchDirect runs fetch for a single parent without a batch window.
func fetchDirect(ctx context.Context, key batch.Key, parent batch.ParentID, fetch batch.Fetcher, reason string) ([]batch.Row, error) {
	if metrics := observability.GraphQLMetricsFromContext(ctx); metrics != nil {
		metrics.RecordBatchSkipped(ctx, key.Kind, reason)
	}
	if parent.HasNull() {
		return []batch.Row{}, nil
	}
	tagged, err := fetch(ctx, []batch.ParentID{parent})
	if err != nil {
		return nil, &batch.BatchFetchError{Key: key, Parents: 1, Err: err}
	}
	rows := make([]batch.Row, len(tagged))
	for i, t := range tagged {
		rows[i] = t.Row
	}
	return rows, nil
}

func customResolver(kind string, resolve graphql.FieldResolveFn) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		if metrics := observability.GraphQLMetricsFromContext(p.Context); metrics != nil {
			metrics.RecordBatchSkipped(p.Context, kind, skipReasonCustom)
		}
		return resolve(p)
	}
}

// fetcher loads the target rows of rel for a set of parents in one statement.
func (b *builder) fetcher(rel introspection.Relationship, target introspection.Table) batch.Fetcher {
	width := len(rel.LocalColumns)
	aliases := planner.ParentAliases(width)
	exec := b.opts.Executor

	return func(ctx context.Context, parents []batch.ParentID) ([]batch.Tagged, error) {
		keys := make([][]interface{}, len(parents))
		for i, parent := range parents {
			keys[i] = parent
		}
		planned, err := planner.PlanRelationshipBatch(rel, target, nil, keys)
		if err != nil {
			return nil, fmt.Errorf("failed to plan %s: %w", rel.Identity(), err)
		}

		ctx, span := startResolverSpan(ctx, "resolver.fetch_relationship",
			attribute.String("graphql.relationship", rel.Identity()),
			attribute.Int("graphql.batch.parents", len(parents)),
		)
		rows, err := dbexec.QueryMaps(ctx, exec, planned.SQL, planned.Args...)
		finishResolverSpan(span, err)
		if err != nil {
			return nil, normalizeQueryError(err)
		}

		tagged := make([]batch.Tagged, len(rows))
		for i, row := range rows {
			parent := make(batch.ParentID, width)
			for j, alias := range aliases {
				parent[j] = normalizeKey(row[alias])
				delete(row, alias)
			}
			tagged[i] = batch.Tagged{Parent: parent, Row: row}
		}
		return tagged, nil
	}
}

func parentID(row map[string]interface{}, columns []string) batch.ParentID {
	id := make(batch.ParentID, len(columns))
	for i, col := range columns {
		id[i] = normalizeKey(row[col])
	}
	return id
}

func relationKind(rel introspection.Relationship) string {
	return strings.ToLower(rel.Direction.String())
}

func relationshipDescription(rel introspection.Relationship) string {
	if rel.JunctionTable != "" {
		return fmt.Sprintf("Related %s rows through %s.", rel.Target, rel.JunctionTable)
	}
	return fmt.Sprintf("Related %s rows matched on %s.", rel.Target, strings.Join(rel.RemoteColumns, ", "))
}
