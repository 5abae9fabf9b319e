package resolver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/graphql-go/graphql"
	"go.opentelemetry.io/otel/attribute"

	"relgraph/internal/batch"
	"relgraph/internal/logging"
	"relgraph/internal/observability"
	"relgraph/internal/session"
)

// ExecutionContext carries the per-request collaborators of one execution pass.
type ExecutionContext struct {
	OperationName string
	// DB opens a request session when ctx does not already carry one.
	DB      *sql.DB
	Metrics *observability.GraphQLMetrics
	Logger  *logging.Logger
	// MaxParents bounds the IN list of one batched statement.
	MaxParents int
}

// Execute runs one GraphQL request with a fresh batch loader. Warnings the
// loader recorded are returned under extensions.warnings and the loader is
// discarded before returning.
func Execute(ctx context.Context, schema graphql.Schema, query string, variables map[string]interface{}, ec ExecutionContext) *graphql.Result {
	if ctx == nil {
		ctx = context.Background()
	}
	if ec.Logger != nil {
		ctx = logging.WithLogger(ctx, ec.Logger)
	}
	if ec.Metrics != nil {
		ctx = observability.ContextWithGraphQLMetrics(ctx, ec.Metrics)
	}
	logger := logging.FromContext(ctx)

	sess, hasSession := session.FromContext(ctx)
	ownSession := false
	if !hasSession && ec.DB != nil {
		sess = session.New(ec.DB)
		ctx = session.NewContext(ctx, sess)
		ownSession = true
	}

	ctx, loader := batch.NewContext(ctx, batch.Options{MaxParents: ec.MaxParents})
	ctx, span := startResolverSpan(ctx, "graphql.execute",
		attribute.String("graphql.operation.name", ec.OperationName),
	)

	result := graphql.Do(graphql.Params{
		Schema:         schema,
		RequestString:  query,
		VariableValues: variables,
		OperationName:  ec.OperationName,
		Context:        ctx,
	})
	loader.Close()

	if warnings := loader.Warnings(); len(warnings) > 0 {
		if result.Extensions == nil {
			result.Extensions = map[string]interface{}{}
		}
		result.Extensions["warnings"] = warningEntries(warnings)
	}

	var execErr error
	if result.HasErrors() {
		execErr = fmt.Errorf("%d GraphQL errors", len(result.Errors))
	}
	finishResolverSpan(span, execErr)

	report := reportTask(logger, result)
	if sess == nil {
		_ = report.Run(ctx)
		return result
	}
	sess.Defer(report)
	if ownSession {
		if err := sess.Close(); err != nil {
			logger.Warn("failed to release request session", slog.String("error", err.Error()))
		}
		go func() {
			_ = sess.RunBackground(context.WithoutCancel(ctx), logger.Logger)
		}()
	}
	return result
}

func warningEntries(warnings []error) []map[string]interface{} {
	entries := make([]map[string]interface{}, 0, len(warnings))
	for _, w := range warnings {
		entry := map[string]interface{}{"message": w.Error()}
		var cardinality *batch.CardinalityViolationError
		if errors.As(w, &cardinality) {
			entry["code"] = "CARDINALITY_VIOLATION"
			entry["relationship"] = cardinality.Key.Relationship
			entry["parent"] = cardinality.Parent
			entry["rows"] = cardinality.Rows
		}
		entries = append(entries, entry)
	}
	return entries
}

// reportTask logs resolver errors once the response is out of the way.
func reportTask(logger *logging.Logger, result *graphql.Result) session.Task {
	return session.Task{
		Name: "report_errors",
		Run: func(ctx context.Context) error {
			for _, gqlErr := range result.Errors {
				logger.Error("graphql resolver error",
					slog.String("error", gqlErr.Message),
					slog.Any("path", gqlErr.Path),
				)
			}
			return nil
		},
	}
}
