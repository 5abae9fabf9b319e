// Package batch coalesces per-parent relationship fetches within one execution pass.
//
// A resolver calls Load with the parent's key and gets back a thunk. graphql-go
// resolves every sibling field before it forces any thunk, so by the time the
// first thunk runs the window for that relationship holds the whole parent set.
// Forcing it closes the window, issues one fetch for the union of parents and
// fans the rows back out. Parents registered after a window closed open a new
// window; a closed window is never fetched again.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"relgraph/internal/logging"
	"relgraph/internal/observability"
)

// DefaultMaxParents bounds the IN list of one SQL statement.
const DefaultMaxParents = 1000

// Key identifies one batched relationship fetch.
type Key struct {
	// Relationship is the relationship's foreign key path identity.
	Relationship string
	// Kind labels metrics, e.g. "many_to_one".
	Kind string
}

// Fetcher loads the rows related to parents. Rows must be returned in the
// declared order of the target so single-mode picks are deterministic.
type Fetcher func(ctx context.Context, parents []ParentID) ([]Tagged, error)

// Thunk is a suspended to-many result.
type Thunk func() ([]Row, error)

// OneThunk is a suspended to-one result; a nil Row means no related row.
type OneThunk func() (Row, error)

// Options configures a Loader.
type Options struct {
	// MaxParents splits a window's fetch into chunks of at most this many parents.
	MaxParents int
}

// Loader is the pending-batch table of one execution pass.
type Loader struct {
	maxParents int

	mu       sync.Mutex
	pending  map[Key]*window
	warned   map[string]struct{}
	warnings []error
	closed   bool
}

// NewLoader creates an empty loader.
func NewLoader(opts Options) *Loader {
	if opts.MaxParents <= 0 {
		opts.MaxParents = DefaultMaxParents
	}
	return &Loader{
		maxParents: opts.MaxParents,
		pending:    make(map[Key]*window),
		warned:     make(map[string]struct{}),
	}
}

type loaderKey struct{}

// NewContext installs a fresh loader for one execution pass.
func NewContext(ctx context.Context, opts Options) (context.Context, *Loader) {
	if ctx == nil {
		ctx = context.Background()
	}
	l := NewLoader(opts)
	return context.WithValue(ctx, loaderKey{}, l), l
}

// FromContext returns the pass's loader.
func FromContext(ctx context.Context) (*Loader, bool) {
	if ctx == nil {
		return nil, false
	}
	l, ok := ctx.Value(loaderKey{}).(*Loader)
	return l, ok
}

type window struct {
	key     Key
	fetch   Fetcher
	parents []ParentID
	seen    map[string]struct{}

	once    sync.Once
	results map[string][]Row
	err     error
}

// Load registers parent in the open window for key and returns its handle.
func (l *Loader) Load(ctx context.Context, key Key, parent ParentID, fetch Fetcher) Thunk {
	if parent.HasNull() {
		return func() ([]Row, error) { return []Row{}, nil }
	}
	w, err := l.register(key, parent, fetch)
	if err != nil {
		return func() ([]Row, error) { return nil, err }
	}
	id := parent.String()
	return func() ([]Row, error) {
		if err := l.flush(ctx, w); err != nil {
			return nil, err
		}
		rows := w.results[id]
		if rows == nil {
			rows = []Row{}
		}
		return rows, nil
	}
}

// LoadOne is Load for single-valued relationships. When more than one row
// matches, the first is returned and a CardinalityViolationError is recorded.
func (l *Loader) LoadOne(ctx context.Context, key Key, parent ParentID, fetch Fetcher) OneThunk {
	many := l.Load(ctx, key, parent, fetch)
	return func() (Row, error) {
		rows, err := many()
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, nil
		}
		if len(rows) > 1 {
			l.WarnCardinality(ctx, key, parent, len(rows))
		}
		return rows[0], nil
	}
}

// Warnings returns the non-fatal problems recorded during the pass.
func (l *Loader) Warnings() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]error, len(l.warnings))
	copy(out, l.warnings)
	return out
}

// Close discards all open windows. Handles that have not flushed fail with ErrCancelled.
func (l *Loader) Close() {
	l.mu.Lock()
	l.closed = true
	open := make([]*window, 0, len(l.pending))
	for key, w := range l.pending {
		open = append(open, w)
		delete(l.pending, key)
	}
	l.mu.Unlock()

	for _, w := range open {
		w.once.Do(func() {
			w.err = fmt.Errorf("%w: execution pass ended", ErrCancelled)
		})
	}
}

func (l *Loader) register(key Key, parent ParentID, fetch Fetcher) (*window, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, fmt.Errorf("%w: execution pass ended", ErrCancelled)
	}
	w, ok := l.pending[key]
	if !ok {
		w = &window{key: key, fetch: fetch, seen: make(map[string]struct{})}
		l.pending[key] = w
	}
	id := parent.String()
	if _, dup := w.seen[id]; !dup {
		w.seen[id] = struct{}{}
		w.parents = append(w.parents, parent)
	}
	return w, nil
}

// flush runs the window's fetch exactly once. The window leaves the pending
// table first, so parents registered during or after the fetch open a new one.
func (l *Loader) flush(ctx context.Context, w *window) error {
	w.once.Do(func() {
		l.mu.Lock()
		if l.pending[w.key] == w {
			delete(l.pending, w.key)
		}
		l.mu.Unlock()
		w.results, w.err = l.run(ctx, w)
	})
	return w.err
}

func (l *Loader) run(ctx context.Context, w *window) (map[string][]Row, error) {
	metrics := observability.GraphQLMetricsFromContext(ctx)
	ctx, span := otel.Tracer("relgraph/batch").Start(ctx, "batch.flush")
	defer span.End()
	span.SetAttributes(
		attribute.String("batch.relationship", w.key.Relationship),
		attribute.String("batch.kind", w.key.Kind),
		attribute.Int("batch.parents", len(w.parents)),
	)

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "cancelled")
		if metrics != nil {
			metrics.RecordBatchFailure(ctx, w.key.Kind, "cancelled")
		}
		return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	chunks := chunkParents(w.parents, l.maxParents)
	results := make(map[string][]Row, len(w.parents))
	rowCount := 0
	for _, chunk := range chunks {
		tagged, err := w.fetch(ctx, chunk)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			reason := "error"
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				reason = "cancelled"
				err = fmt.Errorf("%w: %w", ErrCancelled, err)
			}
			if metrics != nil {
				metrics.RecordBatchFailure(ctx, w.key.Kind, reason)
			}
			// Rows from earlier chunks are dropped with the window.
			return nil, &BatchFetchError{Key: w.key, Parents: len(w.parents), Err: err}
		}
		for _, t := range tagged {
			id := t.Parent.String()
			results[id] = append(results[id], t.Row)
		}
		rowCount += len(tagged)
	}

	span.SetAttributes(
		attribute.Int("batch.rows", rowCount),
		attribute.Int("batch.queries", len(chunks)),
	)
	if metrics != nil {
		metrics.RecordBatchFlush(ctx, w.key.Kind, len(w.parents), rowCount, len(chunks))
	}
	logging.FromContext(ctx).Debug("batch flushed",
		slog.String("relationship", w.key.Relationship),
		slog.Int("parents", len(w.parents)),
		slog.Int("rows", rowCount),
		slog.Int("queries", len(chunks)),
	)
	return results, nil
}

// WarnCardinality records that parent matched rows rows on a single-valued
// relationship. Repeats for the same relationship and parent are dropped.
func (l *Loader) WarnCardinality(ctx context.Context, key Key, parent ParentID, rows int) {
	id := key.Relationship + "|" + parent.String()
	l.mu.Lock()
	if _, dup := l.warned[id]; dup {
		l.mu.Unlock()
		return
	}
	l.warned[id] = struct{}{}
	warning := &CardinalityViolationError{Key: key, Parent: parent.String(), Rows: rows}
	l.warnings = append(l.warnings, warning)
	l.mu.Unlock()

	if metrics := observability.GraphQLMetricsFromContext(ctx); metrics != nil {
		metrics.RecordCardinalityViolation(ctx, key.Kind)
	}
	logging.FromContext(ctx).Warn("single-valued relationship matched several rows",
		slog.String("relationship", key.Relationship),
		slog.String("parent", warning.Parent),
		slog.Int("rows", rows),
	)
}

func chunkParents(parents []ParentID, max int) [][]ParentID {
	if len(parents) == 0 {
		return nil
	}
	if max <= 0 || len(parents) <= max {
		return [][]ParentID{parents}
	}
	chunks := make([][]ParentID, 0, (len(parents)+max-1)/max)
	for start := 0; start < len(parents); start += max {
		end := min(start+max, len(parents))
		chunks = append(chunks, parents[start:end])
	}
	return chunks
}
