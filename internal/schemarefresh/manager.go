// Package schemarefresh builds schema snapshots and refreshes them on change.
package schemarefresh

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/graphql-go/graphql"

	"relgraph/internal/binding"
	"relgraph/internal/dbexec"
	"relgraph/internal/introspection"
	"relgraph/internal/logging"
	"relgraph/internal/naming"
	"relgraph/internal/observability"
	"relgraph/internal/resolver"
	"relgraph/internal/schemafilter"
)

// Refresh triggers, reported on the schema refresh metrics.
const (
	triggerStartup  = "startup"
	triggerManual   = "manual"
	triggerPoll     = "poll"
	triggerNoChange = "poll_no_change"
)

// Snapshot is one immutable build of the schema. Requests keep the snapshot
// they started with even if a refresh swaps in a newer one.
type Snapshot struct {
	Schema          *graphql.Schema
	Handler         http.Handler
	DBSchema        *introspection.Schema
	Bindings        *binding.Registry
	BuiltAt         time.Time
	Fingerprint     string
	FingerprintMode string

	parts map[string]string
}

// Config controls schema refresh behavior.
type Config struct {
	DB            *sql.DB
	DatabaseName  string
	Logger        *logging.Logger
	Metrics       *observability.SchemaRefreshMetrics
	MinInterval   time.Duration
	MaxInterval   time.Duration
	GraphiQL      bool
	Filters       schemafilter.Config
	TypeOverrides introspection.TypeOverrides
	Naming        naming.Config
	ListTables    []string
	Composites    map[string]binding.CompositeConverter
	Fields        map[string]resolver.FieldOptions
	Batching      bool
	// MaxParents bounds the IN list of one batched statement.
	MaxParents int
	// Executor runs generated queries. Defaults to a session-aware executor over DB.
	Executor dbexec.QueryExecutor
}

// Manager owns the active snapshot and the polling loop that replaces it.
type Manager struct {
	cfg     Config
	db      *sql.DB
	logger  *logging.Logger
	metrics *observability.SchemaRefreshMetrics
	active  atomic.Pointer[Snapshot]
	wg      sync.WaitGroup
}

// NewManager builds the first snapshot. A fingerprint failure at startup is
// only logged; a build failure is returned.
func NewManager(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.DB == nil {
		return nil, errors.New("schema refresh manager requires a database handle")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.FromContext(ctx)
	}
	if cfg.MinInterval > 0 && cfg.MaxInterval < cfg.MinInterval {
		cfg.MaxInterval = cfg.MinInterval
	}
	if cfg.Executor == nil {
		cfg.Executor = dbexec.NewSessionExecutor(cfg.DB)
	}

	m := &Manager{
		cfg:     cfg,
		db:      cfg.DB,
		logger:  cfg.Logger.WithFields(slog.String("component", "schema_refresh")),
		metrics: cfg.Metrics,
	}
	if _, err := m.refresh(ctx, triggerStartup); err != nil {
		return nil, err
	}
	return m, nil
}

// Start launches the polling loop. A non-positive MinInterval disables polling.
func (m *Manager) Start(ctx context.Context) {
	if m.cfg.MinInterval <= 0 {
		m.logger.Info("schema refresh disabled")
		return
	}
	m.wg.Go(func() { m.pollLoop(ctx) })
}

// Wait blocks until the polling loop has exited or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.wg.Wait()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler serves each request from the snapshot active when it arrives.
func (m *Manager) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := m.CurrentSnapshot()
		if snap == nil || snap.Handler == nil {
			http.Error(w, "schema not ready", http.StatusServiceUnavailable)
			return
		}
		snap.Handler.ServeHTTP(w, r)
	})
}

// CurrentSnapshot returns the active snapshot, or nil before the first build.
func (m *Manager) CurrentSnapshot() *Snapshot {
	return m.active.Load()
}

// RefreshNow rebuilds and swaps the snapshot unconditionally.
func (m *Manager) RefreshNow() error {
	return m.RefreshNowContext(context.Background())
}

// RefreshNowContext is RefreshNow bounded by ctx.
func (m *Manager) RefreshNowContext(ctx context.Context) error {
	_, err := m.refresh(ctx, triggerManual)
	return err
}

func (m *Manager) fingerprinter() fingerprinter {
	return fingerprinter{db: m.db, database: m.cfg.DatabaseName, logger: m.logger}
}

// refresh fingerprints the database and swaps in a new snapshot. Polls skip
// the rebuild when the fingerprint is unchanged. It reports whether a new
// snapshot went live; on error the previous snapshot stays active.
func (m *Manager) refresh(ctx context.Context, trigger string) (bool, error) {
	start := time.Now()
	fp, err := m.fingerprinter().compute(ctx)
	switch {
	case err != nil && trigger == triggerStartup:
		m.logger.Warn("failed to compute schema fingerprint", slog.String("error", err.Error()))
	case err != nil:
		m.record(start, false, trigger, fp.mode)
		return false, err
	}

	current := m.CurrentSnapshot()
	if trigger == triggerPoll && current != nil {
		if fp.value == current.Fingerprint {
			m.record(start, true, triggerNoChange, fp.mode)
			return false, nil
		}
		m.logger.Info("schema change detected, rebuilding",
			slog.String("fingerprint", fp.value),
			slog.String("fingerprint_mode", fp.mode),
			slog.Any("changed_components", changedParts(current.parts, fp.parts)),
		)
	}

	snap, err := m.build(ctx, fp)
	if err != nil {
		m.record(start, false, trigger, fp.mode)
		return false, err
	}
	m.active.Store(snap)
	m.record(start, true, trigger, snap.FingerprintMode)
	return true, nil
}

func (m *Manager) pollLoop(ctx context.Context) {
	interval := m.cfg.MinInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("schema refresh stopped")
			return
		case <-timer.C:
			interval = m.poll(ctx, interval)
			timer.Reset(interval)
		}
	}
}

// poll runs one refresh and returns the delay before the next one. Quiet
// polls stretch the delay towards MaxInterval; changes and failures reset it.
func (m *Manager) poll(ctx context.Context, interval time.Duration) time.Duration {
	swapped, err := m.refresh(ctx, triggerPoll)
	switch {
	case err != nil:
		m.logger.Error("schema refresh failed", slog.String("error", err.Error()))
		return m.cfg.MinInterval
	case !swapped:
		return backoffInterval(interval, m.cfg.MinInterval, m.cfg.MaxInterval)
	default:
		snap := m.CurrentSnapshot()
		m.logger.Info("schema refresh complete",
			slog.String("fingerprint", snap.Fingerprint),
			slog.String("fingerprint_mode", snap.FingerprintMode),
		)
		return m.cfg.MinInterval
	}
}

func (m *Manager) build(ctx context.Context, fp fingerprint) (*Snapshot, error) {
	start := time.Now()
	res, err := BuildSchema(ctx, BuildSchemaConfig{
		Queryer:       m.db,
		Executor:      m.cfg.Executor,
		DatabaseName:  m.cfg.DatabaseName,
		Filters:       m.cfg.Filters,
		TypeOverrides: m.cfg.TypeOverrides,
		Naming:        m.cfg.Naming,
		ListTables:    m.cfg.ListTables,
		Composites:    m.cfg.Composites,
		Fields:        m.cfg.Fields,
		Batching:      m.cfg.Batching,
		Logger:        m.logger.Logger,
	})
	if err != nil {
		return nil, err
	}

	for _, table := range res.DBSchema.Tables {
		m.logger.Debug("table discovered",
			slog.String("table", table.Name),
			slog.Int("columns", len(table.Columns)),
			slog.Int("relationships", len(table.Relationships)),
		)
	}
	m.logger.Info("schema snapshot built",
		slog.Int("tables", len(res.DBSchema.Tables)),
		slog.Duration("duration", time.Since(start)),
	)

	mode := fp.mode
	if mode == "" {
		mode = ModeUnknown
	}
	schema := res.GraphQLSchema
	return &Snapshot{
		Schema:          &schema,
		Handler:         newExecutionHandler(&schema, m.db, m.cfg.MaxParents, m.cfg.GraphiQL),
		DBSchema:        res.DBSchema,
		Bindings:        res.Bindings,
		BuiltAt:         time.Now(),
		Fingerprint:     fp.value,
		FingerprintMode: mode,
		parts:           fp.parts,
	}, nil
}

func (m *Manager) record(start time.Time, success bool, trigger, mode string) {
	if m.metrics == nil {
		return
	}
	if mode == "" {
		mode = ModeUnknown
	}
	m.metrics.RecordRefresh(context.Background(), time.Since(start), success, trigger, mode)
}

// backoffInterval grows the poll delay by half, clamped to [minInterval, maxInterval].
func backoffInterval(current, minInterval, maxInterval time.Duration) time.Duration {
	if current < minInterval {
		return minInterval
	}
	return min(current+current/2, maxInterval)
}
