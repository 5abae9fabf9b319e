package batch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"relgraph/internal/observability"
)

var postsByAuthor = Key{Relationship: "users(id)->posts(author_id)", Kind: "one_to_many"}

// recordingFetcher returns rows whose author_id is in the requested parents.
type recordingFetcher struct {
	rows  []Row
	calls [][]ParentID
	err   error
}

func (f *recordingFetcher) fetch(_ context.Context, parents []ParentID) ([]Tagged, error) {
	f.calls = append(f.calls, parents)
	if f.err != nil {
		return nil, f.err
	}
	want := make(map[string]bool, len(parents))
	for _, p := range parents {
		want[p.String()] = true
	}
	var out []Tagged
	for _, row := range f.rows {
		parent := ParentID{row["author_id"]}
		if want[parent.String()] {
			out = append(out, Tagged{Parent: parent, Row: row})
		}
	}
	return out, nil
}

func TestLoad_CoalescesWindow(t *testing.T) {
	f := &recordingFetcher{rows: []Row{
		{"id": int64(10), "author_id": int64(1)},
		{"id": int64(11), "author_id": int64(1)},
		{"id": int64(12), "author_id": int64(2)},
	}}
	ctx, loader := NewContext(context.Background(), Options{})

	h1 := loader.Load(ctx, postsByAuthor, ParentID{int64(1)}, f.fetch)
	h2 := loader.Load(ctx, postsByAuthor, ParentID{int64(2)}, f.fetch)
	h3 := loader.Load(ctx, postsByAuthor, ParentID{int64(3)}, f.fetch)
	assert.Empty(t, f.calls, "nothing is fetched before a handle is forced")

	rows, err := h2()
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	rows, err = h1()
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, int64(10), rows[0]["id"])

	rows, err = h3()
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)

	require.Len(t, f.calls, 1)
	assert.Len(t, f.calls[0], 3)
}

func TestLoad_OneFetchIndependentOfParentCount(t *testing.T) {
	for _, n := range []int{0, 1, 1000} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			f := &recordingFetcher{}
			for i := 0; i < n; i++ {
				f.rows = append(f.rows, Row{"id": int64(i), "author_id": int64(i)})
			}
			ctx, loader := NewContext(context.Background(), Options{})

			handles := make([]Thunk, 0, n)
			for i := 0; i < n; i++ {
				handles = append(handles, loader.Load(ctx, postsByAuthor, ParentID{int64(i)}, f.fetch))
			}
			for _, h := range handles {
				rows, err := h()
				require.NoError(t, err)
				require.Len(t, rows, 1)
			}
			assert.LessOrEqual(t, len(f.calls), 1)
			if n > 0 {
				assert.Len(t, f.calls, 1)
			}
		})
	}
}

func TestLoad_DeduplicatesParents(t *testing.T) {
	f := &recordingFetcher{}
	ctx, loader := NewContext(context.Background(), Options{})

	a := loader.Load(ctx, postsByAuthor, ParentID{int64(1)}, f.fetch)
	b := loader.Load(ctx, postsByAuthor, ParentID{"1"}, f.fetch)
	_, err := a()
	require.NoError(t, err)
	_, err = b()
	require.NoError(t, err)

	require.Len(t, f.calls, 1)
	assert.Len(t, f.calls[0], 1)
}

func TestLoad_LateJoinerOpensNewWindow(t *testing.T) {
	f := &recordingFetcher{rows: []Row{
		{"id": int64(10), "author_id": int64(1)},
		{"id": int64(20), "author_id": int64(2)},
	}}
	ctx, loader := NewContext(context.Background(), Options{})

	first := loader.Load(ctx, postsByAuthor, ParentID{int64(1)}, f.fetch)
	_, err := first()
	require.NoError(t, err)

	late := loader.Load(ctx, postsByAuthor, ParentID{int64(2)}, f.fetch)
	rows, err := late()
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// Forcing the first handle again must not re-query its window.
	_, err = first()
	require.NoError(t, err)

	require.Len(t, f.calls, 2)
	assert.Equal(t, []ParentID{{int64(1)}}, f.calls[0])
	assert.Equal(t, []ParentID{{int64(2)}}, f.calls[1])
}

func TestLoad_KeysAreIndependent(t *testing.T) {
	failing := &recordingFetcher{err: errors.New("table missing")}
	working := &recordingFetcher{rows: []Row{{"id": int64(1), "author_id": int64(1)}}}
	commentsByAuthor := Key{Relationship: "users(id)->comments(author_id)", Kind: "one_to_many"}
	ctx, loader := NewContext(context.Background(), Options{})

	bad1 := loader.Load(ctx, postsByAuthor, ParentID{int64(1)}, failing.fetch)
	bad2 := loader.Load(ctx, postsByAuthor, ParentID{int64(2)}, failing.fetch)
	good := loader.Load(ctx, commentsByAuthor, ParentID{int64(1)}, working.fetch)

	_, err1 := bad1()
	_, err2 := bad2()
	var fetchErr *BatchFetchError
	require.ErrorAs(t, err1, &fetchErr)
	assert.Equal(t, postsByAuthor, fetchErr.Key)
	assert.Equal(t, 2, fetchErr.Parents)
	assert.Contains(t, fetchErr.Error(), "table missing")
	assert.Same(t, err1, err2)
	assert.Len(t, failing.calls, 1)

	rows, err := good()
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestLoad_CancelledPassDoesNotQuery(t *testing.T) {
	f := &recordingFetcher{}
	ctx, loader := NewContext(context.Background(), Options{})
	ctx, cancel := context.WithCancel(ctx)

	h1 := loader.Load(ctx, postsByAuthor, ParentID{int64(1)}, f.fetch)
	h2 := loader.Load(ctx, postsByAuthor, ParentID{int64(2)}, f.fetch)
	cancel()

	_, err := h1()
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = h2()
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Empty(t, f.calls)
}

func TestLoad_FetcherCancellationIsReportedAsCancelled(t *testing.T) {
	f := &recordingFetcher{err: context.DeadlineExceeded}
	ctx, loader := NewContext(context.Background(), Options{})

	_, err := loader.Load(ctx, postsByAuthor, ParentID{int64(1)}, f.fetch)()
	assert.ErrorIs(t, err, ErrCancelled)
	var fetchErr *BatchFetchError
	assert.ErrorAs(t, err, &fetchErr)
}

func TestLoad_NullParentSkipsFetch(t *testing.T) {
	f := &recordingFetcher{}
	ctx, loader := NewContext(context.Background(), Options{})

	rows, err := loader.Load(ctx, postsByAuthor, ParentID{nil}, f.fetch)()
	require.NoError(t, err)
	assert.Empty(t, rows)

	row, err := loader.LoadOne(ctx, postsByAuthor, ParentID{int64(5), nil}, f.fetch)()
	require.NoError(t, err)
	assert.Nil(t, row)
	assert.Empty(t, f.calls)
}

func TestLoad_ChunksLargeWindows(t *testing.T) {
	f := &recordingFetcher{}
	ctx, loader := NewContext(context.Background(), Options{MaxParents: 2})

	var handles []Thunk
	for i := 0; i < 5; i++ {
		handles = append(handles, loader.Load(ctx, postsByAuthor, ParentID{int64(i)}, f.fetch))
	}
	for _, h := range handles {
		_, err := h()
		require.NoError(t, err)
	}
	require.Len(t, f.calls, 3)
	assert.Len(t, f.calls[0], 2)
	assert.Len(t, f.calls[2], 1)
}

func TestLoadOne_CardinalityViolation(t *testing.T) {
	authorOf := Key{Relationship: "profiles(user_id)->users(id)", Kind: "one_to_one"}
	f := &recordingFetcher{rows: []Row{
		{"id": int64(1), "author_id": int64(7)},
		{"id": int64(2), "author_id": int64(7)},
		{"id": int64(3), "author_id": int64(8)},
	}}
	ctx, loader := NewContext(context.Background(), Options{})

	seven := loader.LoadOne(ctx, authorOf, ParentID{int64(7)}, f.fetch)
	sevenAgain := loader.LoadOne(ctx, authorOf, ParentID{int64(7)}, f.fetch)
	eight := loader.LoadOne(ctx, authorOf, ParentID{int64(8)}, f.fetch)
	nine := loader.LoadOne(ctx, authorOf, ParentID{int64(9)}, f.fetch)

	row, err := seven()
	require.NoError(t, err)
	assert.Equal(t, int64(1), row["id"], "first row in fetch order wins")
	_, err = sevenAgain()
	require.NoError(t, err)

	row, err = eight()
	require.NoError(t, err)
	assert.Equal(t, int64(3), row["id"])

	row, err = nine()
	require.NoError(t, err)
	assert.Nil(t, row)

	warnings := loader.Warnings()
	require.Len(t, warnings, 1)
	var violation *CardinalityViolationError
	require.ErrorAs(t, warnings[0], &violation)
	assert.Equal(t, 2, violation.Rows)
	assert.Equal(t, "7", violation.Parent)
}

func TestClose_FailsOpenHandles(t *testing.T) {
	f := &recordingFetcher{}
	ctx, loader := NewContext(context.Background(), Options{})

	h := loader.Load(ctx, postsByAuthor, ParentID{int64(1)}, f.fetch)
	loader.Close()

	_, err := h()
	assert.ErrorIs(t, err, ErrCancelled)
	_, err = loader.Load(ctx, postsByAuthor, ParentID{int64(2)}, f.fetch)()
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Empty(t, f.calls)
}

func TestFromContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx, loader := NewContext(context.Background(), Options{})
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, loader, got)

	// Each pass gets its own table.
	_, other := NewContext(ctx, Options{})
	assert.NotSame(t, loader, other)
}

func TestParentIDString(t *testing.T) {
	assert.Equal(t, ParentID{int64(1)}.String(), ParentID{[]byte("1")}.String())
	assert.NotEqual(t, ParentID{"1", "2"}.String(), ParentID{"12"}.String())
	assert.True(t, ParentID{}.HasNull())
	assert.False(t, ParentID{int64(0)}.HasNull())
}

func TestLoad_RecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := observability.NewGraphQLMetrics(provider.Meter("test"))
	require.NoError(t, err)

	f := &recordingFetcher{rows: []Row{{"id": int64(1), "author_id": int64(1)}}}
	ctx := observability.ContextWithGraphQLMetrics(context.Background(), metrics)
	ctx, loader := NewContext(ctx, Options{})
	for i := 1; i <= 3; i++ {
		loader.Load(ctx, postsByAuthor, ParentID{int64(i)}, f.fetch)
	}
	_, err = loader.Load(ctx, postsByAuthor, ParentID{int64(1)}, f.fetch)()
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	assert.Equal(t, int64(1), sumCounter(rm, "graphql.batch.flushes"))
	assert.Equal(t, int64(2), sumCounter(rm, "graphql.batch.queries_saved"))
}

func sumCounter(rm metricdata.ResourceMetrics, name string) int64 {
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}
