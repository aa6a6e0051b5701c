package cachemgr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CodeOnCoffee/mondrian-go/internal/cacheworker"
	"github.com/CodeOnCoffee/mondrian-go/internal/olap"
	"github.com/CodeOnCoffee/mondrian-go/internal/segidx"
	"github.com/CodeOnCoffee/mondrian-go/internal/segment"
)

func testHeader() segment.Header {
	return segment.Header{
		Star:               olap.StarIdentity{SchemaName: "FoodMart", CubeName: "Sales", FactAlias: "sales_fact"},
		Measure:            "unit_sales",
		FactAlias:          "sales_fact",
		ConstrainedColumns: olap.BitKeyOf(0),
		PredicateSummaries: []segment.PredicateSummary{{ColumnName: "year", Rendered: "TRUE"}},
		AxisPredicates:     map[int]olap.ColumnPredicate{0: olap.LiteralTrue{}},
	}
}

func testBody() segment.Body {
	return segment.Body{
		AxisKeys: [][]olap.Value{{olap.IntValue(1997)}},
		Cells:    []segment.Cell{{Key: segment.CellKey{0}, Value: olap.IntValue(10)}},
	}
}

func TestRegisterSegmentThenLocate(t *testing.T) {
	pool := cacheworker.New(10)
	mgr := New(pool)
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })

	h := testHeader()
	shell := &segment.Segment{
		Header: h,
		Axes:   []segment.Axis{{Column: olap.Column{Name: "year", BitPosition: 0}, Predicate: olap.LiteralTrue{}}},
	}
	wd, err := segment.AddData(shell, testBody())
	require.NoError(t, err)

	require.NoError(t, mgr.RegisterSegment(context.Background(), wd))

	all, err := mgr.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, h.Fingerprint(), all[0].Fingerprint())
}

// TestExecuteRecoversCommandPanic exercises the cachemgr's panic-recovery
// path: a command that panics must surface as an error from Execute, with
// the executor goroutine surviving to serve later commands.
func TestExecuteRecoversCommandPanic(t *testing.T) {
	pool := cacheworker.New(10)
	mgr := New(pool)
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })

	err := mgr.Execute(context.Background(), func(*segidx.Index) {
		panic("boom")
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")

	// the executor goroutine must still be alive and serving commands.
	ran := false
	require.NoError(t, mgr.Execute(context.Background(), func(*segidx.Index) { ran = true }))
	require.True(t, ran)
}

// TestExecuteAfterShutdownReturnsErrShutdown is the fix for a send-on-a-
// closed-channel panic: once Shutdown has returned, every later Execute
// (and everything built on it) must fail gracefully with ErrShutdown
// instead of crashing the caller's goroutine.
func TestExecuteAfterShutdownReturnsErrShutdown(t *testing.T) {
	pool := cacheworker.New(10)
	mgr := New(pool)
	require.NoError(t, mgr.Shutdown(context.Background()))

	err := mgr.Execute(context.Background(), func(*segidx.Index) {})
	require.ErrorIs(t, err, ErrShutdown)

	_, err = mgr.All(context.Background())
	require.ErrorIs(t, err, ErrShutdown)

	h := testHeader()
	require.ErrorIs(t, mgr.ExternalSegmentCreated(context.Background(), h), ErrShutdown)
	require.ErrorIs(t, mgr.ExternalSegmentDeleted(context.Background(), h), ErrShutdown)

	// Shutdown itself stays idempotent.
	require.NoError(t, mgr.Shutdown(context.Background()))
}

// TestExternalSegmentCreatedAndDeleted exercises the Manager's named
// external-announcement operations directly, routed through the same
// command path as a local RegisterSegment/Unregister.
func TestExternalSegmentCreatedAndDeleted(t *testing.T) {
	pool := cacheworker.New(10)
	mgr := New(pool)
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })

	h := testHeader()
	require.NoError(t, mgr.ExternalSegmentCreated(context.Background(), h))

	all, err := mgr.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, h.Fingerprint(), all[0].Fingerprint())

	require.NoError(t, mgr.ExternalSegmentDeleted(context.Background(), h))
	all, err = mgr.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 0)
}

func TestUnregisterRemovesFromIndexAndPool(t *testing.T) {
	pool := cacheworker.New(10)
	mgr := New(pool)
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })

	h := testHeader()
	shell := &segment.Segment{
		Header: h,
		Axes:   []segment.Axis{{Column: olap.Column{Name: "year", BitPosition: 0}, Predicate: olap.LiteralTrue{}}},
	}
	wd, err := segment.AddData(shell, testBody())
	require.NoError(t, err)
	require.NoError(t, mgr.RegisterSegment(context.Background(), wd))

	require.NoError(t, mgr.Unregister(context.Background(), h))

	all, err := mgr.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 0)

	_, ok, err := pool.Get(context.Background(), h)
	require.NoError(t, err)
	require.False(t, ok)
}
