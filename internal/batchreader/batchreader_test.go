package batchreader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CodeOnCoffee/mondrian-go/internal/batchgroup"
	"github.com/CodeOnCoffee/mondrian-go/internal/cachemgr"
	"github.com/CodeOnCoffee/mondrian-go/internal/cacheworker"
	"github.com/CodeOnCoffee/mondrian-go/internal/loader"
	"github.com/CodeOnCoffee/mondrian-go/internal/olap"
	"github.com/CodeOnCoffee/mondrian-go/internal/sqlexec/memexec"
)

func integrationStar() *olap.Star {
	s := olap.NewStar(olap.StarIdentity{SchemaName: "FoodMart", CubeName: "Sales", FactAlias: "sales_fact"})
	s.Column("year", 2)
	s.Column("state", 3)
	return s
}

func integrationTable() *memexec.Table {
	return &memexec.Table{
		Columns: []string{"year", "state", "unit_sales"},
		Rows: []map[string]olap.Value{
			{"year": olap.IntValue(1997), "state": olap.IntValue(0), "unit_sales": olap.IntValue(10)},
			{"year": olap.IntValue(1997), "state": olap.IntValue(1), "unit_sales": olap.IntValue(20)},
			{"year": olap.IntValue(1998), "state": olap.IntValue(0), "unit_sales": olap.IntValue(5)},
		},
	}
}

func newHarness(t *testing.T) (*olap.Star, *cachemgr.Manager, *loader.Loader) {
	t.Helper()
	star := integrationStar()
	exec := memexec.New()
	exec.RegisterTable("sales_fact", integrationTable())
	pool := cacheworker.New(10)
	mgr := cachemgr.New(pool)
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })
	ld := loader.New(exec, 0, loader.NoAggregates{}, batchgroup.StandardDialect{})
	return star, mgr, ld
}

func cellReq(star *olap.Star, year, state int64) olap.CellRequest {
	yearOrd, _ := star.ColumnOrdinal("year")
	stateOrd, _ := star.ColumnOrdinal("state")
	return olap.NewCellRequest(star, "unit_sales",
		map[int]olap.Value{yearOrd: olap.IntValue(year), stateOrd: olap.IntValue(state)}, nil)
}

// TestLoadAggregationsResolvesGroundTruth is scenario 1 (spec.md §8): two
// distinct cells queued on one Reader resolve, after a single
// LoadAggregations call, to the direct-SQL ground truth (property P2).
func TestLoadAggregationsResolvesGroundTruth(t *testing.T) {
	star, mgr, ld := newHarness(t)
	r := New(mgr, ld, Options{FactTable: "sales_fact"})
	ctx := context.Background()

	f1, err := r.Get(ctx, cellReq(star, 1997, 0))
	require.NoError(t, err)
	f2, err := r.Get(ctx, cellReq(star, 1997, 1))
	require.NoError(t, err)

	require.NoError(t, r.LoadAggregations(ctx))

	v1, err := f1.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, float64(10), v1.Float64())

	v2, err := f2.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, float64(20), v2.Float64())
}

// TestDuplicateRequestsShareOneFuture is scenario 2: two Gets for an
// identical CellRequest before a LoadAggregations call return the same
// Future, so the fact query underlying them runs exactly once.
func TestDuplicateRequestsShareOneFuture(t *testing.T) {
	star, mgr, ld := newHarness(t)
	r := New(mgr, ld, Options{FactTable: "sales_fact"})
	ctx := context.Background()

	f1, err := r.Get(ctx, cellReq(star, 1997, 0))
	require.NoError(t, err)
	f2, err := r.Get(ctx, cellReq(star, 1997, 0))
	require.NoError(t, err)
	require.Same(t, f1, f2)
}

// TestUnsatisfiableRequestShortCircuits is scenario 3: a CellRequest whose
// compound predicate contradicts its own coordinate resolves immediately to
// the null sentinel without ever touching the loader.
func TestUnsatisfiableRequestShortCircuits(t *testing.T) {
	star, mgr, ld := newHarness(t)
	r := New(mgr, ld, Options{FactTable: "sales_fact"})
	ctx := context.Background()
	yearOrd, _ := star.ColumnOrdinal("year")

	req := olap.NewCellRequest(star, "unit_sales", map[int]olap.Value{yearOrd: olap.IntValue(1997)},
		olap.CompoundList{olap.NewCompoundPredicate().With(yearOrd, olap.NewValueSet(olap.IntValue(1998)))})
	require.True(t, req.Unsatisfiable())

	f, err := r.Get(ctx, req)
	require.NoError(t, err)
	v, err := f.Get(ctx)
	require.NoError(t, err)
	require.True(t, v.IsNull())
	require.False(t, r.dirty(), "an unsatisfiable request must never be queued")
}

// TestSecondReaderGetsIndexHit is scenario 4: once a segment is registered
// in the Cache Manager by one Reader's load, a second Reader against the
// same Manager answers an already-covered cell directly from the index,
// without queuing anything.
func TestSecondReaderGetsIndexHit(t *testing.T) {
	star, mgr, ld := newHarness(t)
	ctx := context.Background()

	first := New(mgr, ld, Options{FactTable: "sales_fact"})
	_, err := first.Get(ctx, cellReq(star, 1997, 0))
	require.NoError(t, err)
	_, err = first.Get(ctx, cellReq(star, 1997, 1))
	require.NoError(t, err)
	require.NoError(t, first.LoadAggregations(ctx))

	second := New(mgr, ld, Options{FactTable: "sales_fact"})
	f, err := second.Get(ctx, cellReq(star, 1997, 0))
	require.NoError(t, err)
	require.False(t, second.dirty(), "an index hit must not queue a pending request")

	v, err := f.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, float64(10), v.Float64())
}

// TestQuantumExceededReturnsError is scenario 5: once the pending queue
// reaches the configured quantum, a brand-new distinct request is rejected
// until the caller flushes with LoadAggregations.
func TestQuantumExceededReturnsError(t *testing.T) {
	star, mgr, ld := newHarness(t)
	r := New(mgr, ld, Options{FactTable: "sales_fact", Quantum: 1})
	ctx := context.Background()

	_, err := r.Get(ctx, cellReq(star, 1997, 0))
	require.NoError(t, err)

	_, err = r.Get(ctx, cellReq(star, 1997, 1))
	require.ErrorIs(t, err, ErrCellRequestQuantumExceeded)

	require.NoError(t, r.LoadAggregations(ctx))
	_, err = r.Get(ctx, cellReq(star, 1997, 1))
	require.NoError(t, err, "the quantum resets once the queue is flushed")
}

// TestLoadAggregationsIsDeterministic is property P4: two independent
// Readers over equivalent empty-cache requests must resolve to the same
// values (byte-identical SQL would be rendered for the same batch set).
func TestLoadAggregationsIsDeterministic(t *testing.T) {
	star, mgr1, ld1 := newHarness(t)
	_, mgr2, ld2 := newHarness(t)
	ctx := context.Background()

	r1 := New(mgr1, ld1, Options{FactTable: "sales_fact"})
	r2 := New(mgr2, ld2, Options{FactTable: "sales_fact"})

	f1, err := r1.Get(ctx, cellReq(star, 1998, 0))
	require.NoError(t, err)
	f2, err := r2.Get(ctx, cellReq(star, 1998, 0))
	require.NoError(t, err)
	require.NoError(t, r1.LoadAggregations(ctx))
	require.NoError(t, r2.LoadAggregations(ctx))

	v1, err := f1.Get(ctx)
	require.NoError(t, err)
	v2, err := f2.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, v1.Float64(), v2.Float64())
}
