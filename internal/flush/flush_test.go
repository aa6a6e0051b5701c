package flush

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CodeOnCoffee/mondrian-go/internal/cacheworker"
	"github.com/CodeOnCoffee/mondrian-go/internal/olap"
	"github.com/CodeOnCoffee/mondrian-go/internal/segidx"
	"github.com/CodeOnCoffee/mondrian-go/internal/segment"
)

func flushStar() *olap.Star {
	s := olap.NewStar(olap.StarIdentity{SchemaName: "FoodMart", CubeName: "Sales", FactAlias: "sales_fact"})
	s.Column("year", 2)
	s.Column("state", 3)
	return s
}

// buildFullSegment builds a segment whose year axis spans {1997, 1998} and
// whose state axis spans {0, 1, 2}, fully populated, with no axis
// predicate narrower than TRUE.
func buildFullSegment(t *testing.T, star *olap.Star) (*segment.WithData, segment.Header) {
	t.Helper()
	yearOrd, _ := star.ColumnOrdinal("year")
	stateOrd, _ := star.ColumnOrdinal("state")
	h := segment.Header{
		Star:               star.Identity,
		Measure:            "unit_sales",
		FactAlias:          "sales_fact",
		ConstrainedColumns: olap.BitKeyOf(yearOrd, stateOrd),
		PredicateSummaries: []segment.PredicateSummary{
			{ColumnName: "year", Rendered: "TRUE"},
			{ColumnName: "state", Rendered: "TRUE"},
		},
		AxisPredicates: map[int]olap.ColumnPredicate{
			yearOrd:  olap.LiteralTrue{},
			stateOrd: olap.LiteralTrue{},
		},
	}
	shell := &segment.Segment{
		Header: h,
		Axes: []segment.Axis{
			{Column: olap.Column{Name: "year", BitPosition: yearOrd}, Predicate: olap.LiteralTrue{}},
			{Column: olap.Column{Name: "state", BitPosition: stateOrd}, Predicate: olap.LiteralTrue{}},
		},
	}
	var cells []segment.Cell
	for y := 0; y < 2; y++ {
		for s := 0; s < 3; s++ {
			cells = append(cells, segment.Cell{Key: segment.CellKey{y, s}, Value: olap.IntValue(int64(y*10 + s))})
		}
	}
	body := segment.Body{
		AxisKeys: [][]olap.Value{
			{olap.IntValue(1997), olap.IntValue(1998)},
			{olap.IntValue(0), olap.IntValue(1), olap.IntValue(2)},
		},
		Cells: cells,
	}
	wd, err := segment.AddData(shell, body)
	require.NoError(t, err)
	return wd, h
}

func findCell(body segment.Body, yearIdx, stateIdx int) (olap.Value, bool) {
	for _, c := range body.Cells {
		if c.Key[0] == yearIdx && c.Key[1] == stateIdx {
			return c.Value, true
		}
	}
	return olap.Null, false
}

// TestFlushTightensAxisAwayFromFlushedValue is property P5: after a flush
// targeting year=1997, no surviving segment's body retains a 1997 axis key.
func TestFlushTightensAxisAwayFromFlushedValue(t *testing.T) {
	star := flushStar()
	yearOrd, _ := star.ColumnOrdinal("year")

	wd, h := buildFullSegment(t, star)
	idx := segidx.New()
	idx.Register(h)
	pool := cacheworker.New(10)
	require.NoError(t, pool.Put(context.Background(), h, segment.ToBody(wd)))

	region := NewRegion().Column(yearOrd, olap.NewValueSet(olap.IntValue(1997))).Build()
	stats, err := Flush(context.Background(), idx, pool, region)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Scanned)
	require.Equal(t, 1, stats.Replaced)
	require.Equal(t, 0, stats.Discarded)
	require.Equal(t, 0, stats.Unchanged)

	all := idx.All()
	require.Len(t, all, 1, "the flushed header is unregistered, replaced by exactly one tightened header")
	newHeader := all[0]
	require.NotEqual(t, h.Fingerprint(), newHeader.Fingerprint())

	body, ok, err := pool.Get(context.Background(), newHeader)
	require.NoError(t, err)
	require.True(t, ok)

	for _, v := range body.AxisKeys[0] {
		require.False(t, v.Equal(olap.IntValue(1997)), "1997 must not survive on the year axis")
	}
	require.Len(t, body.AxisKeys[0], 1)
	require.True(t, body.AxisKeys[0][0].Equal(olap.IntValue(1998)))

	// every surviving cell keeps its original value, reindexed onto the
	// compacted year axis (ordinal 0 is now 1998).
	v, ok := findCell(body, 0, 1)
	require.True(t, ok)
	require.Equal(t, float64(11), v.Float64()) // year=1998(y=1),state=1 -> 1*10+1=11

	// the original header's body must have been removed from the pool.
	_, ok, err = pool.Get(context.Background(), h)
	require.NoError(t, err)
	require.False(t, ok)
}

// TestFlushDiscardsWhenBitKeyDisjoint verifies step 1: a region touching
// columns the segment never constrained discards the segment outright.
func TestFlushDiscardsWhenBitKeyDisjoint(t *testing.T) {
	star := flushStar()
	yearOrd, _ := star.ColumnOrdinal("year")
	stateOrd, _ := star.ColumnOrdinal("state")

	h := segment.Header{
		Star:               star.Identity,
		Measure:            "unit_sales",
		FactAlias:          "sales_fact",
		ConstrainedColumns: olap.BitKeyOf(yearOrd),
		PredicateSummaries: []segment.PredicateSummary{{ColumnName: "year", Rendered: "TRUE"}},
		AxisPredicates:     map[int]olap.ColumnPredicate{yearOrd: olap.LiteralTrue{}},
	}
	idx := segidx.New()
	idx.Register(h)
	pool := cacheworker.New(10)
	require.NoError(t, pool.Put(context.Background(), h, segment.Body{
		AxisKeys: [][]olap.Value{{olap.IntValue(1997)}},
		Cells:    []segment.Cell{{Key: segment.CellKey{0}, Value: olap.IntValue(1)}},
	}))

	region := NewRegion().Column(stateOrd, olap.NewValueSet(olap.IntValue(0))).Build()
	stats, err := Flush(context.Background(), idx, pool, region)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Discarded)
	require.Len(t, idx.All(), 0)
}

// TestFlushLeavesUnrelatedValuesUnchanged verifies a region whose flush
// predicate cannot match the segment's load-time predicate at all leaves
// the segment registered as-is.
func TestFlushLeavesUnrelatedValuesUnchanged(t *testing.T) {
	star := flushStar()
	yearOrd, _ := star.ColumnOrdinal("year")

	h := segment.Header{
		Star:               star.Identity,
		Measure:            "unit_sales",
		FactAlias:          "sales_fact",
		ConstrainedColumns: olap.BitKeyOf(yearOrd),
		PredicateSummaries: []segment.PredicateSummary{{ColumnName: "year", Rendered: "1997"}},
		AxisPredicates:     map[int]olap.ColumnPredicate{yearOrd: olap.NewValueSet(olap.IntValue(1997))},
	}
	idx := segidx.New()
	idx.Register(h)
	pool := cacheworker.New(10)
	require.NoError(t, pool.Put(context.Background(), h, segment.Body{
		AxisKeys: [][]olap.Value{{olap.IntValue(1997)}},
		Cells:    []segment.Cell{{Key: segment.CellKey{0}, Value: olap.IntValue(1)}},
	}))

	region := NewRegion().Column(yearOrd, olap.NewValueSet(olap.IntValue(1998))).Build()
	stats, err := Flush(context.Background(), idx, pool, region)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Unchanged)
	require.Len(t, idx.All(), 1)
}
