package segidx

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CodeOnCoffee/mondrian-go/internal/olap"
	"github.com/CodeOnCoffee/mondrian-go/internal/segment"
)

func star() olap.StarIdentity {
	return olap.StarIdentity{SchemaName: "FoodMart", CubeName: "Sales", FactAlias: "sales_fact"}
}

func header(bitPositions []int, axisPreds map[int]olap.ColumnPredicate) segment.Header {
	var summaries []segment.PredicateSummary
	for _, pos := range bitPositions {
		rendered := "TRUE"
		if axisPreds != nil {
			if p, ok := axisPreds[pos]; ok {
				rendered = p.String()
			}
		}
		summaries = append(summaries, segment.PredicateSummary{ColumnName: columnName(pos), Rendered: rendered})
	}
	return segment.Header{
		Star:               star(),
		Measure:            "unit_sales",
		FactAlias:          "sales_fact",
		ConstrainedColumns: olap.BitKeyOf(bitPositions...),
		PredicateSummaries: summaries,
		AxisPredicates:     axisPreds,
	}
}

func columnName(pos int) string {
	switch pos {
	case 0:
		return "year"
	case 1:
		return "state"
	default:
		return "col"
	}
}

func TestRegisterUnregister(t *testing.T) {
	ix := New()
	h := header([]int{0}, map[int]olap.ColumnPredicate{0: olap.LiteralTrue{}})
	ix.Register(h)
	require.Len(t, ix.All(), 1)
	ix.Unregister(h)
	require.Len(t, ix.All(), 0)
}

func TestLocateFiltersByBitKeyAndPredicate(t *testing.T) {
	ix := New()
	yearOnly := header([]int{0}, map[int]olap.ColumnPredicate{0: olap.NewValueSet(olap.IntValue(1997))})
	ix.Register(yearOnly)

	got := Locate(ix, star(), "sales_fact", olap.BitKeyOf(0), map[int]olap.Value{0: olap.IntValue(1997)}, nil)
	require.Len(t, got, 1)

	got = Locate(ix, star(), "sales_fact", olap.BitKeyOf(0), map[int]olap.Value{0: olap.IntValue(1998)}, nil)
	require.Len(t, got, 0, "a segment whose axis predicate rejects the request's value must not be returned")

	got = Locate(ix, star(), "sales_fact", olap.BitKeyOf(0, 1), map[int]olap.Value{0: olap.IntValue(1997), 1: olap.IntValue(0)}, nil)
	require.Len(t, got, 0, "a mismatched bit key must never be returned")
}

func TestLocateExternalHeaderAcceptsPermissively(t *testing.T) {
	ix := New()
	external := header([]int{0}, nil) // AxisPredicates nil, as for a wire-recovered header
	ix.Register(external)

	got := Locate(ix, star(), "sales_fact", olap.BitKeyOf(0), map[int]olap.Value{0: olap.IntValue(2020)}, nil)
	require.Len(t, got, 1)
}

func TestLocateOrdersSmallestSliceFirst(t *testing.T) {
	ix := New()
	wide := header([]int{0, 1}, map[int]olap.ColumnPredicate{
		0: olap.LiteralTrue{}, 1: olap.LiteralTrue{},
	})
	ix.Register(wide)

	narrow := header([]int{0, 1}, map[int]olap.ColumnPredicate{
		0: olap.NewValueSet(olap.IntValue(1997)), 1: olap.LiteralTrue{},
	})
	ix.Register(narrow)

	got := Locate(ix, star(), "sales_fact", olap.BitKeyOf(0, 1),
		map[int]olap.Value{0: olap.IntValue(1997), 1: olap.IntValue(0)}, nil)
	require.Len(t, got, 2)
	// both match the same cardinality (two constrained columns); ordering
	// then falls back to domain size, and narrow's year axis is a finite
	// IN-list where wide's is unconstrained TRUE, so narrow sorts first.
	require.Equal(t, narrow.Fingerprint(), got[0].Fingerprint())
}

func TestLocateRespectsExcludedRegions(t *testing.T) {
	ix := New()
	h := header([]int{0}, map[int]olap.ColumnPredicate{0: olap.LiteralTrue{}})
	h.ExcludedRegions = olap.CompoundList{
		olap.NewCompoundPredicate().With(0, olap.NewValueSet(olap.IntValue(1997))),
	}
	ix.Register(h)

	got := Locate(ix, star(), "sales_fact", olap.BitKeyOf(0), map[int]olap.Value{0: olap.IntValue(1997)}, nil)
	require.Len(t, got, 0, "an excluded region must shadow a matching request")

	got = Locate(ix, star(), "sales_fact", olap.BitKeyOf(0), map[int]olap.Value{0: olap.IntValue(1998)}, nil)
	require.Len(t, got, 1)
}
