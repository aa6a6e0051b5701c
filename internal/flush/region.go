// Package flush implements Cache Control (C8): region-precise invalidation
// of registered segments with axis tightening, per spec.md §4.8.
package flush

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/CodeOnCoffee/mondrian-go/internal/olap"
)

// Region describes a flush target: a bitmap of columns, a flush predicate
// per constrained column, and zero or more multi-column predicates that
// cut across several columns at once (the cases §4.8's ValuePruner step
// exists to handle).
type Region struct {
	BitKey                olap.BitKey
	ColumnPredicates      map[int]olap.ColumnPredicate
	MultiColumnPredicates olap.CompoundList
}

// predicateFor returns the region's flush predicate for column, or
// LiteralTrue if the region's BitKey marks the column but no explicit
// predicate was given (treated as "flush every value of this column").
func (r Region) predicateFor(col int) olap.ColumnPredicate {
	if p, ok := r.ColumnPredicates[col]; ok {
		return p
	}
	return olap.LiteralTrue{}
}

// excludedRegions renders the region as the CompoundList added to a
// sub-segment's ExcludedRegions: the per-column conjunction (if any column
// predicates were given) plus each multi-column clause verbatim, since a
// multi-column predicate is already a conjunction over several columns.
func (r Region) excludedRegions() olap.CompoundList {
	var out olap.CompoundList
	if len(r.ColumnPredicates) > 0 {
		cp := olap.NewCompoundPredicate()
		for col, pred := range r.ColumnPredicates {
			cp = cp.With(col, pred)
		}
		out = append(out, cp)
	}
	out = append(out, r.MultiColumnPredicates...)
	return out
}

// RegionBuilder fluently assembles a Region (spec.md §6: "Region is built
// from a fluent description of column constraints").
type RegionBuilder struct {
	bitKey   olap.BitKey
	colPreds map[int]olap.ColumnPredicate
	multi    olap.CompoundList
}

// NewRegion starts an empty RegionBuilder.
func NewRegion() *RegionBuilder {
	return &RegionBuilder{bitKey: olap.NewBitKey(), colPreds: make(map[int]olap.ColumnPredicate)}
}

// Column constrains one column by bit position to a flush predicate: cells
// where pred evaluates true on that column are flushed.
func (b *RegionBuilder) Column(bitPos int, pred olap.ColumnPredicate) *RegionBuilder {
	b.bitKey.Set(bitPos)
	b.colPreds[bitPos] = pred
	return b
}

// MultiColumn adds a cross-column flush predicate; every column it
// constrains is folded into the region's BitKey.
func (b *RegionBuilder) MultiColumn(pred olap.CompoundPredicate) *RegionBuilder {
	for _, col := range pred.Columns() {
		b.bitKey.Set(col)
	}
	b.multi = append(b.multi, pred)
	return b
}

// Build returns the assembled, independent Region.
func (b *RegionBuilder) Build() Region {
	cols := make(map[int]olap.ColumnPredicate, len(b.colPreds))
	for k, v := range b.colPreds {
		cols[k] = v
	}
	return Region{
		BitKey:                b.bitKey.Clone(),
		ColumnPredicates:      cols,
		MultiColumnPredicates: append(olap.CompoundList{}, b.multi...),
	}
}

// keepMask is a per-axis bitmap of surviving key ordinals, or nil meaning
// "every key survives" (the column is untouched by the region).
type keepMask = *roaring.Bitmap

func fullMask(n int) *roaring.Bitmap {
	bm := roaring.New()
	for i := 0; i < n; i++ {
		bm.Add(uint32(i))
	}
	return bm
}
