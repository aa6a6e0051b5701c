// Package batchgroup implements Batch Grouping & Rollup (C6): deciding
// which Batches can be merged into a single grouping-sets query, the
// bloat-based predicate optimisation pass, and distinct-count measure
// splitting.
package batchgroup

import (
	"sort"

	"github.com/CodeOnCoffee/mondrian-go/internal/olap"
)

// Measure is one requested aggregate measure.
type Measure struct {
	Name           string
	IsDistinctCount bool
	// SQLExpression identifies the underlying SQL aggregate expression for
	// distinct-count splitting; two measures with the same expression (e.g.
	// two different labels over COUNT(DISTINCT customer_id)) must be loaded
	// together, not split.
	SQLExpression string
}

// Batch is a bucket of CellRequests sharing an AggregationKey: they resolve
// via one SQL statement (absent grouping-sets fusion).
type Batch struct {
	Key      olap.AggregationKey
	Measures []Measure
	Requests []olap.CellRequest

	// ValueSets is the observed, per-column-bit-position set of requested
	// values; it seeds both SQL IN-list generation and bloat-ratio
	// predicate optimisation.
	ValueSets map[int]map[olap.Value]struct{}

	// Predicates is the per-column-bit-position axis predicate the loaded
	// segment should carry. It starts as a ValueSetPredicate mirroring
	// ValueSets; OptimizePredicates may collapse individual entries to
	// olap.LiteralTrue{} when a column's IN-list bloat is too high to be
	// worth keeping, which widens (never narrows) what the segment answers.
	Predicates map[int]olap.ColumnPredicate

	// ClosureColumns marks columns that belong to a parent-child closure
	// table in the cube; rollup across a closure column is unsound because
	// a closure's ALL-level member is not the sum of its children.
	ClosureColumns olap.BitKey

	// RollupAggregation identifies which rollup (e.g. SUM, MAX) this batch's
	// measures use; two batches can only merge if they agree.
	RollupAggregation string
}

// HasDistinctCountMeasure reports whether any measure in the batch is a
// distinct-count aggregate.
func (b *Batch) HasDistinctCountMeasure() bool {
	for _, m := range b.Measures {
		if m.IsDistinctCount {
			return true
		}
	}
	return false
}

// ConstrainsAllValuesOf reports whether the batch's value set for column
// col has full-domain cardinality, i.e. the batch does not actually
// restrict that column. cardinality is the column's raw domain size.
func (b *Batch) ConstrainsAllValuesOf(col int, cardinality int) bool {
	vs, ok := b.ValueSets[col]
	if !ok {
		return true // unconstrained altogether
	}
	return len(vs) == cardinality
}

// sameMeasures reports whether a and b request an identical measure list
// (by name, order-independent).
func sameMeasures(a, b []Measure) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, m := range a {
		counts[m.Name]++
	}
	for _, m := range b {
		counts[m.Name]--
	}
	for _, c := range counts {
		if c != 0 {
			return false
		}
	}
	return true
}

// CanBatch reports whether detail batch a can absorb summary batch b: a's
// grouping can serve b's rollup in the same grouping-sets query. All six
// conditions of the spec must hold.
func CanBatch(a, b *Batch, cardinality func(col int) int) bool {
	if a.Key.Star != b.Key.Star {
		return false
	}
	if !a.BitKey().IsSuperSetOf(b.BitKey()) {
		return false
	}
	if a.RollupAggregation != b.RollupAggregation {
		return false
	}
	if !sameMeasures(a.Measures, b.Measures) {
		return false
	}
	if a.HasDistinctCountMeasure() || b.HasDistinctCountMeasure() {
		return false
	}
	if !a.ClosureColumns.Equals(b.ClosureColumns) {
		return false
	}
	for _, col := range b.BitKey().Ordinals() {
		av, aok := a.ValueSets[col]
		bv, bok := b.ValueSets[col]
		if aok && bok {
			if !valueSetsEqual(av, bv) {
				return false
			}
		}
	}
	for _, col := range a.BitKey().Ordinals() {
		if contains(b.BitKey(), col) {
			continue
		}
		if !a.ConstrainsAllValuesOf(col, cardinality(col)) {
			return false
		}
	}
	return true
}

func contains(bk olap.BitKey, col int) bool { return bk.Get(col) }

func valueSetsEqual(a, b map[olap.Value]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for v := range a {
		if _, ok := b[v]; !ok {
			return false
		}
	}
	return true
}

// BitKey derives the batch's constrained-columns BitKey from its
// AggregationKey.
func (b *Batch) BitKey() olap.BitKey { return b.Key.BitKey }

// SortBatches orders batches deterministically: by column-count ascending,
// then by column names, then by value-set contents, so repeated
// evaluations over an empty cache issue byte-identical SQL (P4).
func SortBatches(batches []*Batch, columnName func(col int) string) []*Batch {
	out := append([]*Batch(nil), batches...)
	sort.Slice(out, func(i, j int) bool {
		bi, bj := out[i].BitKey(), out[j].BitKey()
		if bi.Cardinality() != bj.Cardinality() {
			return bi.Cardinality() < bj.Cardinality()
		}
		oi, oj := bi.Ordinals(), bj.Ordinals()
		for k := 0; k < len(oi) && k < len(oj); k++ {
			ni, nj := columnName(oi[k]), columnName(oj[k])
			if ni != nj {
				return ni < nj
			}
		}
		return out[i].Key.Canonical() < out[j].Key.Canonical()
	})
	return out
}
