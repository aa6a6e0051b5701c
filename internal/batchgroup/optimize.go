package batchgroup

import (
	"sort"

	"github.com/CodeOnCoffee/mondrian-go/internal/olap"
)

// CardinalityOracle reports a column's raw domain size, used by
// OptimizePredicates to rank bloat.
type CardinalityOracle func(col int) int

// ColumnConstraint is one column's IN-list constraint candidate for
// OptimizePredicates.
type ColumnConstraint struct {
	Column int
	Values map[olap.Value]struct{}
}

// bloat is the fraction of a column's domain the constraint actually
// covers; bloat near 1 means the IN-list buys little selectivity over
// just scanning the whole column.
func bloat(c ColumnConstraint, cardinality CardinalityOracle) float64 {
	dom := cardinality(c.Column)
	if dom <= 0 {
		return 1
	}
	return float64(len(c.Values)) / float64(dom)
}

// OptimizePredicates collapses constraints to TRUE (removes them from the
// returned list) starting from the least selective (highest bloat), until
// the product of the remaining constraints' bloats falls at or under
// limit. A constraint whose IN-list exceeds maxConstraints entries is
// dropped unconditionally, before bloat is even considered. The last
// surviving constraint is never dropped even if the product is still over
// limit: a grouping set needs at least one real predicate to stay
// distinguishable from its parent rollup.
func OptimizePredicates(constraints []ColumnConstraint, cardinality CardinalityOracle, maxConstraints int, limit float64) []ColumnConstraint {
	kept := make([]ColumnConstraint, 0, len(constraints))
	for _, c := range constraints {
		if maxConstraints > 0 && len(c.Values) > maxConstraints {
			continue
		}
		kept = append(kept, c)
	}

	sort.Slice(kept, func(i, j int) bool {
		return bloat(kept[i], cardinality) > bloat(kept[j], cardinality)
	})

	product := 1.0
	for _, c := range kept {
		product *= bloat(c, cardinality)
	}

	for len(kept) > 1 && product > limit {
		dropped := kept[0]
		kept = kept[1:]
		b := bloat(dropped, cardinality)
		if b > 0 {
			product /= b
		}
	}
	return kept
}
