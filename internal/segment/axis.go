package segment

import (
	"sort"

	"github.com/CodeOnCoffee/mondrian-go/internal/olap"
)

// Axis describes one column of a Segment: the column itself, the predicate
// that was in force at load time, and the sorted array of keys actually
// seen in the fact-table result. Invariant: every cell's column-i
// coordinate is an index into Keys.
type Axis struct {
	Column    olap.Column
	Predicate olap.ColumnPredicate
	Keys      []olap.Value
}

// NewAxis builds an axis from an unsorted, possibly duplicated set of
// observed values, sorting and deduplicating by their Float64 ordering
// (stable and total for Int/Decimal/Double; member predicates' Value is
// compared the same way).
func NewAxis(col olap.Column, pred olap.ColumnPredicate, observed []olap.Value) Axis {
	seen := make(map[olap.Value]struct{}, len(observed))
	keys := make([]olap.Value, 0, len(observed))
	for _, v := range observed {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		keys = append(keys, v)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Float64() < keys[j].Float64() })
	return Axis{Column: col, Predicate: pred, Keys: keys}
}

// IndexOf returns the ordinal of v within the axis, or -1.
func (a Axis) IndexOf(v olap.Value) int {
	for i, k := range a.Keys {
		if k.Equal(v) {
			return i
		}
	}
	return -1
}

func (a Axis) Len() int { return len(a.Keys) }
