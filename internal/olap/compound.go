package olap

import (
	"sort"
	"strings"
)

// CompoundPredicate is a conjunction of column predicates over a Star's
// columns, addressed by bit position. A column absent from ByColumn is
// unconstrained (equivalent to LiteralTrue).
type CompoundPredicate struct {
	ByColumn map[int]ColumnPredicate
}

func NewCompoundPredicate() CompoundPredicate {
	return CompoundPredicate{ByColumn: make(map[int]ColumnPredicate)}
}

// With returns a copy of p with column col constrained by pred.
func (p CompoundPredicate) With(col int, pred ColumnPredicate) CompoundPredicate {
	out := CompoundPredicate{ByColumn: make(map[int]ColumnPredicate, len(p.ByColumn)+1)}
	for k, v := range p.ByColumn {
		out.ByColumn[k] = v
	}
	out.ByColumn[col] = pred
	return out
}

func (p CompoundPredicate) predicateFor(col int) ColumnPredicate {
	if pr, ok := p.ByColumn[col]; ok {
		return pr
	}
	return LiteralTrue{}
}

// Evaluate reports whether the tuple (column bit position -> value)
// satisfies every constrained column.
func (p CompoundPredicate) Evaluate(tuple map[int]Value) bool {
	for col, pred := range p.ByColumn {
		v, ok := tuple[col]
		if !ok {
			continue
		}
		if !pred.Evaluate(v) {
			return false
		}
	}
	return true
}

// MightIntersect reports whether there could exist a tuple satisfying both
// p and other: every shared column's predicates must be able to intersect.
func (p CompoundPredicate) MightIntersect(other CompoundPredicate) bool {
	cols := make(map[int]struct{}, len(p.ByColumn)+len(other.ByColumn))
	for c := range p.ByColumn {
		cols[c] = struct{}{}
	}
	for c := range other.ByColumn {
		cols[c] = struct{}{}
	}
	for c := range cols {
		if !p.predicateFor(c).MightIntersect(other.predicateFor(c)) {
			return false
		}
	}
	return true
}

// Equivalent reports structural equality, column by column.
func (p CompoundPredicate) Equivalent(other CompoundPredicate) bool {
	cols := make(map[int]struct{}, len(p.ByColumn)+len(other.ByColumn))
	for c := range p.ByColumn {
		cols[c] = struct{}{}
	}
	for c := range other.ByColumn {
		cols[c] = struct{}{}
	}
	for c := range cols {
		if !p.predicateFor(c).EqualConstraint(other.predicateFor(c)) {
			return false
		}
	}
	return true
}

// Columns returns the sorted bit positions this compound predicate
// constrains.
func (p CompoundPredicate) Columns() []int {
	out := make([]int, 0, len(p.ByColumn))
	for c := range p.ByColumn {
		out = append(out, c)
	}
	sort.Ints(out)
	return out
}

func (p CompoundPredicate) String() string {
	cols := p.Columns()
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = p.ByColumn[c].String()
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

// CompoundList is a disjunction of CompoundPredicates, e.g.
// "(year=1997 AND quarter=Q2) OR (year=1998 AND quarter=Q1)".
type CompoundList []CompoundPredicate

// Evaluate reports whether any clause accepts the tuple. An empty list means
// unconstrained (TRUE).
func (l CompoundList) Evaluate(tuple map[int]Value) bool {
	if len(l) == 0 {
		return true
	}
	for _, c := range l {
		if c.Evaluate(tuple) {
			return true
		}
	}
	return false
}

// MightIntersect reports whether any clause of l might intersect any clause
// of other.
func (l CompoundList) MightIntersect(other CompoundList) bool {
	if len(l) == 0 || len(other) == 0 {
		return true
	}
	for _, a := range l {
		for _, b := range other {
			if a.MightIntersect(b) {
				return true
			}
		}
	}
	return false
}

// Equivalent reports whether l and other are equal as sets of clauses,
// independent of order.
func (l CompoundList) Equivalent(other CompoundList) bool {
	if len(l) != len(other) {
		return false
	}
	used := make([]bool, len(other))
	for _, c := range l {
		found := false
		for i, o := range other {
			if used[i] {
				continue
			}
			if c.Equivalent(o) {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ImpliedBy reports whether every tuple satisfying other also satisfies l;
// since clauses are opaque predicates rather than enumerable sets in the
// general case, this is decided conservatively via equivalence plus the
// TRUE/empty special cases used throughout the loader and the index.
func (l CompoundList) ImpliedBy(other CompoundList) bool {
	if len(l) == 0 {
		return true
	}
	return l.Equivalent(other)
}

func (l CompoundList) String() string {
	if len(l) == 0 {
		return "TRUE"
	}
	parts := make([]string, len(l))
	for i, c := range l {
		parts[i] = c.String()
	}
	return strings.Join(parts, " OR ")
}
