package olap

import "errors"

// ErrUnsatisfiable marks a CellRequest that can be short-circuited: its
// slicer is self-contradictory and can never match a fact row.
var ErrUnsatisfiable = errors.New("olap: unsatisfiable cell request")

// CellRequest is a demand for a single measure value at a specific
// coordinate. It is immutable once constructed.
type CellRequest struct {
	Star              *Star
	Measure           string
	ConstrainedColumns BitKey
	ValuePerColumn    map[int]Value
	CompoundPredicates CompoundList

	unsatisfiable bool
}

// NewCellRequest builds a CellRequest, eagerly evaluating unsatisfiability:
// a request is unsatisfiable if any constrained column's compound-predicate
// clauses cannot possibly match the request's own per-column value.
func NewCellRequest(star *Star, measure string, values map[int]Value, preds CompoundList) CellRequest {
	req := CellRequest{
		Star:               star,
		Measure:            measure,
		ValuePerColumn:     values,
		CompoundPredicates: preds,
	}
	bk := NewBitKey()
	for col := range values {
		bk.Set(col)
	}
	req.ConstrainedColumns = bk

	if len(preds) > 0 && !preds.Evaluate(values) {
		req.unsatisfiable = true
	}
	return req
}

// Unsatisfiable reports whether this request can never match a fact row and
// should be short-circuited with the null sentinel rather than queued.
func (r CellRequest) Unsatisfiable() bool { return r.unsatisfiable }

// AggregationKey identifies the batch bucket a CellRequest falls into: all
// requests sharing a Star, a constrained-columns BitKey, and an equivalent
// compound-predicate list resolve via the same bulk query.
type AggregationKey struct {
	starKey   string
	bitKey    string
	predKey   string
	Star      *Star
	BitKey    BitKey
	Predicates CompoundList
}

// KeyOf derives the AggregationKey a CellRequest belongs to.
func KeyOf(r CellRequest) AggregationKey {
	return AggregationKey{
		starKey:    r.Star.Identity.String(),
		bitKey:     r.ConstrainedColumns.String(),
		predKey:    r.CompoundPredicates.String(),
		Star:       r.Star,
		BitKey:     r.ConstrainedColumns,
		Predicates: r.CompoundPredicates,
	}
}

// Equal reports structural equality, usable directly or via the comparable
// canonical form below as a map key.
func (k AggregationKey) Equal(other AggregationKey) bool {
	return k.Canonical() == other.Canonical()
}

// Canonical returns a comparable string uniquely identifying the bucket;
// AggregationKey itself embeds a *Star and is not a valid map key, so
// Batch maps are keyed by Canonical() with the struct retained as the value.
func (k AggregationKey) Canonical() string {
	return k.starKey + "|" + k.bitKey + "|" + k.predKey
}
