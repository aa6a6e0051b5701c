package segment

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/CodeOnCoffee/mondrian-go/internal/olap"
)

// CorruptedSegmentError is returned by AddData when a body's cell keys do
// not fit the axes a Segment shell was reconstructed with.
type CorruptedSegmentError struct {
	Reason string
}

func (e *CorruptedSegmentError) Error() string {
	return fmt.Sprintf("segment: corrupted segment: %s", e.Reason)
}

// Segment is the axis/predicate shell of a cached aggregation, without
// data. No Segment is ever mutated after registration: flush and eviction
// always produce a new Segment rather than updating one in place.
type Segment struct {
	Header Header
	Axes   []Axis
}

// ToSegment reconstructs a Segment shell from a header plus the concrete
// Star/columns/measure it addresses. The caller (the Segment Loader) is
// responsible for having already built per-axis key arrays from the fact
// query result; ToSegment itself only establishes identity and predicates.
func ToSegment(header Header, star *olap.Star, bitKey olap.BitKey, columns []olap.Column, measure string, preds olap.CompoundList) (*Segment, error) {
	if header.Measure != measure {
		return nil, &CorruptedSegmentError{Reason: "header/measure mismatch"}
	}
	axes := make([]Axis, len(columns))
	for i, col := range columns {
		var pred olap.ColumnPredicate = olap.LiteralTrue{}
		for _, s := range header.PredicateSummaries {
			if s.ColumnName == col.Name {
				// the summary is a rendered string for fingerprinting/logging
				// only; the actual predicate object is supplied by the caller
				// via WithAxisPredicate below when available.
				_ = s
			}
		}
		axes[i] = Axis{Column: col, Predicate: pred}
	}
	return &Segment{Header: header, Axes: axes}, nil
}

// WithAxisPredicate replaces axis i's predicate; used right after ToSegment
// by callers that hold the live ColumnPredicate (headers only carry a
// rendered summary).
func (s *Segment) WithAxisPredicate(i int, pred olap.ColumnPredicate) {
	s.Axes[i].Predicate = pred
}

// Cell is one populated (key, value) pair hydrated from a fact query row.
type Cell struct {
	Key   CellKey
	Value olap.Value
}

// Body is the raw hydration input for AddData: per-axis observed keys plus
// the populated cells.
type Body struct {
	AxisKeys [][]olap.Value
	Cells    []Cell
}

// WithData is a Segment plus its populated Dataset.
type WithData struct {
	*Segment
	Data Dataset
}

// AddData attaches a dataset to a Segment shell, verifying axis/key
// consistency cell by cell: every stored cell key must fall within range
// on each axis, and the axis' load-time predicate must accept the key's
// value. A mismatch returns a *CorruptedSegmentError.
func AddData(seg *Segment, body Body) (*WithData, error) {
	axes := make([]Axis, len(seg.Axes))
	copy(axes, seg.Axes)
	for i, keys := range body.AxisKeys {
		if i >= len(axes) {
			return nil, &CorruptedSegmentError{Reason: "body has more axes than segment"}
		}
		axes[i] = NewAxis(axes[i].Column, axes[i].Predicate, keys)
	}
	out := &Segment{Header: seg.Header, Axes: axes}

	axisLens := make([]int, len(axes))
	for i, a := range axes {
		axisLens[i] = a.Len()
	}
	ds := ChooseRepresentation(axisLens, len(body.Cells))

	for _, c := range body.Cells {
		if len(c.Key) != len(axes) {
			return nil, &CorruptedSegmentError{Reason: "cell key arity mismatch"}
		}
		for i, ord := range c.Key {
			if ord < 0 || ord >= axes[i].Len() {
				return nil, &CorruptedSegmentError{Reason: fmt.Sprintf("axis %d ordinal %d out of range", i, ord)}
			}
			v := axes[i].Keys[ord]
			if !axes[i].Predicate.Evaluate(v) {
				return nil, &CorruptedSegmentError{Reason: fmt.Sprintf("axis %d value %s rejected by load predicate", i, v)}
			}
		}
		ds.Set(c.Key, c.Value)
	}
	return &WithData{Segment: out, Data: ds}, nil
}

// GetObject returns the measure value stored at k, if any.
func (w *WithData) GetObject(k CellKey) (olap.Value, bool) {
	return w.Data.Get(k)
}

// Exists reports whether k has a stored value.
func (w *WithData) Exists(k CellKey) bool {
	_, ok := w.Data.Get(k)
	return ok
}

// ToBody reconstructs the raw Body (axis keys plus populated cells) a
// WithData was hydrated from, for handing to a cache worker's Put.
func ToBody(w *WithData) Body {
	axisKeys := make([][]olap.Value, len(w.Axes))
	for i, a := range w.Axes {
		axisKeys[i] = append([]olap.Value(nil), a.Keys...)
	}
	var cells []Cell
	w.Data.ForEach(func(k CellKey, v olap.Value) bool {
		cells = append(cells, Cell{Key: append(CellKey(nil), k...), Value: v})
		return true
	})
	return Body{AxisKeys: axisKeys, Cells: cells}
}

// Iterate walks every populated cell; fn returning false stops iteration
// early. Used by the loader (hydration bookkeeping) and flush (retention
// counting) so dense and sparse datasets share one traversal contract.
func Iterate(w *WithData, fn func(CellKey, olap.Value) bool) {
	w.Data.ForEach(fn)
}

// CreateSubSegment builds the tightened Segment flush produces: for each
// axis, keepBitSetPerAxis[i] marks which key ordinals survive; bestColumn's
// predicate is replaced by bestColumnPredicate (the caller has already
// computed axis.Predicate.Minus(flushPredicate)); excludedRegions is unioned
// into the new segment's excluded-region set.
func (s *Segment) CreateSubSegment(keepBitSetPerAxis []*roaring.Bitmap, bestColumn int, bestColumnPredicate olap.ColumnPredicate, excludedRegions olap.CompoundList) (*Segment, error) {
	if len(keepBitSetPerAxis) != len(s.Axes) {
		return nil, &CorruptedSegmentError{Reason: "keep-bitset arity mismatch"}
	}
	newAxes := make([]Axis, len(s.Axes))
	for i, axis := range s.Axes {
		keep := keepBitSetPerAxis[i]
		keys := make([]olap.Value, 0, axis.Len())
		for ord := 0; ord < axis.Len(); ord++ {
			if keep == nil || keep.Contains(uint32(ord)) {
				keys = append(keys, axis.Keys[ord])
			}
		}
		pred := axis.Predicate
		if i == bestColumn {
			pred = bestColumnPredicate
		}
		newAxes[i] = Axis{Column: axis.Column, Predicate: pred, Keys: keys}
	}
	newHeader := s.Header
	newHeader.ExcludedRegions = unionExcluded(s.Header.ExcludedRegions, excludedRegions)
	if bestColumn >= 0 && bestColumn < len(newAxes) {
		col := newAxes[bestColumn].Column
		if newHeader.AxisPredicates != nil {
			axisPreds := make(map[int]olap.ColumnPredicate, len(s.Header.AxisPredicates))
			for k, v := range s.Header.AxisPredicates {
				axisPreds[k] = v
			}
			axisPreds[col.BitPosition] = bestColumnPredicate
			newHeader.AxisPredicates = axisPreds
		}
		summaries := make([]PredicateSummary, len(s.Header.PredicateSummaries))
		copy(summaries, s.Header.PredicateSummaries)
		for i, sum := range summaries {
			if sum.ColumnName == col.Name {
				summaries[i] = PredicateSummary{ColumnName: col.Name, Rendered: bestColumnPredicate.String()}
				break
			}
		}
		newHeader.PredicateSummaries = summaries
	}
	return &Segment{Header: newHeader, Axes: newAxes}, nil
}

func unionExcluded(a, b olap.CompoundList) olap.CompoundList {
	out := append(olap.CompoundList{}, a...)
	for _, cl := range b {
		dup := false
		for _, ex := range out {
			if ex.Equivalent(cl) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, cl)
		}
	}
	return out
}
