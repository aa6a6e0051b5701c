package flush

import (
	"context"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/CodeOnCoffee/mondrian-go/internal/cacheworker"
	"github.com/CodeOnCoffee/mondrian-go/internal/logutil"
	"github.com/CodeOnCoffee/mondrian-go/internal/metrics"
	"github.com/CodeOnCoffee/mondrian-go/internal/olap"
	"github.com/CodeOnCoffee/mondrian-go/internal/segidx"
	"github.com/CodeOnCoffee/mondrian-go/internal/segment"
	"go.uber.org/zap"
)

// Stats summarises one Flush invocation, mainly for cmd/cachectl's "flush"
// subcommand and tests.
type Stats struct {
	Scanned   int
	Discarded int
	Replaced  int
	Unchanged int
}

// Flush applies region to every segment registered in idx, tightening or
// discarding each one per spec.md §4.8. It runs with direct access to idx
// and pool because the caller (cachemgr.Manager.Flush) invokes it from
// inside the single command-executor goroutine that owns both; Flush
// itself never spawns goroutines or blocks on anything but pool I/O.
func Flush(ctx context.Context, idx *segidx.Index, pool *cacheworker.Pool, region Region) (Stats, error) {
	defer metrics.TimeFlush()()

	var stats Stats
	for _, h := range idx.All() {
		stats.Scanned++
		outcome, sub, err := planOne(ctx, pool, h, region)
		if err != nil {
			return stats, fmt.Errorf("flush: %s: %w", h.Fingerprint(), err)
		}
		switch outcome {
		case outcomeUnchanged:
			stats.Unchanged++
		case outcomeDiscard:
			idx.Unregister(h)
			pool.Remove(ctx, h)
			stats.Discarded++
		case outcomeReplace:
			if err := pool.Put(ctx, sub.Header, segment.ToBody(sub)); err != nil {
				return stats, fmt.Errorf("flush: register sub-segment of %s: %w", h.Fingerprint(), err)
			}
			idx.Register(sub.Header)
			idx.Unregister(h)
			pool.Remove(ctx, h)
			stats.Replaced++
		}
	}
	logutil.L().Debug("flush complete",
		zap.Int("scanned", stats.Scanned),
		zap.Int("discarded", stats.Discarded),
		zap.Int("replaced", stats.Replaced),
		zap.Int("unchanged", stats.Unchanged))
	return stats, nil
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeDiscard
	outcomeReplace
)

// planOne decides, and if necessary builds, the replacement for one
// registered header under region, per the five steps of spec.md §4.8.
func planOne(ctx context.Context, pool *cacheworker.Pool, h segment.Header, region Region) (outcome, *segment.WithData, error) {
	// Step 1: no intersection at all between the segment's constrained
	// columns and the region means the segment is unconstrained on every
	// column the flush touches, so any cell on those columns might be
	// present in it; discard conservatively.
	if !h.ConstrainedColumns.Intersects(region.BitKey) {
		return outcomeDiscard, nil, nil
	}

	body, ok, err := pool.Get(ctx, h)
	if err != nil {
		return outcomeUnchanged, nil, err
	}
	if !ok {
		// Header is registered but its body is not resident in any tier
		// (e.g. evicted from memory with no external cache backing it).
		// We cannot compute retention without the body, so conservatively
		// discard: the alternative of leaving a registered header with no
		// way to serve it is strictly worse.
		return outcomeDiscard, nil, nil
	}

	seg, err := reconstruct(h, body)
	if err != nil {
		return outcomeUnchanged, nil, err
	}
	wd, err := segment.AddData(seg, body)
	if err != nil {
		return outcomeUnchanged, nil, err
	}

	keep := make([]*roaring.Bitmap, len(seg.Axes))
	for i, axis := range seg.Axes {
		col := axis.Column.BitPosition
		if !region.BitKey.Get(col) {
			keep[i] = nil // untouched column: every key survives
			continue
		}
		flushPred := region.predicateFor(col)
		// Step 2: if the flush predicate cannot possibly intersect the
		// axis' load-time predicate, this column contributes nothing to
		// the flush and the whole segment is left unchanged.
		if !flushPred.MightIntersect(axis.Predicate) {
			return outcomeUnchanged, nil, nil
		}
		bm := roaring.New()
		for ord, v := range axis.Keys {
			if !flushPred.Evaluate(v) {
				bm.Add(uint32(ord))
			}
		}
		keep[i] = bm
	}

	// Step 3: ValuePruner. A multi-column flush predicate cannot be
	// decided per axis in isolation: a populated cell that matches it is
	// being flushed, but other populated cells sharing one of its axis
	// values may survive, and the per-axis Keys array must still list
	// every value referenced by a surviving cell. We protect (force back
	// in) any axis key that participates in a populated cell the
	// predicate matches, rather than risk dropping a key a surviving
	// neighbour cell still needs — the conservative direction spec.md
	// describes as "all participating axis keys stay".
	for _, mc := range region.MultiColumnPredicates {
		cols := mc.Columns()
		if len(cols) == 0 {
			continue
		}
		axisOf := make(map[int]int, len(cols)) // bit position -> axis index
		for i, axis := range seg.Axes {
			axisOf[axis.Column.BitPosition] = i
		}
		segment.Iterate(wd, func(k segment.CellKey, _ olap.Value) bool {
			tuple := make(map[int]olap.Value, len(cols))
			relevant := true
			for _, col := range cols {
				ai, ok := axisOf[col]
				if !ok {
					relevant = false
					break
				}
				tuple[col] = seg.Axes[ai].Keys[k[ai]]
			}
			if !relevant || !mc.Evaluate(tuple) {
				return true
			}
			for _, col := range cols {
				ai := axisOf[col]
				if keep[ai] == nil {
					continue
				}
				keep[ai].Add(uint32(k[ai]))
			}
			return true
		})
	}

	// Step 4: pick bestColumn by retention ratio; zero retention anywhere
	// discards the whole segment.
	bestColumn := -1
	bestRatio := -1.0
	for i, axis := range seg.Axes {
		total := axis.Len()
		if total == 0 {
			continue
		}
		retained := total
		if keep[i] != nil {
			retained = int(keep[i].GetCardinality())
		}
		if retained == 0 {
			return outcomeDiscard, nil, nil
		}
		ratio := float64(retained) / float64(total)
		if keep[i] != nil && ratio > bestRatio {
			bestRatio = ratio
			bestColumn = i
		}
	}
	if bestColumn == -1 {
		// Region touched the segment's BitKey (step 1 passed) but no axis
		// with any keys has a keep set to tighten -- nothing to tighten.
		return outcomeUnchanged, nil, nil
	}

	estimate := 1.0
	for i, axis := range seg.Axes {
		total := axis.Len()
		if total == 0 {
			continue
		}
		retained := total
		if keep[i] != nil {
			retained = int(keep[i].GetCardinality())
		}
		estimate *= float64(retained)
	}
	estimate *= pow(0.5, len(region.MultiColumnPredicates))
	if estimate <= 0 {
		return outcomeDiscard, nil, nil
	}

	bestPred := seg.Axes[bestColumn].Predicate.Minus(region.predicateFor(seg.Axes[bestColumn].Column.BitPosition))
	sub, err := seg.CreateSubSegment(keep, bestColumn, bestPred, region.excludedRegions())
	if err != nil {
		return outcomeUnchanged, nil, err
	}
	subBody := rebuildBody(seg, sub, wd, keep)
	subWD, err := segment.AddData(sub, subBody)
	if err != nil {
		return outcomeUnchanged, nil, err
	}
	return outcomeReplace, subWD, nil
}

func pow(base float64, exp int) float64 {
	out := 1.0
	for i := 0; i < exp; i++ {
		out *= base
	}
	return out
}

// reconstruct rebuilds the Segment shell a registered Header addresses,
// pairing each constrained bit position with its axis predicate (from
// Header.AxisPredicates, falling back to LiteralTrue for a header recovered
// cold from an external cache) and its column name (from
// PredicateSummaries, built in the same bit-position order by the Segment
// Loader). Axis Keys are filled in afterwards by segment.AddData from body.
func reconstruct(h segment.Header, body segment.Body) (*segment.Segment, error) {
	ords := h.ConstrainedColumns.Ordinals()
	if len(body.AxisKeys) != len(ords) {
		return nil, &segment.CorruptedSegmentError{Reason: "body axis count does not match header bitkey"}
	}
	axes := make([]segment.Axis, len(ords))
	for i, pos := range ords {
		name := ""
		if i < len(h.PredicateSummaries) {
			name = h.PredicateSummaries[i].ColumnName
		}
		var pred olap.ColumnPredicate = olap.LiteralTrue{}
		if h.AxisPredicates != nil {
			if p, ok := h.AxisPredicates[pos]; ok {
				pred = p
			}
		}
		axes[i] = segment.Axis{Column: olap.Column{Name: name, BitPosition: pos}, Predicate: pred}
	}
	return &segment.Segment{Header: h, Axes: axes}, nil
}

// rebuildBody filters orig's populated cells down to those whose coordinate
// survives on every axis per keep, remapping ordinals into sub's compacted
// per-axis key arrays.
func rebuildBody(orig, sub *segment.Segment, origData *segment.WithData, keep []*roaring.Bitmap) segment.Body {
	remap := make([][]int, len(orig.Axes)) // old ordinal -> new ordinal, or -1
	for i, axis := range orig.Axes {
		remap[i] = make([]int, axis.Len())
		for ord := range remap[i] {
			remap[i][ord] = -1
		}
		for newOrd, v := range sub.Axes[i].Keys {
			oldOrd := axis.IndexOf(v)
			if oldOrd >= 0 {
				remap[i][oldOrd] = newOrd
			}
		}
	}

	axisKeys := make([][]olap.Value, len(sub.Axes))
	for i, axis := range sub.Axes {
		axisKeys[i] = append([]olap.Value(nil), axis.Keys...)
	}

	var cells []segment.Cell
	segment.Iterate(origData, func(k segment.CellKey, v olap.Value) bool {
		newKey := make(segment.CellKey, len(k))
		for i, ord := range k {
			nk := remap[i][ord]
			if nk < 0 {
				return true
			}
			newKey[i] = nk
		}
		cells = append(cells, segment.Cell{Key: newKey, Value: v})
		return true
	})
	return segment.Body{AxisKeys: axisKeys, Cells: cells}
}
