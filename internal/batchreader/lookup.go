package batchreader

import (
	"github.com/CodeOnCoffee/mondrian-go/internal/olap"
	"github.com/CodeOnCoffee/mondrian-go/internal/segment"
)

// rebuildSegment reconstructs the Segment shell a registered Header
// addresses, pairing each constrained bit position with its axis predicate
// (from Header.AxisPredicates, falling back to LiteralTrue for a header
// recovered cold from an external cache) and its column name (from
// PredicateSummaries, built in the same bit-position order by the Segment
// Loader). Axis Keys are filled in by segment.AddData from body.
func rebuildSegment(h segment.Header, body segment.Body) (*segment.Segment, error) {
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

// lookupCell hydrates body against h and extracts the cell req addresses,
// used by tryIndexHit against a cache-worker body it has not otherwise
// touched.
func lookupCell(h segment.Header, req olap.CellRequest, body segment.Body) (olap.Value, bool) {
	seg, err := rebuildSegment(h, body)
	if err != nil {
		return olap.Null, false
	}
	wd, err := segment.AddData(seg, body)
	if err != nil {
		return olap.Null, false
	}
	return lookupCellData(wd, req)
}

// lookupCellData extracts the cell req addresses from an already-hydrated
// WithData, used right after a fresh Segment Loader result.
func lookupCellData(wd *segment.WithData, req olap.CellRequest) (olap.Value, bool) {
	key := make(segment.CellKey, len(wd.Axes))
	for i, axis := range wd.Axes {
		v, ok := req.ValuePerColumn[axis.Column.BitPosition]
		if !ok {
			return olap.Null, false
		}
		ord := axis.IndexOf(v)
		if ord < 0 {
			return olap.Null, false
		}
		key[i] = ord
	}
	return wd.GetObject(key)
}
