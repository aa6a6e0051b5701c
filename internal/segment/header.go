// Package segment implements the immutable multi-axis cell array model (C1):
// Segment, SegmentWithData, their headers and axes, and the dense/sparse
// dataset representations backing a cached aggregation result.
package segment

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/CodeOnCoffee/mondrian-go/internal/olap"
)

// PredicateSummary is a compact, serialisable description of one axis'
// load-time predicate, used inside a Header (a full ColumnPredicate is not
// itself required to be serialisable).
type PredicateSummary struct {
	ColumnName string
	Rendered   string // predicate.String(), stable across a process run
}

// Header is the compact fingerprint of a cached Segment: enough to decide,
// without touching its body, whether it can answer a given CellRequest.
//
// AxisPredicates carries the live, functional per-column predicate keyed by
// bit position, so the Segment Index can accept/reject a CellRequest's
// mapped values without dereferencing the full Segment. It is populated by
// the Segment Loader for every Header it registers locally; a Header
// recovered from the wire codec (an external cache transport) instead
// leaves it nil and relies on PredicateSummaries/the BitKey/region checks
// alone — a documented precision loss for cold-started external headers.
type Header struct {
	Star               olap.StarIdentity
	Measure            string
	FactAlias          string
	ConstrainedColumns olap.BitKey
	PredicateSummaries []PredicateSummary
	AxisPredicates     map[int]olap.ColumnPredicate
	CompoundPredicates olap.CompoundList
	ExcludedRegions    olap.CompoundList
}

// Fingerprint returns a stable hash-comparable identity for the header,
// suitable as a cache key and for the wire round-trip contract (P6).
func (h Header) Fingerprint() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|%s|", h.Star.String(), h.Measure, h.FactAlias, h.ConstrainedColumns.String())
	summaries := append([]PredicateSummary(nil), h.PredicateSummaries...)
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ColumnName < summaries[j].ColumnName })
	for _, s := range summaries {
		fmt.Fprintf(&b, "%s=%s;", s.ColumnName, s.Rendered)
	}
	fmt.Fprintf(&b, "|%s|excl:%s", h.CompoundPredicates.String(), h.ExcludedRegions.String())
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func (h Header) String() string { return h.Fingerprint() }
