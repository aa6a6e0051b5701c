// Package segidx implements the Segment Index (C2): the in-process lookup
// of registered segment headers by star/fact-table/bit-key, with
// deterministic "smallest slice first" ordering.
//
// Register and Unregister are exported so the Cache Manager's single
// executor goroutine can call them, but nothing else should: the Segment
// Index is mutated only from inside that executor, by convention rather
// than by a language-enforced lock, mirroring how the teacher trusts a
// single-writer contract on its own transaction types instead of adding
// defensive locking in the hot path.
package segidx

import (
	"sort"

	"github.com/CodeOnCoffee/mondrian-go/internal/olap"
	"github.com/CodeOnCoffee/mondrian-go/internal/segment"
)

type bucketKey struct {
	star string
	fact string
}

// Index maps known segments to their headers and locates headers that can
// serve a request.
type Index struct {
	buckets map[bucketKey][]segment.Header
}

func New() *Index {
	return &Index{buckets: make(map[bucketKey][]segment.Header)}
}

func key(star olap.StarIdentity, fact string) bucketKey {
	return bucketKey{star: star.String(), fact: fact}
}

// Register adds h to the index. O(1) amortised.
func (ix *Index) Register(h segment.Header) {
	k := key(h.Star, h.FactAlias)
	ix.buckets[k] = append(ix.buckets[k], h)
}

// Unregister removes h (matched by Fingerprint) from the index.
func (ix *Index) Unregister(h segment.Header) {
	k := key(h.Star, h.FactAlias)
	list := ix.buckets[k]
	fp := h.Fingerprint()
	for i, existing := range list {
		if existing.Fingerprint() == fp {
			ix.buckets[k] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// All returns every registered header; flush walks it to find the segments
// a region touches, and the Cache Manager exposes it for stats.
func (ix *Index) All() []segment.Header {
	var out []segment.Header
	for _, list := range ix.buckets {
		out = append(out, list...)
	}
	return out
}

// Locate returns every header whose (star identity, factAlias, bitKey)
// match and whose axis predicates accept mappedValues on every constrained
// column, whose excluded regions do not shadow those values, and whose
// compound predicates are equivalent to or implied by the request's,
// ordered smallest-slice-first.
func Locate(ix *Index, star olap.StarIdentity, factAlias string, bitKey olap.BitKey, mapped map[int]olap.Value, preds olap.CompoundList) []segment.Header {
	candidates := ix.buckets[key(star, factAlias)]
	var out []segment.Header
	for _, h := range candidates {
		if !h.ConstrainedColumns.Equals(bitKey) {
			continue
		}
		if !accepts(h, mapped) {
			continue
		}
		if shadowed(h, mapped) {
			continue
		}
		if !preds.ImpliedBy(h.CompoundPredicates) && !h.CompoundPredicates.Equivalent(preds) {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// accepts reports whether every constrained column's axis predicate, as of
// segment load time, would have accepted the request's mapped value. A
// Header with no AxisPredicates (recovered from an external cache, see the
// Header doc comment) accepts permissively: the engine trades precision for
// availability rather than refusing to ever reuse externally-announced
// segments.
func accepts(h segment.Header, mapped map[int]olap.Value) bool {
	if h.AxisPredicates == nil {
		return true
	}
	for col, v := range mapped {
		pred, ok := h.AxisPredicates[col]
		if !ok {
			continue
		}
		if !pred.Evaluate(v) {
			return false
		}
	}
	return true
}

func shadowed(h segment.Header, mapped map[int]olap.Value) bool {
	if len(h.ExcludedRegions) == 0 {
		return false
	}
	tuple := make(map[int]olap.Value, len(mapped))
	for k, v := range mapped {
		tuple[k] = v
	}
	return h.ExcludedRegions.Evaluate(tuple)
}

// less orders headers "smallest slice first": fewer axes, then smaller
// predicate domains (see domainSize), then fingerprint for determinism.
func less(a, b segment.Header) bool {
	ca, cb := a.ConstrainedColumns.Cardinality(), b.ConstrainedColumns.Cardinality()
	if ca != cb {
		return ca < cb
	}
	da, db := domainSize(a), domainSize(b)
	if da != db {
		return da < db
	}
	return a.Fingerprint() < b.Fingerprint()
}

// unboundedAxis is the domain weight of an unconstrained ("TRUE") axis.
const unboundedAxis = 1 << 20

// domainSize is a proxy for a header's predicate domain: an unconstrained
// ("TRUE") axis counts as unboundedAxis, any other axis by the length of its
// rendered predicate.
func domainSize(h segment.Header) int {
	n := 0
	for _, s := range h.PredicateSummaries {
		if s.Rendered == "TRUE" {
			n += unboundedAxis
			continue
		}
		n += len(s.Rendered)
	}
	return n
}
