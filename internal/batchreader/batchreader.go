// Package batchreader implements the Batch Reader (C5): per-statement
// request coalescing over the Segment Index and Segment Loader, with
// duplicate-request sharing and a bounded quantum before a forced load.
package batchreader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/CodeOnCoffee/mondrian-go/internal/batchgroup"
	"github.com/CodeOnCoffee/mondrian-go/internal/cachemgr"
	"github.com/CodeOnCoffee/mondrian-go/internal/future"
	"github.com/CodeOnCoffee/mondrian-go/internal/loader"
	"github.com/CodeOnCoffee/mondrian-go/internal/logutil"
	"github.com/CodeOnCoffee/mondrian-go/internal/metrics"
	"github.com/CodeOnCoffee/mondrian-go/internal/olap"
	"github.com/CodeOnCoffee/mondrian-go/internal/segment"
	"go.uber.org/zap"
)

// DefaultQuantum is the maximum number of distinct, not-yet-loaded cell
// requests a Reader accumulates before it refuses further Gets until the
// caller flushes the queue with LoadAggregations.
const DefaultQuantum = 5000

// ErrCellRequestQuantumExceeded is returned by Get when accepting the
// request would push the pending queue past the configured quantum.
var ErrCellRequestQuantumExceeded = errors.New("batchreader: cell request quantum exceeded, call LoadAggregations first")

// MeasureResolver supplies the aggregation metadata SplitDistinctMeasures
// and grouping need for a measure name.
type MeasureResolver func(name string) batchgroup.Measure

// Options configures a Reader.
type Options struct {
	FactTable          string
	Quantum            int
	EnableGroupingSets bool
	OptimizePredicates bool
	MaxConstraints     int
	BloatLimit         float64
	Cardinality        batchgroup.CardinalityOracle
	Measures           MeasureResolver
	Dialect            batchgroup.Dialect
}

type pendingEntry struct {
	req    olap.CellRequest
	future *future.Future[olap.Value]
}

// Reader coalesces CellRequests for a single statement's lifetime.
type Reader struct {
	mgr    *cachemgr.Manager
	ld     *loader.Loader
	opts   Options

	mu       sync.Mutex
	pending  map[string]*pendingEntry
	byCreate []string // insertion order, for deterministic batching
}

// New builds a Reader bound to mgr/ld for the duration of one statement
// evaluation.
func New(mgr *cachemgr.Manager, ld *loader.Loader, opts Options) *Reader {
	if opts.Quantum <= 0 {
		opts.Quantum = DefaultQuantum
	}
	if opts.Cardinality == nil {
		opts.Cardinality = func(int) int { return 1 }
	}
	if opts.Measures == nil {
		opts.Measures = func(name string) batchgroup.Measure { return batchgroup.Measure{Name: name} }
	}
	if opts.Dialect == nil {
		opts.Dialect = batchgroup.StandardDialect{}
	}
	return &Reader{
		mgr:     mgr,
		ld:      ld,
		opts:    opts,
		pending: make(map[string]*pendingEntry),
	}
}

// dirty reports whether any request is queued and not yet loaded. It is a
// derived quantity, not a stored flag: staleness between it and the actual
// queue contents is structurally impossible.
func (r *Reader) dirty() bool {
	return len(r.byCreate) > 0
}

// Get resolves req, either immediately (unsatisfiable short-circuit or a
// live Segment Index hit), by sharing an already-pending future for an
// identical request, or by queuing it for the next LoadAggregations call.
func (r *Reader) Get(ctx context.Context, req olap.CellRequest) (*future.Future[olap.Value], error) {
	if req.Unsatisfiable() {
		return future.Done(olap.Null, nil), nil
	}

	key := identity(req)

	r.mu.Lock()
	if entry, ok := r.pending[key]; ok {
		r.mu.Unlock()
		metrics.BatchReaderPending()
		return entry.future, nil
	}
	if len(r.byCreate) >= r.opts.Quantum {
		r.mu.Unlock()
		return nil, ErrCellRequestQuantumExceeded
	}
	r.mu.Unlock()

	hit, err := r.tryIndexHit(ctx, req)
	if err != nil {
		return nil, err
	}
	if hit != nil {
		metrics.BatchReaderHit()
		return hit, nil
	}

	f := future.New[olap.Value]()
	r.mu.Lock()
	// re-check under lock: another goroutine may have queued the same
	// identity while we were checking the index.
	if entry, ok := r.pending[key]; ok {
		r.mu.Unlock()
		metrics.BatchReaderPending()
		return entry.future, nil
	}
	r.pending[key] = &pendingEntry{req: req, future: f}
	r.byCreate = append(r.byCreate, key)
	r.mu.Unlock()
	metrics.BatchReaderMiss()
	return f, nil
}

// tryIndexHit asks the Cache Manager whether an already-registered segment
// can answer req directly, without queuing anything.
func (r *Reader) tryIndexHit(ctx context.Context, req olap.CellRequest) (*future.Future[olap.Value], error) {
	headers, err := r.mgr.Locate(ctx, req.Star.Identity, req.Star.Identity.FactAlias, req.ConstrainedColumns, req.ValuePerColumn, req.CompoundPredicates)
	if err != nil {
		return nil, err
	}
	for _, h := range headers {
		if h.Measure != req.Measure {
			continue
		}
		body, ok, err := r.mgr.Pool.Get(ctx, h)
		if err != nil || !ok {
			continue
		}
		v, ok := lookupCell(h, req, body)
		if !ok {
			continue
		}
		return future.Done(v, nil), nil
	}
	return nil, nil
}

// LoadAggregations flushes every queued request: it buckets them into
// Batches, optionally fuses compatible Batches into grouping-sets
// CompositeBatches, dispatches each composite through the Segment Loader,
// registers the results, and resolves every pending future. Clearing the
// queue happens before any I/O, so concurrent Get calls during the load see
// an empty queue rather than the one in flight.
func (r *Reader) LoadAggregations(ctx context.Context) error {
	r.mu.Lock()
	if len(r.byCreate) == 0 {
		r.mu.Unlock()
		return nil
	}
	keys := r.byCreate
	r.byCreate = nil
	entries := make([]*pendingEntry, len(keys))
	for i, k := range keys {
		entries[i] = r.pending[k]
		delete(r.pending, k)
	}
	r.mu.Unlock()

	batches, byBatch := r.bucket(entries)
	if r.opts.OptimizePredicates {
		for _, b := range batches {
			optimizeBatch(b, r.opts.Cardinality, r.opts.MaxConstraints, r.opts.BloatLimit)
		}
	}
	batches = batchgroup.SortBatches(batches, func(col int) string {
		star := entries[0].req.Star
		c, _ := star.ColumnAt(col)
		return c.Name
	})

	var composites []*batchgroup.CompositeBatch
	if r.opts.EnableGroupingSets {
		composites = batchgroup.MergeBatches(batches, r.opts.Cardinality)
	} else {
		for _, b := range batches {
			composites = append(composites, &batchgroup.CompositeBatch{Detail: b})
		}
	}

	for _, composite := range composites {
		results, err := r.ld.Load(ctx, r.opts.FactTable, composite)
		if err != nil {
			logutil.L().Warn("composite load failed, failing its pending requests", zap.Error(err))
			r.failComposite(composite, byBatch, err)
			continue
		}
		r.resolveComposite(ctx, composite, byBatch, results)
	}
	return nil
}

func (r *Reader) failComposite(composite *batchgroup.CompositeBatch, byBatch map[string][]*pendingEntry, err error) {
	for _, b := range composite.All() {
		for _, e := range byBatch[b.Key.Canonical()] {
			e.future.Resolve(olap.Null, err)
		}
	}
}

func (r *Reader) resolveComposite(ctx context.Context, composite *batchgroup.CompositeBatch, byBatch map[string][]*pendingEntry, results map[string]*segment.WithData) {
	for _, b := range composite.All() {
		for _, e := range byBatch[b.Key.Canonical()] {
			wd, ok := results[b.Key.Canonical()+"#"+e.req.Measure]
			if !ok {
				e.future.Resolve(olap.Null, fmt.Errorf("batchreader: no result for measure %q", e.req.Measure))
				continue
			}
			if err := r.mgr.RegisterSegment(ctx, wd); err != nil {
				logutil.L().Warn("register segment failed", zap.Error(err))
			}
			v, ok := lookupCellData(wd, e.req)
			if !ok {
				e.future.Resolve(olap.Null, nil)
				continue
			}
			e.future.Resolve(v, nil)
		}
	}
}

func (r *Reader) bucket(entries []*pendingEntry) ([]*batchgroup.Batch, map[string][]*pendingEntry) {
	byKey := make(map[string]*batchgroup.Batch)
	var order []string
	byBatch := make(map[string][]*pendingEntry)

	for _, e := range entries {
		ak := olap.KeyOf(e.req)
		ck := ak.Canonical()
		b, ok := byKey[ck]
		if !ok {
			b = &batchgroup.Batch{
				Key:        ak,
				ValueSets:  make(map[int]map[olap.Value]struct{}),
				Predicates: make(map[int]olap.ColumnPredicate),
			}
			byKey[ck] = b
			order = append(order, ck)
		}
		b.Requests = append(b.Requests, e.req)
		byBatch[ck] = append(byBatch[ck], e)

		if !hasMeasure(b.Measures, e.req.Measure) {
			b.Measures = append(b.Measures, r.opts.Measures(e.req.Measure))
		}
		for col, v := range e.req.ValuePerColumn {
			if b.ValueSets[col] == nil {
				b.ValueSets[col] = make(map[olap.Value]struct{})
			}
			b.ValueSets[col][v] = struct{}{}
		}
	}
	for _, b := range byKey {
		for col, vs := range b.ValueSets {
			b.Predicates[col] = olap.NewValueSet(keysOf(vs)...)
		}
		if len(b.Measures) > 0 {
			if b.Measures[0].IsDistinctCount {
				b.RollupAggregation = "COUNT_DISTINCT"
			} else {
				b.RollupAggregation = "SUM"
			}
		}
	}

	batches := make([]*batchgroup.Batch, len(order))
	for i, ck := range order {
		batches[i] = byKey[ck]
	}
	return batches, byBatch
}

func optimizeBatch(b *batchgroup.Batch, cardinality batchgroup.CardinalityOracle, maxConstraints int, limit float64) {
	if limit <= 0 {
		limit = 0.5
	}
	constraints := make([]batchgroup.ColumnConstraint, 0, len(b.ValueSets))
	for col, vs := range b.ValueSets {
		constraints = append(constraints, batchgroup.ColumnConstraint{Column: col, Values: vs})
	}
	kept := batchgroup.OptimizePredicates(constraints, cardinality, maxConstraints, limit)
	keptCols := make(map[int]bool, len(kept))
	for _, c := range kept {
		keptCols[c.Column] = true
	}
	for col := range b.ValueSets {
		if !keptCols[col] {
			delete(b.ValueSets, col)
			b.Predicates[col] = olap.LiteralTrue{}
		}
	}
}

func hasMeasure(ms []batchgroup.Measure, name string) bool {
	for _, m := range ms {
		if m.Name == name {
			return true
		}
	}
	return false
}

func keysOf(m map[olap.Value]struct{}) []olap.Value {
	out := make([]olap.Value, 0, len(m))
	for v := range m {
		out = append(out, v)
	}
	return out
}

// identity renders a stable, comparable key for a CellRequest so identical
// requests (same star, measure, coordinates, and compound predicates)
// share one future.
func identity(req olap.CellRequest) string {
	var b strings.Builder
	b.WriteString(req.Star.Identity.String())
	b.WriteByte('|')
	b.WriteString(req.Measure)
	b.WriteByte('|')

	cols := make([]int, 0, len(req.ValuePerColumn))
	for c := range req.ValuePerColumn {
		cols = append(cols, c)
	}
	sort.Ints(cols)
	for _, c := range cols {
		fmt.Fprintf(&b, "%d=%s;", c, req.ValuePerColumn[c].String())
	}
	b.WriteByte('|')
	b.WriteString(req.CompoundPredicates.String())
	return b.String()
}
