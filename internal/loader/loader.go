// Package loader implements the Segment Loader (C7): it turns one or more
// fused Batches into bulk fact queries, dispatches them through an external
// sqlexec.Executor over a bounded concurrent pool, and hydrates the result
// rows back into Segments.
package loader

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/CodeOnCoffee/mondrian-go/internal/batchgroup"
	"github.com/CodeOnCoffee/mondrian-go/internal/logutil"
	"github.com/CodeOnCoffee/mondrian-go/internal/metrics"
	"github.com/CodeOnCoffee/mondrian-go/internal/olap"
	"github.com/CodeOnCoffee/mondrian-go/internal/segment"
	"github.com/CodeOnCoffee/mondrian-go/internal/sqlexec"
	"go.uber.org/zap"
)

// DefaultPoolWidth bounds concurrent in-flight fact queries absent explicit
// configuration.
const DefaultPoolWidth = 10

// AggregateCatalog resolves a pre-materialised aggregate table for an
// AggregationKey, when the engine is configured to use aggregates.
type AggregateCatalog interface {
	FindAgg(key olap.AggregationKey) (table string, ok bool)
}

// NoAggregates is an AggregateCatalog that never finds a match, used when
// aggregate-table targeting is disabled.
type NoAggregates struct{}

func (NoAggregates) FindAgg(olap.AggregationKey) (string, bool) { return "", false }

// Loader dispatches fact queries for fused batches and hydrates Segments
// from the results.
type Loader struct {
	exec       sqlexec.Executor
	structured sqlexec.StructuredExecutor
	sem        *semaphore.Weighted
	catalog    AggregateCatalog
	dialect    batchgroup.Dialect
}

// New builds a Loader. poolWidth <= 0 uses DefaultPoolWidth. catalog may be
// NoAggregates{} to always target the raw fact table.
func New(exec sqlexec.Executor, poolWidth int, catalog AggregateCatalog, dialect batchgroup.Dialect) *Loader {
	if poolWidth <= 0 {
		poolWidth = DefaultPoolWidth
	}
	if catalog == nil {
		catalog = NoAggregates{}
	}
	if dialect == nil {
		dialect = batchgroup.StandardDialect{}
	}
	l := &Loader{
		exec:    exec,
		sem:     semaphore.NewWeighted(int64(poolWidth)),
		catalog: catalog,
		dialect: dialect,
	}
	if se, ok := exec.(sqlexec.StructuredExecutor); ok {
		l.structured = se
	}
	return l
}

// segKey identifies one loaded segment within a composite load: the
// fused batch it came from, plus the single measure it carries (Segments
// are always single-measure, per Header.Measure).
type segKey struct {
	batchKey string
	measure  string
}

// Load issues the SQL needed to answer every batch in composite and
// returns one *segment.WithData per (batch, measure) pair. It is
// all-or-nothing: if any statement fails, the whole load fails and the
// caller is expected to resolve every pending CellRequest future with the
// returned error.
func (l *Loader) Load(ctx context.Context, factTable string, composite *batchgroup.CompositeBatch) (map[string]*segment.WithData, error) {
	batches := composite.All()
	if len(batches) == 0 {
		return nil, nil
	}
	star := batches[0].Key.Star

	table := factTable
	if t, ok := l.catalog.FindAgg(batches[0].Key); ok {
		table = t
	}

	groupingSets := make([][]string, len(batches))
	groupingCols := make([][]olap.Column, len(batches))
	for i, b := range batches {
		ords := b.BitKey().Ordinals()
		names := make([]string, len(ords))
		cols := make([]olap.Column, len(ords))
		for j, ord := range ords {
			col, ok := star.ColumnAt(ord)
			if !ok {
				return nil, fmt.Errorf("loader: unknown column at bit position %d", ord)
			}
			names[j] = col.Name
			cols[j] = col
		}
		groupingSets[i] = names
		groupingCols[i] = cols
	}

	constraints := mergeConstraints(batches, star)
	measures := uniqueMeasures(batches)
	splits := batchgroup.SplitDistinctMeasures(measures, l.dialect)
	metrics.ObserveGroupingSets(len(groupingSets))

	type rawRow struct {
		groupingID int
		dims       []olap.Value
		measures   map[string]olap.Value
	}
	var allRows []rawRow
	var rowsMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, split := range splits {
		split := split
		g.Go(func() error {
			if err := l.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer l.sem.Release(1)

			q := sqlexec.Query{
				Table:        table,
				GroupingSets: groupingSets,
				Constraints:  constraints,
				Measures:     toMeasureExprs(split),
			}
			cursor, err := l.dispatch(gctx, q)
			if err != nil {
				return &sqlexec.ExecutionError{Err: errors.WithStack(err)}
			}
			defer cursor.Close()

			for {
				row, ok, err := cursor.Next(gctx)
				if err != nil {
					return err
				}
				if !ok {
					break
				}
				nd := len(groupingSets[row.GroupingID])
				dims := row.Values[:nd]
				mv := make(map[string]olap.Value, len(split))
				for i, m := range split {
					mv[m.Name] = row.Values[nd+i]
				}
				rowsMu.Lock()
				allRows = append(allRows, rawRow{groupingID: int(row.GroupingID), dims: dims, measures: mv})
				rowsMu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logutil.L().Warn("segment load failed", zap.Error(err), zap.String("table", table))
		return nil, err
	}

	type accKey struct {
		batch   int
		measure string
	}
	axisRaw := make(map[int][][]olap.Value, len(batches))
	cells := make(map[accKey][]segment.Cell)
	for _, r := range allRows {
		b := r.groupingID
		if _, ok := axisRaw[b]; !ok {
			axisRaw[b] = make([][]olap.Value, len(groupingCols[b]))
		}
		for i, v := range r.dims {
			axisRaw[b][i] = append(axisRaw[b][i], v)
		}
	}
	// second pass needs stable axes before ordinal assignment, so build
	// axes up front per batch/column from the collected raw keys.
	axes := make(map[int][]segment.Axis, len(batches))
	for bi, b := range batches {
		raw, ok := axisRaw[bi]
		if !ok {
			raw = make([][]olap.Value, len(groupingCols[bi]))
		}
		axs := make([]segment.Axis, len(groupingCols[bi]))
		for i, col := range groupingCols[bi] {
			pred := predicateFor(b, col.BitPosition)
			axs[i] = segment.NewAxis(col, pred, raw[i])
		}
		axes[bi] = axs
	}
	for _, r := range allRows {
		b := r.groupingID
		axs := axes[b]
		key := make(segment.CellKey, len(axs))
		for i, v := range r.dims {
			key[i] = axs[i].IndexOf(v)
		}
		for _, m := range measures {
			v, ok := r.measures[m.Name]
			if !ok {
				continue
			}
			ak := accKey{batch: b, measure: m.Name}
			cells[ak] = append(cells[ak], segment.Cell{Key: append(segment.CellKey{}, key...), Value: v})
		}
	}

	out := make(map[string]*segment.WithData)
	for bi, b := range batches {
		for _, m := range b.Measures {
			ak := accKey{batch: bi, measure: m.Name}
			header := buildHeader(b, star, m.Name, table)
			shell := &segment.Segment{Header: header, Axes: axes[bi]}
			body := segment.Body{
				AxisKeys: axisRaw[bi],
				Cells:    cells[ak],
			}
			wd, err := segment.AddData(shell, body)
			if err != nil {
				return nil, fmt.Errorf("loader: hydrate %s/%s: %w", b.Key.Canonical(), m.Name, err)
			}
			out[segKeyString(segKey{batchKey: b.Key.Canonical(), measure: m.Name})] = wd
		}
	}
	return out, nil
}

func segKeyString(k segKey) string { return k.batchKey + "#" + k.measure }

func predicateFor(b *batchgroup.Batch, col int) olap.ColumnPredicate {
	if b.Predicates != nil {
		if p, ok := b.Predicates[col]; ok {
			return p
		}
	}
	return olap.LiteralTrue{}
}

func buildHeader(b *batchgroup.Batch, star *olap.Star, measure, factAlias string) segment.Header {
	summaries := make([]segment.PredicateSummary, 0, b.BitKey().Cardinality())
	axisPreds := make(map[int]olap.ColumnPredicate)
	for _, col := range b.BitKey().Ordinals() {
		c, _ := star.ColumnAt(col)
		pred := predicateFor(b, col)
		summaries = append(summaries, segment.PredicateSummary{ColumnName: c.Name, Rendered: pred.String()})
		axisPreds[col] = pred
	}
	return segment.Header{
		Star:               star.Identity,
		Measure:            measure,
		FactAlias:          factAlias,
		ConstrainedColumns: b.BitKey(),
		PredicateSummaries: summaries,
		AxisPredicates:     axisPreds,
		CompoundPredicates: b.Key.Predicates,
	}
}

func mergeConstraints(batches []*batchgroup.Batch, star *olap.Star) map[string][]olap.Value {
	out := make(map[string][]olap.Value)
	for _, b := range batches {
		for col, vs := range b.ValueSets {
			c, ok := star.ColumnAt(col)
			if !ok {
				continue
			}
			if _, exists := out[c.Name]; exists {
				continue
			}
			values := make([]olap.Value, 0, len(vs))
			for v := range vs {
				values = append(values, v)
			}
			out[c.Name] = values
		}
	}
	return out
}

func uniqueMeasures(batches []*batchgroup.Batch) []batchgroup.Measure {
	seen := make(map[string]bool)
	var out []batchgroup.Measure
	for _, b := range batches {
		for _, m := range b.Measures {
			if seen[m.Name] {
				continue
			}
			seen[m.Name] = true
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func toMeasureExprs(ms []batchgroup.Measure) []sqlexec.MeasureExpr {
	out := make([]sqlexec.MeasureExpr, len(ms))
	for i, m := range ms {
		agg := sqlexec.AggSum
		if m.IsDistinctCount {
			agg = sqlexec.AggCountDistinct
		}
		out[i] = sqlexec.MeasureExpr{Alias: m.Name, Column: m.SQLExpression, Aggregation: agg}
	}
	return out
}

func (l *Loader) dispatch(ctx context.Context, q sqlexec.Query) (sqlexec.RowCursor, error) {
	if l.structured != nil {
		return l.structured.ExecuteQuery(ctx, q)
	}
	sqlText, columns := RenderSQL(q)
	return l.exec.Execute(ctx, sqlText, columns)
}
