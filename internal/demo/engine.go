// Package demo wires a complete, self-contained instance of the engine
// (C1-C8 plus the in-memory reference SqlExecutor and SegmentCache) for
// cmd/cachectl's flush/stats/warm subcommands and for smoke-testing the
// full C5->C4->C6->C7 path without a real warehouse connection.
package demo

import (
	"context"

	"github.com/CodeOnCoffee/mondrian-go/internal/batchgroup"
	"github.com/CodeOnCoffee/mondrian-go/internal/batchreader"
	"github.com/CodeOnCoffee/mondrian-go/internal/cachemgr"
	"github.com/CodeOnCoffee/mondrian-go/internal/cacheworker"
	"github.com/CodeOnCoffee/mondrian-go/internal/config"
	"github.com/CodeOnCoffee/mondrian-go/internal/flush"
	"github.com/CodeOnCoffee/mondrian-go/internal/future"
	"github.com/CodeOnCoffee/mondrian-go/internal/loader"
	"github.com/CodeOnCoffee/mondrian-go/internal/olap"
	"github.com/CodeOnCoffee/mondrian-go/internal/segcache/inproc"
	"github.com/CodeOnCoffee/mondrian-go/internal/sqlexec/memexec"
)

// Sales fact-table columns, in registration order, matching the
// "Unit Sales"/year/quarter/state example used throughout spec.md §8.
// Quarter and state members are carried as small integer surrogate keys
// (olap.Value is a numeric union, per spec.md's value model); display names
// are kept alongside in QuarterNames/StateNames, whose lengths set how many
// members are seeded.
const (
	ColYear    = "year"
	ColQuarter = "quarter"
	ColState   = "state"
)

// QuarterNames/StateNames map a dimension member's surrogate key (its
// position) back to a display label.
var (
	QuarterNames = []string{"Q1", "Q2", "Q3", "Q4"}
	StateNames   = []string{"CA", "WA", "OR"}
)

// Engine bundles one running instance of every component for a single
// logical Star ("Sales"), ready to answer CellRequests.
type Engine struct {
	Star    *olap.Star
	Cfg     *config.Config
	Mgr     *cachemgr.Manager
	Loader  *loader.Loader
	Control *flush.Control
	Table   *memexec.Table

	factTable string
}

// New builds a demo Engine with a small seeded "sales_fact" table: two
// years, four quarters, three states, one measure ("unit_sales").
func New() *Engine {
	cfg := config.Default()

	star := olap.NewStar(olap.StarIdentity{
		SchemaName: "FoodMart",
		CubeName:   "Sales",
		FactAlias:  "sales_fact",
	})
	star.Column(ColYear, 2)
	star.Column(ColQuarter, 4)
	star.Column(ColState, 3)

	rows := []map[string]olap.Value{}
	years := []int64{1997, 1998}
	n := int64(0)
	for _, y := range years {
		for q := 0; q < len(QuarterNames); q++ {
			for s := 0; s < len(StateNames); s++ {
				n++
				rows = append(rows, map[string]olap.Value{
					ColYear:      olap.IntValue(y),
					ColQuarter:   olap.IntValue(int64(q)),
					ColState:     olap.IntValue(int64(s)),
					"unit_sales": olap.IntValue(n * 10),
				})
			}
		}
	}
	table := &memexec.Table{Columns: []string{ColYear, ColQuarter, ColState}, Rows: rows}

	exec := memexec.New()
	exec.RegisterTable("sales_fact", table)

	pool := cacheworker.New(cfg.InMemoryCacheEntries, inproc.New(1000))
	mgr := cachemgr.New(pool)
	ld := loader.New(exec, cfg.SQLPoolWidth, loader.NoAggregates{}, batchgroup.StandardDialect{})

	return &Engine{
		Star:      star,
		Cfg:       cfg,
		Mgr:       mgr,
		Loader:    ld,
		Control:   flush.NewControl(mgr),
		Table:     table,
		factTable: "sales_fact",
	}
}

// NewReader builds a fresh per-statement Batch Reader bound to this
// Engine's Cache Manager and Loader.
func (e *Engine) NewReader() *batchreader.Reader {
	return batchreader.New(e.Mgr, e.Loader, batchreader.Options{
		FactTable:          e.factTable,
		EnableGroupingSets: e.Cfg.EnableGroupingSets,
		OptimizePredicates: e.Cfg.OptimizePredicates,
		MaxConstraints:     e.Cfg.MaxConstraints,
		BloatLimit:         e.Cfg.BloatEliminationLimit,
		Cardinality: func(col int) int {
			c, ok := e.Star.ColumnAt(col)
			if !ok {
				return 1
			}
			return c.Cardinality
		},
		Measures: func(name string) batchgroup.Measure {
			return batchgroup.Measure{Name: name}
		},
		Dialect: batchgroup.StandardDialect{},
	})
}

// Warm issues one CellRequest per (year, quarter, state) combination
// through a fresh Reader, forcing at least one LoadAggregations round
// trip, and returns how many of the requested cells resolved to a non-null
// value.
func (e *Engine) Warm(ctx context.Context) (int, error) {
	r := e.NewReader()
	years := []olap.Value{olap.IntValue(1997), olap.IntValue(1998)}

	yearCol, _ := e.Star.ColumnOrdinal(ColYear)
	quarterCol, _ := e.Star.ColumnOrdinal(ColQuarter)
	stateCol, _ := e.Star.ColumnOrdinal(ColState)

	var futures []*future.Future[olap.Value]
	for _, y := range years {
		for q := 0; q < len(QuarterNames); q++ {
			for s := 0; s < len(StateNames); s++ {
				req := olap.NewCellRequest(e.Star, "unit_sales", map[int]olap.Value{
					yearCol:    y,
					quarterCol: olap.IntValue(int64(q)),
					stateCol:   olap.IntValue(int64(s)),
				}, nil)
				f, err := r.Get(ctx, req)
				if err != nil {
					return 0, err
				}
				futures = append(futures, f)
			}
		}
	}
	if err := r.LoadAggregations(ctx); err != nil {
		return 0, err
	}
	resolved := 0
	for _, f := range futures {
		v, err := f.Get(ctx)
		if err != nil {
			return resolved, err
		}
		if !v.IsNull() {
			resolved++
		}
	}
	return resolved, nil
}
