// Package memexec is an in-memory columnar fact-table reference
// implementation of sqlexec.Executor, used by tests and cmd/cachectl's
// warm subcommand in place of a real database connection.
package memexec

import (
	"context"
	"fmt"
	"sync"

	"github.com/CodeOnCoffee/mondrian-go/internal/olap"
	"github.com/CodeOnCoffee/mondrian-go/internal/sqlexec"
)

// Table is one fact table: a flat slice of rows, each a map from column
// name to value.
type Table struct {
	Columns []string
	Rows    []map[string]olap.Value
}

// Executor serves Queries (and, for compatibility with a generic SQL
// caller, rendered text produced by the loader's builder) against a fixed
// set of in-memory Tables. It implements sqlexec.StructuredExecutor, which
// the Segment Loader prefers, so Execute's text path exists mainly so the
// Executor interface is satisfiable uniformly.
type Executor struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

// New builds an Executor with no registered tables.
func New() *Executor {
	return &Executor{tables: make(map[string]*Table)}
}

// RegisterTable adds or replaces a fact table.
func (e *Executor) RegisterTable(name string, t *Table) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tables[name] = t
}

// ExecuteQuery implements sqlexec.StructuredExecutor.
func (e *Executor) ExecuteQuery(ctx context.Context, q sqlexec.Query) (sqlexec.RowCursor, error) {
	e.mu.RLock()
	t, ok := e.tables[q.Table]
	e.mu.RUnlock()
	if !ok {
		return nil, &sqlexec.ExecutionError{Err: fmt.Errorf("memexec: unknown table %q", q.Table)}
	}

	var rows []sqlexec.Row
	for setID, set := range q.GroupingSets {
		groups := groupRows(t.Rows, set, q.Constraints)
		for _, g := range groups {
			row := sqlexec.Row{GroupingID: int64(setID)}
			for _, col := range set {
				row.Values = append(row.Values, g.key[col])
			}
			for _, m := range q.Measures {
				row.Values = append(row.Values, aggregate(g.members, m))
			}
			rows = append(rows, row)
		}
	}
	return &sliceCursor{rows: rows}, nil
}

// Execute implements sqlexec.Executor for callers without access to the
// structured Query (e.g. a warm-cache CLI path reading SQL from a file);
// memexec does not parse SQL text and always reports ErrTextSQLUnsupported.
func (e *Executor) Execute(ctx context.Context, sql string, columns []sqlexec.ColumnSpec) (sqlexec.RowCursor, error) {
	return nil, &sqlexec.ExecutionError{SQL: sql, Err: ErrTextSQLUnsupported}
}

// ErrTextSQLUnsupported is returned by Execute: memexec only serves
// sqlexec.Query values through ExecuteQuery.
var ErrTextSQLUnsupported = fmt.Errorf("memexec: text SQL execution is not supported, use ExecuteQuery")

type group struct {
	key     map[string]olap.Value
	members []map[string]olap.Value
}

func groupRows(rows []map[string]olap.Value, groupCols []string, constraints map[string][]olap.Value) []group {
	index := make(map[string]int)
	var groups []group
	for _, r := range rows {
		if !satisfies(r, constraints) {
			continue
		}
		gk := make(map[string]olap.Value, len(groupCols))
		sig := ""
		for _, c := range groupCols {
			v := r[c]
			gk[c] = v
			sig += v.String() + "\x1f"
		}
		if idx, ok := index[sig]; ok {
			groups[idx].members = append(groups[idx].members, r)
			continue
		}
		index[sig] = len(groups)
		groups = append(groups, group{key: gk, members: []map[string]olap.Value{r}})
	}
	return groups
}

func satisfies(row map[string]olap.Value, constraints map[string][]olap.Value) bool {
	for col, allowed := range constraints {
		if len(allowed) == 0 {
			continue
		}
		v, ok := row[col]
		if !ok {
			return false
		}
		found := false
		for _, a := range allowed {
			if a.Equal(v) {
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

func aggregate(members []map[string]olap.Value, m sqlexec.MeasureExpr) olap.Value {
	switch m.Aggregation {
	case sqlexec.AggCount:
		return olap.IntValue(int64(len(members)))
	case sqlexec.AggCountDistinct:
		seen := make(map[olap.Value]struct{})
		for _, r := range members {
			seen[r[m.Column]] = struct{}{}
		}
		return olap.IntValue(int64(len(seen)))
	case sqlexec.AggMax:
		var best olap.Value = olap.Null
		for i, r := range members {
			v := r[m.Column]
			if i == 0 || v.Float64() > best.Float64() {
				best = v
			}
		}
		return best
	case sqlexec.AggMin:
		var best olap.Value = olap.Null
		for i, r := range members {
			v := r[m.Column]
			if i == 0 || v.Float64() < best.Float64() {
				best = v
			}
		}
		return best
	default: // AggSum
		acc := olap.Null
		for _, r := range members {
			acc = acc.Add(r[m.Column])
		}
		return acc
	}
}

type sliceCursor struct {
	rows []sqlexec.Row
	pos  int
}

func (c *sliceCursor) Next(ctx context.Context) (sqlexec.Row, bool, error) {
	if c.pos >= len(c.rows) {
		return sqlexec.Row{}, false, nil
	}
	r := c.rows[c.pos]
	c.pos++
	return r, true, nil
}

func (c *sliceCursor) Close() error { return nil }
