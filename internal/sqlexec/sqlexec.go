// Package sqlexec defines the external collaborator the Segment Loader
// dispatches bulk fact queries through: an Executor abstracts a physical
// SQL engine so the Loader, and everything above it, never imports a
// database driver directly.
//
//go:generate go run go.uber.org/mock/mockgen -destination=mocksqlexec/mock_executor.go -package=mocksqlexec . Executor,RowCursor
package sqlexec

import (
	"context"
	"fmt"

	"github.com/CodeOnCoffee/mondrian-go/internal/olap"
)

// ColumnType names a result column's kind for value decoding; measure
// columns decode numerically, grouping columns decode as whatever olap.Kind
// the cube's member type calls for.
type ColumnType int

const (
	ColumnDimension ColumnType = iota
	ColumnMeasure
	ColumnGroupingID
)

// ColumnSpec describes one expected result column, in select-list order.
type ColumnSpec struct {
	Name string
	Type ColumnType
}

// Row is one result row: GroupingID distinguishes which grouping set of a
// GROUPING SETS statement it belongs to (0 when the statement has none),
// Values holds one olap.Value per requested ColumnSpec, in order.
type Row struct {
	GroupingID int64
	Values     []olap.Value
}

// RowCursor streams Rows from a running statement. Next returns
// (Row{}, false, nil) once exhausted; callers must call Close exactly once,
// even after an error.
type RowCursor interface {
	Next(ctx context.Context) (Row, bool, error)
	Close() error
}

// Executor runs one SQL statement and returns a RowCursor over it. Columns
// describes the expected result shape so the executor can decode values
// without a metadata round trip.
type Executor interface {
	Execute(ctx context.Context, sql string, columns []ColumnSpec) (RowCursor, error)
}

// ExecutionError wraps a failed statement with the SQL text, for logging
// without leaking it into the error chain's formatted message by default.
type ExecutionError struct {
	SQL string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("sqlexec: statement failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// MeasureAggregation names the SQL aggregate function a MeasureExpr uses.
type MeasureAggregation string

const (
	AggSum           MeasureAggregation = "SUM"
	AggMax           MeasureAggregation = "MAX"
	AggMin           MeasureAggregation = "MIN"
	AggCount         MeasureAggregation = "COUNT"
	AggCountDistinct MeasureAggregation = "COUNT_DISTINCT"
)

// MeasureExpr is one aggregate column a Query asks for.
type MeasureExpr struct {
	Alias       string
	Column      string
	Aggregation MeasureAggregation
}

// Query is the Segment Loader's structured request: one fact table, one or
// more grouping sets over its dimension columns, per-column IN-list
// constraints, and the measures to aggregate. It is the source of truth
// the Loader renders into SQL text for a generic Executor; StructuredExecutor
// implementations consume it directly and skip text rendering entirely.
type Query struct {
	Table        string
	GroupingSets [][]string // one []string per grouping set, by column name
	Constraints  map[string][]olap.Value
	Measures     []MeasureExpr
}

// StructuredExecutor is an optional capability an Executor can implement to
// bypass SQL text generation and run a Query directly. The Segment Loader
// prefers it when available (the in-memory reference executor implements
// it); it falls back to Execute with rendered SQL text otherwise.
type StructuredExecutor interface {
	ExecuteQuery(ctx context.Context, q Query) (RowCursor, error)
}
