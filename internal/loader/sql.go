package loader

import (
	"fmt"
	"sort"
	"strings"

	"github.com/CodeOnCoffee/mondrian-go/internal/olap"
	"github.com/CodeOnCoffee/mondrian-go/internal/sqlexec"
)

// RenderSQL renders q as a grouping-sets SELECT for executors that only
// implement sqlexec.Executor (no StructuredExecutor fast path). It also
// returns the ColumnSpecs describing the rendered select list, in order.
func RenderSQL(q sqlexec.Query) (string, []sqlexec.ColumnSpec) {
	var sb strings.Builder
	sb.WriteString("SELECT ")

	allCols := unionColumns(q.GroupingSets)
	columns := make([]sqlexec.ColumnSpec, 0, len(allCols)+1+len(q.Measures))
	for i, c := range allCols {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c)
		columns = append(columns, sqlexec.ColumnSpec{Name: c, Type: sqlexec.ColumnDimension})
	}
	if len(allCols) > 0 {
		sb.WriteString(", ")
	}
	sb.WriteString("GROUPING_ID(")
	sb.WriteString(strings.Join(allCols, ", "))
	sb.WriteString(") AS grouping_id")
	columns = append(columns, sqlexec.ColumnSpec{Name: "grouping_id", Type: sqlexec.ColumnGroupingID})

	for _, m := range q.Measures {
		sb.WriteString(", ")
		sb.WriteString(renderAggregate(m))
		sb.WriteString(" AS ")
		sb.WriteString(m.Alias)
		columns = append(columns, sqlexec.ColumnSpec{Name: m.Alias, Type: sqlexec.ColumnMeasure})
	}

	fmt.Fprintf(&sb, " FROM %s", q.Table)

	if where := renderWhere(q.Constraints); where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}

	sb.WriteString(" GROUP BY GROUPING SETS (")
	for i, set := range q.GroupingSets {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		sb.WriteString(strings.Join(set, ", "))
		sb.WriteString(")")
	}
	sb.WriteString(")")

	return sb.String(), columns
}

func renderAggregate(m sqlexec.MeasureExpr) string {
	if m.Aggregation == sqlexec.AggCountDistinct {
		return fmt.Sprintf("COUNT(DISTINCT %s)", m.Column)
	}
	return fmt.Sprintf("%s(%s)", m.Aggregation, m.Column)
}

func renderWhere(constraints map[string][]olap.Value) string {
	cols := make([]string, 0, len(constraints))
	for c := range constraints {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	var clauses []string
	for _, c := range cols {
		vs := constraints[c]
		if len(vs) == 0 {
			continue
		}
		literals := make([]string, len(vs))
		for i, v := range vs {
			literals[i] = renderLiteral(v)
		}
		clauses = append(clauses, fmt.Sprintf("%s IN (%s)", c, strings.Join(literals, ", ")))
	}
	return strings.Join(clauses, " AND ")
}

func renderLiteral(v olap.Value) string {
	if v.Kind() == olap.KindInt {
		return v.String()
	}
	return "'" + strings.ReplaceAll(v.String(), "'", "''") + "'"
}

func unionColumns(sets [][]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, set := range sets {
		for _, c := range set {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	sort.Strings(out)
	return out
}
