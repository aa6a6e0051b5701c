package batchgroup

// Dialect abstracts the one fact about the target SQL engine that distinct
// splitting needs: whether it accepts more than one COUNT(DISTINCT x) in a
// single SELECT. Most engines targeted by grouping-sets SQL do not.
type Dialect interface {
	AllowsMultipleCountDistinct() bool
}

// StandardDialect is conservative: it assumes a single COUNT(DISTINCT ...)
// per statement, matching the common-denominator SQL most engines accept.
type StandardDialect struct{}

func (StandardDialect) AllowsMultipleCountDistinct() bool { return false }

// SplitDistinctMeasures partitions measures into the minimum number of
// groups such that each group has at most one distinct SQLExpression among
// its distinct-count measures. Measures sharing the same SQLExpression
// (e.g. two labels over the same COUNT(DISTINCT customer_id)) are never
// split apart, since they can be answered from one aggregate column.
// Non-distinct measures ride along with the first group.
func SplitDistinctMeasures(measures []Measure, dialect Dialect) [][]Measure {
	if dialect.AllowsMultipleCountDistinct() {
		return [][]Measure{measures}
	}

	var plain []Measure
	byExpr := make(map[string][]Measure)
	var exprOrder []string
	for _, m := range measures {
		if !m.IsDistinctCount {
			plain = append(plain, m)
			continue
		}
		if _, ok := byExpr[m.SQLExpression]; !ok {
			exprOrder = append(exprOrder, m.SQLExpression)
		}
		byExpr[m.SQLExpression] = append(byExpr[m.SQLExpression], m)
	}

	if len(exprOrder) == 0 {
		return [][]Measure{plain}
	}

	groups := make([][]Measure, 0, len(exprOrder))
	for i, expr := range exprOrder {
		group := append([]Measure(nil), byExpr[expr]...)
		if i == 0 {
			group = append(group, plain...)
		}
		groups = append(groups, group)
	}
	return groups
}
