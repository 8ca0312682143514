package analysis

import (
	"fmt"
	"strings"
)

// ComplexityMetrics is a heuristic summary of a statement's shape.
type ComplexityMetrics struct {
	Score            int      `json:"complexity_score"`
	JoinCount        int      `json:"join_count"`
	SubqueryCount    int      `json:"subquery_count"`
	AggregationCount int      `json:"aggregation_count"`
	Warnings         []string `json:"warnings"`
}

// Plain "join" overlaps with the qualified forms, so "left join" counts
// twice. Scores depend on that.
var joinKeywords = []string{"join", "inner join", "left join", "right join", "full join"}

var aggregateOpeners = []string{"count(", "sum(", "avg(", "max(", "min("}

const (
	joinWarnThreshold     = 3
	subqueryWarnThreshold = 2
	whereWarnThreshold    = 5
	orderByWarnColumns    = 3
)

// Score computes complexity metrics from the statement text alone. Keyword
// case does not matter. The same input always yields the same metrics.
func Score(sql string) ComplexityMetrics {
	q := strings.ToLower(sql)
	m := ComplexityMetrics{Warnings: []string{}}

	for _, kw := range joinKeywords {
		m.JoinCount += strings.Count(q, kw)
	}
	m.Score += m.JoinCount * 2
	if m.JoinCount > joinWarnThreshold {
		m.Warnings = append(m.Warnings, fmt.Sprintf("Query contains %d joins - consider simplifying", m.JoinCount))
	}

	m.SubqueryCount = strings.Count(q, "(select")
	m.Score += m.SubqueryCount * 3
	if m.SubqueryCount > subqueryWarnThreshold {
		m.Warnings = append(m.Warnings, fmt.Sprintf("Query contains %d subqueries - consider restructuring", m.SubqueryCount))
	}

	for _, agg := range aggregateOpeners {
		m.AggregationCount += strings.Count(q, agg)
	}
	m.Score += m.AggregationCount

	if strings.Contains(q, "force index") {
		m.Score += 2
		m.Warnings = append(m.Warnings, "Query uses FORCE INDEX - consider if this is necessary")
	}

	if idx := strings.Index(q, "where"); idx >= 0 {
		clause := q[idx:]
		conditions := strings.Count(clause, " and ") + strings.Count(clause, " or ")
		m.Score += conditions
		if conditions > whereWarnThreshold {
			m.Warnings = append(m.Warnings, fmt.Sprintf("Complex WHERE clause with %d conditions", conditions))
		}
	}

	if idx := strings.Index(q, "order by"); idx >= 0 {
		commas := strings.Count(q[idx:], ",")
		m.Score += commas
		if columns := commas + 1; columns > orderByWarnColumns {
			m.Warnings = append(m.Warnings, fmt.Sprintf("ORDER BY with %d columns may impact performance", columns))
		}
	}

	return m
}
