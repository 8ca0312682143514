package analysis

import (
	"fmt"
	"regexp"
	"strings"
)

// IndexCandidate is a column set that a query filters, joins, sorts or
// groups on.
type IndexCandidate struct {
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
	Reason  string   `json:"reason"`
	// ExistingIndex is set when an existing index already covers Columns.
	ExistingIndex string `json:"existing_index,omitempty"`
}

// CreateStatement returns the DDL that would add this index.
func (c IndexCandidate) CreateStatement() string {
	return fmt.Sprintf("CREATE INDEX %s ON %s (%s);",
		c.IndexName(), c.Table, strings.Join(c.Columns, ", "))
}

// IndexName follows the idx_<table>_<columns> convention.
func (c IndexCandidate) IndexName() string {
	return "idx_" + c.Table + "_" + strings.Join(c.Columns, "_")
}

type tableRef struct {
	name  string
	alias string
}

var (
	fromClausePattern    = regexp.MustCompile(`(?s)from\s+([^()]+?)(?:\swhere\s|\sgroup\s|\shaving\s|\sorder\s|\slimit\s|$)`)
	tableRefPattern      = regexp.MustCompile(`^([a-z0-9_.]+)(?:\s+(?:as\s+)?([a-z0-9_]+))?`)
	tableSplitPattern    = regexp.MustCompile(`,|\s(?:inner\s+|left\s+|right\s+|cross\s+|outer\s+)*join\s`)
	whereClausePattern   = regexp.MustCompile(`(?s)where\s+(.+?)(?:\sgroup\s|\shaving\s|\sorder\s|\slimit\s|$)`)
	andSplitPattern      = regexp.MustCompile(`\sand\s`)
	equalityPattern      = regexp.MustCompile(`([a-z0-9_.]+)\s*=\s*`)
	joinOnPattern        = regexp.MustCompile(`(?s)join\s+([a-z0-9_.]+)(?:\s+(?:as\s+)?([a-z0-9_]+))?\s+on\s+(.+?)(?:\s(?:inner|left|right|outer|cross)?\s*join\s|\swhere\s|\sgroup\s|\shaving\s|\sorder\s|\slimit\s|$)`)
	joinEqualityPattern  = regexp.MustCompile(`([a-z0-9_.]+)\s*=\s*([a-z0-9_.]+)`)
	orderByPattern       = regexp.MustCompile(`(?s)order\s+by\s+(.+?)(?:\slimit\s|$)`)
	groupByClausePattern = regexp.MustCompile(`(?s)group\s+by\s+(.+?)(?:\shaving\s|\sorder\s|\slimit\s|$)`)
	columnNamePattern    = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
)

// aliasKeywords never name a table alias; they follow a table reference
// when the alias is omitted.
var aliasKeywords = map[string]bool{
	"on": true, "where": true, "inner": true, "left": true, "right": true,
	"join": true, "cross": true, "outer": true, "group": true, "order": true,
	"limit": true, "having": true, "using": true, "natural": true,
}

// ExtractIndexCandidates finds columns used in WHERE equalities, JOIN ON
// equalities, ORDER BY and GROUP BY. Duplicate (table, columns) pairs keep
// the first reason found.
func ExtractIndexCandidates(sql string) []IndexCandidate {
	q := normalizeSQL(sql)
	tables := extractTableRefs(q)

	var candidates []IndexCandidate
	seen := make(map[string]bool)
	add := func(table, column, reason string) {
		column = strings.Trim(column, "`")
		if table == "" || !columnNamePattern.MatchString(column) {
			return
		}
		key := table + "." + column
		if seen[key] {
			return
		}
		seen[key] = true
		candidates = append(candidates, IndexCandidate{Table: table, Columns: []string{column}, Reason: reason})
	}
	resolve := func(ref, qualified, unqualified string) {
		if alias, column, ok := strings.Cut(ref, "."); ok {
			if table := lookupAlias(tables, alias); table != "" {
				add(table, column, qualified)
			}
			return
		}
		for _, t := range tables {
			add(t.name, ref, unqualified)
		}
	}

	if m := whereClausePattern.FindStringSubmatch(q); m != nil {
		for _, cond := range andSplitPattern.Split(m[1], -1) {
			if eq := equalityPattern.FindStringSubmatch(cond); eq != nil {
				resolve(eq[1], "Equality condition in WHERE clause", "Possible equality condition in WHERE clause")
			}
		}
	}

	for _, m := range joinOnPattern.FindAllStringSubmatch(q, -1) {
		joined := lastSegment(m[1])
		eq := joinEqualityPattern.FindStringSubmatch(m[3])
		if eq == nil {
			continue
		}
		for _, col := range []string{eq[1], eq[2]} {
			alias, column, ok := strings.Cut(col, ".")
			if !ok {
				continue
			}
			if lookupAlias(tables, alias) == joined {
				add(joined, column, "Join condition")
			}
		}
	}

	if m := orderByPattern.FindStringSubmatch(q); m != nil {
		for _, col := range strings.Split(m[1], ",") {
			fields := strings.Fields(col)
			if len(fields) == 0 {
				continue
			}
			resolve(fields[0], "ORDER BY clause", "Possible ORDER BY column")
		}
	}

	if m := groupByClausePattern.FindStringSubmatch(q); m != nil {
		for _, col := range strings.Split(m[1], ",") {
			col = strings.TrimSpace(col)
			if col == "" {
				continue
			}
			resolve(col, "GROUP BY clause", "Possible GROUP BY column")
		}
	}

	return candidates
}

func extractTableRefs(q string) []tableRef {
	m := fromClausePattern.FindStringSubmatch(q)
	if m == nil {
		return nil
	}
	var refs []tableRef
	for _, part := range tableSplitPattern.Split(m[1], -1) {
		tm := tableRefPattern.FindStringSubmatch(strings.TrimSpace(part))
		if tm == nil {
			continue
		}
		name := lastSegment(tm[1])
		alias := tm[2]
		if alias == "" || aliasKeywords[alias] {
			alias = name
		}
		refs = append(refs, tableRef{name: name, alias: alias})
	}
	return refs
}

func lookupAlias(tables []tableRef, alias string) string {
	for _, t := range tables {
		if t.alias == alias || t.name == alias {
			return t.name
		}
	}
	return ""
}

// CheckExistingIndexes splits candidates into those already served by an
// index whose leading columns match, and those that are missing. Candidates
// for tables without index metadata are dropped.
func CheckExistingIndexes(candidates []IndexCandidate, indexes []IndexDescriptor, known []string) (existing, missing []IndexCandidate) {
	knownTables := make(map[string]bool, len(known))
	for _, t := range known {
		knownTables[t] = true
	}

	for _, c := range candidates {
		if !knownTables[c.Table] {
			continue
		}
		covered := ""
		for _, idx := range indexes {
			if idx.TableName == c.Table && hasPrefix(idx.Columns, c.Columns) {
				covered = idx.IndexName
				break
			}
		}
		if covered != "" {
			c.ExistingIndex = covered
			existing = append(existing, c)
			continue
		}
		missing = append(missing, c)
	}
	return existing, missing
}

func hasPrefix(indexColumns, columns []string) bool {
	if len(columns) > len(indexColumns) {
		return false
	}
	for i, c := range columns {
		if !strings.EqualFold(indexColumns[i], c) {
			return false
		}
	}
	return true
}

// IndexReportInput is everything FormatIndexRecommendations renders.
type IndexReportInput struct {
	Statement  string
	Plan       any
	Tables     []string
	Statistics []TableStatistics
	Columns    []ColumnDescriptor
	Indexes    []IndexDescriptor
	Existing   []IndexCandidate
	Missing    []IndexCandidate
}

// FormatIndexRecommendations renders the index advice report.
func FormatIndexRecommendations(in IndexReportInput) string {
	var b strings.Builder

	b.WriteString("# MySQL Index Recommendations\n\n")
	b.WriteString("## Original Query\n\n")
	fmt.Fprintf(&b, "```sql\n%s\n```\n\n", in.Statement)

	if in.Plan != nil {
		b.WriteString("## Execution Plan Summary\n\n")
		summary, err := InterpretPlan(in.Plan)
		if err != nil {
			fmt.Fprintf(&b, "Error analyzing execution plan: %v\n\n", err)
		} else {
			if scans := summary.FullScanTables(); len(scans) > 0 {
				b.WriteString("### Full Table Scans Detected\n\n")
				b.WriteString("The following tables are being scanned without using indexes:\n\n")
				for _, t := range scans {
					fmt.Fprintf(&b, "- `%s`\n", t)
				}
				b.WriteString("\n")
			}
			if summary.UsesTemporary {
				b.WriteString("### Temporary Table Used\n\n")
				b.WriteString("The query creates a temporary table, which might benefit from better indexing.\n\n")
			}
			if summary.UsesFilesort {
				b.WriteString("### Filesort Used\n\n")
				b.WriteString("The query uses a filesort operation, which could be optimized with proper indexes on ORDER BY columns.\n\n")
			}
		}
	}

	if len(in.Existing) > 0 {
		b.WriteString("## Existing Indexes That Match Query Needs\n\n")
		t := newMarkdownTable("Table", "Columns", "Existing Index", "Reason")
		for _, c := range in.Existing {
			t.add(c.Table, strings.Join(c.Columns, ", "), c.ExistingIndex, c.Reason)
		}
		t.render(&b)
		b.WriteString("\n")
	}

	if len(in.Missing) > 0 {
		b.WriteString("## Recommended New Indexes\n\n")
		t := newMarkdownTable("Table", "Columns", "Reason", "SQL")
		for _, c := range in.Missing {
			t.add(c.Table, strings.Join(c.Columns, ", "), c.Reason, "`"+c.CreateStatement()+"`")
		}
		t.render(&b)
		b.WriteString("\n")
	} else {
		b.WriteString("## No New Indexes Recommended\n\n")
		b.WriteString("The query appears to be using existing indexes effectively, or no clear index candidates were identified.\n\n")
	}

	if len(in.Tables) > 0 {
		var sections strings.Builder
		for _, table := range in.Tables {
			writeTableSection(&sections, table, ReportInput{
				Statistics: in.Statistics,
				Columns:    in.Columns,
				Indexes:    in.Indexes,
			})
		}
		if sections.Len() > 0 {
			b.WriteString("## Table Structure Information\n\n")
			b.WriteString(sections.String())
		}
	}

	return b.String()
}
