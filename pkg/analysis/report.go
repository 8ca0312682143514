package analysis

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ReportInput is everything FormatReport renders. Only Statement and
// Complexity are always shown; every other part is optional.
type ReportInput struct {
	Statement    string
	Plan         any
	Tables       []string
	Statistics   []TableStatistics
	Columns      []ColumnDescriptor
	Indexes      []IndexDescriptor
	Patterns     []QueryPattern
	AntiPatterns []AntiPattern
	Complexity   ComplexityMetrics
	// MetadataErrors lists categories that could not be fetched.
	MetadataErrors map[string]error
}

// FormatReport renders a markdown analysis report. It never fails: a plan
// that cannot be interpreted produces an inline note and the remaining
// sections are still rendered.
func FormatReport(in ReportInput) string {
	var b strings.Builder

	b.WriteString("# MySQL Query Analysis\n\n")
	b.WriteString("## Original Query\n\n")
	fmt.Fprintf(&b, "```sql\n%s\n```\n\n", in.Statement)

	b.WriteString("## Query Complexity Analysis\n\n")
	writeComplexity(&b, in.Complexity)
	b.WriteString("\n")

	if in.Plan != nil {
		writePlan(&b, in.Plan)
	}

	writeTables(&b, in)

	if len(in.Patterns) > 0 {
		b.WriteString("## Detected Query Patterns\n\n")
		for _, p := range in.Patterns {
			fmt.Fprintf(&b, "### %s\n\n%s\n\n", p.Pattern, p.Description)
			if p.Recommendation != "" {
				fmt.Fprintf(&b, "**Recommendation**: %s\n\n", p.Recommendation)
			}
		}
	}

	if len(in.AntiPatterns) > 0 {
		b.WriteString("## Detected Query Anti-Patterns\n\n")
		for _, ap := range in.AntiPatterns {
			fmt.Fprintf(&b, "### %s\n\n%s\n\n", ap.Issue, ap.Description)
			if ap.Suggestion != "" {
				fmt.Fprintf(&b, "**Suggestion**: %s\n\n", ap.Suggestion)
			}
			if ap.Example != "" {
				fmt.Fprintf(&b, "**Example**:\n```sql\n%s\n```\n\n", ap.Example)
			}
		}
	}

	if len(in.MetadataErrors) > 0 {
		b.WriteString("## Metadata Unavailable\n\n")
		categories := make([]string, 0, len(in.MetadataErrors))
		for c := range in.MetadataErrors {
			categories = append(categories, c)
		}
		sort.Strings(categories)
		for _, c := range categories {
			fmt.Fprintf(&b, "- **%s**: %v\n", c, in.MetadataErrors[c])
		}
		b.WriteString("\n")
	}

	return b.String()
}

func writeComplexity(b *strings.Builder, c ComplexityMetrics) {
	fmt.Fprintf(b, "- **Complexity Score**: %d\n", c.Score)
	fmt.Fprintf(b, "- **Join Count**: %d\n", c.JoinCount)
	fmt.Fprintf(b, "- **Subquery Count**: %d\n", c.SubqueryCount)
	fmt.Fprintf(b, "- **Aggregation Count**: %d\n", c.AggregationCount)
	if len(c.Warnings) > 0 {
		b.WriteString("- **Warnings**:\n")
		for _, w := range c.Warnings {
			fmt.Fprintf(b, "  - %s\n", w)
		}
	}
}

func writePlan(b *strings.Builder, plan any) {
	b.WriteString("## Execution Plan\n\n")
	encoded, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		encoded = []byte(fmt.Sprintf("%v", plan))
	}
	fmt.Fprintf(b, "```json\n%s\n```\n\n", encoded)

	b.WriteString("### Execution Plan Analysis\n\n")
	summary, err := InterpretPlan(plan)
	if err != nil {
		fmt.Fprintf(b, "Error parsing execution plan: %v\n\n", err)
		return
	}

	fmt.Fprintf(b, "- **Plan Type**: %s\n", summary.SelectID)
	if scans := summary.FullScanTables(); len(scans) > 0 {
		b.WriteString("- **Full Table Scans**:\n")
		for _, t := range scans {
			fmt.Fprintf(b, "  - `%s`\n", t)
		}
	}
	if summary.UsesTemporary {
		b.WriteString("- **Uses Temporary Table**: Yes\n")
	}
	if summary.UsesFilesort {
		b.WriteString("- **Uses Filesort**: Yes\n")
	}
	b.WriteString("\n")
}

func writeTables(b *strings.Builder, in ReportInput) {
	if len(in.Tables) == 0 {
		return
	}

	var sections strings.Builder
	for _, table := range in.Tables {
		writeTableSection(&sections, table, in)
	}
	if sections.Len() == 0 {
		return
	}
	b.WriteString("## Tables Involved\n\n")
	b.WriteString(sections.String())
}

func writeTableSection(b *strings.Builder, table string, in ReportInput) {
	var stats *TableStatistics
	for i := range in.Statistics {
		if in.Statistics[i].TableName == table {
			stats = &in.Statistics[i]
			break
		}
	}

	columns := newMarkdownTable("Column", "Type", "Nullable", "Key", "Default", "Extra")
	for _, c := range in.Columns {
		if c.TableName != table {
			continue
		}
		nullable := "NO"
		if c.Nullable {
			nullable = "YES"
		}
		def := ""
		if c.Default != nil {
			def = *c.Default
		}
		columns.add(c.ColumnName, c.ColumnType, nullable, c.Key, def, c.Extra)
	}

	indexes := newMarkdownTable("Name", "Columns", "Type", "Unique")
	for _, idx := range in.Indexes {
		if idx.TableName != table {
			continue
		}
		unique := "No"
		if idx.Unique {
			unique = "Yes"
		}
		indexes.add(idx.IndexName, strings.Join(idx.Columns, ","), idx.IndexType, unique)
	}

	if stats == nil && len(columns.rows) == 0 && len(indexes.rows) == 0 {
		return
	}

	fmt.Fprintf(b, "### %s\n\n", table)
	if stats != nil {
		fmt.Fprintf(b, "- **Rows (approx)**: %s\n", derefInt(stats.Rows))
		engine := stats.Engine
		if engine == "" {
			engine = "Unknown"
		}
		fmt.Fprintf(b, "- **Engine**: %s\n", engine)
		if stats.DataLength != nil && *stats.DataLength > 0 {
			fmt.Fprintf(b, "- **Data Size**: %s\n", FormatBytes(stats.DataLength))
		}
		if stats.IndexLength != nil && *stats.IndexLength > 0 {
			fmt.Fprintf(b, "- **Index Size**: %s\n", FormatBytes(stats.IndexLength))
		}
		if stats.Collation != "" {
			fmt.Fprintf(b, "- **Collation**: %s\n", stats.Collation)
		}
		if stats.UpdateTime != "" {
			fmt.Fprintf(b, "- **Last Updated**: %s\n", stats.UpdateTime)
		}
		b.WriteString("\n")
	}
	if len(columns.rows) > 0 {
		b.WriteString("#### Columns\n\n")
		columns.render(b)
		b.WriteString("\n")
	}
	if len(indexes.rows) > 0 {
		b.WriteString("#### Indexes\n\n")
		indexes.render(b)
		b.WriteString("\n")
	}
}
