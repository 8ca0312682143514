package analysis

import (
	"fmt"
	"strings"
)

// FormatRewriteContext renders the facts a caller needs to propose a rewrite
// of in.Statement: complexity, per-table size, columns and indexes,
// anti-patterns and a plan summary. Patterns are not used.
func FormatRewriteContext(in ReportInput) string {
	var b strings.Builder
	b.WriteString("# Query Rewrite Suggestions\n\n")
	b.WriteString("## Original Query\n\n")
	fmt.Fprintf(&b, "```sql\n%s\n```\n\n", in.Statement)

	b.WriteString("## Query Complexity Analysis\n\n")
	writeComplexity(&b, in.Complexity)
	b.WriteString("\n")

	if len(in.Tables) > 0 {
		writeRewriteTables(&b, in)
	}

	b.WriteString("## Detected Anti-Patterns\n\n")
	if len(in.AntiPatterns) == 0 {
		b.WriteString("No obvious anti-patterns detected in the query.\n\n")
	}
	for i, ap := range in.AntiPatterns {
		fmt.Fprintf(&b, "### Issue %d: %s\n\n%s\n\n", i+1, ap.Issue, ap.Description)
		if ap.Suggestion != "" {
			fmt.Fprintf(&b, "**Suggestion**: %s\n\n", ap.Suggestion)
		}
		if ap.Example != "" {
			fmt.Fprintf(&b, "**Example**:\n```sql\n%s\n```\n\n", ap.Example)
		}
	}

	if in.Plan != nil {
		b.WriteString("## Execution Plan Summary\n\n")
		summary, err := InterpretPlan(in.Plan)
		if err != nil {
			fmt.Fprintf(&b, "Error parsing execution plan: %v\n\n", err)
		} else {
			wrote := false
			if scans := summary.FullScanTables(); len(scans) > 0 {
				quoted := make([]string, len(scans))
				for i, t := range scans {
					quoted[i] = "`" + t + "`"
				}
				fmt.Fprintf(&b, "- **Full Table Scans**: %s\n", strings.Join(quoted, ", "))
				wrote = true
			}
			if summary.UsesTemporary {
				b.WriteString("- **Uses Temporary Table**: Yes\n")
				wrote = true
			}
			if summary.UsesFilesort {
				b.WriteString("- **Uses Filesort**: Yes\n")
				wrote = true
			}
			if !wrote {
				b.WriteString("The plan shows no full scans or sort overhead.\n")
			}
			b.WriteString("\n")
		}
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeRewriteTables(b *strings.Builder, in ReportInput) {
	var sizes strings.Builder
	for _, table := range in.Tables {
		for _, s := range in.Statistics {
			if s.TableName != table {
				continue
			}
			fmt.Fprintf(&sizes, "**Table**: `%s`\n", table)
			fmt.Fprintf(&sizes, "- **Rows**: %s\n", derefInt(s.Rows))
			fmt.Fprintf(&sizes, "- **Data Size**: %s\n", FormatBytes(s.DataLength))
			fmt.Fprintf(&sizes, "- **Index Size**: %s\n\n", FormatBytes(s.IndexLength))
			break
		}
	}
	if sizes.Len() > 0 {
		b.WriteString("## Database Context\n\n")
		b.WriteString(sizes.String())
	}

	var schema strings.Builder
	for _, table := range in.Tables {
		wroteHeader := false
		for _, c := range in.Columns {
			if c.TableName != table {
				continue
			}
			if !wroteHeader {
				fmt.Fprintf(&schema, "**Table**: `%s`\n", table)
				wroteHeader = true
			}
			nullable := "NOT NULL"
			if c.Nullable {
				nullable = "NULL"
			}
			fmt.Fprintf(&schema, "- `%s` (%s, %s)\n", c.ColumnName, c.ColumnType, nullable)
		}
		if wroteHeader {
			schema.WriteString("\n")
		}
	}
	if schema.Len() > 0 {
		b.WriteString("## Schema Information\n\n")
		b.WriteString(schema.String())
	}

	if _, failed := in.MetadataErrors[CategoryIndexes]; failed {
		return
	}
	b.WriteString("## Index Information\n\n")
	for _, table := range in.Tables {
		var lines []string
		for _, idx := range in.Indexes {
			if idx.TableName != table {
				continue
			}
			unique := "Non-Unique"
			if idx.Unique {
				unique = "Unique"
			}
			lines = append(lines, fmt.Sprintf("- `%s`: %s (%s, %s)", idx.IndexName, strings.Join(idx.Columns, ","), idx.IndexType, unique))
		}
		if len(lines) == 0 {
			fmt.Fprintf(b, "**Table**: `%s` - No indexes found\n\n", table)
			continue
		}
		fmt.Fprintf(b, "**Table**: `%s`\n%s\n\n", table, strings.Join(lines, "\n"))
	}
}
