// Package output renders results for the command line.
package output

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/ekaya-inc/mysql-insight/pkg/adapters/datasource"
)

// NullText stands in for SQL NULL.
const NullText = "NULL"

// RenderResultTable writes result as an aligned text table followed by a
// summary line. At most maxRows rows are written when maxRows > 0.
func RenderResultTable(w io.Writer, result *datasource.QueryResult, maxRows int, elapsed time.Duration, colored bool) error {
	if result == nil || result.RowCount() == 0 {
		summary(w, colored, fmt.Sprintf("No rows returned (%.2fs)", elapsed.Seconds()))
		return nil
	}

	rows := result.Rows
	truncated := maxRows > 0 && len(rows) > maxRows
	if truncated {
		rows = rows[:maxRows]
	}

	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Header: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft},
			},
			Row: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
	)

	table.Header(result.Columns)
	for _, row := range rows {
		cells := make([]string, len(result.Columns))
		for i, col := range result.Columns {
			cells[i] = cellText(row[col], colored)
		}
		if err := table.Append(cells); err != nil {
			return fmt.Errorf("append row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render table: %w", err)
	}

	line := fmt.Sprintf("%d rows in %.2fs", len(rows), elapsed.Seconds())
	if truncated {
		line += fmt.Sprintf(" (truncated to %d)", maxRows)
	}
	summary(w, colored, line)
	return nil
}

func cellText(v any, colored bool) string {
	switch val := v.(type) {
	case nil:
		if colored {
			return color.New(color.Faint).Sprint(NullText)
		}
		return NullText
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}

func summary(w io.Writer, colored bool, line string) {
	if colored {
		_, _ = color.New(color.FgCyan).Fprintln(w, line)
		return
	}
	_, _ = fmt.Fprintln(w, line)
}
