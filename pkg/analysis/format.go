package analysis

import (
	"fmt"
	"strings"
)

var byteUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatBytes renders a byte count with binary units and two decimals.
// Values past TB are shown in PB. nil, or a value that is not numeric,
// renders as "Unknown".
func FormatBytes(v any) string {
	if v == nil {
		return "Unknown"
	}
	var size float64
	switch t := v.(type) {
	case *int64:
		if t == nil {
			return "Unknown"
		}
		size = float64(*t)
	default:
		f, ok := toFloat64(v)
		if !ok {
			return "Unknown"
		}
		size = f
	}

	for _, unit := range byteUnits {
		if size < 1024 {
			return fmt.Sprintf("%.2f %s", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%.2f PB", size)
}

// markdownTable accumulates a pipe table.
type markdownTable struct {
	headers []string
	rows    [][]string
}

func newMarkdownTable(headers ...string) *markdownTable {
	return &markdownTable{headers: headers}
}

func (t *markdownTable) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *markdownTable) render(b *strings.Builder) {
	fmt.Fprintf(b, "| %s |\n", strings.Join(t.headers, " | "))
	seps := make([]string, len(t.headers))
	for i, h := range t.headers {
		seps[i] = strings.Repeat("-", max(len(h), 3))
	}
	fmt.Fprintf(b, "| %s |\n", strings.Join(seps, " | "))
	for _, row := range t.rows {
		escaped := make([]string, len(row))
		for i, cell := range row {
			escaped[i] = escapeCell(cell)
		}
		fmt.Fprintf(b, "| %s |\n", strings.Join(escaped, " | "))
	}
}

// escapeCell keeps a value on one table row.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r\n", " ")
	return strings.ReplaceAll(s, "\n", " ")
}

func derefInt(p *int64) string {
	if p == nil {
		return "Unknown"
	}
	return fmt.Sprintf("%d", *p)
}

// formatThousands renders n with comma group separators.
func formatThousands(n int64) string {
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	digits := fmt.Sprintf("%d", n)
	if len(digits) <= 3 {
		return sign + digits
	}
	var b strings.Builder
	pre := len(digits) % 3
	if pre > 0 {
		b.WriteString(digits[:pre])
	}
	for i := pre; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return sign + b.String()
}
