package analysis

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ekaya-inc/mysql-insight/pkg/adapters/datasource"
)

// Notices returned instead of a slow query report when the server does not
// record statement statistics.
const (
	SlowQueryLogDisabledNotice = "The slow query log is not enabled. To enable it, run:\n\n" +
		"```sql\nSET GLOBAL slow_query_log = 'ON';\nSET GLOBAL long_query_time = 1;  -- Set threshold in seconds\n" +
		"SET GLOBAL slow_query_log_file = '/var/lib/mysql/slow-queries.log';\n```\n\n" +
		"Note: These settings require SUPER privileges and will reset after MySQL restart.\n" +
		"For permanent configuration, add to my.cnf:\n\n" +
		"```\nslow_query_log = 1\nlong_query_time = 1\nslow_query_log_file = /var/lib/mysql/slow-queries.log\n```\n"

	PerformanceSchemaDisabledNotice = "Both slow query log and performance_schema are not enabled.\n\n" +
		"To enable performance_schema, add to my.cnf and restart MySQL:\n\n" +
		"```\nperformance_schema = ON\n```\n\n" +
		"For immediate analysis, enable the slow query log:\n\n" +
		"```sql\nSET GLOBAL slow_query_log = 'ON';\nSET GLOBAL long_query_time = 1;\n```\n"
)

const (
	fragmentationThresholdPct = 10.0
	fragmentationMinBytes     = 10 * 1024 * 1024
	bufferPoolFullPct         = 95.0
	bufferPoolIdlePct         = 50.0
	bufferPoolHitRatioPct     = 95.0
)

// SlowQuery is one statement digest from performance_schema. Times are in
// milliseconds.
type SlowQuery struct {
	Digest          string
	Calls           int64
	AvgMs           float64
	TotalMs         float64
	MaxMs           float64
	MinMs           float64
	AvgRows         float64
	AvgRowsExamined float64
	TmpTables       int64
	NoIndexUsed     int64
}

// SlowQueriesFromRows maps digest summary rows.
func SlowQueriesFromRows(rows []map[string]any) []SlowQuery {
	out := make([]SlowQuery, 0, len(rows))
	for _, row := range rows {
		out = append(out, SlowQuery{
			Digest:          stringField(row, "query"),
			Calls:           intOrZero(row, "calls"),
			AvgMs:           floatField(row, "avg_exec_time_ms"),
			TotalMs:         floatField(row, "total_time_ms"),
			MaxMs:           floatField(row, "max_time_ms"),
			MinMs:           floatField(row, "min_time_ms"),
			AvgRows:         floatField(row, "avg_rows"),
			AvgRowsExamined: floatField(row, "avg_rows_examined"),
			TmpTables:       intOrZero(row, "tmp_tables"),
			NoIndexUsed:     intOrZero(row, "no_index_used"),
		})
	}
	return out
}

// FormatSlowQueries renders each digest with its complexity score and a
// summary of totals and statement types.
func FormatSlowQueries(minMs float64, queries []SlowQuery) string {
	if len(queries) == 0 {
		return fmt.Sprintf("No queries found with execution time >= %gms.", minMs)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Slow Queries (Execution Time >= %gms)\n\n", minMs)

	var totalMs float64
	var totalCalls int64
	var typeOrder []string
	types := make(map[string]int)

	for i, q := range queries {
		fmt.Fprintf(&b, "### Query %d\n", i+1)
		fmt.Fprintf(&b, "- **Average Execution Time**: %.2fms\n", q.AvgMs)
		fmt.Fprintf(&b, "- **Total Execution Time**: %.2fms\n", q.TotalMs)
		fmt.Fprintf(&b, "- **Calls**: %d\n", q.Calls)
		fmt.Fprintf(&b, "- **Average Rows Returned**: %.2f\n", q.AvgRows)
		fmt.Fprintf(&b, "- **Average Rows Examined**: %.2f\n", q.AvgRowsExamined)
		fmt.Fprintf(&b, "- **Max Execution Time**: %.2fms\n", q.MaxMs)
		fmt.Fprintf(&b, "- **Min Execution Time**: %.2fms\n", q.MinMs)
		fmt.Fprintf(&b, "- **Temporary Tables Created**: %d\n", q.TmpTables)
		fmt.Fprintf(&b, "- **No Index Used Count**: %d\n", q.NoIndexUsed)
		fmt.Fprintf(&b, "- **SQL**:\n```sql\n%s\n```\n\n", q.Digest)

		b.WriteString("#### Complexity Analysis\n")
		writeComplexity(&b, Score(q.Digest))
		b.WriteString("\n")

		totalMs += q.TotalMs
		totalCalls += q.Calls
		kind := statementType(q.Digest)
		if _, ok := types[kind]; !ok {
			typeOrder = append(typeOrder, kind)
		}
		types[kind]++
	}

	dist := make([]string, 0, len(typeOrder))
	for _, k := range typeOrder {
		dist = append(dist, fmt.Sprintf("%s: %d", k, types[k]))
	}

	b.WriteString("## Summary Analysis\n\n")
	fmt.Fprintf(&b, "- **Total Queries Analyzed**: %d\n", len(queries))
	fmt.Fprintf(&b, "- **Total Execution Time**: %.2fms\n", totalMs)
	fmt.Fprintf(&b, "- **Total Query Calls**: %d\n", totalCalls)
	fmt.Fprintf(&b, "- **Query Type Distribution**: %s\n", strings.Join(dist, ", "))
	return b.String()
}

func statementType(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "UNKNOWN"
	}
	return strings.ToUpper(fields[0])
}

// TableFragmentation is the space accounting of one InnoDB table.
type TableFragmentation struct {
	Table       string
	Rows        int64
	DataLength  int64
	IndexLength int64
	DataFree    int64
}

// Percent is free space relative to data plus index size.
func (t TableFragmentation) Percent() float64 {
	total := t.DataLength + t.IndexLength
	if total <= 0 {
		return 0
	}
	return float64(t.DataFree) / float64(total) * 100
}

// Flagged reports whether the table is both fragmented and large enough to
// be worth rebuilding.
func (t TableFragmentation) Flagged() bool {
	return t.Percent() > fragmentationThresholdPct && t.DataLength > fragmentationMinBytes
}

// FragmentationFromRows maps information_schema.tables rows.
func FragmentationFromRows(rows []map[string]any) []TableFragmentation {
	out := make([]TableFragmentation, 0, len(rows))
	for _, row := range rows {
		out = append(out, TableFragmentation{
			Table:       stringField(row, "table_name"),
			Rows:        intOrZero(row, "table_rows"),
			DataLength:  intOrZero(row, "data_length"),
			IndexLength: intOrZero(row, "index_length"),
			DataFree:    intOrZero(row, "data_free"),
		})
	}
	return out
}

// FormatFragmentation renders the fragmentation overview with an OPTIMIZE
// TABLE suggestion per flagged table.
func FormatFragmentation(tables []TableFragmentation) string {
	var b strings.Builder
	b.WriteString("# Table Fragmentation Analysis\n\n")
	if len(tables) == 0 {
		b.WriteString("No InnoDB tables found in the current database.")
		return b.String()
	}

	b.WriteString("## Table Fragmentation Overview\n\n")
	overview := newMarkdownTable("Table", "Rows", "Data Size", "Index Size", "Free Space", "Fragmentation %")
	var flagged []TableFragmentation
	for _, t := range tables {
		overview.add(t.Table, formatThousands(t.Rows), FormatBytes(t.DataLength),
			FormatBytes(t.IndexLength), FormatBytes(t.DataFree), fmt.Sprintf("%.2f%%", t.Percent()))
		if t.Flagged() {
			flagged = append(flagged, t)
		}
	}
	overview.render(&b)
	b.WriteString("\n")

	b.WriteString("## Optimization Recommendations\n\n")
	if len(flagged) == 0 {
		b.WriteString("No tables with significant fragmentation were detected. Your database appears to be well-optimized in terms of storage.\n\n")
	} else {
		b.WriteString("The following tables have significant fragmentation and could benefit from optimization:\n\n")
		for _, t := range flagged {
			fmt.Fprintf(&b, "### %s\n\n", t.Table)
			fmt.Fprintf(&b, "- **Fragmentation**: %.2f%%\n", t.Percent())
			fmt.Fprintf(&b, "- **Size**: %s\n", FormatBytes(t.DataLength))
			b.WriteString("- **Recommendation**: Run OPTIMIZE TABLE to defragment and reclaim space\n\n")
			fmt.Fprintf(&b, "```sql\nOPTIMIZE TABLE %s;\n```\n\n", t.Table)
			b.WriteString("Note: OPTIMIZE TABLE locks the table during operation. Consider running during off-peak hours.\n\n")
		}
	}

	b.WriteString("## General Recommendations\n\n")
	b.WriteString("1. **Regular Maintenance**: Schedule regular OPTIMIZE TABLE operations for large tables during off-peak hours.\n\n")
	b.WriteString("2. **Monitor Growth**: Keep an eye on tables that grow rapidly, as they may fragment more quickly.\n\n")
	b.WriteString("3. **Consider Partitioning**: For very large tables, consider partitioning to make maintenance operations more manageable.\n\n")
	b.WriteString("4. **Adjust innodb_file_per_table**: Ensure this is set to ON (default in modern MySQL) for better space management.\n")
	return b.String()
}

// Setting is one server variable.
type Setting struct {
	Name  string
	Value string
}

// SettingsFromRows maps SHOW VARIABLES / SHOW STATUS rows.
func SettingsFromRows(rows []map[string]any) []Setting {
	out := make([]Setting, 0, len(rows))
	for _, row := range rows {
		out = append(out, Setting{
			Name:  stringField(row, "Variable_name"),
			Value: stringField(row, "Value"),
		})
	}
	return out
}

// BufferPoolStatus holds the counters the buffer pool report is derived from.
type BufferPoolStatus struct {
	PoolSize     int64
	PageSize     int64
	PagesTotal   int64
	PagesFree    int64
	PagesData    int64
	ReadRequests int64
	Reads        int64
}

// NewBufferPoolStatus extracts the counters from configuration variables
// and Innodb_buffer_pool% status values. Missing values stay zero, except
// the page size which defaults to 16 KB.
func NewBufferPoolStatus(config, status []Setting) BufferPoolStatus {
	s := BufferPoolStatus{PageSize: 16384}
	for _, v := range config {
		n, ok := parseInt(v.Value)
		if !ok {
			continue
		}
		switch v.Name {
		case "innodb_buffer_pool_size":
			s.PoolSize = n
		case "innodb_page_size":
			s.PageSize = n
		}
	}
	for _, v := range status {
		n, ok := parseInt(v.Value)
		if !ok {
			continue
		}
		switch v.Name {
		case "Innodb_buffer_pool_pages_total":
			s.PagesTotal = n
		case "Innodb_buffer_pool_pages_free":
			s.PagesFree = n
		case "Innodb_buffer_pool_pages_data":
			s.PagesData = n
		case "Innodb_buffer_pool_read_requests":
			s.ReadRequests = n
		case "Innodb_buffer_pool_reads":
			s.Reads = n
		}
	}
	return s
}

// UsedPercent is the share of pages not free.
func (s BufferPoolStatus) UsedPercent() float64 {
	if s.PagesTotal <= 0 {
		return 0
	}
	return float64(s.PagesTotal-s.PagesFree) / float64(s.PagesTotal) * 100
}

// HitRatio is the share of read requests served without a disk read.
func (s BufferPoolStatus) HitRatio() float64 {
	if s.ReadRequests <= 0 {
		return 0
	}
	return float64(s.ReadRequests-s.Reads) / float64(s.ReadRequests) * 100
}

// BufferPoolTable is one (table, index) entry of the buffer pool content.
type BufferPoolTable struct {
	Table      string
	Index      string
	Pages      int64
	DataSizeMB float64
}

// BufferPoolTablesFromRows maps the innodb_buffer_page summary rows.
func BufferPoolTablesFromRows(rows []map[string]any) []BufferPoolTable {
	out := make([]BufferPoolTable, 0, len(rows))
	for _, row := range rows {
		index := stringField(row, "index_name")
		if index == "" {
			index = "PRIMARY"
		}
		out = append(out, BufferPoolTable{
			Table:      stringField(row, "table_name"),
			Index:      index,
			Pages:      intOrZero(row, "page_count"),
			DataSizeMB: floatField(row, "data_size_mb"),
		})
	}
	return out
}

// BufferPoolReport is everything FormatBufferPool renders.
type BufferPoolReport struct {
	Config    []Setting
	Status    BufferPoolStatus
	TopTables []BufferPoolTable
	// TopTablesErr is set when the buffer page query failed; the section is
	// then omitted.
	TopTablesErr error
}

// FormatBufferPool renders buffer pool configuration, status, content and
// sizing advice.
func FormatBufferPool(r BufferPoolReport) string {
	var b strings.Builder
	b.WriteString("# InnoDB Buffer Pool Analysis\n\n")

	b.WriteString("## Buffer Pool Configuration\n\n")
	cfg := newMarkdownTable("Parameter", "Value", "Size")
	for _, v := range r.Config {
		size := v.Value
		if v.Name == "innodb_buffer_pool_size" || v.Name == "innodb_page_size" {
			size = FormatBytes(v.Value)
		}
		cfg.add(v.Name, v.Value, size)
	}
	cfg.render(&b)
	b.WriteString("\n")

	s := r.Status
	used := s.UsedPercent()
	hit := s.HitRatio()

	b.WriteString("## Buffer Pool Status\n\n")
	fmt.Fprintf(&b, "- **Buffer Pool Size**: %s\n", FormatBytes(s.PoolSize))
	fmt.Fprintf(&b, "- **Total Pages**: %s\n", formatThousands(s.PagesTotal))
	fmt.Fprintf(&b, "- **Free Pages**: %s\n", formatThousands(s.PagesFree))
	fmt.Fprintf(&b, "- **Data Pages**: %s\n", formatThousands(s.PagesData))
	fmt.Fprintf(&b, "- **Buffer Pool Used**: %.2f%%\n", used)
	fmt.Fprintf(&b, "- **Read Requests**: %s\n", formatThousands(s.ReadRequests))
	fmt.Fprintf(&b, "- **Physical Reads**: %s\n", formatThousands(s.Reads))
	fmt.Fprintf(&b, "- **Hit Ratio**: %.2f%%\n\n", hit)

	if len(r.TopTables) > 0 {
		b.WriteString("## Top Tables in Buffer Pool\n\n")
		top := newMarkdownTable("Table", "Index", "Pages", "Data Size")
		for _, t := range r.TopTables {
			top.add(t.Table, t.Index, formatThousands(t.Pages), fmt.Sprintf("%.2f MB", t.DataSizeMB))
		}
		top.render(&b)
		b.WriteString("\n")
	}

	b.WriteString("## Recommendations\n\n")
	switch {
	case used > bufferPoolFullPct:
		b.WriteString("### Buffer Pool Size\n\n")
		b.WriteString("The buffer pool is nearly full (>95% used). Consider increasing the buffer pool size if server has available memory.\n\n")
		writePoolResize(&b, s.PoolSize*2)
	case used < bufferPoolIdlePct:
		b.WriteString("### Buffer Pool Size\n\n")
		b.WriteString("The buffer pool is less than 50% used. You might be able to reduce the buffer pool size to free memory for other purposes.\n\n")
		writePoolResize(&b, s.PoolSize/2)
	}

	if hit < bufferPoolHitRatioPct {
		b.WriteString("### Hit Ratio\n\n")
		fmt.Fprintf(&b, "The buffer pool hit ratio is %.2f%%, which is below the recommended 95%%. This indicates that MySQL is reading from disk more often than optimal.\n\n", hit)
		b.WriteString("Consider:\n")
		b.WriteString("1. Increasing the buffer pool size if memory is available\n")
		b.WriteString("2. Optimizing queries to reduce the working set size\n")
		b.WriteString("3. Adding appropriate indexes to reduce full table scans\n")
	}
	return b.String()
}

func writePoolResize(b *strings.Builder, size int64) {
	fmt.Fprintf(b, "```sql\nSET GLOBAL innodb_buffer_pool_size = %d;\n```\n\n", size)
	b.WriteString("For permanent changes, update your my.cnf file:\n\n")
	fmt.Fprintf(b, "```\ninnodb_buffer_pool_size = %s\n```\n\n", FormatBytes(size))
}

var sizeLikeNames = []string{"size", "buffer", "cache", "length"}

// FormatSettings groups variables by the prefix before their first
// underscore. Size-like values above 1 KB are annotated in binary units.
func FormatSettings(pattern string, settings []Setting) string {
	if len(settings) == 0 {
		if pattern != "" {
			return fmt.Sprintf("No settings found matching pattern '%s'.", pattern)
		}
		return "No settings found."
	}

	groups := make(map[string][]Setting)
	for _, s := range settings {
		prefix := "other"
		if p, _, ok := strings.Cut(s.Name, "_"); ok {
			prefix = p
		}
		groups[prefix] = append(groups[prefix], s)
	}
	prefixes := make([]string, 0, len(groups))
	for p := range groups {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	var b strings.Builder
	b.WriteString("# MySQL Configuration Settings\n\n")
	if pattern != "" {
		fmt.Fprintf(&b, "Showing settings matching pattern: '%s'\n\n", pattern)
	}

	for _, p := range prefixes {
		group := groups[p]
		sort.Slice(group, func(i, j int) bool { return group[i].Name < group[j].Name })

		fmt.Fprintf(&b, "## %s\n\n", strings.ToUpper(p))
		t := newMarkdownTable("Name", "Value")
		for _, s := range group {
			t.add(s.Name, annotateSize(s))
		}
		t.render(&b)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%d setting(s) displayed.", len(settings))
	return b.String()
}

func annotateSize(s Setting) string {
	name := strings.ToLower(s.Name)
	sizeLike := false
	for _, k := range sizeLikeNames {
		if strings.Contains(name, k) {
			sizeLike = true
			break
		}
	}
	if !sizeLike || !isDigits(s.Value) {
		return s.Value
	}
	n, ok := parseInt(s.Value)
	if !ok || n <= 1024 {
		return s.Value
	}
	return fmt.Sprintf("%s (%s)", s.Value, FormatBytes(n))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FormatQueryResult renders a result set as a markdown table, keeping at most
// maxRows rows. NULL values are written as NULL.
func FormatQueryResult(result *datasource.QueryResult, maxRows int, elapsed time.Duration) string {
	if result == nil || result.RowCount() == 0 {
		return fmt.Sprintf("Query executed successfully in %.2f seconds, but returned no results.", elapsed.Seconds())
	}

	rows := result.Rows
	truncated := false
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
		truncated = true
	}

	var b strings.Builder
	b.WriteString("## Query Results\n\n")
	fmt.Fprintf(&b, "Executed in %.2f seconds\n\n", elapsed.Seconds())
	if truncated {
		fmt.Fprintf(&b, "*Results truncated to %d rows*\n\n", maxRows)
	}

	t := newMarkdownTable(result.Columns...)
	for _, row := range rows {
		cells := make([]string, len(result.Columns))
		for i, col := range result.Columns {
			v, ok := row[col]
			if !ok || v == nil {
				cells[i] = "NULL"
				continue
			}
			cells[i] = toString(v)
		}
		t.add(cells...)
	}
	t.render(&b)

	fmt.Fprintf(&b, "\n%d rows returned", len(rows))
	if truncated {
		b.WriteString(" (truncated)")
	}
	return b.String()
}

func intOrZero(row map[string]any, name string) int64 {
	if p := intField(row, name); p != nil {
		return *p
	}
	return 0
}
