package analysis

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/mysql-insight/pkg/adapters/datasource"
	"github.com/ekaya-inc/mysql-insight/pkg/apperrors"
	"github.com/ekaya-inc/mysql-insight/pkg/logging"
)

// Metadata categories, used as MetadataFetchError.Category and as keys of
// Metadata.Errors.
const (
	CategoryStatistics = "statistics"
	CategorySchema     = "schema"
	CategoryIndexes    = "indexes"
)

// TableStatistics is the catalog view of a single table. Nil pointers and
// empty strings mean the catalog did not supply the value.
type TableStatistics struct {
	TableName     string `json:"table_name"`
	Rows          *int64 `json:"table_rows,omitempty"`
	AvgRowLength  *int64 `json:"avg_row_length,omitempty"`
	DataLength    *int64 `json:"data_length,omitempty"`
	IndexLength   *int64 `json:"index_length,omitempty"`
	AutoIncrement *int64 `json:"auto_increment,omitempty"`
	Engine        string `json:"engine,omitempty"`
	CreateTime    string `json:"create_time,omitempty"`
	UpdateTime    string `json:"update_time,omitempty"`
	Collation     string `json:"collation,omitempty"`
}

// ColumnDescriptor describes one column of a table.
type ColumnDescriptor struct {
	TableName  string  `json:"table_name"`
	ColumnName string  `json:"column_name"`
	ColumnType string  `json:"column_type"`
	Nullable   bool    `json:"is_nullable"`
	Key        string  `json:"column_key,omitempty"`
	Default    *string `json:"column_default,omitempty"`
	Extra      string  `json:"extra,omitempty"`
}

// IndexDescriptor describes one index of a table with its columns in index
// order.
type IndexDescriptor struct {
	TableName string   `json:"table_name"`
	IndexName string   `json:"index_name"`
	Columns   []string `json:"columns"`
	IndexType string   `json:"index_type"`
	Unique    bool     `json:"unique"`
}

// MetadataFetchError reports that one metadata category could not be read
// from the catalog.
type MetadataFetchError struct {
	Category string
	Err      error
}

func (e *MetadataFetchError) Error() string {
	return fmt.Sprintf("fetch %s metadata: %v", e.Category, e.Err)
}

func (e *MetadataFetchError) Unwrap() error {
	return e.Err
}

// Metadata is the combined result of all three lookups. A category that
// failed is absent from its slice and present in Errors.
type Metadata struct {
	Statistics []TableStatistics
	Columns    []ColumnDescriptor
	Indexes    []IndexDescriptor
	Errors     map[string]error
}

// Failed reports whether the given category could not be fetched.
func (m *Metadata) Failed(category string) bool {
	_, ok := m.Errors[category]
	return ok
}

// Gatherer reads table metadata from information_schema through a read-only
// executor.
type Gatherer struct {
	executor datasource.QueryExecutor
	logger   *zap.Logger
}

// NewGatherer creates a Gatherer. A nil logger disables logging.
func NewGatherer(executor datasource.QueryExecutor, logger *zap.Logger) *Gatherer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gatherer{executor: executor, logger: logger}
}

// Gather runs all three lookups. Failures are isolated per category so one
// broken catalog query never hides the others.
func (g *Gatherer) Gather(ctx context.Context, tables []string) Metadata {
	md := Metadata{Errors: make(map[string]error)}

	stats, err := g.GetTableStatistics(ctx, tables)
	if err != nil {
		g.recordFailure(&md, CategoryStatistics, err)
	} else {
		md.Statistics = stats
	}

	columns, err := g.GetSchemaInformation(ctx, tables)
	if err != nil {
		g.recordFailure(&md, CategorySchema, err)
	} else {
		md.Columns = columns
	}

	indexes, err := g.GetIndexInformation(ctx, tables)
	if err != nil {
		g.recordFailure(&md, CategoryIndexes, err)
	} else {
		md.Indexes = indexes
	}

	return md
}

func (g *Gatherer) recordFailure(md *Metadata, category string, err error) {
	g.logger.Warn("Metadata lookup failed",
		zap.String("category", category),
		zap.String("error", logging.SanitizeError(err)),
	)
	md.Errors[category] = err
}

// GetTableStatistics returns catalog statistics for the given tables, then
// augments each with engine, timestamps and collation from SHOW TABLE STATUS.
// A table with no status row keeps its catalog values.
func (g *Gatherer) GetTableStatistics(ctx context.Context, tables []string) ([]TableStatistics, error) {
	if len(tables) == 0 {
		return []TableStatistics{}, nil
	}
	filter, err := tableFilter(tables)
	if err != nil {
		return nil, err
	}

	query := `SELECT table_name AS table_name, table_rows AS table_rows,
		avg_row_length AS avg_row_length, data_length AS data_length,
		index_length AS index_length, auto_increment AS auto_increment
		FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_name IN (` + filter + `)`

	rows, err := g.executor.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, &MetadataFetchError{Category: CategoryStatistics, Err: err}
	}

	stats := make([]TableStatistics, 0, len(rows))
	for _, row := range rows {
		stats = append(stats, TableStatistics{
			TableName:     stringField(row, "table_name"),
			Rows:          intField(row, "table_rows"),
			AvgRowLength:  intField(row, "avg_row_length"),
			DataLength:    intField(row, "data_length"),
			IndexLength:   intField(row, "index_length"),
			AutoIncrement: intField(row, "auto_increment"),
		})
	}

	for _, table := range tables {
		statusRows, err := g.executor.ExecuteQuery(ctx, "SHOW TABLE STATUS LIKE '"+table+"'")
		if err != nil {
			return nil, &MetadataFetchError{Category: CategoryStatistics, Err: err}
		}
		status := findStatusRow(statusRows, table)
		if status == nil {
			continue
		}
		for i := range stats {
			if stats[i].TableName != table {
				continue
			}
			stats[i].Engine = stringField(status, "Engine")
			stats[i].CreateTime = stringField(status, "Create_time")
			stats[i].UpdateTime = stringField(status, "Update_time")
			stats[i].Collation = stringField(status, "Collation")
		}
	}

	return stats, nil
}

// findStatusRow picks the row for exactly this table. LIKE treats '_' as a
// wildcard, so the status query can return neighbours.
func findStatusRow(rows []map[string]any, table string) map[string]any {
	for _, row := range rows {
		if stringField(row, "Name") == table {
			return row
		}
	}
	return nil
}

// GetSchemaInformation returns column descriptors ordered by table and
// declaration position.
func (g *Gatherer) GetSchemaInformation(ctx context.Context, tables []string) ([]ColumnDescriptor, error) {
	if len(tables) == 0 {
		return []ColumnDescriptor{}, nil
	}
	filter, err := tableFilter(tables)
	if err != nil {
		return nil, err
	}

	query := `SELECT table_name AS table_name, column_name AS column_name,
		column_type AS column_type, is_nullable AS is_nullable,
		column_key AS column_key, column_default AS column_default, extra AS extra
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name IN (` + filter + `)
		ORDER BY table_name, ordinal_position`

	rows, err := g.executor.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, &MetadataFetchError{Category: CategorySchema, Err: err}
	}

	columns := make([]ColumnDescriptor, 0, len(rows))
	for _, row := range rows {
		columns = append(columns, ColumnDescriptor{
			TableName:  stringField(row, "table_name"),
			ColumnName: stringField(row, "column_name"),
			ColumnType: stringField(row, "column_type"),
			Nullable:   strings.EqualFold(stringField(row, "is_nullable"), "YES"),
			Key:        stringField(row, "column_key"),
			Default:    optionalStringField(row, "column_default"),
			Extra:      stringField(row, "extra"),
		})
	}
	return columns, nil
}

// GetIndexInformation returns one descriptor per index, columns in index
// order.
func (g *Gatherer) GetIndexInformation(ctx context.Context, tables []string) ([]IndexDescriptor, error) {
	if len(tables) == 0 {
		return []IndexDescriptor{}, nil
	}
	filter, err := tableFilter(tables)
	if err != nil {
		return nil, err
	}

	query := `SELECT table_name AS table_name, index_name AS index_name,
		GROUP_CONCAT(column_name ORDER BY seq_in_index) AS columns,
		index_type AS index_type, non_unique AS non_unique
		FROM information_schema.statistics
		WHERE table_schema = DATABASE() AND table_name IN (` + filter + `)
		GROUP BY table_name, index_name, index_type, non_unique
		ORDER BY table_name, index_name`

	rows, err := g.executor.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, &MetadataFetchError{Category: CategoryIndexes, Err: err}
	}

	return indexDescriptorsFromRows(rows), nil
}

func indexDescriptorsFromRows(rows []map[string]any) []IndexDescriptor {
	indexes := make([]IndexDescriptor, 0, len(rows))
	for _, row := range rows {
		nonUnique := intField(row, "non_unique")
		indexes = append(indexes, IndexDescriptor{
			TableName: stringField(row, "table_name"),
			IndexName: stringField(row, "index_name"),
			Columns:   splitColumns(stringField(row, "columns")),
			IndexType: stringField(row, "index_type"),
			Unique:    nonUnique != nil && *nonUnique == 0,
		})
	}
	return indexes
}

func splitColumns(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// tableFilter renders tables as a comma separated list of quoted literals.
// Names come from ExtractTables, never raw input; a name with a quote is
// rejected rather than escaped.
func tableFilter(tables []string) (string, error) {
	quoted := make([]string, 0, len(tables))
	for _, t := range tables {
		if strings.ContainsAny(t, `'"\`) {
			return "", fmt.Errorf("%w: %q", apperrors.ErrUnsafeTableName, t)
		}
		quoted = append(quoted, "'"+t+"'")
	}
	return strings.Join(quoted, ","), nil
}
