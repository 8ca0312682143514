package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func structureExecutor() *recordingExecutor {
	return (&recordingExecutor{}).
		on("information_schema.tables",
			map[string]any{"table_name": "customers", "engine": "InnoDB", "table_rows": int64(10), "data_length": int64(16384), "index_length": int64(0)},
			map[string]any{"table_name": "events", "engine": "MyISAM", "table_rows": int64(9000000), "data_length": int64(200 * 1024 * 1024), "index_length": int64(1024)},
		).
		on("information_schema.columns",
			map[string]any{"table_name": "customers", "column_name": "id", "column_type": "int", "is_nullable": "NO", "column_key": "PRI"},
			map[string]any{"table_name": "events", "column_name": "payload", "column_type": "json", "is_nullable": "YES", "column_key": ""},
		).
		on("information_schema.statistics",
			map[string]any{"table_name": "customers", "index_name": "PRIMARY", "columns": "id", "index_type": "BTREE", "non_unique": int64(0)},
		).
		on("FOREIGN KEY",
			map[string]any{"table_name": "customers", "column_name": "region_id", "referenced_table_name": "regions", "referenced_column_name": "id", "update_rule": "CASCADE", "delete_rule": "RESTRICT"},
		)
}

func TestGetDatabaseStructure(t *testing.T) {
	s, err := NewGatherer(structureExecutor(), nil).GetDatabaseStructure(context.Background())
	require.NoError(t, err)

	assert.Len(t, s.Tables, 2)
	assert.Len(t, s.Columns, 2)
	assert.Len(t, s.Indexes, 1)
	require.Len(t, s.ForeignKeys, 1)
	assert.Equal(t, "regions", s.ForeignKeys[0].ReferencedTable)
	assert.Empty(t, s.Errors)
}

func TestGetDatabaseStructure_TableListRequired(t *testing.T) {
	exec := (&recordingExecutor{}).fail("information_schema.tables", errors.New("denied"))

	_, err := NewGatherer(exec, nil).GetDatabaseStructure(context.Background())

	var fetchErr *MetadataFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, CategoryStatistics, fetchErr.Category)
	assert.Len(t, exec.queries, 1)
}

func TestGetDatabaseStructure_OptionalCategoriesIsolated(t *testing.T) {
	exec := (&recordingExecutor{}).
		fail("FOREIGN KEY", errors.New("denied")).
		on("information_schema.tables", map[string]any{"table_name": "t", "engine": "InnoDB"})

	s, err := NewGatherer(exec, nil).GetDatabaseStructure(context.Background())
	require.NoError(t, err)
	assert.Contains(t, s.Errors, CategoryForeignKeys)
	assert.Len(t, s.Tables, 1)
}

func TestFormatDatabaseStructure(t *testing.T) {
	s, err := NewGatherer(structureExecutor(), nil).GetDatabaseStructure(context.Background())
	require.NoError(t, err)

	report := FormatDatabaseStructure(s)

	assert.Contains(t, report, "- **Total Tables**: 2")
	assert.Contains(t, report, "- **InnoDB**: 1 tables")
	assert.Contains(t, report, "- **MyISAM**: 1 tables")
	assert.Contains(t, report, "### customers")
	assert.Contains(t, report, "| region_id | regions(id) | CASCADE | RESTRICT |")
	assert.Contains(t, report, "### Tables Without Primary Keys")
	assert.Contains(t, report, "- `events`\n")
	assert.Contains(t, report, "### Large Tables")
	assert.Contains(t, report, "- `events`: 200.00 MB")
	assert.NotContains(t, report, "### Tables With Many Indexes")
}

func TestFormatDatabaseStructure_Empty(t *testing.T) {
	report := FormatDatabaseStructure(&DatabaseStructure{})
	assert.Contains(t, report, "- **Total Tables**: 0")
	assert.Contains(t, report, "The current database has no tables.")
	assert.NotContains(t, report, "## Optimization Recommendations")
}
