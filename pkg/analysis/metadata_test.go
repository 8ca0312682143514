package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/mysql-insight/pkg/apperrors"
)

func TestGather_EmptyTableListMakesNoCalls(t *testing.T) {
	exec := &recordingExecutor{}
	g := NewGatherer(exec, zaptest.NewLogger(t))

	md := g.Gather(context.Background(), []string{})

	assert.Empty(t, exec.queries)
	assert.Empty(t, md.Statistics)
	assert.Empty(t, md.Columns)
	assert.Empty(t, md.Indexes)
	assert.Empty(t, md.Errors)
}

func TestGetTableStatistics_MergesTableStatus(t *testing.T) {
	exec := (&recordingExecutor{}).
		on("information_schema.tables", map[string]any{
			"TABLE_NAME":     []byte("orders"),
			"TABLE_ROWS":     []byte("1200"),
			"AVG_ROW_LENGTH": int64(64),
			"DATA_LENGTH":    "16384",
			"INDEX_LENGTH":   nil,
			"AUTO_INCREMENT": nil,
		}).
		on("SHOW TABLE STATUS", map[string]any{
			"Name":        "orders_archive",
			"Engine":      "MyISAM",
			"Collation":   "latin1_swedish_ci",
			"Update_time": nil,
			"Create_time": nil,
		}, map[string]any{
			"Name":        "orders",
			"Engine":      "InnoDB",
			"Collation":   "utf8mb4_0900_ai_ci",
			"Create_time": "2024-01-01 00:00:00",
			"Update_time": nil,
		})

	g := NewGatherer(exec, nil)
	stats, err := g.GetTableStatistics(context.Background(), []string{"orders"})
	require.NoError(t, err)
	require.Len(t, stats, 1)

	s := stats[0]
	assert.Equal(t, "orders", s.TableName)
	require.NotNil(t, s.Rows)
	assert.Equal(t, int64(1200), *s.Rows)
	require.NotNil(t, s.DataLength)
	assert.Equal(t, int64(16384), *s.DataLength)
	assert.Nil(t, s.IndexLength)
	assert.Equal(t, "InnoDB", s.Engine)
	assert.Equal(t, "utf8mb4_0900_ai_ci", s.Collation)
	assert.Equal(t, "2024-01-01 00:00:00", s.CreateTime)
	assert.Empty(t, s.UpdateTime)

	require.Len(t, exec.queries, 2)
	assert.Contains(t, exec.queries[0], "IN ('orders')")
	assert.Equal(t, "SHOW TABLE STATUS LIKE 'orders'", exec.queries[1])
}

func TestGetSchemaInformation(t *testing.T) {
	exec := (&recordingExecutor{}).on("information_schema.columns",
		map[string]any{
			"table_name": "users", "column_name": "id", "column_type": "int",
			"is_nullable": "NO", "column_key": "PRI", "column_default": nil, "extra": "auto_increment",
		},
		map[string]any{
			"table_name": "users", "column_name": "status", "column_type": "varchar(16)",
			"is_nullable": "YES", "column_key": "", "column_default": []byte("active"), "extra": "",
		},
	)

	cols, err := NewGatherer(exec, nil).GetSchemaInformation(context.Background(), []string{"users"})
	require.NoError(t, err)
	require.Len(t, cols, 2)

	assert.False(t, cols[0].Nullable)
	assert.Equal(t, "PRI", cols[0].Key)
	assert.Nil(t, cols[0].Default)

	assert.True(t, cols[1].Nullable)
	require.NotNil(t, cols[1].Default)
	assert.Equal(t, "active", *cols[1].Default)
}

func TestGetIndexInformation(t *testing.T) {
	exec := (&recordingExecutor{}).on("information_schema.statistics",
		map[string]any{"table_name": "orders", "index_name": "PRIMARY", "columns": "id", "index_type": "BTREE", "non_unique": int64(0)},
		map[string]any{"table_name": "orders", "index_name": "idx_cust_date", "columns": "customer_id,created_at", "index_type": "BTREE", "non_unique": []byte("1")},
	)

	idx, err := NewGatherer(exec, nil).GetIndexInformation(context.Background(), []string{"orders"})
	require.NoError(t, err)
	require.Len(t, idx, 2)

	assert.True(t, idx[0].Unique)
	assert.Equal(t, []string{"id"}, idx[0].Columns)
	assert.False(t, idx[1].Unique)
	assert.Equal(t, []string{"customer_id", "created_at"}, idx[1].Columns)
}

func TestGetIndexInformation_UnknownUniquenessIsNotUnique(t *testing.T) {
	exec := (&recordingExecutor{}).on("information_schema.statistics",
		map[string]any{"table_name": "orders", "index_name": "idx_status", "columns": "status", "index_type": "BTREE"},
		map[string]any{"table_name": "orders", "index_name": "idx_note", "columns": "note", "index_type": "FULLTEXT", "non_unique": nil},
	)

	idx, err := NewGatherer(exec, nil).GetIndexInformation(context.Background(), []string{"orders"})
	require.NoError(t, err)
	require.Len(t, idx, 2)
	assert.False(t, idx[0].Unique)
	assert.False(t, idx[1].Unique)
}

func TestGather_IsolatesCategoryFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	boom := errors.New("catalog unavailable")
	exec := (&recordingExecutor{}).
		fail("information_schema.columns", boom).
		on("information_schema.tables", map[string]any{"table_name": "orders", "table_rows": int64(5)}).
		on("information_schema.statistics", map[string]any{"table_name": "orders", "index_name": "PRIMARY", "columns": "id", "non_unique": int64(0)})

	md := NewGatherer(exec, zap.New(core)).Gather(context.Background(), []string{"orders"})

	assert.Len(t, md.Statistics, 1)
	assert.Len(t, md.Indexes, 1)
	assert.Empty(t, md.Columns)
	assert.True(t, md.Failed(CategorySchema))
	assert.False(t, md.Failed(CategoryStatistics))
	assert.False(t, md.Failed(CategoryIndexes))

	var fetchErr *MetadataFetchError
	require.ErrorAs(t, md.Errors[CategorySchema], &fetchErr)
	assert.Equal(t, CategorySchema, fetchErr.Category)
	assert.ErrorIs(t, md.Errors[CategorySchema], boom)

	entries := logs.FilterMessage("Metadata lookup failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, CategorySchema, entries[0].ContextMap()["category"])
}

func TestGather_RejectsUnsafeTableNames(t *testing.T) {
	exec := &recordingExecutor{}
	g := NewGatherer(exec, nil)

	_, err := g.GetTableStatistics(context.Background(), []string{"orders", "x' OR '1'='1"})
	assert.ErrorIs(t, err, apperrors.ErrUnsafeTableName)

	_, err = g.GetSchemaInformation(context.Background(), []string{`a"b`})
	assert.ErrorIs(t, err, apperrors.ErrUnsafeTableName)

	_, err = g.GetIndexInformation(context.Background(), []string{`a\b`})
	assert.ErrorIs(t, err, apperrors.ErrUnsafeTableName)

	assert.Empty(t, exec.queries)
}
