package analysis

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodePlan(t *testing.T, raw string) any {
	t.Helper()
	var plan any
	require.NoError(t, json.Unmarshal([]byte(raw), &plan))
	return plan
}

func TestInterpretPlan_SingleTableScan(t *testing.T) {
	plan := decodePlan(t, `{
		"query_block": {
			"select_id": 1,
			"cost_info": {"query_cost": "10.25"},
			"table": {"table_name": "orders", "access_type": "ALL", "rows_examined_per_scan": 100}
		}
	}`)

	summary, err := InterpretPlan(plan)
	require.NoError(t, err)
	assert.Equal(t, "1", summary.SelectID)
	assert.Equal(t, []TableScan{{Table: "orders"}}, summary.Scans)
	assert.False(t, summary.UsesTemporary)
	assert.False(t, summary.UsesFilesort)
}

func TestInterpretPlan_NestedLoopAndSorting(t *testing.T) {
	plan := decodePlan(t, `{
		"query_block": {
			"select_id": 1,
			"ordering_operation": {
				"using_filesort": true,
				"grouping_operation": {
					"using_temporary_table": true,
					"nested_loop": [
						{"table": {"table_name": "o", "access_type": "ALL"}},
						{"table": {"table_name": "c", "access_type": "ALL"}},
						{"table": {"table_name": "p", "access_type": "eq_ref"}}
					]
				}
			}
		}
	}`)

	summary, err := InterpretPlan(plan)
	require.NoError(t, err)
	assert.True(t, summary.UsesTemporary)
	assert.True(t, summary.UsesFilesort)
	assert.Equal(t, []TableScan{{Table: "o", InJoin: true}, {Table: "c", InJoin: true}}, summary.Scans)
	assert.Equal(t, []string{"o", "c"}, summary.FullScanTables())
}

func TestInterpretPlan_MissingSelectID(t *testing.T) {
	summary, err := InterpretPlan(map[string]any{"query_block": map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, "Unknown", summary.SelectID)
	assert.Empty(t, summary.Scans)
}

func TestInterpretPlan_Malformed(t *testing.T) {
	tests := []struct {
		name string
		plan any
	}{
		{name: "empty object", plan: map[string]any{}},
		{name: "scalar", plan: "not a plan"},
		{name: "number", plan: float64(42)},
		{name: "nil", plan: nil},
		{name: "missing query_block", plan: map[string]any{"other": 1}},
		{name: "query_block is a list", plan: map[string]any{"query_block": []any{}}},
		{name: "table is a string", plan: map[string]any{"query_block": map[string]any{"table": "orders"}}},
		{name: "nested_loop is an object", plan: map[string]any{"query_block": map[string]any{"nested_loop": map[string]any{}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, err := InterpretPlan(tt.plan)
			assert.Nil(t, summary)
			var parseErr *PlanParseError
			assert.ErrorAs(t, err, &parseErr)
		})
	}
}
