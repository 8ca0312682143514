package analysis

import (
	"fmt"
	"sort"
	"strconv"
)

// PlanParseError reports an execution plan whose structure does not match
// what EXPLAIN FORMAT=JSON produces.
type PlanParseError struct {
	Reason string
}

func (e *PlanParseError) Error() string {
	return e.Reason
}

// TableScan is a table read with access_type ALL.
type TableScan struct {
	Table string
	// InJoin is true when the scan is the inner side of a nested loop.
	InJoin bool
}

// PlanSummary is what the report needs from an execution plan.
type PlanSummary struct {
	SelectID      string
	Scans         []TableScan
	UsesTemporary bool
	UsesFilesort  bool
}

// FullScanTables returns the distinct table names read with a full scan, in
// plan order.
func (p *PlanSummary) FullScanTables() []string {
	seen := make(map[string]bool)
	var names []string
	for _, s := range p.Scans {
		if seen[s.Table] {
			continue
		}
		seen[s.Table] = true
		names = append(names, s.Table)
	}
	return names
}

// InterpretPlan reads the known parts of a decoded EXPLAIN FORMAT=JSON
// document. Unknown keys are ignored; a missing or mistyped query_block or
// table entry yields a *PlanParseError.
func InterpretPlan(plan any) (*PlanSummary, error) {
	root, ok := plan.(map[string]any)
	if !ok {
		return nil, &PlanParseError{Reason: fmt.Sprintf("expected a JSON object, got %s", describeType(plan))}
	}
	if len(root) == 0 {
		return nil, &PlanParseError{Reason: "plan is empty"}
	}
	rawBlock, ok := root["query_block"]
	if !ok {
		return nil, &PlanParseError{Reason: "plan has no query_block"}
	}
	block, ok := rawBlock.(map[string]any)
	if !ok {
		return nil, &PlanParseError{Reason: fmt.Sprintf("query_block is %s, not an object", describeType(rawBlock))}
	}

	summary := &PlanSummary{SelectID: "Unknown"}
	if id, ok := block["select_id"]; ok && id != nil {
		summary.SelectID = formatPlanValue(id)
	}
	if _, ok := block["temporary_table"]; ok {
		summary.UsesTemporary = true
	}
	if _, ok := block["ordering_operation"]; ok {
		summary.UsesFilesort = true
	}

	if err := walkPlanNode(block, false, summary); err != nil {
		return nil, err
	}
	return summary, nil
}

// walkPlanNode visits keys in sorted order so repeated runs over the same
// plan report scans identically.
func walkPlanNode(node map[string]any, inJoin bool, summary *PlanSummary) error {
	keys := make([]string, 0, len(node))
	for k := range node {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := node[key]
		switch key {
		case "table":
			if err := visitTables(value, inJoin, summary); err != nil {
				return err
			}
		case "nested_loop":
			entries, ok := value.([]any)
			if !ok {
				return &PlanParseError{Reason: fmt.Sprintf("nested_loop is %s, not a list", describeType(value))}
			}
			for _, entry := range entries {
				child, ok := entry.(map[string]any)
				if !ok {
					return &PlanParseError{Reason: fmt.Sprintf("nested_loop entry is %s, not an object", describeType(entry))}
				}
				if err := walkPlanNode(child, true, summary); err != nil {
					return err
				}
			}
		case "using_temporary_table":
			if b, ok := value.(bool); ok && b {
				summary.UsesTemporary = true
			}
		case "using_filesort":
			if b, ok := value.(bool); ok && b {
				summary.UsesFilesort = true
			}
		default:
			switch child := value.(type) {
			case map[string]any:
				if err := walkPlanNode(child, inJoin, summary); err != nil {
					return err
				}
			case []any:
				for _, item := range child {
					if m, ok := item.(map[string]any); ok {
						if err := walkPlanNode(m, inJoin, summary); err != nil {
							return err
						}
					}
				}
			}
		}
	}
	return nil
}

func visitTables(value any, inJoin bool, summary *PlanSummary) error {
	var tables []map[string]any
	switch t := value.(type) {
	case map[string]any:
		tables = []map[string]any{t}
	case []any:
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				return &PlanParseError{Reason: fmt.Sprintf("table entry is %s, not an object", describeType(item))}
			}
			tables = append(tables, m)
		}
	default:
		return &PlanParseError{Reason: fmt.Sprintf("table is %s, not an object", describeType(value))}
	}

	for _, table := range tables {
		if access, _ := table["access_type"].(string); access == "ALL" {
			name, _ := table["table_name"].(string)
			if name == "" {
				name = "Unknown"
			}
			summary.Scans = append(summary.Scans, TableScan{Table: name, InJoin: inJoin})
		}
		// Derived tables carry their own query blocks.
		if err := walkPlanNode(table, inJoin, summary); err != nil {
			return err
		}
	}
	return nil
}

func formatPlanValue(v any) string {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case string:
		return t
	default:
		return fmt.Sprint(v)
	}
}

func describeType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "an object"
	case []any:
		return "a list"
	case string:
		return "a string"
	case float64, int, int64:
		return "a number"
	case bool:
		return "a boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
