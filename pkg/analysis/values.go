package analysis

import (
	"fmt"
	"strconv"
	"strings"
)

// field looks up a column in a row mapping. Catalog column labels differ in
// case across MySQL versions, so an exact miss falls back to a
// case-insensitive scan.
func field(row map[string]any, name string) (any, bool) {
	if v, ok := row[name]; ok {
		return v, true
	}
	for k, v := range row {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

// stringField returns the column as a string, or "" when absent or NULL.
func stringField(row map[string]any, name string) string {
	v, ok := field(row, name)
	if !ok || v == nil {
		return ""
	}
	return toString(v)
}

// optionalStringField returns nil for absent or NULL columns.
func optionalStringField(row map[string]any, name string) *string {
	v, ok := field(row, name)
	if !ok || v == nil {
		return nil
	}
	s := toString(v)
	return &s
}

// intField returns the column as an int64, or nil when absent, NULL or not
// numeric.
func intField(row map[string]any, name string) *int64 {
	v, ok := field(row, name)
	if !ok || v == nil {
		return nil
	}
	n, ok := toInt64(v)
	if !ok {
		return nil
	}
	return &n
}

// floatField returns the column as a float64, or 0 when absent or not numeric.
func floatField(row map[string]any, name string) float64 {
	v, ok := field(row, name)
	if !ok || v == nil {
		return 0
	}
	f, _ := toFloat64(v)
	return f
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case uint64:
		return int64(t), true
	case uint32:
		return int64(t), true
	case float64:
		return int64(t), true
	case float32:
		return int64(t), true
	case string:
		return parseInt(t)
	case []byte:
		return parseInt(string(t))
	}
	return 0, false
}

func parseInt(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f), true
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(t)), 64)
		return f, err == nil
	}
	if n, ok := toInt64(v); ok {
		return float64(n), true
	}
	return 0, false
}
