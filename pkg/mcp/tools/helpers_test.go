package tools

import (
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrimString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string", "", ""},
		{"whitespace only", "   ", ""},
		{"leading whitespace", "  test", "test"},
		{"trailing whitespace", "test  ", "test"},
		{"tabs", "\ttest\t", "test"},
		{"newlines", "\ntest\n", "test"},
		{"no whitespace", "test", "test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, trimString(tt.input))
		})
	}
}

func requestWith(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func errorCode(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.True(t, result.IsError)
	var e ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(getTextContent(result)), &e))
	return e.Code
}

func TestRequireString(t *testing.T) {
	value, errResult := requireString(requestWith(map[string]any{"query": "  SELECT 1 "}), "query")
	assert.Nil(t, errResult)
	assert.Equal(t, "SELECT 1", value)

	_, errResult = requireString(requestWith(map[string]any{}), "query")
	assert.Equal(t, CodeInvalidParameters, errorCode(t, errResult))

	_, errResult = requireString(requestWith(map[string]any{"query": "   "}), "query")
	assert.Equal(t, CodeInvalidParameters, errorCode(t, errResult))
}

func TestTargetFromRequest(t *testing.T) {
	target, errResult := targetFromRequest(requestWith(map[string]any{
		"secret_name": " prod_db ",
		"region_name": "eu-west-1",
	}))
	require.Nil(t, errResult)
	assert.Equal(t, "prod_db", target.SecretName)
	assert.Equal(t, "eu-west-1", target.Region)

	target, errResult = targetFromRequest(requestWith(map[string]any{"secret_name": "prod_db"}))
	require.Nil(t, errResult)
	assert.Empty(t, target.Region)

	_, errResult = targetFromRequest(requestWith(map[string]any{"region_name": "eu-west-1"}))
	assert.Equal(t, CodeInvalidParameters, errorCode(t, errResult))
}

func TestPositiveInt(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]any
		want    int
		invalid bool
	}{
		{name: "absent uses default", args: map[string]any{}, want: 10},
		{name: "explicit", args: map[string]any{"limit": float64(25)}, want: 25},
		{name: "minimum", args: map[string]any{"limit": float64(1)}, want: 1},
		{name: "zero", args: map[string]any{"limit": float64(0)}, invalid: true},
		{name: "negative", args: map[string]any{"limit": float64(-3)}, invalid: true},
		{name: "fractional", args: map[string]any{"limit": 2.5}, invalid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, errResult := positiveInt(requestWith(tt.args), "limit", 10, 1)
			if tt.invalid {
				assert.Equal(t, CodeInvalidParameters, errorCode(t, errResult))
				return
			}
			require.Nil(t, errResult)
			assert.Equal(t, tt.want, got)
		})
	}
}
