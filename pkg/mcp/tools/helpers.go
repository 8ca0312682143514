package tools

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/mysql-insight/pkg/services"
)

// trimString removes leading and trailing whitespace from a string.
// This is a common helper used across MCP tool parameter validation.
func trimString(s string) string {
	return strings.TrimSpace(s)
}

// getOptionalString extracts an optional string argument from the request.
func getOptionalString(req mcp.CallToolRequest, key string) string {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return ""
	}
	val, ok := args[key].(string)
	if !ok {
		return ""
	}
	return val
}

// getOptionalFloat extracts an optional float argument from the request.
func getOptionalFloat(req mcp.CallToolRequest, key string) (float64, bool) {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return 0, false
	}
	val, ok := args[key].(float64)
	return val, ok
}

// requireString returns the trimmed value of a required string argument, or
// an invalid_parameters result when it is missing or blank.
func requireString(req mcp.CallToolRequest, key string) (string, *mcp.CallToolResult) {
	value, err := req.RequireString(key)
	if err != nil {
		return "", NewErrorResult(CodeInvalidParameters, fmt.Sprintf("parameter '%s' is required", key))
	}
	value = trimString(value)
	if value == "" {
		return "", NewErrorResult(CodeInvalidParameters, fmt.Sprintf("parameter '%s' cannot be empty", key))
	}
	return value, nil
}

// targetFromRequest reads secret_name and region_name. An empty region is
// resolved to the configured default by the secret store.
func targetFromRequest(req mcp.CallToolRequest) (services.Target, *mcp.CallToolResult) {
	name, errResult := requireString(req, "secret_name")
	if errResult != nil {
		return services.Target{}, errResult
	}
	return services.Target{
		SecretName: name,
		Region:     trimString(getOptionalString(req, "region_name")),
	}, nil
}

// positiveInt reads an optional whole-number argument that must be at least
// lowest, falling back to def when absent.
func positiveInt(req mcp.CallToolRequest, key string, def, lowest int) (int, *mcp.CallToolResult) {
	raw, ok := getOptionalFloat(req, key)
	if !ok {
		return def, nil
	}
	if raw != float64(int(raw)) || int(raw) < lowest {
		return 0, NewErrorResult(CodeInvalidParameters,
			fmt.Sprintf("parameter '%s' must be a whole number >= %d", key, lowest))
	}
	return int(raw), nil
}

// secretParams are shared by every tool that connects to a database.
func secretParams(defaultRegion string) []mcp.ToolOption {
	regionDesc := "Region the secret is stored in"
	if defaultRegion != "" {
		regionDesc += fmt.Sprintf(" (default: %s)", defaultRegion)
	}
	return []mcp.ToolOption{
		mcp.WithString(
			"secret_name",
			mcp.Required(),
			mcp.Description("Name of the secret holding the database credentials"),
		),
		mcp.WithString(
			"region_name",
			mcp.Description(regionDesc),
		),
	}
}

// readOnlyAnnotations mark a tool as safe to call without confirmation.
func readOnlyAnnotations() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	}
}
