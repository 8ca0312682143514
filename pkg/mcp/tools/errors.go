package tools

import (
	"encoding/json"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/mysql-insight/pkg/adapters/datasource"
	"github.com/ekaya-inc/mysql-insight/pkg/apperrors"
	"github.com/ekaya-inc/mysql-insight/pkg/logging"
	"github.com/ekaya-inc/mysql-insight/pkg/services"
	sqlutil "github.com/ekaya-inc/mysql-insight/pkg/sql"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidParameters = "invalid_parameters"
	CodeSecretNotFound    = "secret_not_found"
	CodeReadOnlyViolation = "read_only_violation"
	CodeConnectionFailed  = "connection_failed"
	CodeQueryFailed       = "query_failed"
	CodeUnsafeInput       = "unsafe_input"
)

// ErrorResponse represents a structured error in tool results.
// This is used to return actionable error information to the model
// as a tool result, ensuring error details are visible
// rather than being swallowed by the MCP client.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
//
// Example:
//
//	if secretName == "" {
//	    return NewErrorResult("invalid_parameters", "parameter 'secret_name' cannot be empty"), nil
//	}
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// mysqlUserErrors are server error numbers caused by the submitted statement
// rather than by the server or connection.
var mysqlUserErrors = map[uint16]string{
	1054: "unknown_column",
	1064: "syntax_error",
	1142: "command_denied",
	1143: "column_denied",
	1146: "unknown_table",
	1222: "column_count_mismatch",
	3024: "execution_time_exceeded",
}

// IsSQLUserError returns true if err carries a MySQL server error that the
// caller can fix by changing the statement.
func IsSQLUserError(err error) bool {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return false
	}
	_, ok := mysqlUserErrors[myErr.Number]
	return ok
}

// IsInputError returns true if the error was caused by tool input rather
// than a server failure. Input errors are logged at DEBUG, not ERROR.
func IsInputError(err error) bool {
	if err == nil {
		return false
	}
	var unsafe *sqlutil.UnsafeInputError
	switch {
	case errors.Is(err, apperrors.ErrSecretNotFound),
		errors.Is(err, apperrors.ErrReadOnlyViolation),
		errors.Is(err, apperrors.ErrMultipleStatements),
		errors.As(err, &unsafe):
		return true
	}
	return IsSQLUserError(err)
}

// ErrorResultFor maps a service error onto a structured tool result. It
// returns nil for errors with no tool-level meaning; the caller should
// return those as Go errors.
func ErrorResultFor(err error) *mcp.CallToolResult {
	if err == nil {
		return nil
	}

	var unsafe *sqlutil.UnsafeInputError
	var connErr *services.ConnectionError
	var queryErr *datasource.QueryExecutionError

	switch {
	case errors.Is(err, apperrors.ErrSecretNotFound):
		return NewErrorResult(CodeSecretNotFound, err.Error())
	case errors.Is(err, apperrors.ErrReadOnlyViolation), errors.Is(err, apperrors.ErrMultipleStatements):
		return NewErrorResult(CodeReadOnlyViolation, err.Error())
	case errors.As(err, &unsafe):
		return NewErrorResultWithDetails(CodeUnsafeInput, unsafe.Error(), map[string]any{
			"parameter": unsafe.ParamName,
		})
	case errors.As(err, &connErr):
		return NewErrorResult(CodeConnectionFailed, logging.SanitizeError(err)+". Please check your credentials.")
	case errors.Is(err, apperrors.ErrCredentialsKeyMismatch):
		return NewErrorResult(CodeConnectionFailed, err.Error())
	case errors.As(err, &queryErr):
		return NewErrorResultWithDetails(CodeQueryFailed, logging.SanitizeError(queryErr.Err), mysqlErrorDetails(err))
	}
	return nil
}

func mysqlErrorDetails(err error) map[string]any {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return nil
	}
	details := map[string]any{
		"mysql_error": myErr.Number,
		"sql_state":   string(myErr.SQLState[:]),
	}
	if kind, ok := mysqlUserErrors[myErr.Number]; ok {
		details["kind"] = kind
	}
	return details
}
