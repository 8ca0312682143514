package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/mysql-insight/pkg/adapters/datasource"
	"github.com/ekaya-inc/mysql-insight/pkg/apperrors"
	"github.com/ekaya-inc/mysql-insight/pkg/services"
	sqlutil "github.com/ekaya-inc/mysql-insight/pkg/sql"
)

func TestNewErrorResult(t *testing.T) {
	result := NewErrorResult("test_error", "this is a test error")

	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	assert.True(t, result.IsError)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(getTextContent(result)), &errResp))
	assert.True(t, errResp.Error, "error field should be true")
	assert.Equal(t, "test_error", errResp.Code)
	assert.Equal(t, "this is a test error", errResp.Message)
	assert.Nil(t, errResp.Details, "details should be nil when not provided")
}

func TestNewErrorResultWithDetails(t *testing.T) {
	result := NewErrorResultWithDetails("unsafe_input", "rejected", map[string]any{"parameter": "pattern"})

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(getTextContent(result)), &raw))
	assert.Equal(t, map[string]any{"parameter": "pattern"}, raw["details"])
}

func TestErrorResultFor(t *testing.T) {
	syntaxErr := &mysql.MySQLError{Number: 1064, SQLState: [5]byte{'4', '2', '0', '0', '0'}, Message: "You have an error in your SQL syntax"}

	tests := []struct {
		name     string
		err      error
		code     string
		contains string
		input    bool
	}{
		{
			name:  "secret not found",
			err:   fmt.Errorf("resolve secret 'x': %w", fmt.Errorf("%w: x (region us-west-2)", apperrors.ErrSecretNotFound)),
			code:  CodeSecretNotFound,
			input: true,
		},
		{
			name:     "read only violation",
			err:      fmt.Errorf("%w: statement contains DROP", apperrors.ErrReadOnlyViolation),
			code:     CodeReadOnlyViolation,
			contains: "DROP",
			input:    true,
		},
		{
			name:  "multiple statements",
			err:   apperrors.ErrMultipleStatements,
			code:  CodeReadOnlyViolation,
			input: true,
		},
		{
			name:     "unsafe input",
			err:      &sqlutil.UnsafeInputError{ParamName: "pattern", Reason: "only letters, digits and underscores are allowed"},
			code:     CodeUnsafeInput,
			contains: "pattern",
			input:    true,
		},
		{
			name:     "connection failure is sanitized",
			err:      &services.ConnectionError{Target: services.Target{SecretName: "prod_db"}, Err: errors.New("dial app:s3cret@tcp(db:3306)/shop: refused")},
			code:     CodeConnectionFailed,
			contains: "prod_db",
		},
		{
			name:     "credentials key mismatch",
			err:      fmt.Errorf("open password for secret prod_db: %w", apperrors.ErrCredentialsKeyMismatch),
			code:     CodeConnectionFailed,
			contains: "prod_db",
		},
		{
			name:     "user query error",
			err:      &datasource.QueryExecutionError{Query: "SELEC 1", Err: syntaxErr},
			code:     CodeQueryFailed,
			contains: "SQL syntax",
			input:    true,
		},
		{
			name: "server query error",
			err:  &datasource.QueryExecutionError{Query: "SELECT 1", Err: errors.New("invalid connection")},
			code: CodeQueryFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ErrorResultFor(tt.err)
			require.NotNil(t, result)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal([]byte(getTextContent(result)), &resp))
			assert.Equal(t, tt.code, resp.Code)
			assert.NotContains(t, resp.Message, "s3cret")
			if tt.contains != "" {
				assert.Contains(t, resp.Message, tt.contains)
			}
			assert.Equal(t, tt.input, IsInputError(tt.err))
		})
	}
}

func TestErrorResultFor_Unmapped(t *testing.T) {
	assert.Nil(t, ErrorResultFor(nil))
	assert.Nil(t, ErrorResultFor(errors.New("boom")))
	assert.False(t, IsInputError(errors.New("boom")))
	assert.False(t, IsInputError(nil))
}

func TestErrorResultFor_MySQLDetails(t *testing.T) {
	err := &datasource.QueryExecutionError{
		Query: "SELECT * FROM nope",
		Err:   &mysql.MySQLError{Number: 1146, SQLState: [5]byte{'4', '2', 'S', '0', '2'}, Message: "Table 'shop.nope' doesn't exist"},
	}

	var resp struct {
		Details map[string]any `json:"details"`
	}
	require.NoError(t, json.Unmarshal([]byte(getTextContent(ErrorResultFor(err))), &resp))
	assert.Equal(t, float64(1146), resp.Details["mysql_error"])
	assert.Equal(t, "42S02", resp.Details["sql_state"])
	assert.Equal(t, "unknown_table", resp.Details["kind"])
	assert.True(t, IsSQLUserError(err))
}
