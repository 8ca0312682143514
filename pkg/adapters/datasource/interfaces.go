package datasource

import (
	"context"
	"fmt"
	"strings"
)

// QueryExecutor runs a single read-only statement and returns one mapping per
// result row, keyed by column label.
//
// Implementations must refuse write statements (see IsWriteStatement) by
// returning an empty result without contacting the database, and must return
// a *QueryExecutionError instead of partial rows when the database call fails.
type QueryExecutor interface {
	ExecuteQuery(ctx context.Context, query string, params ...any) ([]map[string]any, error)
}

// Session is a scoped, read-only database session. It is opened per request
// and must be closed by the caller on every path.
type Session interface {
	QueryExecutor

	// Query is ExecuteQuery with column order preserved.
	Query(ctx context.Context, query string, params ...any) (*QueryResult, error)

	// Close releases the underlying connection. Safe to call more than once.
	Close() error
}

// SessionOptions tunes how a session is prepared after connecting.
type SessionOptions struct {
	// StatementTimeoutMs is applied as the session's execution-time ceiling.
	StatementTimeoutMs int
	// ConnectTimeoutSeconds bounds the initial dial.
	ConnectTimeoutSeconds int
	// ConnectRetries is the number of extra attempts for transient dial errors.
	ConnectRetries int
}

// DefaultSessionOptions returns the options used when none are configured.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		StatementTimeoutMs:    30000,
		ConnectTimeoutSeconds: 10,
		ConnectRetries:        3,
	}
}

// QueryResult holds rows with their column order.
type QueryResult struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// RowCount returns the number of rows in the result.
func (r *QueryResult) RowCount() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// QueryExecutionError wraps a driver failure for a specific statement.
type QueryExecutionError struct {
	Query string
	Err   error
}

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *QueryExecutionError) Unwrap() error {
	return e.Err
}

// writeVerbs are statement openers that are never forwarded to the database.
var writeVerbs = map[string]struct{}{
	"insert":   {},
	"update":   {},
	"delete":   {},
	"drop":     {},
	"alter":    {},
	"create":   {},
	"truncate": {},
	"grant":    {},
	"revoke":   {},
	"reset":    {},
	"load":     {},
	"optimize": {},
	"repair":   {},
	"flush":    {},
}

// IsWriteStatement reports whether the first token of the trimmed, lowercased
// statement is a data or schema modifying verb.
func IsWriteStatement(query string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(query))
	if trimmed == "" {
		return false
	}
	end := strings.IndexFunc(trimmed, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '(' || r == ';'
	})
	first := trimmed
	if end >= 0 {
		first = trimmed[:end]
	}
	_, ok := writeVerbs[first]
	return ok
}
