package analysis

import (
	"context"
	"strings"
)

// recordingExecutor records every statement and answers from a list of
// substring-keyed responses. Unmatched statements return no rows.
type recordingExecutor struct {
	queries   []string
	responses []fakeResponse
}

type fakeResponse struct {
	contains string
	rows     []map[string]any
	err      error
}

func (e *recordingExecutor) on(contains string, rows ...map[string]any) *recordingExecutor {
	e.responses = append(e.responses, fakeResponse{contains: contains, rows: rows})
	return e
}

func (e *recordingExecutor) fail(contains string, err error) *recordingExecutor {
	e.responses = append(e.responses, fakeResponse{contains: contains, err: err})
	return e
}

func (e *recordingExecutor) ExecuteQuery(_ context.Context, query string, _ ...any) ([]map[string]any, error) {
	e.queries = append(e.queries, query)
	for _, r := range e.responses {
		if strings.Contains(query, r.contains) {
			if r.err != nil {
				return nil, r.err
			}
			return r.rows, nil
		}
	}
	return []map[string]any{}, nil
}
