package services

import (
	"context"
	"strings"

	"github.com/ekaya-inc/mysql-insight/pkg/adapters/datasource"
	"github.com/ekaya-inc/mysql-insight/pkg/secrets"
)

// fakeSession answers statements from substring-keyed responses and records
// what it was asked. Unmatched statements return no rows.
type fakeSession struct {
	queries   []string
	params    [][]any
	responses []fakeResponse
	closed    int
}

type fakeResponse struct {
	contains string
	result   *datasource.QueryResult
	err      error
}

func newFakeSession() *fakeSession {
	return &fakeSession{}
}

func (s *fakeSession) on(contains string, rows ...map[string]any) *fakeSession {
	s.responses = append(s.responses, fakeResponse{contains: contains, result: &datasource.QueryResult{Rows: rows}})
	return s
}

func (s *fakeSession) onResult(contains string, result *datasource.QueryResult) *fakeSession {
	s.responses = append(s.responses, fakeResponse{contains: contains, result: result})
	return s
}

func (s *fakeSession) fail(contains string, err error) *fakeSession {
	s.responses = append(s.responses, fakeResponse{contains: contains, err: err})
	return s
}

func (s *fakeSession) Query(_ context.Context, query string, params ...any) (*datasource.QueryResult, error) {
	s.queries = append(s.queries, query)
	s.params = append(s.params, params)
	for _, r := range s.responses {
		if strings.Contains(query, r.contains) {
			if r.err != nil {
				return nil, &datasource.QueryExecutionError{Query: query, Err: r.err}
			}
			return r.result, nil
		}
	}
	return &datasource.QueryResult{Columns: []string{}, Rows: []map[string]any{}}, nil
}

func (s *fakeSession) ExecuteQuery(ctx context.Context, query string, params ...any) ([]map[string]any, error) {
	result, err := s.Query(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	return result.Rows, nil
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

func (s *fakeSession) ran(contains string) bool {
	for _, q := range s.queries {
		if strings.Contains(q, contains) {
			return true
		}
	}
	return false
}

type fakeProvider struct {
	session *fakeSession
	err     error
	opened  []Target
}

func (p *fakeProvider) OpenSession(_ context.Context, target Target) (datasource.Session, error) {
	p.opened = append(p.opened, target)
	if p.err != nil {
		return nil, p.err
	}
	return p.session, nil
}

type fakeStore struct {
	creds map[string]*secrets.Credentials
	err   error
}

func (s *fakeStore) Get(_ context.Context, name, _ string) (*secrets.Credentials, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.creds[name], nil
}

type fakeFactory struct {
	session datasource.Session
	err     error
	dsType  string
	config  map[string]any
}

func (f *fakeFactory) OpenSession(_ context.Context, dsType string, config map[string]any) (datasource.Session, error) {
	f.dsType = dsType
	f.config = config
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func (f *fakeFactory) ListTypes() []datasource.DatasourceAdapterInfo {
	return nil
}
