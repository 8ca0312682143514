package tools

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/mysql-insight/pkg/adapters/datasource"
	"github.com/ekaya-inc/mysql-insight/pkg/apperrors"
	"github.com/ekaya-inc/mysql-insight/pkg/services"
)

type analyzerCall struct {
	method  string
	target  services.Target
	query   string
	pattern string
	minMs   float64
	limit   int
	maxRows int
}

// fakeAnalyzer records calls and answers with a fixed report or error.
type fakeAnalyzer struct {
	calls  []analyzerCall
	report string
	err    error
}

func (f *fakeAnalyzer) record(c analyzerCall) (string, error) {
	f.calls = append(f.calls, c)
	return f.report, f.err
}

func (f *fakeAnalyzer) AnalyzeQuery(_ context.Context, target services.Target, query string) (string, error) {
	return f.record(analyzerCall{method: "AnalyzeQuery", target: target, query: query})
}

func (f *fakeAnalyzer) RecommendIndexes(_ context.Context, target services.Target, query string) (string, error) {
	return f.record(analyzerCall{method: "RecommendIndexes", target: target, query: query})
}

func (f *fakeAnalyzer) SuggestRewrite(_ context.Context, target services.Target, query string) (string, error) {
	return f.record(analyzerCall{method: "SuggestRewrite", target: target, query: query})
}

func (f *fakeAnalyzer) AnalyzeStructure(_ context.Context, target services.Target) (string, error) {
	return f.record(analyzerCall{method: "AnalyzeStructure", target: target})
}

func (f *fakeAnalyzer) SlowQueries(_ context.Context, target services.Target, minMs float64, limit int) (string, error) {
	return f.record(analyzerCall{method: "SlowQueries", target: target, minMs: minMs, limit: limit})
}

func (f *fakeAnalyzer) TableFragmentation(_ context.Context, target services.Target) (string, error) {
	return f.record(analyzerCall{method: "TableFragmentation", target: target})
}

func (f *fakeAnalyzer) BufferPool(_ context.Context, target services.Target) (string, error) {
	return f.record(analyzerCall{method: "BufferPool", target: target})
}

func (f *fakeAnalyzer) Settings(_ context.Context, target services.Target, pattern string) (string, error) {
	return f.record(analyzerCall{method: "Settings", target: target, pattern: pattern})
}

func (f *fakeAnalyzer) ExecuteReadOnly(_ context.Context, target services.Target, query string, maxRows int) (string, error) {
	return f.record(analyzerCall{method: "ExecuteReadOnly", target: target, query: query, maxRows: maxRows})
}

func (f *fakeAnalyzer) RunReadOnly(_ context.Context, target services.Target, query string) (*datasource.QueryResult, time.Duration, error) {
	f.calls = append(f.calls, analyzerCall{method: "RunReadOnly", target: target, query: query})
	return &datasource.QueryResult{}, 0, f.err
}

func newInsightServer(analyzer services.AnalyzerService, logger *zap.Logger) *server.MCPServer {
	s := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterInsightTools(s, &InsightToolDeps{
		Analyzer:      analyzer,
		DefaultRegion: "us-west-2",
		MaxRows:       50,
		Logger:        logger,
	})
	return s
}

var insightToolNames = []string{
	"analyze_query",
	"recommend_indexes",
	"suggest_query_rewrite",
	"analyze_database_structure",
	"get_slow_queries",
	"analyze_table_fragmentation",
	"analyze_innodb_buffer_pool",
	"show_mysql_settings",
	"execute_read_only_query",
}

func TestRegisterInsightTools_Listing(t *testing.T) {
	tools := listTools(t, newInsightServer(&fakeAnalyzer{}, nil))

	for _, name := range insightToolNames {
		tool, ok := tools[name]
		require.True(t, ok, "tool %s not registered", name)
		require.NotNil(t, tool.Annotations.ReadOnlyHint, name)
		assert.True(t, *tool.Annotations.ReadOnlyHint, name)
		require.NotNil(t, tool.Annotations.DestructiveHint, name)
		assert.False(t, *tool.Annotations.DestructiveHint, name)
		assert.Contains(t, tool.InputSchema.Required, "secret_name", name)
		assert.Contains(t, tool.InputSchema.Properties, "region_name", name)
		assert.Contains(t, tool.InputSchema.Properties["region_name"]["description"], "us-west-2", name)
	}

	for _, name := range []string{"analyze_query", "recommend_indexes", "suggest_query_rewrite", "execute_read_only_query"} {
		assert.Contains(t, tools[name].InputSchema.Required, "query", name)
	}

	slow := tools["get_slow_queries"].InputSchema.Properties
	assert.Equal(t, float64(100), slow["min_execution_time"]["default"])
	assert.Equal(t, float64(10), slow["limit"]["default"])
	assert.Equal(t, float64(50), tools["execute_read_only_query"].InputSchema.Properties["max_rows"]["default"])
}

func TestInsightTools_DispatchToAnalyzer(t *testing.T) {
	target := services.Target{SecretName: "prod_db", Region: "eu-west-1"}

	tests := []struct {
		tool string
		args map[string]any
		want analyzerCall
	}{
		{
			tool: "analyze_query",
			args: map[string]any{"query": " SELECT 1 "},
			want: analyzerCall{method: "AnalyzeQuery", target: target, query: "SELECT 1"},
		},
		{
			tool: "recommend_indexes",
			args: map[string]any{"query": "SELECT * FROM orders"},
			want: analyzerCall{method: "RecommendIndexes", target: target, query: "SELECT * FROM orders"},
		},
		{
			tool: "suggest_query_rewrite",
			args: map[string]any{"query": "SELECT * FROM orders"},
			want: analyzerCall{method: "SuggestRewrite", target: target, query: "SELECT * FROM orders"},
		},
		{
			tool: "analyze_database_structure",
			want: analyzerCall{method: "AnalyzeStructure", target: target},
		},
		{
			tool: "get_slow_queries",
			want: analyzerCall{method: "SlowQueries", target: target, minMs: 100, limit: 10},
		},
		{
			tool: "get_slow_queries",
			args: map[string]any{"min_execution_time": 2.5, "limit": float64(3)},
			want: analyzerCall{method: "SlowQueries", target: target, minMs: 2.5, limit: 3},
		},
		{
			tool: "analyze_table_fragmentation",
			want: analyzerCall{method: "TableFragmentation", target: target},
		},
		{
			tool: "analyze_innodb_buffer_pool",
			want: analyzerCall{method: "BufferPool", target: target},
		},
		{
			tool: "show_mysql_settings",
			args: map[string]any{"pattern": "buffer"},
			want: analyzerCall{method: "Settings", target: target, pattern: "buffer"},
		},
		{
			tool: "show_mysql_settings",
			want: analyzerCall{method: "Settings", target: target},
		},
		{
			tool: "execute_read_only_query",
			args: map[string]any{"query": "SHOW TABLES"},
			want: analyzerCall{method: "ExecuteReadOnly", target: target, query: "SHOW TABLES", maxRows: 50},
		},
		{
			tool: "execute_read_only_query",
			args: map[string]any{"query": "SHOW TABLES", "max_rows": float64(5)},
			want: analyzerCall{method: "ExecuteReadOnly", target: target, query: "SHOW TABLES", maxRows: 5},
		},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s %v", tt.tool, tt.args), func(t *testing.T) {
			analyzer := &fakeAnalyzer{report: "## report"}
			s := newInsightServer(analyzer, nil)

			args := map[string]any{"secret_name": "prod_db", "region_name": "eu-west-1"}
			for k, v := range tt.args {
				args[k] = v
			}

			resp := callTool(t, s, tt.tool, args)
			require.Nil(t, resp.Error)
			assert.False(t, resp.Result.IsError)
			assert.Equal(t, "## report", resp.text())
			require.Len(t, analyzer.calls, 1)
			assert.Equal(t, tt.want, analyzer.calls[0])
		})
	}
}

func TestInsightTools_InvalidParameters(t *testing.T) {
	tests := []struct {
		tool string
		args map[string]any
	}{
		{tool: "analyze_query", args: map[string]any{"query": "SELECT 1"}},
		{tool: "analyze_query", args: map[string]any{"secret_name": "prod_db"}},
		{tool: "analyze_query", args: map[string]any{"secret_name": "  ", "query": "SELECT 1"}},
		{tool: "analyze_database_structure", args: map[string]any{}},
		{tool: "get_slow_queries", args: map[string]any{"secret_name": "prod_db", "limit": float64(0)}},
		{tool: "get_slow_queries", args: map[string]any{"secret_name": "prod_db", "min_execution_time": float64(-1)}},
		{tool: "execute_read_only_query", args: map[string]any{"secret_name": "prod_db", "query": "SELECT 1", "max_rows": 1.5}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s %v", tt.tool, tt.args), func(t *testing.T) {
			analyzer := &fakeAnalyzer{}
			resp := callTool(t, newInsightServer(analyzer, nil), tt.tool, tt.args)

			assert.Equal(t, CodeInvalidParameters, resp.errorResponse(t).Code)
			assert.Empty(t, analyzer.calls)
		})
	}
}

func TestInsightTools_ErrorMapping(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		code  string
		level zapcore.Level
	}{
		{
			name:  "read only violation",
			err:   fmt.Errorf("%w: statement contains DELETE", apperrors.ErrReadOnlyViolation),
			code:  CodeReadOnlyViolation,
			level: zapcore.DebugLevel,
		},
		{
			name:  "secret not found",
			err:   fmt.Errorf("%w: prod_db", apperrors.ErrSecretNotFound),
			code:  CodeSecretNotFound,
			level: zapcore.DebugLevel,
		},
		{
			name:  "connection failure",
			err:   &services.ConnectionError{Target: services.Target{SecretName: "prod_db"}, Err: errors.New("connection refused")},
			code:  CodeConnectionFailed,
			level: zapcore.ErrorLevel,
		},
		{
			name:  "query failure",
			err:   &datasource.QueryExecutionError{Query: "SELECT 1", Err: errors.New("server has gone away")},
			code:  CodeQueryFailed,
			level: zapcore.ErrorLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			s := newInsightServer(&fakeAnalyzer{err: tt.err}, zap.New(core))

			resp := callTool(t, s, "analyze_query", map[string]any{"secret_name": "prod_db", "query": "SELECT 1"})
			assert.Equal(t, tt.code, resp.errorResponse(t).Code)

			entries := logs.FilterField(zap.String("tool", "analyze_query")).All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.level, entries[0].Level)
		})
	}
}

func TestInsightTools_UnmappedErrorIsProtocolError(t *testing.T) {
	s := newInsightServer(&fakeAnalyzer{err: errors.New("boom")}, nil)

	resp := callTool(t, s, "analyze_database_structure", map[string]any{"secret_name": "prod_db"})
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "boom")
}
