// Package tools provides the MCP tools exposed by mysql-insight.
package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/mysql-insight/pkg/logging"
	"github.com/ekaya-inc/mysql-insight/pkg/services"
)

// Tool defaults.
const (
	DefaultMinExecutionMs = 100.0
	DefaultSlowQueryLimit = 10
	DefaultMaxRows        = 100
)

// InsightToolDeps contains dependencies for the analysis tools.
type InsightToolDeps struct {
	Analyzer services.AnalyzerService
	// DefaultRegion is only shown in tool descriptions; the secret store
	// applies it.
	DefaultRegion string
	// MaxRows is the default for execute_read_only_query.
	MaxRows int
	Logger  *zap.Logger
}

// RegisterInsightTools registers every database analysis tool.
func RegisterInsightTools(s *server.MCPServer, deps *InsightToolDeps) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.MaxRows <= 0 {
		deps.MaxRows = DefaultMaxRows
	}

	registerAnalyzeQueryTool(s, deps)
	registerRecommendIndexesTool(s, deps)
	registerSuggestQueryRewriteTool(s, deps)
	registerAnalyzeDatabaseStructureTool(s, deps)
	registerGetSlowQueriesTool(s, deps)
	registerAnalyzeTableFragmentationTool(s, deps)
	registerAnalyzeBufferPoolTool(s, deps)
	registerShowMySQLSettingsTool(s, deps)
	registerExecuteReadOnlyQueryTool(s, deps)
}

// newInsightTool builds a read-only tool that takes the shared secret
// parameters plus opts.
func newInsightTool(deps *InsightToolDeps, name, description string, opts ...mcp.ToolOption) mcp.Tool {
	all := []mcp.ToolOption{mcp.WithDescription(description)}
	all = append(all, opts...)
	all = append(all, secretParams(deps.DefaultRegion)...)
	all = append(all, readOnlyAnnotations()...)
	return mcp.NewTool(name, all...)
}

// respond turns a service call into a tool result. Mapped errors become
// structured error results; anything else is returned as a Go error.
func respond(deps *InsightToolDeps, tool string, target services.Target, start time.Time, report string, err error) (*mcp.CallToolResult, error) {
	fields := []zap.Field{
		zap.String("tool", tool),
		zap.String("target", target.String()),
		zap.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		fields = append(fields, zap.String("error", logging.SanitizeError(err)))
		if IsInputError(err) {
			deps.Logger.Debug("Tool rejected input", fields...)
		} else {
			deps.Logger.Error("Tool failed", fields...)
		}
		if result := ErrorResultFor(err); result != nil {
			return result, nil
		}
		return nil, fmt.Errorf("%s: %w", tool, err)
	}

	deps.Logger.Info("Tool completed", fields...)
	return mcp.NewToolResultText(report), nil
}

func registerAnalyzeQueryTool(s *server.MCPServer, deps *InsightToolDeps) {
	tool := newInsightTool(deps, "analyze_query",
		"Analyze a read-only SQL query: execution plan, complexity score, table statistics, "+
			"columns, indexes, and detected patterns and anti-patterns. "+
			"Example: analyze_query(query='SELECT * FROM orders WHERE customer_id = 42', secret_name='prod-db').",
		mcp.WithString(
			"query",
			mcp.Required(),
			mcp.Description("The SQL statement to analyze (SELECT, SHOW, EXPLAIN or DESCRIBE)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, errResult := requireString(req, "query")
		if errResult != nil {
			return errResult, nil
		}
		target, errResult := targetFromRequest(req)
		if errResult != nil {
			return errResult, nil
		}

		start := time.Now()
		report, err := deps.Analyzer.AnalyzeQuery(ctx, target, query)
		return respond(deps, "analyze_query", target, start, report, err)
	})
}

func registerRecommendIndexesTool(s *server.MCPServer, deps *InsightToolDeps) {
	tool := newInsightTool(deps, "recommend_indexes",
		"Recommend indexes for a SQL query from its WHERE, JOIN, ORDER BY and GROUP BY columns, "+
			"checked against the indexes that already exist. Returns CREATE INDEX statements for the gaps.",
		mcp.WithString(
			"query",
			mcp.Required(),
			mcp.Description("The SQL statement to recommend indexes for"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, errResult := requireString(req, "query")
		if errResult != nil {
			return errResult, nil
		}
		target, errResult := targetFromRequest(req)
		if errResult != nil {
			return errResult, nil
		}

		start := time.Now()
		report, err := deps.Analyzer.RecommendIndexes(ctx, target, query)
		return respond(deps, "recommend_indexes", target, start, report, err)
	})
}

func registerSuggestQueryRewriteTool(s *server.MCPServer, deps *InsightToolDeps) {
	tool := newInsightTool(deps, "suggest_query_rewrite",
		"Collect the context needed to rewrite a SQL query for performance: complexity, table sizes, "+
			"column types, indexes, anti-patterns and a plan summary.",
		mcp.WithString(
			"query",
			mcp.Required(),
			mcp.Description("The SQL statement to optimize"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, errResult := requireString(req, "query")
		if errResult != nil {
			return errResult, nil
		}
		target, errResult := targetFromRequest(req)
		if errResult != nil {
			return errResult, nil
		}

		start := time.Now()
		report, err := deps.Analyzer.SuggestRewrite(ctx, target, query)
		return respond(deps, "suggest_query_rewrite", target, start, report, err)
	})
}

func registerAnalyzeDatabaseStructureTool(s *server.MCPServer, deps *InsightToolDeps) {
	tool := newInsightTool(deps, "analyze_database_structure",
		"Analyze the database schema: tables, storage engines, columns, indexes and foreign keys, "+
			"with recommendations for tables without primary keys, with many indexes, or over 100 MB.",
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		target, errResult := targetFromRequest(req)
		if errResult != nil {
			return errResult, nil
		}

		start := time.Now()
		report, err := deps.Analyzer.AnalyzeStructure(ctx, target)
		return respond(deps, "analyze_database_structure", target, start, report, err)
	})
}

func registerGetSlowQueriesTool(s *server.MCPServer, deps *InsightToolDeps) {
	tool := newInsightTool(deps, "get_slow_queries",
		"List the slowest statement digests from performance_schema with a complexity score for each. "+
			"Requires slow_query_log and performance_schema to be enabled; otherwise returns instructions to enable them.",
		mcp.WithNumber(
			"min_execution_time",
			mcp.DefaultNumber(DefaultMinExecutionMs),
			mcp.Description("Minimum average execution time in milliseconds (default: 100)"),
		),
		mcp.WithNumber(
			"limit",
			mcp.DefaultNumber(DefaultSlowQueryLimit),
			mcp.Description("Maximum number of digests to return (default: 10)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		target, errResult := targetFromRequest(req)
		if errResult != nil {
			return errResult, nil
		}

		minMs := DefaultMinExecutionMs
		if v, ok := getOptionalFloat(req, "min_execution_time"); ok {
			if v < 0 {
				return NewErrorResult(CodeInvalidParameters, "parameter 'min_execution_time' must be >= 0"), nil
			}
			minMs = v
		}
		limit, errResult := positiveInt(req, "limit", DefaultSlowQueryLimit, 1)
		if errResult != nil {
			return errResult, nil
		}

		start := time.Now()
		report, err := deps.Analyzer.SlowQueries(ctx, target, minMs, limit)
		return respond(deps, "get_slow_queries", target, start, report, err)
	})
}

func registerAnalyzeTableFragmentationTool(s *server.MCPServer, deps *InsightToolDeps) {
	tool := newInsightTool(deps, "analyze_table_fragmentation",
		"Report free space per InnoDB table and flag tables over 10 MB with more than 10% fragmentation.",
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		target, errResult := targetFromRequest(req)
		if errResult != nil {
			return errResult, nil
		}

		start := time.Now()
		report, err := deps.Analyzer.TableFragmentation(ctx, target)
		return respond(deps, "analyze_table_fragmentation", target, start, report, err)
	})
}

func registerAnalyzeBufferPoolTool(s *server.MCPServer, deps *InsightToolDeps) {
	tool := newInsightTool(deps, "analyze_innodb_buffer_pool",
		"Analyze InnoDB buffer pool configuration, usage and hit ratio, and list the tables occupying the most pages.",
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		target, errResult := targetFromRequest(req)
		if errResult != nil {
			return errResult, nil
		}

		start := time.Now()
		report, err := deps.Analyzer.BufferPool(ctx, target)
		return respond(deps, "analyze_innodb_buffer_pool", target, start, report, err)
	})
}

func registerShowMySQLSettingsTool(s *server.MCPServer, deps *InsightToolDeps) {
	tool := newInsightTool(deps, "show_mysql_settings",
		"Show server variables grouped by prefix. Optionally filter by a substring of the variable name. "+
			"Example: show_mysql_settings(pattern='buffer', secret_name='prod-db').",
		mcp.WithString(
			"pattern",
			mcp.Description("Substring of the variable name (letters, digits and underscores only)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		target, errResult := targetFromRequest(req)
		if errResult != nil {
			return errResult, nil
		}
		pattern := trimString(getOptionalString(req, "pattern"))

		start := time.Now()
		report, err := deps.Analyzer.Settings(ctx, target, pattern)
		return respond(deps, "show_mysql_settings", target, start, report, err)
	})
}

func registerExecuteReadOnlyQueryTool(s *server.MCPServer, deps *InsightToolDeps) {
	tool := newInsightTool(deps, "execute_read_only_query",
		"Execute a read-only SQL statement (SELECT, SHOW, EXPLAIN or DESCRIBE) in a read-only session "+
			"and return the rows as a markdown table.",
		mcp.WithString(
			"query",
			mcp.Required(),
			mcp.Description("The SQL statement to execute"),
		),
		mcp.WithNumber(
			"max_rows",
			mcp.DefaultNumber(float64(deps.MaxRows)),
			mcp.Description(fmt.Sprintf("Maximum number of rows to return (default: %d)", deps.MaxRows)),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, errResult := requireString(req, "query")
		if errResult != nil {
			return errResult, nil
		}
		target, errResult := targetFromRequest(req)
		if errResult != nil {
			return errResult, nil
		}
		maxRows, errResult := positiveInt(req, "max_rows", deps.MaxRows, 1)
		if errResult != nil {
			return errResult, nil
		}

		start := time.Now()
		report, err := deps.Analyzer.ExecuteReadOnly(ctx, target, query, maxRows)
		return respond(deps, "execute_read_only_query", target, start, report, err)
	})
}
