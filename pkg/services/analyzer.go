// Package services runs the analysis pipeline against per-request MySQL
// sessions and renders markdown reports.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/mysql-insight/pkg/adapters/datasource"
	"github.com/ekaya-inc/mysql-insight/pkg/analysis"
	"github.com/ekaya-inc/mysql-insight/pkg/apperrors"
	"github.com/ekaya-inc/mysql-insight/pkg/logging"
	sqlutil "github.com/ekaya-inc/mysql-insight/pkg/sql"
)

// NoTablesMessage is returned when no table could be extracted from a statement.
const NoTablesMessage = "Could not identify any tables in the query. Please check the query syntax."

// AnalyzerService produces one markdown report per tool.
type AnalyzerService interface {
	AnalyzeQuery(ctx context.Context, target Target, query string) (string, error)
	RecommendIndexes(ctx context.Context, target Target, query string) (string, error)
	SuggestRewrite(ctx context.Context, target Target, query string) (string, error)
	AnalyzeStructure(ctx context.Context, target Target) (string, error)
	SlowQueries(ctx context.Context, target Target, minExecutionMs float64, limit int) (string, error)
	TableFragmentation(ctx context.Context, target Target) (string, error)
	BufferPool(ctx context.Context, target Target) (string, error)
	Settings(ctx context.Context, target Target, pattern string) (string, error)
	ExecuteReadOnly(ctx context.Context, target Target, query string, maxRows int) (string, error)

	// RunReadOnly is ExecuteReadOnly without formatting.
	RunReadOnly(ctx context.Context, target Target, query string) (*datasource.QueryResult, time.Duration, error)
}

type analyzerService struct {
	sessions SessionProvider
	logger   *zap.Logger
}

// NewAnalyzerService creates the analyzer over a session provider.
func NewAnalyzerService(sessions SessionProvider, logger *zap.Logger) AnalyzerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &analyzerService{
		sessions: sessions,
		logger:   logger.Named("analyzer"),
	}
}

// withSession opens a session for target, runs fn and closes the session on
// every path.
func (s *analyzerService) withSession(ctx context.Context, target Target, fn func(datasource.Session) (string, error)) (string, error) {
	session, err := s.sessions.OpenSession(ctx, target)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			s.logger.Warn("Failed to close session",
				zap.String("target", target.String()),
				zap.String("error", logging.SanitizeError(cerr)))
		}
	}()
	return fn(session)
}

// explain returns the decoded EXPLAIN FORMAT=JSON document. A plan that does
// not decode is returned as its raw text so the report can note it; an
// empty EXPLAIN result yields nil.
func (s *analyzerService) explain(ctx context.Context, exec datasource.QueryExecutor, query string) (any, error) {
	rows, err := exec.ExecuteQuery(ctx, "EXPLAIN FORMAT=JSON "+query)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		s.logger.Warn("EXPLAIN returned no rows", zap.String("query", logging.SanitizeQuery(query)))
		return nil, nil
	}

	raw, ok := rows[0]["EXPLAIN"]
	if !ok || raw == nil {
		s.logger.Warn("EXPLAIN result has no plan column", zap.String("query", logging.SanitizeQuery(query)))
		return nil, nil
	}
	text := fmt.Sprint(raw)
	if b, isBytes := raw.([]byte); isBytes {
		text = string(b)
	}

	var plan any
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		s.logger.Debug("EXPLAIN output is not JSON", zap.Error(err))
		return text, nil
	}
	return plan, nil
}

// explainableStatement accepts a single statement that EXPLAIN can plan.
// Literal contents are not inspected; the READ ONLY session rejects anything
// that slips past the leading keyword check.
func explainableStatement(query string) (string, error) {
	result := sqlutil.ValidateAndNormalize(query)
	if result.Error != nil {
		return "", result.Error
	}
	normalized := result.NormalizedSQL
	if normalized == "" {
		return "", fmt.Errorf("%w: empty statement", apperrors.ErrReadOnlyViolation)
	}
	if datasource.IsWriteStatement(normalized) {
		return "", fmt.Errorf("%w: write statements cannot be analyzed", apperrors.ErrReadOnlyViolation)
	}
	if !hasExplainableOpener(strings.ToLower(normalized)) {
		return "", fmt.Errorf("%w: only SELECT and WITH statements can be analyzed", apperrors.ErrReadOnlyViolation)
	}
	return normalized, nil
}

func hasExplainableOpener(lower string) bool {
	if strings.HasPrefix(lower, "(") {
		return true
	}
	for _, kw := range []string{"select", "with"} {
		if !strings.HasPrefix(lower, kw) {
			continue
		}
		if len(lower) == len(kw) {
			return true
		}
		switch lower[len(kw)] {
		case ' ', '\t', '\n', '\r', '(', '*', '`':
			return true
		}
	}
	return false
}

// attachMetadata fills the catalog facts for the statement's tables. Metadata
// errors are only recorded when a category actually failed.
func (s *analyzerService) attachMetadata(ctx context.Context, session datasource.Session, in *analysis.ReportInput) {
	if len(in.Tables) == 0 {
		return
	}
	md := analysis.NewGatherer(session, s.logger).Gather(ctx, in.Tables)
	in.Statistics = md.Statistics
	in.Columns = md.Columns
	in.Indexes = md.Indexes
	if len(md.Errors) > 0 {
		in.MetadataErrors = md.Errors
	}
}

func (s *analyzerService) AnalyzeQuery(ctx context.Context, target Target, query string) (string, error) {
	normalized, err := explainableStatement(query)
	if err != nil {
		return "", err
	}

	return s.withSession(ctx, target, func(session datasource.Session) (string, error) {
		plan, err := s.explain(ctx, session, normalized)
		if err != nil {
			return "", err
		}

		in := analysis.ReportInput{
			Statement:    normalized,
			Plan:         plan,
			Complexity:   analysis.Score(normalized),
			Patterns:     analysis.DetectPatterns(plan),
			AntiPatterns: analysis.DetectAntiPatterns(normalized),
		}

		in.Tables = analysis.ExtractTables(normalized)
		s.attachMetadata(ctx, session, &in)

		s.logger.Debug("Query analyzed",
			zap.String("target", target.String()),
			zap.Int("tables", len(in.Tables)),
			zap.Int("score", in.Complexity.Score))
		return analysis.FormatReport(in), nil
	})
}

func (s *analyzerService) RecommendIndexes(ctx context.Context, target Target, query string) (string, error) {
	normalized, err := explainableStatement(query)
	if err != nil {
		return "", err
	}

	tables := analysis.ExtractTables(normalized)
	if len(tables) == 0 {
		return NoTablesMessage, nil
	}

	return s.withSession(ctx, target, func(session datasource.Session) (string, error) {
		md := analysis.NewGatherer(session, s.logger).Gather(ctx, tables)

		plan, err := s.explain(ctx, session, normalized)
		if err != nil {
			return "", err
		}

		existing, missing := analysis.CheckExistingIndexes(analysis.ExtractIndexCandidates(normalized), md.Indexes, tables)
		return analysis.FormatIndexRecommendations(analysis.IndexReportInput{
			Statement:  normalized,
			Plan:       plan,
			Tables:     tables,
			Statistics: md.Statistics,
			Columns:    md.Columns,
			Indexes:    md.Indexes,
			Existing:   existing,
			Missing:    missing,
		}), nil
	})
}

// SuggestRewrite gathers the same facts as AnalyzeQuery and renders them as
// rewrite context for the caller.
func (s *analyzerService) SuggestRewrite(ctx context.Context, target Target, query string) (string, error) {
	normalized, err := explainableStatement(query)
	if err != nil {
		return "", err
	}

	return s.withSession(ctx, target, func(session datasource.Session) (string, error) {
		plan, err := s.explain(ctx, session, normalized)
		if err != nil {
			return "", err
		}

		in := analysis.ReportInput{
			Statement:    normalized,
			Plan:         plan,
			Tables:       analysis.ExtractTables(normalized),
			Complexity:   analysis.Score(normalized),
			AntiPatterns: analysis.DetectAntiPatterns(normalized),
		}
		s.attachMetadata(ctx, session, &in)
		return analysis.FormatRewriteContext(in), nil
	})
}

func (s *analyzerService) AnalyzeStructure(ctx context.Context, target Target) (string, error) {
	return s.withSession(ctx, target, func(session datasource.Session) (string, error) {
		structure, err := analysis.NewGatherer(session, s.logger).GetDatabaseStructure(ctx)
		if err != nil {
			return "", err
		}
		return analysis.FormatDatabaseStructure(structure), nil
	})
}
