package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/mysql-insight/pkg/adapters/datasource"
	"github.com/ekaya-inc/mysql-insight/pkg/analysis"
	"github.com/ekaya-inc/mysql-insight/pkg/logging"
	sqlutil "github.com/ekaya-inc/mysql-insight/pkg/sql"
)

const (
	slowQueryLogStatusQuery      = "SHOW VARIABLES LIKE 'slow_query_log'"
	performanceSchemaStatusQuery = "SHOW VARIABLES LIKE 'performance_schema'"

	slowQueryDigestQuery = `SELECT
    DIGEST_TEXT AS query,
    COUNT_STAR AS calls,
    AVG_TIMER_WAIT/1000000000 AS avg_exec_time_ms,
    SUM_TIMER_WAIT/1000000000 AS total_time_ms,
    SUM_ROWS_SENT/COUNT_STAR AS avg_rows,
    MAX_TIMER_WAIT/1000000000 AS max_time_ms,
    MIN_TIMER_WAIT/1000000000 AS min_time_ms,
    SUM_ROWS_EXAMINED/COUNT_STAR AS avg_rows_examined,
    SUM_CREATED_TMP_TABLES AS tmp_tables,
    SUM_NO_INDEX_USED AS no_index_used
FROM performance_schema.events_statements_summary_by_digest
WHERE AVG_TIMER_WAIT/1000000000 >= ?
ORDER BY avg_exec_time_ms DESC
LIMIT ?`

	fragmentationQuery = `SELECT
    table_name AS table_name,
    engine AS engine,
    table_rows AS table_rows,
    data_length AS data_length,
    index_length AS index_length,
    data_free AS data_free,
    create_time AS create_time,
    update_time AS update_time
FROM information_schema.tables
WHERE table_schema = DATABASE() AND engine = 'InnoDB'
ORDER BY data_length DESC`

	bufferPoolConfigQuery = "SHOW VARIABLES WHERE Variable_name IN " +
		"('innodb_buffer_pool_size','innodb_buffer_pool_instances','innodb_buffer_pool_chunk_size','innodb_page_size')"
	bufferPoolStatusQuery    = "SHOW STATUS WHERE Variable_name LIKE 'Innodb_buffer_pool%'"
	bufferPoolTopTablesQuery = `SELECT
    table_name AS table_name,
    index_name AS index_name,
    COUNT(*) AS page_count,
    SUM(data_size)/1024/1024 AS data_size_mb
FROM information_schema.innodb_buffer_page
JOIN information_schema.innodb_buffer_page_lru USING (pool_id, block_id)
WHERE table_name IS NOT NULL AND table_name != ''
GROUP BY table_name, index_name
ORDER BY page_count DESC
LIMIT 20`
)

// variableEnabled reports whether a SHOW VARIABLES lookup returned ON.
func variableEnabled(rows []map[string]any) bool {
	if len(rows) == 0 {
		return false
	}
	value, ok := rows[0]["Value"]
	if !ok || value == nil {
		return false
	}
	return strings.EqualFold(fmt.Sprint(value), "on")
}

func (s *analyzerService) SlowQueries(ctx context.Context, target Target, minExecutionMs float64, limit int) (string, error) {
	return s.withSession(ctx, target, func(session datasource.Session) (string, error) {
		rows, err := session.ExecuteQuery(ctx, slowQueryLogStatusQuery)
		if err != nil {
			return "", err
		}
		if !variableEnabled(rows) {
			return analysis.SlowQueryLogDisabledNotice, nil
		}

		rows, err = session.ExecuteQuery(ctx, performanceSchemaStatusQuery)
		if err != nil {
			return "", err
		}
		if !variableEnabled(rows) {
			return analysis.PerformanceSchemaDisabledNotice, nil
		}

		rows, err = session.ExecuteQuery(ctx, slowQueryDigestQuery, minExecutionMs, limit)
		if err != nil {
			return "", err
		}
		return analysis.FormatSlowQueries(minExecutionMs, analysis.SlowQueriesFromRows(rows)), nil
	})
}

func (s *analyzerService) TableFragmentation(ctx context.Context, target Target) (string, error) {
	return s.withSession(ctx, target, func(session datasource.Session) (string, error) {
		rows, err := session.ExecuteQuery(ctx, fragmentationQuery)
		if err != nil {
			return "", err
		}
		return analysis.FormatFragmentation(analysis.FragmentationFromRows(rows)), nil
	})
}

func (s *analyzerService) BufferPool(ctx context.Context, target Target) (string, error) {
	return s.withSession(ctx, target, func(session datasource.Session) (string, error) {
		configRows, err := session.ExecuteQuery(ctx, bufferPoolConfigQuery)
		if err != nil {
			return "", err
		}
		statusRows, err := session.ExecuteQuery(ctx, bufferPoolStatusQuery)
		if err != nil {
			return "", err
		}

		config := analysis.SettingsFromRows(configRows)
		report := analysis.BufferPoolReport{
			Config: config,
			Status: analysis.NewBufferPoolStatus(config, analysis.SettingsFromRows(statusRows)),
		}

		// innodb_buffer_page needs PROCESS and is expensive on large pools.
		topRows, err := session.ExecuteQuery(ctx, bufferPoolTopTablesQuery)
		if err != nil {
			s.logger.Warn("Buffer pool table breakdown unavailable",
				zap.String("target", target.String()),
				zap.String("error", logging.SanitizeError(err)))
			report.TopTablesErr = err
		} else {
			report.TopTables = analysis.BufferPoolTablesFromRows(topRows)
		}

		return analysis.FormatBufferPool(report), nil
	})
}

func (s *analyzerService) Settings(ctx context.Context, target Target, pattern string) (string, error) {
	query := "SHOW VARIABLES"
	if pattern != "" {
		if err := sqlutil.ValidateLikePattern("pattern", pattern); err != nil {
			s.logger.Warn("Rejected settings pattern",
				zap.String("target", target.String()),
				zap.Error(err))
			return "", err
		}
		query = fmt.Sprintf("SHOW VARIABLES WHERE Variable_name LIKE '%%%s%%'", pattern)
	}

	return s.withSession(ctx, target, func(session datasource.Session) (string, error) {
		rows, err := session.ExecuteQuery(ctx, query)
		if err != nil {
			return "", err
		}
		return analysis.FormatSettings(pattern, analysis.SettingsFromRows(rows)), nil
	})
}

func (s *analyzerService) ExecuteReadOnly(ctx context.Context, target Target, query string, maxRows int) (string, error) {
	result, elapsed, err := s.RunReadOnly(ctx, target, query)
	if err != nil {
		return "", err
	}
	return analysis.FormatQueryResult(result, maxRows, elapsed), nil
}

func (s *analyzerService) RunReadOnly(ctx context.Context, target Target, query string) (*datasource.QueryResult, time.Duration, error) {
	normalized, err := sqlutil.ValidateReadOnly(query)
	if err != nil {
		return nil, 0, err
	}

	session, err := s.sessions.OpenSession(ctx, target)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			s.logger.Warn("Failed to close session",
				zap.String("target", target.String()),
				zap.String("error", logging.SanitizeError(cerr)))
		}
	}()

	start := time.Now()
	result, err := session.Query(ctx, normalized)
	elapsed := time.Since(start)
	if err != nil {
		return nil, elapsed, err
	}

	s.logger.Info("Read-only query executed",
		zap.String("target", target.String()),
		zap.String("query", logging.SanitizeQuery(normalized)),
		zap.Int("rows", result.RowCount()),
		zap.Duration("elapsed", elapsed))
	return result, elapsed, nil
}
