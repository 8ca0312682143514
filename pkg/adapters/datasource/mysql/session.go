package mysql

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ekaya-inc/mysql-insight/pkg/adapters/datasource"
	"github.com/ekaya-inc/mysql-insight/pkg/logging"
	"github.com/ekaya-inc/mysql-insight/pkg/retry"
)

// Session is a read-only MySQL session pinned to a single connection.
type Session struct {
	db     *sqlx.DB
	conn   *sqlx.Conn
	logger *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// openDB is replaced in tests.
var openDB = func(dsn string) (*sqlx.DB, error) {
	return sqlx.Open("mysql", dsn)
}

// OpenSession connects to MySQL and prepares a read-only session:
// one connection, READ ONLY transactions, and a statement time ceiling.
// Transient connection failures are retried with backoff.
func OpenSession(ctx context.Context, cfg *Config, opts datasource.SessionOptions, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mysql config: %w", err)
	}

	logger = logger.With(
		zap.String("session_id", uuid.NewString()),
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
	)

	dsn := cfg.DSN(time.Duration(opts.ConnectTimeoutSeconds) * time.Second)
	db, err := openDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %s", logging.SanitizeDSN(err.Error()))
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	var conn *sqlx.Conn
	retryCfg := retry.WithMaxRetries(retry.DefaultConfig(), opts.ConnectRetries)
	err = retry.DoIfRetryable(ctx, retryCfg, func() error {
		c, connErr := db.Connx(ctx)
		if connErr != nil {
			logger.Debug("MySQL connect attempt failed",
				zap.String("error", logging.SanitizeError(connErr)))
			return connErr
		}
		conn = c
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to mysql: %w", err)
	}

	s := &Session{db: db, conn: conn, logger: logger}

	setup := []string{"SET SESSION TRANSACTION READ ONLY"}
	if opts.StatementTimeoutMs > 0 {
		setup = append(setup, fmt.Sprintf("SET SESSION MAX_EXECUTION_TIME=%d", opts.StatementTimeoutMs))
	}
	for _, stmt := range setup {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("prepare session (%s): %w", stmt, err)
		}
	}

	logger.Debug("MySQL session opened",
		zap.Int("statement_timeout_ms", opts.StatementTimeoutMs))
	return s, nil
}

// ExecuteQuery runs a read-only statement and returns one map per row.
func (s *Session) ExecuteQuery(ctx context.Context, query string, params ...any) ([]map[string]any, error) {
	result, err := s.Query(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	return result.Rows, nil
}

// Query runs a read-only statement and returns rows with column order.
// Write statements are refused with an empty result and never reach the server.
func (s *Session) Query(ctx context.Context, query string, params ...any) (*datasource.QueryResult, error) {
	if datasource.IsWriteStatement(query) {
		s.logger.Warn("Refusing write statement on read-only session",
			zap.String("query", logging.SanitizeQuery(query)))
		return &datasource.QueryResult{Columns: []string{}, Rows: []map[string]any{}}, nil
	}
	if s.conn == nil {
		return nil, &datasource.QueryExecutionError{Query: query, Err: errors.New("session is closed")}
	}

	start := time.Now()
	rows, err := s.conn.QueryxContext(ctx, query, params...)
	if err != nil {
		return nil, s.queryFailed(query, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, s.queryFailed(query, err)
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		row := make(map[string]any, len(columns))
		if err := rows.MapScan(row); err != nil {
			return nil, s.queryFailed(query, err)
		}
		normalizeRow(row)
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, s.queryFailed(query, err)
	}

	s.logger.Debug("Query executed",
		zap.String("query", logging.SanitizeQuery(query)),
		zap.Int("rows", len(resultRows)),
		zap.Duration("elapsed", time.Since(start)))

	return &datasource.QueryResult{Columns: columns, Rows: resultRows}, nil
}

func (s *Session) queryFailed(query string, err error) error {
	s.logger.Error("Query failed",
		zap.String("query", logging.SanitizeQuery(query)),
		zap.String("error", logging.SanitizeError(err)))
	return &datasource.QueryExecutionError{Query: query, Err: err}
}

// normalizeRow converts driver byte slices to strings. go-sql-driver returns
// text-protocol values as []byte.
func normalizeRow(row map[string]any) {
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			row[k] = string(b)
		}
	}
}

// Close releases the pinned connection and the handle. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.conn != nil {
			if err := s.conn.Close(); err != nil {
				errs = append(errs, err)
			}
			s.conn = nil
		}
		if s.db != nil {
			if err := s.db.Close(); err != nil {
				errs = append(errs, err)
			}
			s.db = nil
		}
		s.closeErr = errors.Join(errs...)
		s.logger.Debug("MySQL session closed")
	})
	return s.closeErr
}

var _ datasource.Session = (*Session)(nil)
