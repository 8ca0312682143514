package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/mysql-insight/pkg/adapters/datasource"
	"github.com/ekaya-inc/mysql-insight/pkg/logging"
	"github.com/ekaya-inc/mysql-insight/pkg/secrets"
)

// DatasourceType is the adapter every session is opened with.
const DatasourceType = "mysql"

// Target identifies which database a request addresses.
type Target struct {
	SecretName string
	Region     string
}

func (t Target) String() string {
	if t.Region == "" {
		return t.SecretName
	}
	return t.SecretName + "@" + t.Region
}

// ConnectionError is returned when credentials resolved but no session could
// be opened with them.
type ConnectionError struct {
	Target Target
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to database using secret '%s': %v", e.Target.SecretName, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// SessionProvider opens a read-only session for a target. The caller owns
// the session and must close it.
type SessionProvider interface {
	OpenSession(ctx context.Context, target Target) (datasource.Session, error)
}

type sessionProvider struct {
	store   secrets.Store
	factory datasource.DatasourceAdapterFactory
	logger  *zap.Logger
}

// NewSessionProvider resolves credentials from store and opens sessions with factory.
func NewSessionProvider(store secrets.Store, factory datasource.DatasourceAdapterFactory, logger *zap.Logger) SessionProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &sessionProvider{
		store:   store,
		factory: factory,
		logger:  logger.Named("sessions"),
	}
}

func (p *sessionProvider) OpenSession(ctx context.Context, target Target) (datasource.Session, error) {
	creds, err := p.store.Get(ctx, target.SecretName, target.Region)
	if err != nil {
		return nil, fmt.Errorf("resolve secret '%s': %w", target.SecretName, err)
	}

	session, err := p.factory.OpenSession(ctx, DatasourceType, creds.Config())
	if err != nil {
		p.logger.Warn("Failed to open session",
			zap.String("target", target.String()),
			zap.String("host", creds.Host),
			zap.String("error", logging.SanitizeError(err)))
		return nil, &ConnectionError{Target: target, Err: err}
	}

	p.logger.Debug("Session opened",
		zap.String("target", target.String()),
		zap.String("host", creds.Host),
		zap.String("database", creds.DBName))
	return session, nil
}
