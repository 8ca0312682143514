package datasource

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// DatasourceAdapterFactory creates sessions from the registry.
type DatasourceAdapterFactory interface {
	// OpenSession opens a read-only session for the given datasource type.
	OpenSession(ctx context.Context, dsType string, config map[string]any) (Session, error)

	// ListTypes returns info for all registered adapter types.
	ListTypes() []DatasourceAdapterInfo
}

type registryFactory struct {
	opts   SessionOptions
	logger *zap.Logger
}

// NewDatasourceAdapterFactory returns a factory that uses the global registry.
func NewDatasourceAdapterFactory(opts SessionOptions, logger *zap.Logger) DatasourceAdapterFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &registryFactory{
		opts:   opts,
		logger: logger,
	}
}

func (f *registryFactory) OpenSession(ctx context.Context, dsType string, config map[string]any) (Session, error) {
	factory := GetSessionFactory(dsType)
	if factory == nil {
		return nil, fmt.Errorf("unsupported datasource type: %s (not compiled in)", dsType)
	}
	return factory(ctx, config, f.opts, f.logger)
}

func (f *registryFactory) ListTypes() []DatasourceAdapterInfo {
	return RegisteredAdapters()
}
