package mysql

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/mysql-insight/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        "mysql",
			DisplayName: "MySQL",
			Description: "Connect to MySQL 5.7+, MySQL 8, Aurora MySQL",
		},
		SessionFactory: func(ctx context.Context, config map[string]any, opts datasource.SessionOptions, logger *zap.Logger) (datasource.Session, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return OpenSession(ctx, cfg, opts, logger)
		},
	})
}
