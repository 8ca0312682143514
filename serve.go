package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/ekaya-inc/mysql-insight/pkg/handlers"
	"github.com/ekaya-inc/mysql-insight/pkg/mcp"
	"github.com/ekaya-inc/mysql-insight/pkg/middleware"
)

const shutdownTimeout = 15 * time.Second

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func serveCmd(env *runtimeEnv) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve MCP over streamable HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Bind address (overrides bind_addr)",
			},
			&cli.StringFlag{
				Name:  "port",
				Usage: "Listen port (overrides port)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.IsSet("host") {
				env.cfg.BindAddr = c.String("host")
			}
			if c.IsSet("port") {
				env.cfg.Port = c.String("port")
			}

			s, err := env.mcpServer()
			if err != nil {
				return err
			}

			ctx, stop := signalContext(c.Context)
			defer stop()
			return env.serve(ctx, s)
		},
	}
}

// newMux mounts /health, /ping and /mcp and wraps them in request logging.
func (e *runtimeEnv) newMux(s *mcp.Server) http.Handler {
	mux := http.NewServeMux()
	handlers.NewHealthHandler(e.cfg, e.logger).RegisterRoutes(mux)
	handlers.NewMCPHandler(s, e.logger.Named("mcp-http")).RegisterRoutes(mux)
	return middleware.RequestLogger(e.logger.Named("http"))(mux)
}

// serve runs the HTTP server until ctx is done, then drains in-flight requests.
func (e *runtimeEnv) serve(ctx context.Context, s *mcp.Server) error {
	srv := &http.Server{
		Addr:              e.cfg.Addr(),
		Handler:           e.newMux(s),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      time.Duration(e.cfg.RequestTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(e.cfg.IdleTimeoutSeconds) * time.Second,
		ErrorLog:          zap.NewStdLog(e.logger.Named("http-server")),
	}

	scheme := "http"
	if e.cfg.TLSEnabled() {
		scheme = "https"
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if e.cfg.TLSEnabled() {
			err = srv.ListenAndServeTLS(e.cfg.TLSCertPath, e.cfg.TLSKeyPath)
		} else {
			err = srv.ListenAndServe()
		}
		errCh <- err
	}()

	e.logger.Info("Starting mysql-insight",
		zap.String("addr", srv.Addr),
		zap.String("scheme", scheme),
		zap.String("version", e.cfg.Version),
		zap.String("secrets_file", e.cfg.Secrets.Path),
	)
	color.New(color.FgGreen).Fprintf(os.Stderr, "MCP endpoint: %s://%s%s\n", scheme, srv.Addr, handlers.MCPPath)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	e.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
