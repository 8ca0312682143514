package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/ekaya-inc/mysql-insight/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/mysql-insight/pkg/adapters/datasource/mysql"
	"github.com/ekaya-inc/mysql-insight/pkg/config"
	"github.com/ekaya-inc/mysql-insight/pkg/crypto"
	"github.com/ekaya-inc/mysql-insight/pkg/logging"
	"github.com/ekaya-inc/mysql-insight/pkg/mcp"
	"github.com/ekaya-inc/mysql-insight/pkg/mcp/tools"
	"github.com/ekaya-inc/mysql-insight/pkg/output"
	"github.com/ekaya-inc/mysql-insight/pkg/secrets"
	"github.com/ekaya-inc/mysql-insight/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runtimeEnv is what Before prepares for every command.
type runtimeEnv struct {
	cfg    *config.Config
	logger *zap.Logger
}

func newApp() *cli.App {
	env := &runtimeEnv{}

	return &cli.App{
		Name:    "mysql-insight",
		Usage:   "MySQL query analysis over MCP",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.DefaultConfigPath,
				Usage:   "Path to config.yaml",
				EnvVars: []string{"MYSQL_INSIGHT_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override the configured log level (debug, info, warn, error)",
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.LoadFrom(c.String("config"), Version)
			if err != nil {
				return err
			}
			if c.IsSet("log-level") {
				cfg.LogLevel = c.String("log-level")
			}
			logger, err := logging.NewLogger(cfg.LogLevel, cfg.Env)
			if err != nil {
				return err
			}
			env.cfg = cfg
			env.logger = logger
			return nil
		},
		After: func(c *cli.Context) error {
			if env.logger != nil {
				_ = env.logger.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			serveCmd(env),
			stdioCmd(env),
			analyzeCmd(env),
			queryCmd(env),
			encryptPasswordCmd(env),
		},
	}
}

// analyzer wires the secret store, the MySQL session factory and the
// analysis service.
func (e *runtimeEnv) analyzer() (services.AnalyzerService, error) {
	var encryptor *crypto.CredentialEncryptor
	if e.cfg.Secrets.Key != "" {
		enc, err := crypto.NewCredentialEncryptor(e.cfg.Secrets.Key)
		if err != nil {
			return nil, fmt.Errorf("secrets key: %w", err)
		}
		encryptor = enc
	}

	store, err := secrets.NewFileStore(e.cfg.Secrets.Path, e.cfg.MySQL.DefaultRegion, encryptor)
	if err != nil {
		return nil, fmt.Errorf("load secrets: %w", err)
	}

	opts := datasource.SessionOptions{
		StatementTimeoutMs:    e.cfg.MySQL.StatementTimeoutMs,
		ConnectTimeoutSeconds: e.cfg.MySQL.ConnectTimeoutSeconds,
		ConnectRetries:        e.cfg.MySQL.ConnectRetries,
	}
	factory := datasource.NewDatasourceAdapterFactory(opts, e.logger)
	if err := requireAdapter(factory, services.DatasourceType); err != nil {
		return nil, err
	}
	sessions := services.NewSessionProvider(store, factory, e.logger)
	return services.NewAnalyzerService(sessions, e.logger), nil
}

// requireAdapter fails fast when the binary was built without the adapter
// sessions are opened through.
func requireAdapter(factory datasource.DatasourceAdapterFactory, dsType string) error {
	if datasource.IsRegistered(dsType) {
		return nil
	}
	available := make([]string, 0)
	for _, info := range factory.ListTypes() {
		available = append(available, info.Type)
	}
	return fmt.Errorf("%s adapter is not compiled in (available: %s)", dsType, strings.Join(available, ", "))
}

// mcpServer builds the MCP server with every tool registered.
func (e *runtimeEnv) mcpServer() (*mcp.Server, error) {
	analyzer, err := e.analyzer()
	if err != nil {
		return nil, err
	}

	s := mcp.NewServer("mysql-insight", Version, e.logger.Named("mcp"))
	tools.RegisterHealthTool(s.MCP(), Version)
	tools.RegisterInsightTools(s.MCP(), &tools.InsightToolDeps{
		Analyzer:      analyzer,
		DefaultRegion: e.cfg.MySQL.DefaultRegion,
		MaxRows:       e.cfg.MySQL.MaxRows,
		Logger:        e.logger.Named("tools"),
	})
	return s, nil
}

func (e *runtimeEnv) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, time.Duration(e.cfg.RequestTimeoutSeconds)*time.Second)
}

func secretFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "secret",
			Aliases:  []string{"s"},
			Usage:    "Name of the secret holding the database credentials",
			Required: true,
		},
		&cli.StringFlag{
			Name:    "region",
			Aliases: []string{"r"},
			Usage:   "Region the secret is stored in (defaults to mysql.default_region)",
		},
	}
}

func targetFromFlags(c *cli.Context) services.Target {
	return services.Target{SecretName: c.String("secret"), Region: c.String("region")}
}

// sqlArg joins the positional arguments so unquoted SQL works too.
func sqlArg(c *cli.Context) (string, error) {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return "", errors.New("a SQL statement is required")
	}
	return query, nil
}

func stdioCmd(env *runtimeEnv) *cli.Command {
	return &cli.Command{
		Name:  "stdio",
		Usage: "Serve MCP over stdin/stdout",
		Description: `Runs the MCP server on stdin/stdout for clients that launch it as a
subprocess. Logs go to stderr.`,
		Action: func(c *cli.Context) error {
			s, err := env.mcpServer()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(c.Context)
			defer stop()

			err = s.ServeStdio(ctx, os.Stdin, os.Stdout)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("stdio server: %w", err)
			}
			return nil
		},
	}
}

func analyzeCmd(env *runtimeEnv) *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Print an analysis report for a SQL statement",
		ArgsUsage: "SQL",
		Flags: append(secretFlags(),
			&cli.StringFlag{
				Name:  "report",
				Value: "query",
				Usage: "Report to produce: query, indexes or rewrite",
			},
		),
		Action: func(c *cli.Context) error {
			query, err := sqlArg(c)
			if err != nil {
				return err
			}
			analyzer, err := env.analyzer()
			if err != nil {
				return err
			}
			ctx, cancel := env.requestContext(c.Context)
			defer cancel()

			target := targetFromFlags(c)
			var report string
			switch c.String("report") {
			case "query":
				report, err = analyzer.AnalyzeQuery(ctx, target, query)
			case "indexes":
				report, err = analyzer.RecommendIndexes(ctx, target, query)
			case "rewrite":
				report, err = analyzer.SuggestRewrite(ctx, target, query)
			default:
				return fmt.Errorf("unknown report %q (want query, indexes or rewrite)", c.String("report"))
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.App.Writer, report)
			return err
		},
	}
}

func queryCmd(env *runtimeEnv) *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "Run a read-only statement and print the rows as a table",
		ArgsUsage: "SQL",
		Flags: append(secretFlags(),
			&cli.IntFlag{
				Name:  "max-rows",
				Usage: "Maximum rows to print (defaults to mysql.max_rows)",
			},
		),
		Action: func(c *cli.Context) error {
			query, err := sqlArg(c)
			if err != nil {
				return err
			}
			maxRows := env.cfg.MySQL.MaxRows
			if c.IsSet("max-rows") {
				if c.Int("max-rows") < 1 {
					return errors.New("--max-rows must be at least 1")
				}
				maxRows = c.Int("max-rows")
			}
			analyzer, err := env.analyzer()
			if err != nil {
				return err
			}
			ctx, cancel := env.requestContext(c.Context)
			defer cancel()

			result, elapsed, err := analyzer.RunReadOnly(ctx, targetFromFlags(c), query)
			if err != nil {
				return err
			}
			return output.RenderResultTable(c.App.Writer, result, maxRows, elapsed, !color.NoColor)
		},
	}
}

func encryptPasswordCmd(env *runtimeEnv) *cli.Command {
	return &cli.Command{
		Name:  "encrypt-password",
		Usage: "Seal a password from stdin for the secrets file",
		Description: `Reads one line from stdin and prints it sealed with SECRETS_KEY, ready to
paste into the password field of secrets.yaml:

  echo -n 's3cret' | SECRETS_KEY=... mysql-insight encrypt-password`,
		Action: func(c *cli.Context) error {
			if env.cfg.Secrets.Key == "" {
				return errors.New("SECRETS_KEY is not set")
			}
			encryptor, err := crypto.NewCredentialEncryptor(env.cfg.Secrets.Key)
			if err != nil {
				return fmt.Errorf("secrets key: %w", err)
			}
			password, err := readPassword(c.App.Reader)
			if err != nil {
				return err
			}
			sealed, err := encryptor.SealPassword(password)
			if err != nil {
				return fmt.Errorf("seal password: %w", err)
			}
			_, err = fmt.Fprintln(c.App.Writer, sealed)
			return err
		},
	}
}

func readPassword(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return "", errors.New("no password on stdin")
	}
	password := strings.TrimRight(scanner.Text(), "\r")
	if password == "" {
		return "", errors.New("password is empty")
	}
	return password, nil
}
