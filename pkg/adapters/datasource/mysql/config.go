package mysql

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/ekaya-inc/mysql-insight/pkg/config"
)

// Config contains MySQL-specific connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// DefaultPort returns the default MySQL port.
func DefaultPort() int {
	return 3306
}

// FromMap creates a Config from a generic config map. Keys follow the secret
// layout: host, port, dbname, username, password. "database" and "user" are
// accepted as aliases.
func FromMap(cfgMap map[string]any) (*Config, error) {
	cfg := &Config{Port: DefaultPort()}

	if host, ok := cfgMap["host"].(string); ok {
		cfg.Host = host
	} else {
		return nil, fmt.Errorf("host is required")
	}

	switch port := cfgMap["port"].(type) {
	case float64: // JSON numbers are float64
		cfg.Port = int(port)
	case int:
		cfg.Port = port
	case int64:
		cfg.Port = int(port)
	case string:
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid port %q: %w", port, err)
		}
		cfg.Port = p
	}

	if user, ok := cfgMap["username"].(string); ok {
		cfg.User = user
	} else if user, ok := cfgMap["user"].(string); ok {
		cfg.User = user
	} else {
		return nil, fmt.Errorf("username is required")
	}

	if password, ok := cfgMap["password"].(string); ok {
		cfg.Password = password
	}

	if database, ok := cfgMap["dbname"].(string); ok {
		cfg.Database = database
	} else if database, ok := cfgMap["database"].(string); ok {
		cfg.Database = database
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the config can produce a usable DSN.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("dbname is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	return nil
}

// DSN builds a go-sql-driver DSN. Time values are left as strings so they
// render the way MySQL prints them. When running in Docker, localhost is
// resolved to host.docker.internal.
func (c *Config) DSN(connectTimeout time.Duration) string {
	dsn := mysql.NewConfig()
	dsn.User = c.User
	dsn.Passwd = c.Password
	dsn.Net = "tcp"
	dsn.Addr = net.JoinHostPort(config.ResolveHostForDocker(c.Host), strconv.Itoa(c.Port))
	dsn.DBName = c.Database
	dsn.Timeout = connectTimeout
	dsn.ParseTime = false
	dsn.InterpolateParams = true
	return dsn.FormatDSN()
}
