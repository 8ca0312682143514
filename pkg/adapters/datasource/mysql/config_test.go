package mysql

import (
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/mysql-insight/pkg/config"
)

func TestFromMap(t *testing.T) {
	tests := []struct {
		name    string
		input   map[string]any
		want    *Config
		errText string
	}{
		{
			name: "secret layout",
			input: map[string]any{
				"host": "db.internal", "port": 3307, "dbname": "shop",
				"username": "app", "password": "pw",
			},
			want: &Config{Host: "db.internal", Port: 3307, Database: "shop", User: "app", Password: "pw"},
		},
		{
			name: "json float port and aliases",
			input: map[string]any{
				"host": "db", "port": float64(3310), "database": "shop", "user": "app",
			},
			want: &Config{Host: "db", Port: 3310, Database: "shop", User: "app"},
		},
		{
			name: "string port",
			input: map[string]any{
				"host": "db", "port": "3308", "dbname": "shop", "username": "app",
			},
			want: &Config{Host: "db", Port: 3308, Database: "shop", User: "app"},
		},
		{
			name:  "default port",
			input: map[string]any{"host": "db", "dbname": "shop", "username": "app"},
			want:  &Config{Host: "db", Port: 3306, Database: "shop", User: "app"},
		},
		{
			name:    "missing host",
			input:   map[string]any{"dbname": "shop", "username": "app"},
			errText: "host is required",
		},
		{
			name:    "missing username",
			input:   map[string]any{"host": "db", "dbname": "shop"},
			errText: "username is required",
		},
		{
			name:    "missing database",
			input:   map[string]any{"host": "db", "username": "app"},
			errText: "dbname is required",
		},
		{
			name:    "bad string port",
			input:   map[string]any{"host": "db", "port": "abc", "dbname": "shop", "username": "app"},
			errText: "invalid port",
		},
		{
			name:    "port out of range",
			input:   map[string]any{"host": "db", "port": 70000, "dbname": "shop", "username": "app"},
			errText: "out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := FromMap(tt.input)
			if tt.errText != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errText)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg)
		})
	}
}

func TestConfigDSN(t *testing.T) {
	cfg := &Config{Host: "db.example.com", Port: 3307, User: "app", Password: "p@ss:word/#", Database: "shop"}

	parsed, err := mysql.ParseDSN(cfg.DSN(5 * time.Second))
	require.NoError(t, err)

	assert.Equal(t, "app", parsed.User)
	assert.Equal(t, "p@ss:word/#", parsed.Passwd)
	assert.Equal(t, "tcp", parsed.Net)
	assert.Equal(t, "db.example.com:3307", parsed.Addr)
	assert.Equal(t, "shop", parsed.DBName)
	assert.Equal(t, 5*time.Second, parsed.Timeout)
	assert.False(t, parsed.ParseTime)
	assert.True(t, parsed.InterpolateParams)
}

func TestConfigDSN_LocalhostFollowsDockerResolution(t *testing.T) {
	cfg := &Config{Host: "localhost", Port: 3306, User: "root", Database: "shop"}

	parsed, err := mysql.ParseDSN(cfg.DSN(time.Second))
	require.NoError(t, err)
	assert.Equal(t, config.ResolveHostForDocker("localhost")+":3306", parsed.Addr)
}
