// Package testhelpers provides a MySQL container for integration tests.
package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql" // registers the "mysql" database/sql driver
	"github.com/jmoiron/sqlx"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ekaya-inc/mysql-insight/pkg/retry"
)

// MySQLImage is the server image used for integration tests.
const MySQLImage = "mysql:8.0"

const (
	testDatabase = "insight_test"
	testUser     = "insight"
	testPassword = "test_password"
)

// TestDB holds a shared MySQL container seeded with a small shop schema.
type TestDB struct {
	Container testcontainers.Container
	DB        *sqlx.DB
	Host      string
	Port      int
}

// Credentials returns the config map accepted by the mysql session factory.
func (t *TestDB) Credentials() map[string]any {
	return map[string]any{
		"host":     t.Host,
		"port":     t.Port,
		"dbname":   testDatabase,
		"username": testUser,
		"password": testPassword,
	}
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a shared MySQL container for integration tests.
// The container is created once and reused across all tests in the run.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

// seedStatements builds a schema with a foreign key, a secondary index and a
// table with no primary key, so every structure report section has input.
var seedStatements = []string{
	`CREATE TABLE customers (
		id INT AUTO_INCREMENT PRIMARY KEY,
		email VARCHAR(255) NOT NULL,
		region VARCHAR(32) NULL,
		UNIQUE KEY uk_customers_email (email)
	) ENGINE=InnoDB`,
	`CREATE TABLE orders (
		id INT AUTO_INCREMENT PRIMARY KEY,
		customer_id INT NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'new',
		total DECIMAL(10,2) NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_orders_status (status),
		CONSTRAINT fk_orders_customer FOREIGN KEY (customer_id) REFERENCES customers (id) ON DELETE CASCADE
	) ENGINE=InnoDB`,
	`CREATE TABLE audit_log (
		happened_at DATETIME NOT NULL,
		message TEXT
	) ENGINE=InnoDB`,
	`INSERT INTO customers (email, region) VALUES ('a@example.com', 'west'), ('b@example.com', NULL), ('c@example.com', 'east')`,
	`INSERT INTO orders (customer_id, status, total) VALUES (1, 'new', 10.50), (1, 'paid', 99.00), (2, 'paid', 5.25), (3, 'new', 12.00)`,
	`ANALYZE TABLE customers, orders, audit_log`,
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        MySQLImage,
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": testPassword,
			"MYSQL_DATABASE":      testDatabase,
			"MYSQL_USER":          testUser,
			"MYSQL_PASSWORD":      testPassword,
		},
		WaitingFor: wait.ForListeningPort("3306/tcp").
			WithStartupTimeout(120 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "3306")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	dsn := fmt.Sprintf("root:%s@tcp(%s:%s)/%s", testPassword, host, port.Port(), testDatabase)
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	// The port opens before the entrypoint finishes creating the user.
	waitCfg := &retry.Config{MaxRetries: 30, InitialDelay: 500 * time.Millisecond, MaxDelay: 2 * time.Second, Multiplier: 1.5}
	if err := retry.Do(ctx, waitCfg, func() error { return db.PingContext(ctx) }); err != nil {
		return nil, fmt.Errorf("mysql never became ready: %w", err)
	}

	for _, stmt := range seedStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to seed test schema: %w", err)
		}
	}

	return &TestDB{
		Container: container,
		DB:        db,
		Host:      host,
		Port:      port.Int(),
	}, nil
}
