// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"admissions-engine/internal/common/config"

	_ "github.com/lib/pq"
)

// PostgresClient owns the pool the application store runs on.
type PostgresClient struct {
	DB   *sql.DB
	host string
}

// NewPostgres opens the pool. No connection is made until the first Ping or query.
func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	idle := cfg.MaxIdle
	if cfg.MaxConnections > 0 && idle > cfg.MaxConnections {
		idle = cfg.MaxConnections
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(idle)
	// records are small and writes short; recycle connections so failovers are picked up
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresClient{DB: db, host: fmt.Sprintf("%s:%d/%s", cfg.Host, cfg.Port, cfg.Database)}, nil
}

func (c *PostgresClient) Ping(ctx context.Context) error {
	if err := c.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres %s unreachable: %w", c.host, err)
	}
	return nil
}

// Stats summarizes pool usage for the readiness endpoint.
func (c *PostgresClient) Stats() map[string]string {
	s := c.DB.Stats()
	return map[string]string{
		"postgres_open":    strconv.Itoa(s.OpenConnections),
		"postgres_in_use":  strconv.Itoa(s.InUse),
		"postgres_waiting": strconv.FormatInt(s.WaitCount, 10),
	}
}

func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
