// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"deal-engine/internal/common/config"

	_ "github.com/lib/pq"
)

// PostgresClient holds the deal store connection pool.
type PostgresClient struct {
	DB *sql.DB
}

// NewPostgres opens the pool lazily; nothing is dialled until the first Ping
// or query.
func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres %s/%s: %w", cfg.Host, cfg.Database, err)
	}
	configurePool(db, cfg)
	return &PostgresClient{DB: db}, nil
}

func configurePool(db *sql.DB, cfg config.PostgresConfig) {
	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}
	lifetime := 5 * time.Minute
	if cfg.ConnMaxLifetime > 0 {
		lifetime = time.Duration(cfg.ConnMaxLifetime) * time.Second
	}
	db.SetConnMaxLifetime(lifetime)
	db.SetConnMaxIdleTime(lifetime)
}

func (c *PostgresClient) Ping(ctx context.Context) error {
	if err := c.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

func (c *PostgresClient) Close() error {
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
