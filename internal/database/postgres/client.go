// Package postgres persists dev-fee draw history across restarts: the
// audit trail the in-memory collision cache in internal/devfee cannot
// provide on its own once the process exits.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Client wraps a Postgres connection pool.
type Client struct {
	db *sql.DB
}

// Config holds Postgres connection configuration.
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c *Config) dsn() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// NewClient opens a Postgres connection pool and verifies connectivity.
func NewClient(cfg *Config) (*Client, error) {
	db, err := sql.Open("postgres", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open Postgres connection: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping Postgres: %w", err)
	}

	return &Client{db: db}, nil
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	return c.db.Close()
}

// Health checks Postgres connectivity.
func (c *Client) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}
