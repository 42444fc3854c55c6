package database

import (
	"context"
	"database/sql"
	"time"

	"service-intake/internal/common/config"
	"service-intake/internal/common/errors"

	_ "github.com/lib/pq"
)

// PostgresClient holds the pool shared by the catalog tables and the audit
// trail.
type PostgresClient struct {
	DB *sql.DB
}

// NewPostgres opens the pool. No connection is made until the first query or
// Ping; startup pings in a retry loop.
func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, errors.NewDatabaseError("open postgres", err)
	}
	configurePool(db, cfg)
	return &PostgresClient{DB: db}, nil
}

func configurePool(db *sql.DB, cfg config.PostgresConfig) {
	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
	}
	idle := cfg.MaxIdle
	if cfg.MaxConnections > 0 && idle > cfg.MaxConnections {
		idle = cfg.MaxConnections
	}
	db.SetMaxIdleConns(idle)
	if cfg.ConnMaxLifetime > 0 {
		lifetime := time.Duration(cfg.ConnMaxLifetime) * time.Second
		db.SetConnMaxLifetime(lifetime)
		db.SetConnMaxIdleTime(lifetime / 2)
	}
}

// Ping is also the reconnect probe of database failure recovery.
func (c *PostgresClient) Ping(ctx context.Context) error {
	if c == nil || c.DB == nil {
		return errors.NewDatabaseError("ping postgres", sql.ErrConnDone)
	}
	if err := c.DB.PingContext(ctx); err != nil {
		return errors.NewDatabaseError("ping postgres", err)
	}
	return nil
}

func (c *PostgresClient) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
