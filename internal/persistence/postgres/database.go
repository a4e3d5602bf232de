// Package postgres is the C11 persistence facade's backing store: a
// pgxpool-backed implementation of persistence.Facade over the
// `recording`/`segment`/`kv` tables (§6). Grounded on
// pkg/compliance/storage/postgres/database.go in the teacher repo: same
// pgxpool construction, same golang-migrate wiring for schema setup.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"github.com/streamkeep/streamkeep/internal/persistence"
)

// Config configures the connection pool and migration source.
type Config struct {
	DSN            string
	MaxConnections int32
	ConnectTimeout time.Duration
	MigrationsPath string // e.g. "file://internal/persistence/postgres/migrations"
}

func (c *Config) applyDefaults() {
	if c.MaxConnections == 0 {
		c.MaxConnections = 10
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.MigrationsPath == "" {
		c.MigrationsPath = "file://internal/persistence/postgres/migrations"
	}
}

// Store is the pgx-backed persistence.Facade implementation.
type Store struct {
	pool *pgxpool.Pool
	cfg  *Config
}

var _ persistence.Facade = (*Store)(nil)

// Open connects, runs migrations, and returns a ready Store.
func Open(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil || cfg.DSN == "" {
		return nil, fmt.Errorf("postgres: DSN is required")
	}
	cfg.applyDefaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConnections
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	timeoutCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(timeoutCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(timeoutCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if err := runMigrations(cfg.DSN, cfg.MigrationsPath); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return &Store{pool: pool, cfg: cfg}, nil
}

func runMigrations(dsn, migrationsPath string) error {
	m, err := migrate.New(migrationsPath, dsn)
	if err != nil {
		return fmt.Errorf("new migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
