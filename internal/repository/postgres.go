package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using Postgres through the pgx driver.
type PostgresStore struct {
	sqlStore
}

var _ Store = (*PostgresStore)(nil)

const (
	defaultDBMaxOpenConns    = 25
	defaultDBMaxIdleConns    = 10
	defaultDBConnMaxLifetime = 30 * time.Minute
	defaultDBConnMaxIdleTime = 5 * time.Minute
	defaultDBPingTimeout     = 5 * time.Second
)

// NewPostgresStore connects to Postgres and applies the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(defaultDBMaxOpenConns)
	db.SetMaxIdleConns(defaultDBMaxIdleConns)
	db.SetConnMaxLifetime(defaultDBConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultDBConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, defaultDBPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	store := &PostgresStore{sqlStore{db: db, dialect: dialect{name: "postgres", numbered: true}}}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			org_id BIGINT NOT NULL,
			agent_id BIGINT NOT NULL,
			event_name TEXT NOT NULL,
			event_property JSONB NOT NULL DEFAULT '{}'::jsonb,
			tool_name TEXT,
			tool_key TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_org_name ON events(org_id, event_name, agent_id, id)`,
		`CREATE TABLE IF NOT EXISTS toolkits (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			org_id BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (org_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS tools (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			toolkit_id BIGINT NOT NULL REFERENCES toolkits(id),
			UNIQUE (toolkit_id, name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tools_name ON tools(name)`,
		`CREATE TABLE IF NOT EXISTS tool_configs (
			toolkit_id BIGINT NOT NULL REFERENCES toolkits(id),
			key TEXT NOT NULL,
			key_type TEXT NOT NULL DEFAULT 'string',
			is_required BOOLEAN NOT NULL DEFAULT FALSE,
			is_secret BOOLEAN NOT NULL DEFAULT FALSE,
			value TEXT,
			PRIMARY KEY (toolkit_id, key)
		)`,
		`CREATE TABLE IF NOT EXISTS agents (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			org_id BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS agent_configurations (
			agent_id BIGINT NOT NULL,
			key TEXT NOT NULL,
			value TEXT,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (agent_id, key)
		)`,
		`CREATE TABLE IF NOT EXISTS configurations (
			org_id BIGINT NOT NULL,
			key TEXT NOT NULL,
			value TEXT,
			PRIMARY KEY (org_id, key)
		)`,
		`CREATE TABLE IF NOT EXISTS resources (
			id BIGSERIAL PRIMARY KEY,
			agent_id BIGINT NOT NULL,
			name TEXT NOT NULL,
			path TEXT NOT NULL,
			storage_type TEXT NOT NULL DEFAULT 'FILE',
			channel TEXT NOT NULL DEFAULT 'INPUT',
			summary TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_resources_agent ON resources(agent_id, channel)`,
		`ALTER TABLE events ADD COLUMN IF NOT EXISTS tool_name TEXT`,
		`ALTER TABLE events ADD COLUMN IF NOT EXISTS tool_key TEXT`,
		`CREATE INDEX IF NOT EXISTS idx_events_tool_key ON events(org_id, tool_key)`,
	}

	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return s.backfillToolColumns(ctx)
}
