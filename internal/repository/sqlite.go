package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	sqlStore
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store and applies the schema.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{sqlStore{db: db, dialect: dialect{name: "sqlite"}}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			org_id INTEGER NOT NULL,
			agent_id INTEGER NOT NULL,
			event_name TEXT NOT NULL,
			event_property TEXT NOT NULL DEFAULT '{}',
			tool_name TEXT,
			tool_key TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_org_name ON events(org_id, event_name, agent_id, id)`,
		`CREATE TABLE IF NOT EXISTS toolkits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			org_id INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (org_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS tools (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			toolkit_id INTEGER NOT NULL,
			UNIQUE (toolkit_id, name),
			FOREIGN KEY (toolkit_id) REFERENCES toolkits(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tools_name ON tools(name)`,
		`CREATE TABLE IF NOT EXISTS tool_configs (
			toolkit_id INTEGER NOT NULL,
			key TEXT NOT NULL,
			key_type TEXT NOT NULL DEFAULT 'string',
			is_required BOOLEAN NOT NULL DEFAULT 0,
			is_secret BOOLEAN NOT NULL DEFAULT 0,
			value TEXT,
			PRIMARY KEY (toolkit_id, key),
			FOREIGN KEY (toolkit_id) REFERENCES toolkits(id)
		)`,
		`CREATE TABLE IF NOT EXISTS agents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			org_id INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS agent_configurations (
			agent_id INTEGER NOT NULL,
			key TEXT NOT NULL,
			value TEXT,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (agent_id, key)
		)`,
		`CREATE TABLE IF NOT EXISTS configurations (
			org_id INTEGER NOT NULL,
			key TEXT NOT NULL,
			value TEXT,
			PRIMARY KEY (org_id, key)
		)`,
		`CREATE TABLE IF NOT EXISTS resources (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			path TEXT NOT NULL,
			storage_type TEXT NOT NULL DEFAULT 'FILE',
			channel TEXT NOT NULL DEFAULT 'INPUT',
			summary TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_resources_agent ON resources(agent_id, channel)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	// Add the tool columns to event tables created before they existed
	// (SQLite has limited ALTER TABLE support).
	if err := s.ensureColumn("events", "tool_name", "ALTER TABLE events ADD COLUMN tool_name TEXT"); err != nil {
		return err
	}
	if err := s.ensureColumn("events", "tool_key", "ALTER TABLE events ADD COLUMN tool_key TEXT"); err != nil {
		return err
	}
	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_events_tool_key ON events(org_id, tool_key)`); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return s.backfillToolColumns(context.Background())
}

func (s *SQLiteStore) ensureColumn(tableName, columnName, ddl string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == columnName {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = s.db.Exec(ddl)
	return err
}
