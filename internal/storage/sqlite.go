/*
Package storage provides SQLite database migrations and helper functions.

The schema keeps the column names of the original tetris_memory.db file, so
tables that already exist are left untouched and only missing indexes are
added.
*/
package storage

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// runMigrations executes database schema migrations.
func (s *SQLiteStorage) runMigrations() error {
	if !s.enabled || s.db == nil {
		return nil
	}

	if err := s.createMigrationsTable(); err != nil {
		return err
	}

	version, err := s.getCurrentMigrationVersion()
	if err != nil {
		return err
	}

	migrations := []migration{
		{version: 1, name: "memory_tables", up: s.migration001MemoryTables},
		{version: 2, name: "lookup_indexes", up: s.migration002LookupIndexes},
	}

	for _, m := range migrations {
		if version < m.version {
			s.logger.Debug("running migration", zap.Int("version", m.version), zap.String("name", m.name))
			if err := m.up(); err != nil {
				return fmt.Errorf("migration %d failed: %w", m.version, err)
			}
			if err := s.setMigrationVersion(m); err != nil {
				return err
			}
		}
	}

	return nil
}

// migration represents a single database migration.
type migration struct {
	version int
	name    string
	up      func() error
}

// createMigrationsTable creates the schema_migrations table.
func (s *SQLiteStorage) createMigrationsTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`
	_, err := s.db.Exec(query)
	return err
}

// getCurrentMigrationVersion returns the highest applied migration version.
func (s *SQLiteStorage) getCurrentMigrationVersion() (int, error) {
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")

	var version int
	if err := row.Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

// setMigrationVersion records a migration as applied.
func (s *SQLiteStorage) setMigrationVersion(m migration) error {
	_, err := s.db.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.version, m.name)
	return err
}

// migration001MemoryTables creates the four memory tables.
func (s *SQLiteStorage) migration001MemoryTables() error {
	tables := []struct {
		name string
		ddl  string
	}{
		{"custom_commands", `
			CREATE TABLE IF NOT EXISTS custom_commands (
				id INTEGER PRIMARY KEY,
				trigger TEXT UNIQUE,
				response TEXT,
				action_type TEXT,
				parameters TEXT,
				usage_count INTEGER DEFAULT 0,
				created_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				last_used TIMESTAMP
			)
		`},
		{"user_preferences", `
			CREATE TABLE IF NOT EXISTS user_preferences (
				key TEXT PRIMARY KEY,
				value TEXT,
				updated_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)
		`},
		{"conversation_memory", `
			CREATE TABLE IF NOT EXISTS conversation_memory (
				id INTEGER PRIMARY KEY,
				user_input TEXT,
				tetris_response TEXT,
				context TEXT,
				timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				importance_score INTEGER DEFAULT 1
			)
		`},
		{"learned_patterns", `
			CREATE TABLE IF NOT EXISTS learned_patterns (
				id INTEGER PRIMARY KEY,
				pattern TEXT,
				response_template TEXT,
				confidence_score REAL,
				success_rate REAL DEFAULT 0.0,
				usage_count INTEGER DEFAULT 0
			)
		`},
	}

	for _, t := range tables {
		if _, err := s.db.Exec(t.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", t.name, err)
		}
	}
	return nil
}

// migration002LookupIndexes adds indexes for the hot lookups.
// learned_patterns(pattern) is deliberately not UNIQUE: databases from
// earlier releases may already hold duplicates.
func (s *SQLiteStorage) migration002LookupIndexes() error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_learned_patterns_pattern ON learned_patterns(pattern)`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_memory_timestamp ON conversation_memory(timestamp DESC)`,
	}
	for _, ddl := range indexes {
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// nullableText maps "" to NULL.
func nullableText(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
