/*
Package storage implements the persistent memory of the engine.

It owns four tables: custom commands, learned patterns, conversation memory
and user preferences. The column sets match the tetris_memory.db file
written by earlier releases so an existing database can be opened in place.

The database uses modernc.org/sqlite (a pure Go, CGo-free implementation).
If the database cannot be opened the storage is disabled and every
operation fails with a *StorageError wrapping ErrUnavailable, which callers
treat as an empty store.
*/
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Storage defines the persistence operations used by the engine.
type Storage interface {
	// Init opens the database and runs migrations.
	Init() error

	// Close closes the database connection.
	Close() error

	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error

	// CreateCommand inserts a new custom command. The trigger must be unique.
	CreateCommand(ctx context.Context, cmd *CustomCommand) error

	// UpdateCommand replaces response, action type and parameters of an existing trigger.
	UpdateCommand(ctx context.Context, cmd *CustomCommand) error

	// DeleteCommand removes a custom command by trigger.
	DeleteCommand(ctx context.Context, trigger string) error

	// GetCommand returns a single custom command by trigger.
	GetCommand(ctx context.Context, trigger string) (*CustomCommand, error)

	// ListCommands returns all custom commands in storage (insertion) order.
	ListCommands(ctx context.Context) ([]CustomCommand, error)

	// FindCommandsContaining returns triggers that contain fragment, in storage order.
	FindCommandsContaining(ctx context.Context, fragment string) ([]string, error)

	// MarkCommandUsed increments usage_count and sets last_used for a trigger.
	MarkCommandUsed(ctx context.Context, trigger string, at time.Time) error

	// DataVersion reports a counter that changes when another connection commits.
	DataVersion(ctx context.Context) (int64, error)

	// BestPatternWithin returns the highest-confidence pattern contained in utterance,
	// or nil when none matches.
	BestPatternWithin(ctx context.Context, utterance string) (*LearnedPattern, error)

	// ReinforcePattern atomically applies update to the row for seed.Pattern,
	// or inserts seed when no such row exists.
	ReinforcePattern(ctx context.Context, seed LearnedPattern, update PatternUpdate) (LearnedPattern, bool, error)

	// GetPattern returns a learned pattern by its pattern string.
	GetPattern(ctx context.Context, pattern string) (*LearnedPattern, error)

	// ListPatterns returns all learned patterns ordered by confidence then usage.
	ListPatterns(ctx context.Context) ([]LearnedPattern, error)

	// ClearPatterns deletes every learned pattern.
	ClearPatterns(ctx context.Context) (int64, error)

	// AppendTurn appends an entry to conversation memory.
	AppendTurn(ctx context.Context, turn *ConversationTurn) error

	// RecentTurns returns up to limit turns, newest first.
	RecentTurns(ctx context.Context, limit int) ([]ConversationTurn, error)

	// PruneTurns deletes conversation memory older than before.
	PruneTurns(ctx context.Context, before time.Time) (int64, error)

	// SetPreference stores a preference (last write wins).
	SetPreference(ctx context.Context, key, value string) error

	// GetPreference returns a preference value or ErrNotFound.
	GetPreference(ctx context.Context, key string) (string, error)

	// ListPreferences returns all preferences ordered by key.
	ListPreferences(ctx context.Context) ([]UserPreference, error)

	// Stats returns row counts for every table.
	Stats(ctx context.Context) (Stats, error)
}

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	db       *sql.DB
	dbPath   string
	enabled  bool
	mu       sync.RWMutex
	initOnce sync.Once
	logger   *zap.Logger
}

// DefaultPath returns ~/.tetris/tetris_memory.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".tetris", "tetris_memory.db"), nil
}

// NewStorage creates a SQLite storage instance for dbPath.
//
// An empty dbPath selects DefaultPath. If no path can be resolved, the
// storage is created disabled and every operation reports ErrUnavailable.
func NewStorage(dbPath string, logger *zap.Logger) *SQLiteStorage {
	if logger == nil {
		logger = zap.NewNop()
	}

	if dbPath == "" {
		p, err := DefaultPath()
		if err != nil {
			logger.Warn("storage disabled", zap.Error(err))
			return &SQLiteStorage{enabled: false, logger: logger}
		}
		dbPath = p
	}

	return &SQLiteStorage{
		dbPath:  dbPath,
		enabled: true,
		logger:  logger,
	}
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.dbPath
}

// Init initializes the database and runs migrations.
//
// If initialization fails, storage is disabled and subsequent operations
// fail with ErrUnavailable (graceful degradation).
func (s *SQLiteStorage) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return &StorageError{Op: "init", Err: ErrUnavailable}
	}

	var initErr error
	s.initOnce.Do(func() {
		dbDir := filepath.Dir(s.dbPath)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			initErr = fmt.Errorf("failed to create db directory: %w", err)
			s.disable(initErr)
			return
		}

		// Immediate transactions take the write lock up front so that
		// read-modify-write units never upgrade mid-transaction.
		dsn := s.dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			initErr = fmt.Errorf("failed to open database: %w", err)
			s.disable(initErr)
			return
		}

		// A single connection serializes writers inside the process and keeps
		// PRAGMA data_version meaningful across calls.
		db.SetMaxOpenConns(1)

		if err := db.Ping(); err != nil {
			db.Close()
			initErr = fmt.Errorf("failed to ping database: %w", err)
			s.disable(initErr)
			return
		}
		s.db = db

		if err := s.runMigrations(); err != nil {
			db.Close()
			s.db = nil
			initErr = fmt.Errorf("failed to run migrations: %w", err)
			s.disable(initErr)
			return
		}
	})

	if initErr != nil {
		return &StorageError{Op: "init", Err: initErr}
	}
	return nil
}

// disable marks the storage unusable. Caller holds s.mu.
func (s *SQLiteStorage) disable(err error) {
	s.enabled = false
	s.logger.Warn("storage disabled", zap.String("path", s.dbPath), zap.Error(err))
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.db = nil
	return nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.handle("ping")
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		return &StorageError{Op: "ping", Err: err}
	}
	return nil
}

// handle returns the open database or an ErrUnavailable error. Caller holds s.mu.
func (s *SQLiteStorage) handle(op string) (*sql.DB, error) {
	if !s.enabled || s.db == nil {
		return nil, &StorageError{Op: op, Err: ErrUnavailable}
	}
	return s.db, nil
}

// DataVersion reports SQLite's data_version counter for the connection.
// The value changes whenever another connection (e.g. another process)
// commits to the database file.
func (s *SQLiteStorage) DataVersion(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.handle("data_version")
	if err != nil {
		return 0, err
	}

	var v int64
	if err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v); err != nil {
		return 0, &StorageError{Op: "data_version", Err: err}
	}
	return v, nil
}

// Stats returns row counts for every table.
func (s *SQLiteStorage) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.handle("stats")
	if err != nil {
		return Stats{}, err
	}

	var st Stats
	counts := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM custom_commands", &st.Commands},
		{"SELECT COALESCE(SUM(usage_count), 0) FROM custom_commands", &st.CommandUses},
		{"SELECT COUNT(*) FROM learned_patterns", &st.Patterns},
		{"SELECT COUNT(*) FROM conversation_memory", &st.Turns},
		{"SELECT COUNT(*) FROM user_preferences", &st.Preferences},
	}
	for _, c := range counts {
		if err := db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return Stats{}, &StorageError{Op: "stats", Err: err}
		}
	}
	return st, nil
}
