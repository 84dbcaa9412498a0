package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const commandColumns = `id, trigger, response, action_type, parameters, usage_count, created_date, last_used`

// byTrigger selects the first row, in storage order, whose trigger equals
// the argument ignoring case. Databases written by older versions may hold
// case variants of one trigger; only the first of them ever matches.
const byTrigger = `id = (SELECT id FROM custom_commands WHERE lower(trigger) = lower(?) ORDER BY id ASC LIMIT 1)`

// CreateCommand inserts a new custom command. A trigger that differs from
// an existing one only by case is a duplicate.
func (s *SQLiteStorage) CreateCommand(ctx context.Context, cmd *CustomCommand) error {
	if err := validateCommand(cmd); err != nil {
		return &StorageError{Op: "create command", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.handle("create command")
	if err != nil {
		return err
	}

	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = time.Now().UTC()
	}

	var exists bool
	if err := db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM custom_commands WHERE lower(trigger) = lower(?))", cmd.Trigger,
	).Scan(&exists); err != nil {
		return &StorageError{Op: "create command", Err: err}
	}
	if exists {
		return &StorageError{Op: "create command", Err: fmt.Errorf("%w: %q", ErrDuplicateTrigger, cmd.Trigger)}
	}

	var res sql.Result
	err = withBusyRetry(ctx, func() error {
		var execErr error
		res, execErr = db.ExecContext(ctx, `
			INSERT INTO custom_commands (trigger, response, action_type, parameters, usage_count, created_date)
			VALUES (?, ?, ?, ?, 0, ?)
		`, cmd.Trigger, cmd.Response, string(cmd.ActionType), nullableText(cmd.Parameters), formatTimestamp(cmd.CreatedAt))
		return execErr
	})
	if err != nil {
		if isUniqueError(err) {
			return &StorageError{Op: "create command", Err: fmt.Errorf("%w: %q", ErrDuplicateTrigger, cmd.Trigger)}
		}
		return &StorageError{Op: "create command", Err: err}
	}

	if id, err := res.LastInsertId(); err == nil {
		cmd.ID = id
	}
	cmd.UsageCount = 0
	cmd.LastUsed = nil
	return nil
}

// UpdateCommand replaces response, action type and parameters of cmd.Trigger,
// matched ignoring case. Usage statistics and the stored trigger are preserved.
func (s *SQLiteStorage) UpdateCommand(ctx context.Context, cmd *CustomCommand) error {
	if err := validateCommand(cmd); err != nil {
		return &StorageError{Op: "update command", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.handle("update command")
	if err != nil {
		return err
	}

	var affected int64
	err = withBusyRetry(ctx, func() error {
		res, execErr := db.ExecContext(ctx, `
			UPDATE custom_commands
			SET response = ?, action_type = ?, parameters = ?
			WHERE `+byTrigger, cmd.Response, string(cmd.ActionType), nullableText(cmd.Parameters), cmd.Trigger)
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return &StorageError{Op: "update command", Err: err}
	}
	if affected == 0 {
		return &StorageError{Op: "update command", Err: fmt.Errorf("%w: %q", ErrNotFound, cmd.Trigger)}
	}
	return nil
}

// DeleteCommand removes a custom command by trigger, matched ignoring case.
func (s *SQLiteStorage) DeleteCommand(ctx context.Context, trigger string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.handle("delete command")
	if err != nil {
		return err
	}

	var affected int64
	err = withBusyRetry(ctx, func() error {
		res, execErr := db.ExecContext(ctx, "DELETE FROM custom_commands WHERE "+byTrigger, trigger)
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return &StorageError{Op: "delete command", Err: err}
	}
	if affected == 0 {
		return &StorageError{Op: "delete command", Err: fmt.Errorf("%w: %q", ErrNotFound, trigger)}
	}
	return nil
}

// GetCommand returns a custom command by trigger, matched ignoring case.
func (s *SQLiteStorage) GetCommand(ctx context.Context, trigger string) (*CustomCommand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.handle("get command")
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx, "SELECT "+commandColumns+" FROM custom_commands WHERE "+byTrigger, trigger)
	cmd, err := scanCommand(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &StorageError{Op: "get command", Err: fmt.Errorf("%w: %q", ErrNotFound, trigger)}
	}
	if err != nil {
		return nil, &StorageError{Op: "get command", Err: err}
	}
	return cmd, nil
}

// ListCommands returns all custom commands ordered by id.
func (s *SQLiteStorage) ListCommands(ctx context.Context) ([]CustomCommand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.handle("list commands")
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, "SELECT "+commandColumns+" FROM custom_commands ORDER BY id ASC")
	if err != nil {
		return nil, &StorageError{Op: "list commands", Err: err}
	}
	defer rows.Close()

	var cmds []CustomCommand
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, &StorageError{Op: "list commands", Err: err}
		}
		cmds = append(cmds, *cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list commands", Err: err}
	}
	return cmds, nil
}

// FindCommandsContaining returns triggers containing fragment, ordered by id.
// Matching is a plain substring test, so '%' and '_' in fragment are literal.
func (s *SQLiteStorage) FindCommandsContaining(ctx context.Context, fragment string) ([]string, error) {
	if fragment == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.handle("find commands")
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT trigger FROM custom_commands
		WHERE instr(lower(trigger), ?) > 0
		ORDER BY id ASC
	`, strings.ToLower(fragment))
	if err != nil {
		return nil, &StorageError{Op: "find commands", Err: err}
	}
	defer rows.Close()

	var triggers []string
	for rows.Next() {
		var t sql.NullString
		if err := rows.Scan(&t); err != nil {
			return nil, &StorageError{Op: "find commands", Err: err}
		}
		if t.Valid && t.String != "" {
			triggers = append(triggers, t.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "find commands", Err: err}
	}
	return triggers, nil
}

// MarkCommandUsed increments usage_count and sets last_used.
func (s *SQLiteStorage) MarkCommandUsed(ctx context.Context, trigger string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.handle("mark command used")
	if err != nil {
		return err
	}

	var affected int64
	err = withBusyRetry(ctx, func() error {
		res, execErr := db.ExecContext(ctx, `
			UPDATE custom_commands
			SET usage_count = COALESCE(usage_count, 0) + 1, last_used = ?
			WHERE `+byTrigger, formatTimestamp(at), trigger)
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return &StorageError{Op: "mark command used", Err: err}
	}
	if affected == 0 {
		return &StorageError{Op: "mark command used", Err: fmt.Errorf("%w: %q", ErrNotFound, trigger)}
	}
	return nil
}

func validateCommand(cmd *CustomCommand) error {
	if cmd == nil {
		return fmt.Errorf("%w: nil command", ErrInvalidCommand)
	}
	if strings.TrimSpace(cmd.Trigger) == "" {
		return fmt.Errorf("%w: trigger is required", ErrInvalidCommand)
	}
	if cmd.ActionType == "" {
		cmd.ActionType = ActionResponse
	}
	switch cmd.ActionType {
	case ActionResponse:
	case ActionShellCommand, ActionWebOpen:
		if strings.TrimSpace(cmd.Parameters) == "" {
			return fmt.Errorf("%w: action %q requires parameters", ErrInvalidCommand, cmd.ActionType)
		}
	default:
		return fmt.Errorf("%w: unknown action type %q", ErrInvalidCommand, cmd.ActionType)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommand(row rowScanner) (*CustomCommand, error) {
	var (
		cmd        CustomCommand
		trigger    sql.NullString
		response   sql.NullString
		actionType sql.NullString
		parameters sql.NullString
		usage      sql.NullInt64
		created    any
		lastUsed   any
	)
	if err := row.Scan(&cmd.ID, &trigger, &response, &actionType, &parameters, &usage, &created, &lastUsed); err != nil {
		return nil, err
	}

	cmd.Trigger = trigger.String
	cmd.Response = response.String
	cmd.ActionType = ActionType(actionType.String)
	if cmd.ActionType == "" {
		cmd.ActionType = ActionResponse
	}
	cmd.Parameters = parameters.String
	cmd.UsageCount = usage.Int64
	if t, ok := parseTimestamp(created); ok {
		cmd.CreatedAt = t
	}
	if t, ok := parseTimestamp(lastUsed); ok {
		cmd.LastUsed = &t
	}
	return &cmd, nil
}
