package storage

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// AppendTurn records one interaction in conversation memory.
func (s *SQLiteStorage) AppendTurn(ctx context.Context, turn *ConversationTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.handle("append turn")
	if err != nil {
		return err
	}

	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	if turn.ImportanceScore == 0 {
		turn.ImportanceScore = 1
	}

	var res sql.Result
	err = withBusyRetry(ctx, func() error {
		var execErr error
		res, execErr = db.ExecContext(ctx, `
			INSERT INTO conversation_memory (user_input, tetris_response, context, timestamp, importance_score)
			VALUES (?, ?, ?, ?, ?)
		`, turn.UserInput, turn.SystemResponse, turn.Context, formatTimestamp(turn.Timestamp), turn.ImportanceScore)
		return execErr
	})
	if err != nil {
		return &StorageError{Op: "append turn", Err: err}
	}
	if id, err := res.LastInsertId(); err == nil {
		turn.ID = id
	}
	return nil
}

// RecentTurns returns up to limit turns, newest first. A limit <= 0 returns all.
func (s *SQLiteStorage) RecentTurns(ctx context.Context, limit int) ([]ConversationTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.handle("recent turns")
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = -1
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, user_input, tetris_response, context, timestamp, importance_score
		FROM conversation_memory
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, &StorageError{Op: "recent turns", Err: err}
	}
	defer rows.Close()

	var turns []ConversationTurn
	for rows.Next() {
		var (
			turn       ConversationTurn
			input      sql.NullString
			response   sql.NullString
			turnCtx    sql.NullString
			ts         any
			importance sql.NullInt64
		)
		if err := rows.Scan(&turn.ID, &input, &response, &turnCtx, &ts, &importance); err != nil {
			return nil, &StorageError{Op: "recent turns", Err: err}
		}
		turn.UserInput = input.String
		turn.SystemResponse = response.String
		turn.Context = turnCtx.String
		turn.ImportanceScore = int(importance.Int64)
		if t, ok := parseTimestamp(ts); ok {
			turn.Timestamp = t
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "recent turns", Err: err}
	}
	return turns, nil
}

// PruneTurns removes conversation memory older than before and reclaims space.
func (s *SQLiteStorage) PruneTurns(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.handle("prune turns")
	if err != nil {
		return 0, err
	}

	var n int64
	err = withBusyRetry(ctx, func() error {
		res, execErr := db.ExecContext(ctx, "DELETE FROM conversation_memory WHERE timestamp < ?", formatTimestamp(before))
		if execErr != nil {
			return execErr
		}
		n, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return 0, &StorageError{Op: "prune turns", Err: err}
	}

	if n > 0 {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			s.logger.Warn("failed to vacuum database", zap.Error(err))
		}
	}
	return n, nil
}
