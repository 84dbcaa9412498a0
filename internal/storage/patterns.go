package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const patternColumns = `id, pattern, response_template, confidence_score, success_rate, usage_count`

// BestPatternWithin returns the pattern with the highest confidence among
// those contained in utterance. Ties go to the oldest row. Returns nil, nil
// when nothing matches.
func (s *SQLiteStorage) BestPatternWithin(ctx context.Context, utterance string) (*LearnedPattern, error) {
	if utterance == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.handle("best pattern")
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx, `
		SELECT `+patternColumns+` FROM learned_patterns
		WHERE pattern IS NOT NULL AND pattern <> '' AND instr(?, pattern) > 0
		ORDER BY confidence_score DESC, id ASC
		LIMIT 1
	`, utterance)
	p, err := scanPattern(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "best pattern", Err: err}
	}
	return p, nil
}

// ReinforcePattern runs a read-modify-write on the row for seed.Pattern in a
// single immediate transaction. If the row exists, update is applied to it;
// otherwise seed is inserted. It reports whether a row was created.
func (s *SQLiteStorage) ReinforcePattern(ctx context.Context, seed LearnedPattern, update PatternUpdate) (LearnedPattern, bool, error) {
	if seed.Pattern == "" {
		return LearnedPattern{}, false, &StorageError{Op: "reinforce pattern", Err: errors.New("empty pattern")}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.handle("reinforce pattern")
	if err != nil {
		return LearnedPattern{}, false, err
	}

	var (
		result  LearnedPattern
		created bool
	)
	err = withBusyRetry(ctx, func() error {
		var txErr error
		result, created, txErr = reinforceTx(ctx, db, seed, update)
		return txErr
	})
	if err != nil {
		return LearnedPattern{}, false, &StorageError{Op: "reinforce pattern", Err: err}
	}
	return result, created, nil
}

func reinforceTx(ctx context.Context, db *sql.DB, seed LearnedPattern, update PatternUpdate) (LearnedPattern, bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return LearnedPattern{}, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, "SELECT "+patternColumns+" FROM learned_patterns WHERE pattern = ? ORDER BY id ASC LIMIT 1", seed.Pattern)
	existing, err := scanPattern(row)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx, `
			INSERT INTO learned_patterns (pattern, response_template, confidence_score, success_rate, usage_count)
			VALUES (?, ?, ?, ?, ?)
		`, seed.Pattern, seed.ResponseTemplate, seed.ConfidenceScore, seed.SuccessRate, seed.UsageCount)
		if err != nil {
			return LearnedPattern{}, false, fmt.Errorf("insert: %w", err)
		}
		if id, err := res.LastInsertId(); err == nil {
			seed.ID = id
		}
		if err := tx.Commit(); err != nil {
			return LearnedPattern{}, false, fmt.Errorf("commit: %w", err)
		}
		return seed, true, nil

	case err != nil:
		return LearnedPattern{}, false, fmt.Errorf("select: %w", err)
	}

	if update != nil {
		update(existing)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE learned_patterns
		SET response_template = ?, confidence_score = ?, success_rate = ?, usage_count = ?
		WHERE id = ?
	`, existing.ResponseTemplate, existing.ConfidenceScore, existing.SuccessRate, existing.UsageCount, existing.ID); err != nil {
		return LearnedPattern{}, false, fmt.Errorf("update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return LearnedPattern{}, false, fmt.Errorf("commit: %w", err)
	}
	return *existing, false, nil
}

// GetPattern returns the first learned pattern with the given pattern text.
func (s *SQLiteStorage) GetPattern(ctx context.Context, pattern string) (*LearnedPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.handle("get pattern")
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx, "SELECT "+patternColumns+" FROM learned_patterns WHERE pattern = ? ORDER BY id ASC LIMIT 1", pattern)
	p, err := scanPattern(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &StorageError{Op: "get pattern", Err: fmt.Errorf("%w: %q", ErrNotFound, pattern)}
	}
	if err != nil {
		return nil, &StorageError{Op: "get pattern", Err: err}
	}
	return p, nil
}

// ListPatterns returns all patterns, highest confidence first.
func (s *SQLiteStorage) ListPatterns(ctx context.Context) ([]LearnedPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.handle("list patterns")
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+patternColumns+` FROM learned_patterns
		ORDER BY confidence_score DESC, usage_count DESC, id ASC
	`)
	if err != nil {
		return nil, &StorageError{Op: "list patterns", Err: err}
	}
	defer rows.Close()

	var patterns []LearnedPattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, &StorageError{Op: "list patterns", Err: err}
		}
		patterns = append(patterns, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list patterns", Err: err}
	}
	return patterns, nil
}

// ClearPatterns deletes all learned patterns.
func (s *SQLiteStorage) ClearPatterns(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.handle("clear patterns")
	if err != nil {
		return 0, err
	}

	var n int64
	err = withBusyRetry(ctx, func() error {
		res, execErr := db.ExecContext(ctx, "DELETE FROM learned_patterns")
		if execErr != nil {
			return execErr
		}
		n, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return 0, &StorageError{Op: "clear patterns", Err: err}
	}
	return n, nil
}

func scanPattern(row rowScanner) (*LearnedPattern, error) {
	var (
		p          LearnedPattern
		pattern    sql.NullString
		template   sql.NullString
		confidence sql.NullFloat64
		success    sql.NullFloat64
		usage      sql.NullInt64
	)
	if err := row.Scan(&p.ID, &pattern, &template, &confidence, &success, &usage); err != nil {
		return nil, err
	}
	p.Pattern = pattern.String
	p.ResponseTemplate = template.String
	p.ConfidenceScore = confidence.Float64
	p.SuccessRate = success.Float64
	p.UsageCount = usage.Int64
	return &p, nil
}
