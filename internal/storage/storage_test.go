/*
Package storage provides tests for the storage layer.
*/
package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s := NewStorage(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, s.Init())
	t.Cleanup(func() { s.Close() })
	return s
}

// TestInit verifies database initialization and schema creation.
func TestInit(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")
	s := NewStorage(dbPath, nil)
	require.NoError(t, s.Init())
	defer s.Close()

	_, err := os.Stat(dbPath)
	require.NoError(t, err, "database file not created")

	for _, table := range []string{"custom_commands", "learned_patterns", "conversation_memory", "user_preferences"} {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s missing", table)
	}

	version, err := s.getCurrentMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestCommandLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	cmd := &CustomCommand{Trigger: "open music", Response: "Opening music", ActionType: ActionResponse}
	require.NoError(t, s.CreateCommand(ctx, cmd))
	assert.NotZero(t, cmd.ID)

	got, err := s.GetCommand(ctx, "open music")
	require.NoError(t, err)
	assert.Equal(t, "Opening music", got.Response)
	assert.Equal(t, ActionResponse, got.ActionType)
	assert.EqualValues(t, 0, got.UsageCount)
	assert.Nil(t, got.LastUsed)
	assert.False(t, got.CreatedAt.IsZero())

	err = s.CreateCommand(ctx, &CustomCommand{Trigger: "open music", Response: "again"})
	assert.ErrorIs(t, err, ErrDuplicateTrigger)

	at := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	require.NoError(t, s.MarkCommandUsed(ctx, "open music", at))
	require.NoError(t, s.MarkCommandUsed(ctx, "open music", at.Add(time.Minute)))

	got, err = s.GetCommand(ctx, "open music")
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.UsageCount)
	require.NotNil(t, got.LastUsed)
	assert.True(t, got.LastUsed.Equal(at.Add(time.Minute)), "last_used = %v", got.LastUsed)

	require.NoError(t, s.UpdateCommand(ctx, &CustomCommand{Trigger: "open music", Response: "Playing", ActionType: ActionWebOpen, Parameters: "https://music.example.com"}))
	got, err = s.GetCommand(ctx, "open music")
	require.NoError(t, err)
	assert.Equal(t, "Playing", got.Response)
	assert.Equal(t, ActionWebOpen, got.ActionType)
	assert.EqualValues(t, 2, got.UsageCount, "update must keep usage statistics")

	require.NoError(t, s.DeleteCommand(ctx, "open music"))
	_, err = s.GetCommand(ctx, "open music")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteCommand(ctx, "open music"), ErrNotFound)
	assert.ErrorIs(t, s.MarkCommandUsed(ctx, "open music", at), ErrNotFound)
}

func TestCommandTriggerIgnoresCase(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	// Older databases stored triggers exactly as typed.
	require.NoError(t, s.CreateCommand(ctx, &CustomCommand{Trigger: "Open Music", Response: "Playing"}))

	err := s.CreateCommand(ctx, &CustomCommand{Trigger: "open music", Response: "again"})
	assert.ErrorIs(t, err, ErrDuplicateTrigger)

	got, err := s.GetCommand(ctx, "open music")
	require.NoError(t, err)
	assert.Equal(t, "Open Music", got.Trigger)

	at := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	require.NoError(t, s.MarkCommandUsed(ctx, "OPEN MUSIC", at))
	require.NoError(t, s.UpdateCommand(ctx, &CustomCommand{Trigger: "open music", Response: "Now playing"}))

	got, err = s.GetCommand(ctx, "Open Music")
	require.NoError(t, err)
	assert.Equal(t, "Now playing", got.Response)
	assert.Equal(t, "Open Music", got.Trigger, "update keeps the stored trigger")
	assert.EqualValues(t, 1, got.UsageCount)

	require.NoError(t, s.DeleteCommand(ctx, "open music"))
	cmds, err := s.ListCommands(ctx)
	require.NoError(t, err)
	assert.Empty(t, cmds)
}

func TestCommandCaseVariantsTargetFirstRow(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	// The trigger column is only unique byte-for-byte, so an older database
	// can hold both spellings.
	_, err := s.db.Exec(`INSERT INTO custom_commands (trigger, response, action_type, usage_count) VALUES ('Open Music', 'first', 'response', 0), ('open music', 'second', 'response', 0)`)
	require.NoError(t, err)

	require.NoError(t, s.MarkCommandUsed(ctx, "open music", time.Now()))
	got, err := s.GetCommand(ctx, "open music")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Response)
	assert.EqualValues(t, 1, got.UsageCount)

	require.NoError(t, s.DeleteCommand(ctx, "OPEN MUSIC"))
	got, err = s.GetCommand(ctx, "open music")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Response)
	assert.EqualValues(t, 0, got.UsageCount)
}

func TestCreateCommandValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	tests := []struct {
		name string
		cmd  *CustomCommand
	}{
		{"empty trigger", &CustomCommand{Trigger: "  ", Response: "x"}},
		{"shell without parameters", &CustomCommand{Trigger: "build", ActionType: ActionShellCommand}},
		{"web without parameters", &CustomCommand{Trigger: "docs", ActionType: ActionWebOpen}},
		{"unknown action", &CustomCommand{Trigger: "x", ActionType: "teleport"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, s.CreateCommand(ctx, tt.cmd), ErrInvalidCommand)
		})
	}
}

func TestListCommandsStorageOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	for _, trig := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, s.CreateCommand(ctx, &CustomCommand{Trigger: trig, Response: trig}))
	}

	cmds, err := s.ListCommands(ctx)
	require.NoError(t, err)

	var triggers []string
	for _, c := range cmds {
		triggers = append(triggers, c.Trigger)
	}
	if diff := cmp.Diff([]string{"zeta", "alpha", "mid"}, triggers); diff != "" {
		t.Errorf("ListCommands order mismatch (-want +got):\n%s", diff)
	}
}

func TestFindCommandsContaining(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	for _, trig := range []string{"open spotify", "open browser", "100%_done", "close door"} {
		require.NoError(t, s.CreateCommand(ctx, &CustomCommand{Trigger: trig, Response: "ok"}))
	}

	got, err := s.FindCommandsContaining(ctx, "open")
	require.NoError(t, err)
	assert.Equal(t, []string{"open spotify", "open browser"}, got)

	got, err = s.FindCommandsContaining(ctx, "%_")
	require.NoError(t, err)
	assert.Equal(t, []string{"100%_done"}, got, "wildcards must be literal")

	got, err = s.FindCommandsContaining(ctx, "SPOT")
	require.NoError(t, err)
	assert.Equal(t, []string{"open spotify"}, got)

	got, err = s.FindCommandsContaining(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBestPatternWithin(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	seeds := []LearnedPattern{
		{Pattern: "play some", ResponseTemplate: "low", ConfidenceScore: 0.5},
		{Pattern: "some music", ResponseTemplate: "high", ConfidenceScore: 0.9},
		{Pattern: "play some", ResponseTemplate: "dup", ConfidenceScore: 0.9},
	}
	for _, seed := range seeds {
		_, err := s.db.Exec(`INSERT INTO learned_patterns (pattern, response_template, confidence_score, success_rate, usage_count) VALUES (?, ?, ?, 0, 1)`,
			seed.Pattern, seed.ResponseTemplate, seed.ConfidenceScore)
		require.NoError(t, err)
	}

	best, err := s.BestPatternWithin(ctx, "play some music now")
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, "high", best.ResponseTemplate, "ties go to the oldest row")

	best, err = s.BestPatternWithin(ctx, "nothing relevant")
	require.NoError(t, err)
	assert.Nil(t, best)
}

func TestReinforcePattern(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	seed := LearnedPattern{Pattern: "turn on", ResponseTemplate: "Turning on", ConfidenceScore: 0.5, SuccessRate: 1, UsageCount: 1}
	bump := func(p *LearnedPattern) {
		p.UsageCount++
	}

	p, created, err := s.ReinforcePattern(ctx, seed, bump)
	require.NoError(t, err)
	assert.True(t, created)
	assert.EqualValues(t, 1, p.UsageCount)

	p, created, err = s.ReinforcePattern(ctx, seed, bump)
	require.NoError(t, err)
	assert.False(t, created)
	assert.EqualValues(t, 2, p.UsageCount)

	patterns, err := s.ListPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	if diff := cmp.Diff(p, patterns[0]); diff != "" {
		t.Errorf("stored pattern mismatch (-want +got):\n%s", diff)
	}
}

func TestReinforcePatternConcurrent(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	seed := LearnedPattern{Pattern: "what is", ResponseTemplate: "r", ConfidenceScore: 0.5, SuccessRate: 1, UsageCount: 1}

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.ReinforcePattern(ctx, seed, func(p *LearnedPattern) { p.UsageCount++ })
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p, err := s.GetPattern(ctx, "what is")
	require.NoError(t, err)
	assert.EqualValues(t, workers, p.UsageCount, "no lost updates")

	n, err := s.ClearPatterns(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestConversationMemory(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, s.AppendTurn(ctx, &ConversationTurn{UserInput: "old", SystemResponse: "r0", Context: "normal", Timestamp: old}))
	require.NoError(t, s.AppendTurn(ctx, &ConversationTurn{UserInput: "first", SystemResponse: "r1", Context: "normal"}))
	require.NoError(t, s.AppendTurn(ctx, &ConversationTurn{UserInput: "second", SystemResponse: "r2", Context: "command"}))

	turns, err := s.RecentTurns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "second", turns[0].UserInput)
	assert.Equal(t, "command", turns[0].Context)
	assert.Equal(t, 1, turns[0].ImportanceScore)
	assert.Equal(t, "first", turns[1].UserInput)

	n, err := s.PruneTurns(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	turns, err = s.RecentTurns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, turns, 2)
}

func TestPreferences(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	_, err := s.GetPreference(ctx, "learning_mode")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetPreference(ctx, "learning_mode", "true"))
	require.NoError(t, s.SetPreference(ctx, "learning_mode", "false"))
	require.NoError(t, s.SetPreference(ctx, "name", "Sam"))

	v, err := s.GetPreference(ctx, "learning_mode")
	require.NoError(t, err)
	assert.Equal(t, "false", v)

	prefs, err := s.ListPreferences(ctx)
	require.NoError(t, err)
	want := []UserPreference{{Key: "learning_mode", Value: "false"}, {Key: "name", Value: "Sam"}}
	if diff := cmp.Diff(want, prefs, cmpopts.IgnoreFields(UserPreference{}, "UpdatedAt")); diff != "" {
		t.Errorf("ListPreferences mismatch (-want +got):\n%s", diff)
	}

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, st.Preferences)
}

// TestGracefulDegradation verifies behavior when DB is unavailable.
func TestGracefulDegradation(t *testing.T) {
	ctx := context.Background()

	// A regular file in the parent path makes MkdirAll fail even for root.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	s := NewStorage(filepath.Join(blocker, "sub", "test.db"), nil)
	err := s.Init()
	require.Error(t, err)

	_, err = s.ListCommands(ctx)
	assert.True(t, IsUnavailable(err))

	var serr *StorageError
	assert.ErrorAs(t, s.AppendTurn(ctx, &ConversationTurn{UserInput: "x"}), &serr)
	assert.Equal(t, "append turn", serr.Op)

	best, err := s.BestPatternWithin(ctx, "play some music")
	assert.Nil(t, best)
	assert.True(t, IsUnavailable(err))

	// Init stays failed.
	assert.True(t, IsUnavailable(s.Init()))
}

func TestClosedStorageIsUnavailable(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.DataVersion(context.Background())
	assert.True(t, IsUnavailable(err))
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, v := range []any{want, "2024-01-02 03:04:05", []byte("2024-01-02T03:04:05Z")} {
		got, ok := parseTimestamp(v)
		assert.True(t, ok, "%T", v)
		assert.True(t, want.Equal(got), "%v", got)
	}
	_, ok := parseTimestamp(nil)
	assert.False(t, ok)
}
