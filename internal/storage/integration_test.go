package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestExistingDatabaseIsReused opens a file created with the legacy schema
// and no migration bookkeeping.
func TestExistingDatabaseIsReused(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "tetris_memory.db")

	raw, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = raw.Exec(`
		CREATE TABLE custom_commands (
			id INTEGER PRIMARY KEY,
			trigger TEXT UNIQUE,
			response TEXT,
			action_type TEXT,
			parameters TEXT,
			usage_count INTEGER DEFAULT 0,
			created_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			last_used TIMESTAMP
		)`)
	require.NoError(t, err)
	_, err = raw.Exec(`INSERT INTO custom_commands (trigger, response, action_type, parameters) VALUES ('lights off', 'Done', 'response', NULL)`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	s := NewStorage(dbPath, nil)
	require.NoError(t, s.Init())
	defer s.Close()

	cmd, err := s.GetCommand(ctx, "lights off")
	require.NoError(t, err)
	assert.Equal(t, "Done", cmd.Response)
	assert.Empty(t, cmd.Parameters)
	assert.False(t, cmd.CreatedAt.IsZero(), "CURRENT_TIMESTAMP default must parse")
}

// TestDataVersionSeesOtherConnections verifies that commits from another
// connection to the same file are visible through DataVersion.
func TestDataVersionSeesOtherConnections(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "shared.db")

	a := NewStorage(dbPath, nil)
	require.NoError(t, a.Init())
	defer a.Close()

	b := NewStorage(dbPath, nil)
	require.NoError(t, b.Init())
	defer b.Close()

	before, err := a.DataVersion(ctx)
	require.NoError(t, err)

	require.NoError(t, b.CreateCommand(ctx, &CustomCommand{Trigger: "from b", Response: "hi"}))

	after, err := a.DataVersion(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)

	cmds, err := a.ListCommands(ctx)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, "from b", cmds[0].Trigger)
}
