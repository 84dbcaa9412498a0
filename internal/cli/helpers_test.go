package cli

import (
	"bufio"
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// setupEnv points the config and the database at a temp directory.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TETRIS_CONFIG", filepath.Join(dir, "config.yaml"))
	t.Setenv("TETRIS_DB_PATH", filepath.Join(dir, "memory.db"))
	t.Setenv("TETRIS_LOG_LEVEL", "error")
	return dir
}

// newTestApp wires an app against a fresh temp config and database.
func newTestApp(t *testing.T) *app {
	t.Helper()
	setupEnv(t)

	a, err := newApp(context.Background(), appOptions{})
	if err != nil {
		t.Fatalf("newApp() failed: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	if err := a.requireStore(context.Background()); err != nil {
		t.Fatalf("store unavailable: %v", err)
	}
	return a
}

// execute runs cmd with args and returns combined output.
func execute(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd.SetArgs(args)

	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(stdin))

	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func assertContains(t *testing.T, output string, expected ...string) {
	t.Helper()
	for _, e := range expected {
		if !strings.Contains(output, e) {
			t.Errorf("output missing %q\noutput:\n%s", e, output)
		}
	}
}

func bufioReader(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}
