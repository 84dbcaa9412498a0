package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestNewVerifyCmd(t *testing.T) {
	cmd := NewVerifyCmd()

	if cmd == nil {
		t.Fatal("NewVerifyCmd() returned nil")
	}

	// Verify command properties
	if cmd.Use != "verify" {
		t.Errorf("Expected Use='verify', got %q", cmd.Use)
	}
}

func TestVerifyCommandHelp(t *testing.T) {
	output, err := execute(t, NewVerifyCmd(), "", "--help")
	if err != nil {
		t.Fatalf("Execute() with --help failed: %v", err)
	}

	assertContains(t, output, "verify", "Verify", "configuration")
}

func TestVerifyCreatesDefaultConfig(t *testing.T) {
	dir := setupEnv(t)

	output, err := execute(t, NewVerifyCmd(), "")
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	assertContains(t, output,
		"✓ Config file: "+filepath.Join(dir, "config.yaml"),
		"✓ Learning: on (threshold 0.70, policy static)",
		"✓ Database: "+filepath.Join(dir, "memory.db"),
		"Custom commands:    0 (0 uses)",
	)

	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Errorf("default config was not written: %v", err)
	}
}

func TestVerifyReportsBrokenDatabase(t *testing.T) {
	dir := setupEnv(t)

	// A regular file where the database directory should be.
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TETRIS_DB_PATH", filepath.Join(blocker, "memory.db"))

	a, err := newApp(context.Background(), appOptions{})
	if err != nil {
		t.Fatalf("newApp() should degrade, got %v", err)
	}
	defer a.Close()

	out := new(bytes.Buffer)
	if err := runVerify(context.Background(), a, out); err == nil {
		t.Error("runVerify() should fail when the database is unavailable")
	}
	assertContains(t, out.String(), "✗ Database:")
}

func TestVerifyRejectsInvalidConfig(t *testing.T) {
	dir := setupEnv(t)

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("learning:\n  threshold: 7\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := execute(t, NewVerifyCmd(), ""); err == nil {
		t.Error("verify should fail on an invalid config")
	}
}
