package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/khanglvm/tetris/internal/storage"
)

func TestNewExportCmd(t *testing.T) {
	cmd := NewExportCmd()

	if cmd.Use != "export" {
		t.Errorf("Expected Use='export', got %q", cmd.Use)
	}
	if cmd.Flags().Lookup("format") == nil {
		t.Error("Flag 'format' not registered")
	}
	if cmd.Flags().Lookup("output") == nil {
		t.Error("Flag 'output' not registered")
	}
	if cmd.Example == "" {
		t.Error("Command missing example usage")
	}
}

func sampleCommands() []storage.CustomCommand {
	return []storage.CustomCommand{
		{Trigger: "open music", Response: "Opening your playlist", ActionType: storage.ActionShellCommand, Parameters: "spotify"},
		{Trigger: "news", Response: "Headlines", ActionType: storage.ActionWebOpen, Parameters: "news.ycombinator.com"},
	}
}

func TestWriteCommandsJSONL(t *testing.T) {
	output := filepath.Join(t.TempDir(), "commands.jsonl")

	if err := writeCommands(sampleCommands(), output, formatJSONL); err != nil {
		t.Fatalf("writeCommands failed: %v", err)
	}

	content, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("Failed to read output: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}

	var first storage.CustomCommand
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line 1 is not valid JSON: %v", err)
	}
	if first.Trigger != "open music" {
		t.Errorf("first trigger = %q", first.Trigger)
	}
}

func TestWriteCommandsJSON(t *testing.T) {
	output := filepath.Join(t.TempDir(), "nested", "commands.json")

	if err := writeCommands(sampleCommands(), output, formatJSON); err != nil {
		t.Fatalf("writeCommands failed: %v", err)
	}

	content, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("Failed to read output: %v", err)
	}

	var cmds []storage.CustomCommand
	if err := json.Unmarshal(content, &cmds); err != nil {
		t.Fatalf("output is not a JSON array: %v", err)
	}
	if len(cmds) != 2 {
		t.Errorf("Expected 2 commands, got %d", len(cmds))
	}
}

func TestParseCommandFile(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantCount int
		wantErr   bool
	}{
		{"jsonl", "{\"trigger\":\"a\"}\n{\"trigger\":\"b\"}\n", 2, false},
		{"json array", `[{"trigger":"a"},{"trigger":"b"},{"trigger":"c"}]`, 3, false},
		{"single object", `{"trigger":"a"}`, 1, false},
		{"empty", "  \n", 0, true},
		{"broken array", `[{"trigger":"a"}`, 0, true},
		{"broken line", "{\"trigger\":\"a\"}\n{\"trigger\":", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmds, err := parseCommandFile([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseCommandFile() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(cmds) != tt.wantCount {
				t.Errorf("parseCommandFile() returned %d commands, want %d", len(cmds), tt.wantCount)
			}
		})
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	for _, c := range sampleCommands() {
		if _, err := a.resolver.Add(ctx, c); err != nil {
			t.Fatalf("Add() failed: %v", err)
		}
	}

	output := filepath.Join(t.TempDir(), "commands.jsonl")
	out := new(bytes.Buffer)
	if err := runExport(ctx, a, formatJSONL, output, out); err != nil {
		t.Fatalf("runExport() failed: %v", err)
	}
	assertContains(t, out.String(), "✓ Exported 2 command(s)")

	if _, err := os.Stat(output + ".lock"); !os.IsNotExist(err) {
		t.Error("lock file should be removed after export")
	}

	// Change one command, then import the export back over it.
	if err := a.resolver.Update(ctx, storage.CustomCommand{Trigger: "news", Response: "changed"}); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if err := a.resolver.Remove(ctx, "open music"); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	out.Reset()
	if err := runImport(ctx, a, data, out); err != nil {
		t.Fatalf("runImport() failed: %v", err)
	}
	assertContains(t, out.String(), "2 command(s): 1 new, 1 updated")

	news, err := a.resolver.Get(ctx, "news")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if news.Response != "Headlines" || news.ActionType != storage.ActionWebOpen {
		t.Errorf("import did not restore news: %+v", news)
	}
}

func TestRunExportStdout(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	out := new(bytes.Buffer)
	if err := runExport(ctx, a, formatJSON, "-", out); err != nil {
		t.Fatalf("runExport() failed: %v", err)
	}
	if strings.TrimSpace(out.String()) != "[]" {
		t.Errorf("empty export = %q, want []", out.String())
	}

	if err := runExport(ctx, a, "xml", "-", out); err == nil {
		t.Error("unknown format should fail")
	}
}

func TestFileLockIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.jsonl")

	lock, err := acquireFileLock(path)
	if err != nil {
		t.Fatalf("first acquireFileLock failed: %v", err)
	}

	if second, err := acquireFileLock(path); err == nil {
		releaseFileLock(second)
		t.Fatal("second acquireFileLock should fail while the first is held")
	}

	if err := releaseFileLock(lock); err != nil {
		t.Fatalf("releaseFileLock failed: %v", err)
	}

	again, err := acquireFileLock(path)
	if err != nil {
		t.Fatalf("acquireFileLock after release failed: %v", err)
	}
	releaseFileLock(again)
}

func TestWriteCommandsReportsWriteFailure(t *testing.T) {
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("/dev/full not available")
	}

	cmds := []storage.CustomCommand{{Trigger: "open music", Response: "Playing", ActionType: storage.ActionResponse}}
	if err := writeCommands(cmds, "/dev/full", formatJSONL); err == nil {
		t.Fatal("writeCommands() should report a failed flush")
	}
}

func TestReleaseFileLockReportsErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.jsonl")

	lock, err := acquireFileLock(path)
	if err != nil {
		t.Fatalf("acquireFileLock failed: %v", err)
	}
	if err := releaseFileLock(lock); err != nil {
		t.Fatalf("releaseFileLock failed: %v", err)
	}
	if _, err := os.Stat(path + ".lock"); !os.IsNotExist(err) {
		t.Errorf("lock file should be removed, stat err = %v", err)
	}

	if err := releaseFileLock(lock); err == nil {
		t.Error("releasing an already released lock should fail")
	}
}
