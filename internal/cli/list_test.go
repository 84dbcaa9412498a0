package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/khanglvm/tetris/internal/storage"
)

func TestNewListCmd(t *testing.T) {
	cmd := NewListCmd()

	if cmd == nil {
		t.Fatal("NewListCmd() returned nil")
	}

	if cmd.Use != "list" {
		t.Errorf("Expected Use='list', got %q", cmd.Use)
	}

	if len(cmd.Aliases) != 1 || cmd.Aliases[0] != "ls" {
		t.Errorf("Expected Aliases=[ls], got %v", cmd.Aliases)
	}

	if cmd.Flags().Lookup("json") == nil {
		t.Error("Flag 'json' not registered")
	}
}

func TestRunListEmpty(t *testing.T) {
	a := newTestApp(t)
	out := new(bytes.Buffer)

	if err := runList(context.Background(), a, false, out); err != nil {
		t.Fatalf("runList() failed: %v", err)
	}
	assertContains(t, out.String(), "No custom commands yet.")

	out.Reset()
	if err := runList(context.Background(), a, true, out); err != nil {
		t.Fatalf("runList(json) failed: %v", err)
	}
	if strings.TrimSpace(out.String()) != "[]" {
		t.Errorf("empty JSON list = %q, want []", out.String())
	}
}

func TestRunListOrdersByUsage(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	for _, trigger := range []string{"good morning", "open music"} {
		if _, err := a.resolver.Add(ctx, storage.CustomCommand{Trigger: trigger, Response: "ok"}); err != nil {
			t.Fatalf("Add(%q) failed: %v", trigger, err)
		}
	}
	for i := 0; i < 2; i++ {
		if err := a.store.MarkCommandUsed(ctx, "open music", time.Now()); err != nil {
			t.Fatalf("MarkCommandUsed() failed: %v", err)
		}
	}

	out := new(bytes.Buffer)
	if err := runList(ctx, a, false, out); err != nil {
		t.Fatalf("runList() failed: %v", err)
	}

	output := out.String()
	assertContains(t, output, "Custom Commands (2)", "Used:     2 time(s)")
	if strings.Index(output, "open music") > strings.Index(output, "good morning") {
		t.Errorf("most used command should be listed first:\n%s", output)
	}
}
