package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/khanglvm/tetris/internal/storage"
)

func TestNewCommandsCmd(t *testing.T) {
	cmd := NewCommandsCmd()

	if cmd.Use != "commands" {
		t.Errorf("Expected Use='commands', got %q", cmd.Use)
	}

	want := map[string]bool{"add": false, "edit": false, "remove": false, "list": false, "export": false, "import": false}
	for _, sub := range cmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestRunEdit(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	if _, err := a.resolver.Add(ctx, storage.CustomCommand{
		Trigger:    "open music",
		Response:   "Opening your playlist",
		ActionType: storage.ActionShellCommand,
		Parameters: "spotify",
	}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if err := a.store.MarkCommandUsed(ctx, "open music", time.Now()); err != nil {
		t.Fatalf("MarkCommandUsed() failed: %v", err)
	}

	out := new(bytes.Buffer)
	opts := editOptions{params: "rhythmbox", setParams: true}
	if err := runEdit(ctx, a, "OPEN MUSIC", opts, out); err != nil {
		t.Fatalf("runEdit() failed: %v", err)
	}
	assertContains(t, out.String(), "✓ Updated command 'open music'")

	got, err := a.resolver.Get(ctx, "open music")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Parameters != "rhythmbox" {
		t.Errorf("Parameters = %q, want rhythmbox", got.Parameters)
	}
	if got.Response != "Opening your playlist" {
		t.Errorf("Response changed to %q", got.Response)
	}
	if got.UsageCount != 1 {
		t.Errorf("UsageCount = %d, want 1 (edits keep usage)", got.UsageCount)
	}
}

func TestRunEditSwitchToResponseClearsParams(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	if _, err := a.resolver.Add(ctx, storage.CustomCommand{
		Trigger:    "news",
		ActionType: storage.ActionWebOpen,
		Parameters: "news.ycombinator.com",
	}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	opts := editOptions{action: "response", setAction: true, response: "No news today", setResponse: true}
	if err := runEdit(ctx, a, "news", opts, new(bytes.Buffer)); err != nil {
		t.Fatalf("runEdit() failed: %v", err)
	}

	got, err := a.resolver.Get(ctx, "news")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.ActionType != storage.ActionResponse || got.Parameters != "" {
		t.Errorf("got action %q params %q, want response with no params", got.ActionType, got.Parameters)
	}
}

func TestRunEditErrors(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	if err := runEdit(ctx, a, "missing", editOptions{}, new(bytes.Buffer)); err == nil {
		t.Error("edit without flags should fail")
	}
	if err := runEdit(ctx, a, "missing", editOptions{response: "x", setResponse: true}, new(bytes.Buffer)); err == nil {
		t.Error("edit of unknown trigger should fail")
	}
}
