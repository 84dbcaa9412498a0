package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestNewListenCmd(t *testing.T) {
	cmd := NewListenCmd()

	if cmd.Use != "listen" {
		t.Errorf("Expected Use='listen', got %q", cmd.Use)
	}
	flag := cmd.Flags().Lookup("queue-size")
	if flag == nil {
		t.Fatal("Flag 'queue-size' not registered")
	}
	if flag.Shorthand != "q" {
		t.Errorf("queue-size shorthand = %q, want q", flag.Shorthand)
	}
}

func TestRunListen(t *testing.T) {
	a := newTestApp(t)

	lines := []string{"what time is it", "tell me a joke", "who are you", "hello", "what is the date today"}
	out := new(bytes.Buffer)
	if err := runListen(context.Background(), a, 2, strings.NewReader(strings.Join(lines, "\n")), out); err != nil {
		t.Fatalf("runListen() failed: %v", err)
	}

	// Stop drains the queue, so every line has a reply once runListen returns.
	replies := strings.Count(out.String(), "Tetris: ")
	if replies != len(lines) {
		t.Errorf("got %d replies, want %d\n%s", replies, len(lines), out.String())
	}

	turns, err := a.store.RecentTurns(context.Background(), 0)
	if err != nil {
		t.Fatalf("RecentTurns() failed: %v", err)
	}
	if len(turns) != len(lines) {
		t.Errorf("recorded %d turns, want %d", len(turns), len(lines))
	}
}

func TestRunListenCancelled(t *testing.T) {
	a := newTestApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := runListen(ctx, a, 1, strings.NewReader("a\nb\nc\n"), new(bytes.Buffer)); err != nil {
		t.Errorf("runListen() with cancelled context = %v, want nil", err)
	}
}
