package suggest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/khanglvm/tetris/internal/storage"
)

type fakeLister struct {
	cmds []storage.CustomCommand
	err  error
}

func (f *fakeLister) List(context.Context) ([]storage.CustomCommand, error) {
	return f.cmds, f.err
}

func at(t time.Time) *time.Time { return &t }

func TestSuggest(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	lister := &fakeLister{cmds: []storage.CustomCommand{
		{Trigger: "open music"},
		{Trigger: "open mail", UsageCount: 50, LastUsed: at(now.Add(-time.Hour))},
		{Trigger: "open notes", UsageCount: 5},
		{Trigger: "close music", UsageCount: 99},
	}}
	s := New([]string{"open calculator", "help", "Open Notepad"}, lister, nil)
	s.now = func() time.Time { return now }

	tests := []struct {
		name    string
		partial string
		limit   int
		want    []string
	}{
		{"too short", "op", 0, nil},
		{"short after trimming", "  op", 0, nil},
		{"phrases first then ranked triggers", "open", 0, []string{"open calculator", "Open Notepad", "open mail", "open notes", "open music"}},
		{"limit applies", "open", 3, []string{"open calculator", "Open Notepad", "open mail"}},
		{"case folded", "OPEN M", 0, []string{"open mail", "open music"}},
		{"no match", "xyz", 0, []string{}},
		{"exact phrase", "help", 0, []string{"help"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Suggest(context.Background(), tt.partial, tt.limit)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Suggest(%q) mismatch (-want +got):\n%s", tt.partial, diff)
			}
		})
	}
}

func TestSuggestDeduplicates(t *testing.T) {
	s := New([]string{"tell a joke"}, &fakeLister{cmds: []storage.CustomCommand{{Trigger: "tell a joke"}, {Trigger: "tell a story"}}}, nil)

	got := s.Suggest(context.Background(), "tell", 0)
	if diff := cmp.Diff([]string{"tell a joke", "tell a story"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSuggestListerFailureKeepsPhrases(t *testing.T) {
	s := New([]string{"what time is it"}, &fakeLister{err: errors.New("locked")}, nil)

	got := s.Suggest(context.Background(), "what", 0)
	if diff := cmp.Diff([]string{"what time is it"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
