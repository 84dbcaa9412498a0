package commands

import (
	"math"
	"testing"
	"time"

	"github.com/khanglvm/tetris/internal/storage"
)

func TestScore_NeverUsed(t *testing.T) {
	if s := Score(storage.CustomCommand{}, time.Now()); s != 0.0 {
		t.Errorf("expected score 0.0 for unused command, got %f", s)
	}
}

func TestFrequency_Capped(t *testing.T) {
	if f := frequency(storage.CustomCommand{UsageCount: 250}); f != 1.0 {
		t.Errorf("expected frequency capped at 1.0, got %f", f)
	}
	if f := frequency(storage.CustomCommand{UsageCount: 3}); math.Abs(f-0.03) > 0.001 {
		t.Errorf("expected frequency ~0.03, got %f", f)
	}
}

func TestRecency_HalfLife(t *testing.T) {
	now := time.Now()
	used := now.Add(-24 * time.Hour)
	r := recency(storage.CustomCommand{LastUsed: &used}, now)
	if math.Abs(r-0.5) > 0.001 {
		t.Errorf("expected recency ~0.5 after one half-life, got %f", r)
	}
}

func TestRank(t *testing.T) {
	now := time.Now()
	recent := now.Add(-time.Hour)
	old := now.Add(-30 * 24 * time.Hour)

	cmds := []storage.CustomCommand{
		{Trigger: "never a"},
		{Trigger: "old", UsageCount: 5, LastUsed: &old},
		{Trigger: "recent", UsageCount: 5, LastUsed: &recent},
		{Trigger: "never b"},
	}

	ranked := Rank(cmds, now)
	want := []string{"recent", "old", "never a", "never b"}
	for i, w := range want {
		if ranked[i].Command.Trigger != w {
			t.Errorf("rank %d: expected %q, got %q", i, w, ranked[i].Command.Trigger)
		}
	}
}

func TestByUsage(t *testing.T) {
	cmds := []storage.CustomCommand{
		{Trigger: "a", UsageCount: 1},
		{Trigger: "b", UsageCount: 7},
		{Trigger: "c", UsageCount: 1},
	}

	sorted := ByUsage(cmds)
	want := []string{"b", "a", "c"}
	for i, w := range want {
		if sorted[i].Trigger != w {
			t.Errorf("position %d: expected %q, got %q", i, w, sorted[i].Trigger)
		}
	}
	if cmds[0].Trigger != "a" {
		t.Error("ByUsage must not reorder its input")
	}
}
