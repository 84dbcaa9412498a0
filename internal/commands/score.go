package commands

import (
	"math"
	"sort"
	"time"

	"github.com/khanglvm/tetris/internal/storage"
)

const (
	// frequencyWeight is the weight for lifetime usage in the score (0.7 = 70%).
	frequencyWeight = 0.7

	// recencyWeight is the weight for recency in the score (0.3 = 30%).
	recencyWeight = 0.3

	// frequencyCeiling is the usage count treated as "high frequency".
	frequencyCeiling = 100.0

	// recencyHalfLife is the half-life for exponential decay (24 hours).
	recencyHalfLife = 24 * time.Hour
)

// Score rates a custom command by how often and how recently it matched.
// Formula: 0.7*frequency + 0.3*recency, both normalized to 0-1.
func Score(cmd storage.CustomCommand, now time.Time) float64 {
	return frequencyWeight*frequency(cmd) + recencyWeight*recency(cmd, now)
}

// frequency normalizes usage_count against frequencyCeiling.
func frequency(cmd storage.CustomCommand) float64 {
	if cmd.UsageCount <= 0 {
		return 0.0
	}
	return math.Min(float64(cmd.UsageCount)/frequencyCeiling, 1.0)
}

// recency decays exponentially from last_used: 1 now, 0.5 after 24h,
// 0.25 after 48h. Never-used commands score 0.
func recency(cmd storage.CustomCommand, now time.Time) float64 {
	if cmd.LastUsed == nil {
		return 0.0
	}
	hoursSince := now.Sub(*cmd.LastUsed).Hours()
	if hoursSince < 0 {
		hoursSince = 0
	}
	return math.Exp(-math.Ln2 * hoursSince / recencyHalfLife.Hours())
}

// Ranked pairs a command with its score.
type Ranked struct {
	Command storage.CustomCommand
	Score   float64
}

// Rank sorts commands by score (descending); equal scores keep storage order.
func Rank(cmds []storage.CustomCommand, now time.Time) []Ranked {
	ranked := make([]Ranked, len(cmds))
	for i, c := range cmds {
		ranked[i] = Ranked{Command: c, Score: Score(c, now)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// ByUsage returns a copy of cmds ordered by usage count, most used first;
// equal counts keep storage order.
func ByUsage(cmds []storage.CustomCommand) []storage.CustomCommand {
	out := append([]storage.CustomCommand(nil), cmds...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UsageCount > out[j].UsageCount
	})
	return out
}
