// Package suggest completes partial utterances from built-in phrases and
// custom command triggers.
package suggest

import (
	"context"
	"strings"
	"time"

	"github.com/khanglvm/tetris/internal/commands"
	"github.com/khanglvm/tetris/internal/storage"
	"github.com/khanglvm/tetris/internal/utterance"
	"go.uber.org/zap"
)

const (
	// MinPrefixLen is the shortest prefix (in runes) that gets suggestions.
	MinPrefixLen = 3

	// DefaultLimit caps the number of suggestions.
	DefaultLimit = 5
)

// CommandLister lists custom commands. commands.Resolver satisfies it.
type CommandLister interface {
	List(ctx context.Context) ([]storage.CustomCommand, error)
}

// Suggester produces autocomplete suggestions.
type Suggester struct {
	phrases []string
	lister  CommandLister
	now     func() time.Time
	logger  *zap.Logger
}

// New creates a suggester. phrases are offered before custom triggers.
func New(phrases []string, lister CommandLister, logger *zap.Logger) *Suggester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Suggester{
		phrases: phrases,
		lister:  lister,
		now:     time.Now,
		logger:  logger,
	}
}

// Suggest returns up to limit completions of partial: matching phrases in
// catalogue order, then matching triggers ranked by usage score. limit <= 0
// selects DefaultLimit. Prefixes shorter than MinPrefixLen yield nothing.
func (s *Suggester) Suggest(ctx context.Context, partial string, limit int) []string {
	if limit <= 0 {
		limit = DefaultLimit
	}
	prefix := utterance.Fold(strings.TrimLeft(partial, " \t"))
	if len([]rune(strings.TrimSpace(prefix))) < MinPrefixLen {
		return nil
	}

	seen := make(map[string]struct{})
	out := make([]string, 0, limit)
	add := func(candidate string) bool {
		if _, dup := seen[candidate]; dup {
			return false
		}
		seen[candidate] = struct{}{}
		out = append(out, candidate)
		return len(out) == limit
	}

	for _, p := range s.phrases {
		if strings.HasPrefix(utterance.Fold(p), prefix) && add(p) {
			return out
		}
	}

	if s.lister == nil {
		return out
	}
	cmds, err := s.lister.List(ctx)
	if err != nil {
		s.logger.Warn("failed to list commands for suggestions", zap.Error(err))
		return out
	}
	var matching []storage.CustomCommand
	for _, c := range cmds {
		if strings.HasPrefix(utterance.Fold(c.Trigger), prefix) {
			matching = append(matching, c)
		}
	}
	for _, r := range commands.Rank(matching, s.now()) {
		if add(r.Command.Trigger) {
			break
		}
	}
	return out
}
