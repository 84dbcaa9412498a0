// Package fallback produces a reply when nothing else matched.
package fallback

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/khanglvm/tetris/internal/utterance"
	"go.uber.org/zap"
)

const (
	// minTokenLen is the length a token must exceed to be searched.
	minTokenLen = 3

	// maxSuggestions caps the "did you mean" list.
	maxSuggestions = 3
)

// GenericResponses are the "teach me" replies used when no trigger is similar.
var GenericResponses = []string{
	"I'm still learning that command. Can you teach me by saying 'teach mode' and showing me what you want?",
	"That's a new one for me. You can add custom commands or try rephrasing your request.",
	"I don't recognize that command yet. Try saying 'help' to see what I can do, or use 'teach mode' to show me.",
	"Interesting request! I'm always learning. You can teach me new commands using the teach mode feature.",
}

// TriggerFinder finds custom command triggers containing a fragment.
// storage.Storage satisfies it.
type TriggerFinder interface {
	FindCommandsContaining(ctx context.Context, fragment string) ([]string, error)
}

// Responder builds fallback replies.
type Responder struct {
	finder TriggerFinder
	logger *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewResponder creates a responder. rng may be nil for a randomly seeded source.
func NewResponder(finder TriggerFinder, rng *rand.Rand, logger *zap.Logger) *Responder {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Responder{finder: finder, rng: rng, logger: logger}
}

// Respond returns a "did you mean" message listing up to three similar
// triggers, or one of GenericResponses. It never fails.
func (r *Responder) Respond(ctx context.Context, normalized string) string {
	if suggestions := r.Suggestions(ctx, normalized); len(suggestions) > 0 {
		return "I'm not sure about that command. Did you mean: " + strings.Join(suggestions, ", ") + "?"
	}
	return r.Generic()
}

// Suggestions returns up to three distinct triggers containing a token of
// normalized that is longer than three characters. Tokens are searched in
// order; store failures are skipped.
func (r *Responder) Suggestions(ctx context.Context, normalized string) []string {
	if r.finder == nil {
		return nil
	}

	seen := make(map[string]struct{})
	var out []string
	for _, tok := range utterance.Tokens(normalized) {
		if len([]rune(tok)) <= minTokenLen {
			continue
		}
		triggers, err := r.finder.FindCommandsContaining(ctx, tok)
		if err != nil {
			r.logger.Warn("trigger search failed", zap.String("token", tok), zap.Error(err))
			continue
		}
		for _, t := range triggers {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
			if len(out) == maxSuggestions {
				return out
			}
		}
	}
	return out
}

// Generic returns one of GenericResponses chosen uniformly at random.
func (r *Responder) Generic() string {
	r.mu.Lock()
	i := r.rng.IntN(len(GenericResponses))
	r.mu.Unlock()
	return GenericResponses[i]
}
