// Package utterance normalizes raw user input before matching.
package utterance

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
)

// DefaultWakeWords are persona names and fillers stripped from utterances.
var DefaultWakeWords = []string{"tetris", "friday", "edith", "ai", "hey", "ok"}

// Normalizer case-folds, trims and removes wake-word tokens.
// It is safe for concurrent use; the wake-word set can be replaced at runtime.
type Normalizer struct {
	mu   sync.RWMutex
	wake map[string]struct{}
}

// NewNormalizer creates a normalizer. A nil slice selects DefaultWakeWords;
// an empty non-nil slice disables wake-word removal.
func NewNormalizer(wakeWords []string) *Normalizer {
	n := &Normalizer{}
	if wakeWords == nil {
		wakeWords = DefaultWakeWords
	}
	n.SetWakeWords(wakeWords)
	return n
}

// SetWakeWords replaces the wake-word set.
func (n *Normalizer) SetWakeWords(words []string) {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.TrimSpace(Fold(w))
		if w != "" {
			set[w] = struct{}{}
		}
	}

	n.mu.Lock()
	n.wake = set
	n.mu.Unlock()
}

// WakeWords returns the current wake words in no particular order.
func (n *Normalizer) WakeWords() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	words := make([]string, 0, len(n.wake))
	for w := range n.wake {
		words = append(words, w)
	}
	return words
}

// Process returns the normalized form of raw. The result may be empty.
//
// Wake words are removed as whole tokens only, so "air" or "okay" are kept.
// Surrounding punctuation is ignored when comparing ("hey," is a wake word)
// but kept on tokens that survive.
func (n *Normalizer) Process(raw string) string {
	text := strings.TrimSpace(Fold(raw))
	if text == "" {
		return ""
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	if len(n.wake) == 0 {
		return text
	}

	tokens := Tokens(text)
	kept := tokens[:0:0]
	removed := false
	for _, tok := range tokens {
		if _, ok := n.wake[strings.TrimFunc(tok, unicode.IsPunct)]; ok {
			removed = true
			continue
		}
		kept = append(kept, tok)
	}
	if !removed {
		return text
	}
	return strings.Join(kept, " ")
}

// Fold applies Unicode case folding. A Caser is not safe for concurrent
// use, so one is created per call.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// Tokens splits s on whitespace.
func Tokens(s string) []string {
	return strings.Fields(s)
}
