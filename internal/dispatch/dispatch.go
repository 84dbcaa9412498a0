/*
Package dispatch holds the built-in core commands.

Rules are evaluated in order and the first rule whose predicate matches
answers the utterance. The catalogue is intentionally small: greetings,
identity, time, date, jokes and help.
*/
package dispatch

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/khanglvm/tetris/internal/utterance"
)

// Dispatcher answers normalized utterances with built-in behavior.
type Dispatcher interface {
	Dispatch(ctx context.Context, normalized string) (string, bool)
}

// Func adapts a function to Dispatcher.
type Func func(ctx context.Context, normalized string) (string, bool)

// Dispatch calls f.
func (f Func) Dispatch(ctx context.Context, normalized string) (string, bool) {
	return f(ctx, normalized)
}

// None never answers.
var None Dispatcher = Func(func(context.Context, string) (string, bool) { return "", false })

// Input is what a rule sees.
type Input struct {
	Text   string
	Tokens []string
}

// HasToken reports whether any token equals one of words.
func (in Input) HasToken(words ...string) bool {
	for _, tok := range in.Tokens {
		tok = strings.Trim(tok, "?!.,;:")
		for _, w := range words {
			if tok == w {
				return true
			}
		}
	}
	return false
}

// HasPhrase reports whether the text contains one of phrases.
func (in Input) HasPhrase(phrases ...string) bool {
	for _, p := range phrases {
		if strings.Contains(in.Text, p) {
			return true
		}
	}
	return false
}

// Rule is a (predicate, handler) pair.
type Rule struct {
	Name   string
	Match  func(in Input) bool
	Handle func(ctx context.Context, in Input) string
}

// Catalogue is an ordered rule list; the first match wins.
type Catalogue struct {
	rules []Rule
}

// NewCatalogue creates a catalogue from rules.
func NewCatalogue(rules ...Rule) *Catalogue {
	return &Catalogue{rules: rules}
}

// Dispatch runs the first matching rule.
func (c *Catalogue) Dispatch(ctx context.Context, normalized string) (string, bool) {
	text := strings.TrimSpace(normalized)
	if text == "" {
		return "", false
	}
	in := Input{Text: text, Tokens: utterance.Tokens(text)}
	for _, r := range c.rules {
		if r.Match(in) {
			return r.Handle(ctx, in), true
		}
	}
	return "", false
}

// Rules returns rule names in evaluation order.
func (c *Catalogue) Rules() []string {
	names := make([]string, len(c.rules))
	for i, r := range c.rules {
		names[i] = r.Name
	}
	return names
}

// BuiltinOptions configures the built-in catalogue.
type BuiltinOptions struct {
	Now  func() time.Time
	Rand *rand.Rand
}

// picker chooses random entries; rand.Rand is not safe for concurrent use.
type picker struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (p *picker) pick(options []string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return options[p.rng.IntN(len(options))]
}

// Builtin returns the default catalogue.
func Builtin(opts BuiltinOptions) *Catalogue {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	p := &picker{rng: opts.Rand}

	return NewCatalogue(
		Rule{
			Name: "greeting",
			Match: func(in Input) bool {
				return in.HasToken("hello", "hi", "hey", "greetings") ||
					in.HasPhrase("good morning", "good afternoon", "good evening")
			},
			Handle: func(context.Context, Input) string { return p.pick(Greetings) },
		},
		Rule{
			Name: "identity",
			Match: func(in Input) bool {
				return in.HasPhrase("who are you", "what are you", "introduce yourself")
			},
			Handle: func(context.Context, Input) string { return Identity },
		},
		Rule{
			Name:  "time",
			Match: func(in Input) bool { return in.HasToken("time") },
			Handle: func(context.Context, Input) string {
				now := opts.Now()
				return "Current time: " + now.Format("03:04 PM") + " on " + now.Format("Monday, January 02, 2006")
			},
		},
		Rule{
			Name:  "date",
			Match: func(in Input) bool { return in.HasToken("date", "today") || in.HasPhrase("what day") },
			Handle: func(context.Context, Input) string {
				return "Today is " + opts.Now().Format("Monday, January 02, 2006")
			},
		},
		Rule{
			Name:  "joke",
			Match: func(in Input) bool { return in.HasToken("joke", "jokes") },
			Handle: func(context.Context, Input) string {
				category := p.pick(JokeCategories)
				return "Here's a " + category + " joke for you: " + p.pick(Jokes[category])
			},
		},
		Rule{
			Name:   "help",
			Match:  func(in Input) bool { return in.HasToken("help", "commands") || in.HasPhrase("what can you do") },
			Handle: func(context.Context, Input) string { return Help },
		},
	)
}
