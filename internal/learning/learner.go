/*
Package learning implements the pattern learner and the interaction recorder.

Every interaction that is not answered by a custom command is appended to
conversation memory and, when learning mode is on, reinforces a learned
pattern keyed by the first two tokens of the utterance. Lookups return a
pattern's response template only when its confidence is above the
configured threshold.
*/
package learning

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/khanglvm/tetris/internal/storage"
	"github.com/khanglvm/tetris/internal/utterance"
	"go.uber.org/zap"
)

const (
	// DefaultThreshold is the confidence a pattern must exceed to be returned.
	DefaultThreshold = 0.7

	// InitialConfidence is the confidence of a newly created pattern.
	InitialConfidence = 0.5

	// InitialSuccessRate is the success rate of a newly created pattern.
	InitialSuccessRate = 1.0

	// DefaultMinUsage is the usage count at which PolicyTrackSuccess starts
	// moving confidence.
	DefaultMinUsage = 3

	// PreferenceKey is the user preference that persists learning mode.
	PreferenceKey = "learning_mode"
)

// Conversation memory context tags.
const (
	ContextNormal  = "normal"
	ContextCommand = "command"
	ContextChat    = "chat"
)

// ErrMalformedPattern means the utterance has too few tokens to derive a pattern.
var ErrMalformedPattern = errors.New("utterance too short to derive a pattern")

// ConfidencePolicy decides how confidence_score evolves when a pattern is reinforced.
type ConfidencePolicy string

const (
	// PolicyStatic never changes confidence after creation.
	PolicyStatic ConfidencePolicy = "static"

	// PolicyTrackSuccess sets confidence to the success rate once the
	// pattern has been used MinUsage times.
	PolicyTrackSuccess ConfidencePolicy = "track-success"
)

// ParsePolicy parses a policy name. The empty string selects PolicyStatic.
func ParsePolicy(s string) (ConfidencePolicy, error) {
	switch ConfidencePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyStatic:
		return PolicyStatic, nil
	case PolicyTrackSuccess:
		return PolicyTrackSuccess, nil
	default:
		return "", fmt.Errorf("unknown confidence policy %q (want %s or %s)", s, PolicyStatic, PolicyTrackSuccess)
	}
}

// Options configures a Learner.
type Options struct {
	Enabled   bool
	Threshold float64
	Policy    ConfidencePolicy
	MinUsage  int64
}

// DefaultOptions returns learning enabled with the static policy.
func DefaultOptions() Options {
	return Options{
		Enabled:   true,
		Threshold: DefaultThreshold,
		Policy:    PolicyStatic,
		MinUsage:  DefaultMinUsage,
	}
}

// Learner looks up and reinforces learned patterns.
type Learner struct {
	store  storage.Storage
	logger *zap.Logger

	mu   sync.RWMutex
	opts Options
}

// NewLearner creates a learner.
func NewLearner(store storage.Storage, opts Options, logger *zap.Logger) *Learner {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Learner{store: store, logger: logger}
	l.Apply(opts)
	return l
}

// Apply replaces the learner's options. Zero threshold, policy and
// min-usage values select the defaults.
func (l *Learner) Apply(opts Options) {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Policy == "" {
		opts.Policy = PolicyStatic
	}
	if opts.MinUsage <= 0 {
		opts.MinUsage = DefaultMinUsage
	}

	l.mu.Lock()
	l.opts = opts
	l.mu.Unlock()
}

// Options returns the current options.
func (l *Learner) Options() Options {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.opts
}

// Enable turns learning mode on.
func (l *Learner) Enable() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opts.Enabled = true
}

// Disable turns learning mode off.
func (l *Learner) Disable() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opts.Enabled = false
}

// IsEnabled returns whether learning mode is on.
func (l *Learner) IsEnabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.opts.Enabled
}

// SetEnabled switches learning mode and persists it as a user preference.
// The in-memory flag changes even if persisting fails.
func (l *Learner) SetEnabled(ctx context.Context, enabled bool) error {
	if enabled {
		l.Enable()
	} else {
		l.Disable()
	}
	if err := l.store.SetPreference(ctx, PreferenceKey, strconv.FormatBool(enabled)); err != nil {
		return fmt.Errorf("failed to persist learning mode: %w", err)
	}
	return nil
}

// LoadPreference applies a persisted learning_mode preference, if any.
func (l *Learner) LoadPreference(ctx context.Context) {
	v, err := l.store.GetPreference(ctx, PreferenceKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			l.logger.Warn("failed to read learning preference", zap.Error(err))
		}
		return
	}
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		l.logger.Warn("ignoring invalid learning preference", zap.String("value", v))
		return
	}
	if enabled {
		l.Enable()
	} else {
		l.Disable()
	}
}

// DerivePattern returns the first two tokens of normalized joined by a
// space. Utterances with fewer than three tokens yield ErrMalformedPattern.
func DerivePattern(normalized string) (string, error) {
	tokens := utterance.Tokens(normalized)
	if len(tokens) <= 2 {
		return "", ErrMalformedPattern
	}
	return tokens[0] + " " + tokens[1], nil
}

// Lookup returns the response template of the highest-confidence pattern
// contained in normalized, if learning mode is on and that confidence is
// above the threshold. Store failures count as no match.
func (l *Learner) Lookup(ctx context.Context, normalized string) (string, bool) {
	opts := l.Options()
	if !opts.Enabled || strings.TrimSpace(normalized) == "" {
		return "", false
	}

	p, err := l.store.BestPatternWithin(ctx, normalized)
	if err != nil {
		l.logger.Warn("pattern lookup failed", zap.Error(err))
		return "", false
	}
	if p == nil || p.ConfidenceScore <= opts.Threshold {
		return "", false
	}
	return p.ResponseTemplate, true
}

// Record appends the interaction to conversation memory and, when learning
// mode is on, reinforces the pattern derived from normalized.
func (l *Learner) Record(ctx context.Context, normalized, response string) error {
	var errs []error
	if err := l.LogTurn(ctx, normalized, response, ContextNormal); err != nil {
		errs = append(errs, err)
	}

	opts := l.Options()
	if !opts.Enabled {
		return errors.Join(errs...)
	}

	pattern, err := DerivePattern(normalized)
	if err != nil {
		return errors.Join(errs...)
	}

	seed := storage.LearnedPattern{
		Pattern:          pattern,
		ResponseTemplate: response,
		ConfidenceScore:  InitialConfidence,
		SuccessRate:      InitialSuccessRate,
		UsageCount:       1,
	}
	p, created, err := l.store.ReinforcePattern(ctx, seed, reinforcer(opts))
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to reinforce pattern %q: %w", pattern, err))
		return errors.Join(errs...)
	}

	l.logger.Debug("pattern reinforced",
		zap.String("pattern", p.Pattern),
		zap.Bool("created", created),
		zap.Int64("usage_count", p.UsageCount),
		zap.Float64("success_rate", p.SuccessRate),
		zap.Float64("confidence", p.ConfidenceScore),
	)
	return errors.Join(errs...)
}

// reinforcer returns the update applied to an existing pattern. Every
// recorded use counts as a success.
func reinforcer(opts Options) storage.PatternUpdate {
	return func(p *storage.LearnedPattern) {
		n := float64(p.UsageCount)
		p.SuccessRate = (p.SuccessRate*n + 1) / (n + 1)
		p.UsageCount++

		if opts.Policy == PolicyTrackSuccess && p.UsageCount >= opts.MinUsage {
			p.ConfidenceScore = p.SuccessRate
		}
	}
}

// LogTurn appends a conversation memory entry without touching patterns.
func (l *Learner) LogTurn(ctx context.Context, input, response, tag string) error {
	turn := &storage.ConversationTurn{
		UserInput:       input,
		SystemResponse:  response,
		Context:         tag,
		ImportanceScore: 1,
	}
	if err := l.store.AppendTurn(ctx, turn); err != nil {
		return fmt.Errorf("failed to log turn: %w", err)
	}
	return nil
}

// Status summarizes the learner.
type Status struct {
	Enabled   bool             `json:"enabled"`
	Threshold float64          `json:"threshold"`
	Policy    ConfidencePolicy `json:"confidence_policy"`
	MinUsage  int64            `json:"min_usage"`
	Patterns  int64            `json:"patterns"`
	Turns     int64            `json:"turns"`
	// Retrievable counts patterns whose confidence is above the threshold.
	Retrievable int64 `json:"retrievable"`
}

// Status returns current options and table counts.
func (l *Learner) Status(ctx context.Context) (Status, error) {
	opts := l.Options()
	st := Status{
		Enabled:   opts.Enabled,
		Threshold: opts.Threshold,
		Policy:    opts.Policy,
		MinUsage:  opts.MinUsage,
	}

	stats, err := l.store.Stats(ctx)
	if err != nil {
		return st, err
	}
	st.Patterns = stats.Patterns
	st.Turns = stats.Turns

	patterns, err := l.store.ListPatterns(ctx)
	if err != nil {
		return st, err
	}
	for _, p := range patterns {
		if p.ConfidenceScore > opts.Threshold {
			st.Retrievable++
		}
	}
	return st, nil
}

// Patterns lists learned patterns, highest confidence first.
func (l *Learner) Patterns(ctx context.Context) ([]storage.LearnedPattern, error) {
	return l.store.ListPatterns(ctx)
}

// Clear deletes every learned pattern. Conversation memory is kept.
func (l *Learner) Clear(ctx context.Context) (int64, error) {
	n, err := l.store.ClearPatterns(ctx)
	if err != nil {
		return 0, err
	}
	l.logger.Info("learned patterns cleared", zap.Int64("count", n))
	return n, nil
}
