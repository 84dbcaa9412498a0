/*
Package commands resolves utterances against user-defined custom commands.

The Resolver keeps a read-through cache of the custom_commands table in
storage order. Every create, edit and delete goes through the Resolver,
which writes to the store first and then invalidates the cache. Commits
made by other processes are detected with the store's data version and
trigger a reload before the next match.
*/
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/khanglvm/tetris/internal/actions"
	"github.com/khanglvm/tetris/internal/storage"
	"github.com/khanglvm/tetris/internal/utterance"
	"go.uber.org/zap"
)

var (
	// ErrNoLauncher is reported when a ShellCommand matches but no launcher is configured.
	ErrNoLauncher = errors.New("no process launcher configured")

	// ErrWakeWordTrigger is returned by Add for a trigger with a wake-word
	// token. Wake words are stripped from utterances before matching.
	ErrWakeWordTrigger = errors.New("trigger contains a wake word")
)

// Normalizer is the utterance normalizer applied before Resolve.
type Normalizer interface {
	Process(raw string) string
}

// Result describes a custom command match.
type Result struct {
	Trigger  string
	Response string
	Action   storage.ActionType

	// Err is set when the action failed; Response then holds the failure text.
	Err error
}

// FailureMessage is returned when a ShellCommand cannot be executed.
func FailureMessage(trigger string) string {
	return "Failed to execute custom command: " + trigger
}

type entry struct {
	key        string // case-folded trigger
	trigger    string // trigger as stored
	response   string
	action     storage.ActionType
	parameters string
}

// Resolver matches utterances against custom command triggers.
type Resolver struct {
	store    storage.Storage
	launcher actions.Launcher
	opener   actions.Opener
	logger   *zap.Logger
	now      func() time.Time

	normalizer Normalizer

	mu      sync.RWMutex
	entries []entry
	loaded  bool
	version int64
}

// NewResolver creates a resolver. launcher and opener may be nil; a nil
// launcher makes every ShellCommand fail, a nil opener skips WebOpen.
func NewResolver(store storage.Storage, launcher actions.Launcher, opener actions.Opener, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		store:    store,
		launcher: launcher,
		opener:   opener,
		logger:   logger,
		now:      time.Now,
	}
}

// SetNormalizer makes Add reject triggers that n would alter.
func (r *Resolver) SetNormalizer(n Normalizer) {
	r.mu.Lock()
	r.normalizer = n
	r.mu.Unlock()
}

// Load rebuilds the cache from the store. On failure the cache is empty
// and the resolver matches nothing until the next successful load.
func (r *Resolver) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked(ctx)
}

func (r *Resolver) loadLocked(ctx context.Context) error {
	version, verr := r.store.DataVersion(ctx)

	cmds, err := r.store.ListCommands(ctx)
	if err != nil {
		r.entries = nil
		r.loaded = false
		return fmt.Errorf("failed to load custom commands: %w", err)
	}

	entries := make([]entry, 0, len(cmds))
	for _, c := range cmds {
		key := utterance.Fold(strings.TrimSpace(c.Trigger))
		if key == "" {
			continue
		}
		entries = append(entries, entry{
			key:        key,
			trigger:    c.Trigger,
			response:   c.Response,
			action:     c.ActionType,
			parameters: c.Parameters,
		})
	}

	r.entries = entries
	r.loaded = verr == nil
	r.version = version
	return nil
}

// Invalidate drops the cache; the next Resolve reloads it.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.loaded = false
	r.entries = nil
	r.mu.Unlock()
}

// snapshot returns the current cache, reloading it if it was invalidated
// or another connection committed since the last load.
func (r *Resolver) snapshot(ctx context.Context) []entry {
	r.mu.RLock()
	loaded, version, entries := r.loaded, r.version, r.entries
	r.mu.RUnlock()

	if loaded {
		current, err := r.store.DataVersion(ctx)
		if err == nil && current == version {
			return entries
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.loadLocked(ctx); err != nil {
		r.logger.Warn("custom command cache unavailable", zap.Error(err))
	}
	return r.entries
}

// Resolve returns the response of the first trigger (in storage order)
// contained in normalized. Usage statistics of that trigger are updated.
// ok is false when nothing matches.
func (r *Resolver) Resolve(ctx context.Context, normalized string) (Result, bool) {
	text := utterance.Fold(normalized)
	if strings.TrimSpace(text) == "" {
		return Result{}, false
	}

	for _, e := range r.snapshot(ctx) {
		if !strings.Contains(text, e.key) {
			continue
		}

		if err := r.store.MarkCommandUsed(ctx, e.trigger, r.now()); err != nil {
			r.logger.Warn("failed to record command usage", zap.String("trigger", e.trigger), zap.Error(err))
		}
		return r.perform(ctx, e), true
	}
	return Result{}, false
}

func (r *Resolver) perform(ctx context.Context, e entry) Result {
	res := Result{Trigger: e.trigger, Response: e.response, Action: e.action}

	switch e.action {
	case storage.ActionShellCommand:
		err := ErrNoLauncher
		if r.launcher != nil {
			err = r.launcher.Execute(ctx, e.parameters)
		}
		if err != nil {
			r.logger.Warn("custom command failed", zap.String("trigger", e.trigger), zap.Error(err))
			res.Response = FailureMessage(e.trigger)
			res.Err = err
		}
	case storage.ActionWebOpen:
		if r.opener != nil {
			r.opener.Open(e.parameters)
		}
	}
	return res
}

// Triggers returns the cached triggers in storage order.
func (r *Resolver) Triggers(ctx context.Context) []string {
	entries := r.snapshot(ctx)
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.trigger
	}
	return out
}

// Add creates a custom command. The trigger is case-folded and trimmed.
func (r *Resolver) Add(ctx context.Context, cmd storage.CustomCommand) (*storage.CustomCommand, error) {
	cmd.Trigger = CanonicalTrigger(cmd.Trigger)
	if err := r.checkWakeWords(cmd.Trigger); err != nil {
		return nil, err
	}
	defer r.Invalidate()
	if err := r.store.CreateCommand(ctx, &cmd); err != nil {
		return nil, err
	}
	r.logger.Info("custom command added", zap.String("trigger", cmd.Trigger), zap.String("action", string(cmd.ActionType)))
	return &cmd, nil
}

func (r *Resolver) checkWakeWords(trigger string) error {
	r.mu.RLock()
	n := r.normalizer
	r.mu.RUnlock()
	if n == nil || trigger == "" {
		return nil
	}

	if matched := CanonicalTrigger(n.Process(trigger)); matched != trigger {
		if matched == "" {
			return fmt.Errorf("%w: %q consists of wake words only", ErrWakeWordTrigger, trigger)
		}
		return fmt.Errorf("%w: %q would only ever be seen as %q", ErrWakeWordTrigger, trigger, matched)
	}
	return nil
}

// Update edits an existing custom command.
func (r *Resolver) Update(ctx context.Context, cmd storage.CustomCommand) error {
	cmd.Trigger = CanonicalTrigger(cmd.Trigger)
	defer r.Invalidate()
	if err := r.store.UpdateCommand(ctx, &cmd); err != nil {
		return err
	}
	r.logger.Info("custom command updated", zap.String("trigger", cmd.Trigger))
	return nil
}

// Upsert creates cmd or updates the existing command with the same trigger.
// It reports whether a new command was created.
func (r *Resolver) Upsert(ctx context.Context, cmd storage.CustomCommand) (bool, error) {
	_, err := r.Add(ctx, cmd)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, storage.ErrDuplicateTrigger) {
		return false, err
	}
	return false, r.Update(ctx, cmd)
}

// Remove deletes a custom command.
func (r *Resolver) Remove(ctx context.Context, trigger string) error {
	trigger = CanonicalTrigger(trigger)
	defer r.Invalidate()
	if err := r.store.DeleteCommand(ctx, trigger); err != nil {
		return err
	}
	r.logger.Info("custom command removed", zap.String("trigger", trigger))
	return nil
}

// Get returns a custom command by trigger.
func (r *Resolver) Get(ctx context.Context, trigger string) (*storage.CustomCommand, error) {
	return r.store.GetCommand(ctx, CanonicalTrigger(trigger))
}

// List returns every custom command in storage order.
func (r *Resolver) List(ctx context.Context) ([]storage.CustomCommand, error) {
	return r.store.ListCommands(ctx)
}

// CanonicalTrigger is the stored form of a trigger: folded, trimmed and
// with inner whitespace collapsed.
func CanonicalTrigger(trigger string) string {
	return strings.Join(utterance.Tokens(utterance.Fold(trigger)), " ")
}
