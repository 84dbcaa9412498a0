/*
Package cli implements the tetris command-line interface.

Every command builds the same object graph from the configuration file:
storage, action launchers, the custom command resolver, the learner and the
engine. Commands that only administer memory use the same graph so that
command triggers are canonicalized the same way the engine matches them.
*/
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/khanglvm/tetris/internal/actions"
	"github.com/khanglvm/tetris/internal/commands"
	"github.com/khanglvm/tetris/internal/config"
	"github.com/khanglvm/tetris/internal/dispatch"
	"github.com/khanglvm/tetris/internal/engine"
	"github.com/khanglvm/tetris/internal/fallback"
	"github.com/khanglvm/tetris/internal/learning"
	"github.com/khanglvm/tetris/internal/logging"
	"github.com/khanglvm/tetris/internal/storage"
	"github.com/khanglvm/tetris/internal/suggest"
	"github.com/khanglvm/tetris/internal/utterance"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// app is the wired object graph shared by the commands.
type app struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	level      zap.AtomicLevel
	opts       appOptions

	store      *storage.SQLiteStorage
	launcher   *actions.ProcessLauncher
	normalizer *utterance.Normalizer
	resolver   *commands.Resolver
	learner    *learning.Learner
	engine     *engine.Engine
	suggester  *suggest.Suggester
}

// appOptions tunes newApp.
type appOptions struct {
	// verbose keeps the configured log level. Otherwise logs below warn
	// are suppressed so interactive output stays readable.
	verbose bool

	// keepActions leaves processes started by custom commands running
	// when the app closes.
	keepActions bool
}

// newApp loads the configuration and wires every component. A database
// that cannot be opened does not fail the call: the store is left disabled
// and the engine degrades to dispatcher and fallback replies.
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	configPath, err := config.GetDefaultConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}

	cfg, err := config.LoadOrCreate(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, level, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	if !opts.verbose && level.Level() < zapcore.WarnLevel {
		level.SetLevel(zapcore.WarnLevel)
	}

	a := &app{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		level:      level,
		opts:       opts,
	}

	a.store = storage.NewStorage(cfg.DBPath(), logger.Named("storage"))
	if err := a.store.Init(); err != nil {
		logger.Warn("memory unavailable, continuing without persistence", zap.Error(err))
	}

	a.launcher = actions.NewProcessLauncher(
		actions.WithShell(cfg.Actions.UseShell),
		actions.WithTimeout(cfg.ActionTimeout()),
		actions.WithLogger(logger.Named("actions")),
	)
	opener := actions.NewBrowserOpener(a.launcher, logger.Named("actions"))

	a.resolver = commands.NewResolver(a.store, a.launcher, opener, logger.Named("commands"))
	if err := a.resolver.Load(ctx); err != nil && !storage.IsUnavailable(err) {
		logger.Warn("failed to load custom commands", zap.Error(err))
	}

	a.learner = learning.NewLearner(a.store, cfg.LearningOptions(), logger.Named("learning"))
	// Precedence: TETRIS_LEARNING, then the learning_mode preference, then the file.
	if !cfg.LearningFromEnv() {
		a.learner.LoadPreference(ctx)
	}

	a.normalizer = utterance.NewNormalizer(cfg.Normalizer.WakeWords)
	a.resolver.SetNormalizer(a.normalizer)

	a.engine, err = engine.New(engine.Deps{
		Normalizer: a.normalizer,
		Resolver:   a.resolver,
		Learner:    a.learner,
		Dispatcher: dispatch.Builtin(dispatch.BuiltinOptions{}),
		Fallback:   fallback.NewResponder(a.store, nil, logger.Named("fallback")),
		Logger:     logger.Named("engine"),
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.suggester = suggest.New(dispatch.CommonPhrases, a.resolver, logger.Named("suggest"))
	return a, nil
}

// requireStore fails when the memory database could not be opened. Admin
// commands use it; the conversational commands run without memory.
func (a *app) requireStore(ctx context.Context) error {
	if err := a.store.Ping(ctx); err != nil {
		return fmt.Errorf("memory database %s is unavailable: %w", a.cfg.DBPath(), err)
	}
	return nil
}

// Close stops the launcher, closes the database and flushes the logger.
func (a *app) Close() error {
	var errs []error
	if a.launcher != nil && !a.opts.keepActions {
		errs = append(errs, a.launcher.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

// commandContext returns the command's context, or Background when the
// command was not started through Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
