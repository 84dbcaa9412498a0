package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/khanglvm/tetris/internal/api"
	"github.com/khanglvm/tetris/internal/config"
	"github.com/khanglvm/tetris/internal/logging"
	"github.com/khanglvm/tetris/internal/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// errStdinClosed ends serve when the MCP client goes away.
var errStdinClosed = errors.New("mcp client closed stdin")

// serveOptions are the flags of 'serve'.
type serveOptions struct {
	addr    string
	withMCP bool
	noHTTP  bool
	noWatch bool
	stdin   io.Reader
	stdout  io.Writer
}

// NewServeCmd creates the 'serve' command for running Tetris as a service.
func NewServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/WebSocket API and optionally the MCP server (stdio)",
		Long: `Start Tetris as a long-running service.

The HTTP API exposes:
  • POST   /v1/interpret          - Interpret one utterance
  • GET    /v1/commands           - List custom commands
  • POST   /v1/commands           - Teach a custom command
  • PUT    /v1/commands/{trigger} - Edit a custom command
  • DELETE /v1/commands/{trigger} - Forget a custom command
  • GET    /v1/suggest?q=         - Complete a partial utterance
  • GET    /v1/history/search?q=  - Search conversation memory
  • GET    /v1/learning           - Learning status
  • PUT    /v1/learning           - Toggle learning mode
  • GET    /ws/listen             - Background listener over WebSocket
  • GET    /health                - Liveness probe

With --mcp the MCP server also runs on stdio transport so AI clients can
call Tetris as a tool. The config file is watched and learning options,
wake words and the log level are applied without a restart.`,
		Example: `  # Run the HTTP API on the configured address
  tetris serve

  # Also serve MCP over stdio
  tetris serve --mcp

  # MCP only (for AI clients)
  tetris serve --mcp --no-http`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.noHTTP && !opts.withMCP {
				return fmt.Errorf("nothing to serve: --no-http requires --mcp")
			}
			opts.stdin = cmd.InOrStdin()
			opts.stdout = cmd.OutOrStdout()
			return runServe(commandContext(cmd), opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "HTTP listen address (default from config)")
	cmd.Flags().BoolVar(&opts.withMCP, "mcp", false, "Serve MCP over stdio")
	cmd.Flags().BoolVar(&opts.noHTTP, "no-http", false, "Do not start the HTTP API")
	cmd.Flags().BoolVar(&opts.noWatch, "no-watch", false, "Do not reload the config file on change")

	return cmd
}

// runServe wires every component and runs the enabled transports until a
// signal arrives, the MCP client disconnects or a transport fails.
// Implements graceful shutdown on SIGINT/SIGTERM/SIGQUIT.
func runServe(parent context.Context, opts serveOptions) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	a, err := newApp(ctx, appOptions{verbose: true})
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	pruneOnStart(ctx, a)

	g, gctx := errgroup.WithContext(ctx)

	if !opts.noHTTP {
		addr := opts.addr
		if addr == "" {
			addr = a.cfg.Server.HTTPAddr
		}
		handler := api.NewHandler(a.engine, a.suggester, a.store, a.cfg.Listener.QueueSize, logger.Named("api"))
		srv := &http.Server{
			Addr:              addr,
			Handler:           handler.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			logger.Info("http api listening", zap.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http shutdown", zap.Error(err))
			}
			return nil
		})
	}

	if opts.withMCP {
		server := mcp.NewServer(a.engine, a.store, logger.Named("mcp"))
		g.Go(func() error {
			if err := server.Run(gctx, opts.stdin, opts.stdout); err != nil {
				return fmt.Errorf("mcp server: %w", err)
			}
			if gctx.Err() != nil {
				return nil
			}
			return errStdinClosed
		})
	}

	if !opts.noWatch {
		watcher, err := config.NewWatcher(a.configPath, func(cfg *config.Config) {
			applyConfig(gctx, a, cfg)
		}, logger.Named("config"))
		if err != nil {
			logger.Warn("config reload disabled", zap.Error(err))
		} else {
			g.Go(func() error {
				if err := watcher.Run(gctx); err != nil {
					logger.Warn("config reload disabled", zap.Error(err))
				}
				return nil
			})
		}
	}

	err = g.Wait()
	switch {
	case errors.Is(err, errStdinClosed):
		logger.Info("mcp client disconnected, shutting down")
		return nil
	case err != nil:
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// pruneOnStart applies storage.retention_days.
func pruneOnStart(ctx context.Context, a *app) {
	retention := a.cfg.Retention()
	if retention <= 0 {
		return
	}
	n, err := a.store.PruneTurns(ctx, time.Now().Add(-retention))
	if err != nil {
		a.logger.Warn("failed to prune conversation memory", zap.Error(err))
		return
	}
	if n > 0 {
		a.logger.Info("pruned conversation memory", zap.Int64("turns", n), zap.Duration("retention", retention))
	}
}

// applyConfig applies the reloadable settings of a changed config file.
// Storage path, HTTP address and action settings need a restart.
func applyConfig(ctx context.Context, a *app, cfg *config.Config) {
	a.learner.Apply(cfg.LearningOptions())
	// A persisted learning_mode preference wins over the file, but not over
	// TETRIS_LEARNING.
	if !cfg.LearningFromEnv() {
		a.learner.LoadPreference(ctx)
	}

	a.normalizer.SetWakeWords(cfg.Normalizer.WakeWords)

	if level, err := logging.ParseLevel(cfg.Logging.Level); err == nil {
		a.level.SetLevel(level.Level())
	}

	a.logger.Info("config reloaded",
		zap.Bool("learning", a.learner.IsEnabled()),
		zap.Strings("wake_words", a.normalizer.WakeWords()),
		zap.String("log_level", a.level.String()),
	)
}
