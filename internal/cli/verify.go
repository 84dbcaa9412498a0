package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// NewVerifyCmd creates the 'verify' command for verifying configuration.
func NewVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify configuration and the memory database",
		Long: `Verify that the configuration is valid and that the memory database can
be opened. A default configuration is written if none exists yet.`,
		Example: `  tetris verify
  TETRIS_CONFIG=./tetris.yaml tetris verify`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			a, err := newApp(ctx, appOptions{})
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			defer a.Close()
			return runVerify(ctx, a, cmd.OutOrStdout())
		},
	}

	return cmd
}

// runVerify reports on the loaded configuration and the database.
func runVerify(ctx context.Context, a *app, out io.Writer) error {
	cfg := a.cfg

	fmt.Fprintf(out, "✓ Config file: %s\n", a.configPath)
	fmt.Fprintf(out, "✓ Wake words: %s\n", strings.Join(cfg.Normalizer.WakeWords, ", "))

	opts := a.learner.Options()
	fmt.Fprintf(out, "✓ Learning: %s (threshold %.2f, policy %s)\n", onOff(a.learner.IsEnabled()), opts.Threshold, opts.Policy)

	if cfg.Actions.UseShell {
		fmt.Fprintf(out, "✓ Shell actions: via sh -c, timeout %s\n", cfg.ActionTimeout())
	} else {
		fmt.Fprintf(out, "✓ Shell actions: direct exec, timeout %s\n", cfg.ActionTimeout())
	}

	if err := a.requireStore(ctx); err != nil {
		fmt.Fprintf(out, "✗ Database: %s\n", cfg.DBPath())
		return err
	}

	stats, err := a.store.Stats(ctx)
	if err != nil {
		fmt.Fprintf(out, "✗ Database: %s\n", cfg.DBPath())
		return fmt.Errorf("failed to read database stats: %w", err)
	}

	fmt.Fprintf(out, "✓ Database: %s\n", cfg.DBPath())
	fmt.Fprintf(out, "  Custom commands:    %d (%d uses)\n", stats.Commands, stats.CommandUses)
	fmt.Fprintf(out, "  Learned patterns:   %d\n", stats.Patterns)
	fmt.Fprintf(out, "  Conversation turns: %d\n", stats.Turns)
	fmt.Fprintf(out, "  Preferences:        %d\n", stats.Preferences)
	return nil
}
