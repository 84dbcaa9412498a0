package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/khanglvm/tetris/internal/storage"
	"github.com/spf13/cobra"
)

// NewRemoveCmd creates the 'commands remove' command.
func NewRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "remove <trigger>",
		Aliases: []string{"rm"},
		Short:   "Forget a custom command",
		Long:    `Remove a custom command. Conversation memory and learned patterns are kept.`,
		Example: `  tetris commands remove "open music"
  tetris commands rm news`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			a, err := newApp(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.requireStore(ctx); err != nil {
				return err
			}
			return runRemove(ctx, a, args[0], cmd.OutOrStdout())
		},
	}

	return cmd
}

// runRemove deletes a custom command by trigger.
func runRemove(ctx context.Context, a *app, trigger string, out io.Writer) error {
	if err := a.resolver.Remove(ctx, trigger); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("command '%s' not found", trigger)
		}
		return fmt.Errorf("failed to remove command: %w", err)
	}

	fmt.Fprintf(out, "✓ Removed command '%s'\n", trigger)
	return nil
}
