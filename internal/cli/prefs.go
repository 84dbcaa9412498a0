package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/khanglvm/tetris/internal/learning"
	"github.com/khanglvm/tetris/internal/storage"
	"github.com/spf13/cobra"
)

// NewPrefsCmd creates the 'prefs' group for user preferences.
func NewPrefsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "prefs",
		Aliases: []string{"preferences"},
		Short:   "Read and write user preferences",
		Long: `User preferences are key/value pairs kept in the memory database.
Known keys:
  learning_mode  true or false; overrides learning.enabled from the config`,
	}

	cmd.AddCommand(newPrefsGetCmd())
	cmd.AddCommand(newPrefsSetCmd())
	cmd.AddCommand(newPrefsListCmd())

	return cmd
}

func newPrefsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print a preference value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, a *app) error {
				return runPrefsGet(ctx, a, args[0], cmd.OutOrStdout())
			})
		},
	}
}

func newPrefsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "set <key> <value>",
		Short:   "Store a preference value",
		Example: `  tetris prefs set learning_mode false`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, a *app) error {
				return runPrefsSet(ctx, a, args[0], args[1], cmd.OutOrStdout())
			})
		},
	}
}

func newPrefsListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, a *app) error {
				return runPrefsList(ctx, a, jsonOutput, cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	return cmd
}

func runPrefsGet(ctx context.Context, a *app, key string, out io.Writer) error {
	v, err := a.store.GetPreference(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("preference '%s' is not set", key)
	}
	if err != nil {
		return fmt.Errorf("failed to read preference: %w", err)
	}
	fmt.Fprintln(out, v)
	return nil
}

func runPrefsSet(ctx context.Context, a *app, key, value string, out io.Writer) error {
	if key == learning.PreferenceKey {
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("%s must be true or false, got %q", key, value)
		}
	}
	if err := a.store.SetPreference(ctx, key, value); err != nil {
		return fmt.Errorf("failed to store preference: %w", err)
	}
	fmt.Fprintf(out, "✓ %s = %s\n", key, value)
	return nil
}

func runPrefsList(ctx context.Context, a *app, jsonOutput bool, out io.Writer) error {
	prefs, err := a.store.ListPreferences(ctx)
	if err != nil {
		return fmt.Errorf("failed to list preferences: %w", err)
	}

	if jsonOutput {
		if prefs == nil {
			prefs = []storage.UserPreference{}
		}
		return writeJSON(out, prefs)
	}

	if len(prefs) == 0 {
		fmt.Fprintln(out, "No preferences set.")
		return nil
	}
	for _, p := range prefs {
		fmt.Fprintf(out, "  %-20s %s\n", p.Key, p.Value)
	}
	return nil
}

// withStore builds the app, requires a usable database and runs fn.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := commandContext(cmd)
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.requireStore(ctx); err != nil {
		return err
	}
	return fn(ctx, a)
}
