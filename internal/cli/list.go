package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/khanglvm/tetris/internal/commands"
	"github.com/spf13/cobra"
)

// NewListCmd creates the 'commands list' command.
func NewListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List custom commands",
		Long:    `Display every custom command, most used first.`,
		Example: `  tetris commands list
  tetris commands ls
  tetris commands list --json`,
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
			return runList(ctx, a, jsonOutput, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	return cmd
}

// runList displays all custom commands.
func runList(ctx context.Context, a *app, jsonOutput bool, out io.Writer) error {
	cmds, err := a.resolver.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list commands: %w", err)
	}
	cmds = commands.ByUsage(cmds)

	if jsonOutput {
		if cmds == nil {
			return writeJSON(out, []struct{}{})
		}
		return writeJSON(out, cmds)
	}

	if len(cmds) == 0 {
		fmt.Fprintln(out, "No custom commands yet.")
		fmt.Fprintln(out, "Run 'tetris commands add <trigger> --response <text>' to teach one.")
		return nil
	}

	fmt.Fprintf(out, "Custom Commands (%d):\n\n", len(cmds))
	for _, c := range cmds {
		fmt.Fprintf(out, "  %s\n", c.Trigger)
		fmt.Fprintf(out, "    Action:   %s\n", c.ActionType)
		if c.Parameters != "" {
			fmt.Fprintf(out, "    Params:   %s\n", c.Parameters)
		}
		if c.Response != "" {
			fmt.Fprintf(out, "    Response: %s\n", c.Response)
		}
		fmt.Fprintf(out, "    Used:     %d time(s)", c.UsageCount)
		if c.LastUsed != nil {
			fmt.Fprintf(out, ", last %s", c.LastUsed.Local().Format("2006-01-02 15:04"))
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out)
	}
	return nil
}
