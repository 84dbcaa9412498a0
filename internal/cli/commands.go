package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/khanglvm/tetris/internal/storage"
	"github.com/spf13/cobra"
)

// NewCommandsCmd creates the 'commands' group for managing custom commands.
func NewCommandsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "commands",
		Aliases: []string{"cmd"},
		Short:   "Manage custom commands",
		Long: `Custom commands bind a trigger phrase to a reply and an optional action.
They are checked before learned patterns and built-in intents, and the
first trigger contained in an utterance wins.

Commands:
  add     Teach a new command
  edit    Change an existing command
  remove  Forget a command
  list    Show all commands, most used first
  export  Write commands to a JSON or JSONL file
  import  Read commands from a JSON or JSONL file`,
	}

	cmd.AddCommand(NewAddCmd())
	cmd.AddCommand(NewEditCmd())
	cmd.AddCommand(NewRemoveCmd())
	cmd.AddCommand(NewListCmd())
	cmd.AddCommand(NewExportCmd())
	cmd.AddCommand(NewImportCmd())

	return cmd
}

// editOptions are the flags of 'commands edit'. Only flags that were set
// on the command line change the stored command.
type editOptions struct {
	response string
	action   string
	params   string

	setResponse bool
	setAction   bool
	setParams   bool
}

// NewEditCmd creates the 'commands edit' command.
func NewEditCmd() *cobra.Command {
	var opts editOptions

	cmd := &cobra.Command{
		Use:   "edit <trigger>",
		Short: "Change an existing custom command",
		Long: `Change the response, action type or parameters of a custom command.
Flags that are not given keep their current value. Usage statistics are kept.`,
		Example: `  tetris commands edit "open music" --params "rhythmbox"
  tetris commands edit news --response "Top stories coming up"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.setResponse = cmd.Flags().Changed("response")
			opts.setAction = cmd.Flags().Changed("action")
			opts.setParams = cmd.Flags().Changed("params")

			ctx := commandContext(cmd)
			a, err := newApp(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.requireStore(ctx); err != nil {
				return err
			}
			return runEdit(ctx, a, args[0], opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.response, "response", "r", "", "New reply text")
	cmd.Flags().StringVarP(&opts.action, "action", "a", "", "New action type: response, command or web")
	cmd.Flags().StringVarP(&opts.params, "params", "p", "", "New command line or URL")

	return cmd
}

// runEdit applies the set flags to the stored command.
func runEdit(ctx context.Context, a *app, trigger string, opts editOptions, out io.Writer) error {
	if !opts.setResponse && !opts.setAction && !opts.setParams {
		return fmt.Errorf("nothing to change: pass --response, --action or --params")
	}

	existing, err := a.resolver.Get(ctx, trigger)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("command '%s' not found", trigger)
		}
		return fmt.Errorf("failed to read command: %w", err)
	}

	updated := *existing
	if opts.setResponse {
		updated.Response = opts.response
	}
	if opts.setAction {
		action, err := storage.ParseActionType(opts.action)
		if err != nil {
			return err
		}
		updated.ActionType = action
		if action == storage.ActionResponse && !opts.setParams {
			updated.Parameters = ""
		}
	}
	if opts.setParams {
		updated.Parameters = opts.params
	}

	if err := a.resolver.Update(ctx, updated); err != nil {
		return fmt.Errorf("failed to update command: %w", err)
	}

	fmt.Fprintf(out, "✓ Updated command '%s'\n", updated.Trigger)
	return nil
}
