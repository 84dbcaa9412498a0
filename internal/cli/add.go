package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/khanglvm/tetris/internal/storage"
	"github.com/spf13/cobra"
)

// addOptions are the flags of 'commands add'.
type addOptions struct {
	response  string
	action    string
	params    string
	jsonInput string
	noConfirm bool
}

// NewAddCmd creates the 'commands add' command for teaching custom commands.
func NewAddCmd() *cobra.Command {
	var opts addOptions

	cmd := &cobra.Command{
		Use:   "add [trigger]",
		Short: "Teach a custom command",
		Long: `Teach Tetris a custom command. Whenever an utterance contains the trigger,
Tetris performs the action and replies with the response.

Action types:
  response  Reply with the response text (default)
  command   Run --params as a process, then reply
  web       Open --params as a URL, then reply

Supports two modes:
1. Flag mode: Provide trigger as argument with --response/--action/--params
2. JSON mode: Paste a command object or an array of them (interactive or --json)

JSON fields: trigger, response, action_type, parameters.`,
		Example: `  # Flag mode
  tetris commands add "good morning" --response "Good morning! Ready when you are."
  tetris commands add "open music" --response "Opening your playlist" --action command --params "spotify"
  tetris commands add "news" -r "Here are the headlines" -a web -p news.ycombinator.com

  # JSON mode
  tetris commands add --json '{"trigger": "lights off", "response": "Goodnight"}'

  # Interactive mode (paste JSON)
  tetris commands add`,
		Args: cobra.MaximumNArgs(1),
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

			if len(args) == 1 {
				return runAddFlags(ctx, a, args[0], opts, cmd.OutOrStdout())
			}
			return runAddInteractive(ctx, a, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.response, "response", "r", "", "Reply text")
	cmd.Flags().StringVarP(&opts.action, "action", "a", "response", "Action type: response, command or web")
	cmd.Flags().StringVarP(&opts.params, "params", "p", "", "Command line or URL for the action")
	cmd.Flags().StringVarP(&opts.jsonInput, "json", "j", "", "JSON command object or array")
	cmd.Flags().BoolVarP(&opts.noConfirm, "yes", "y", false, "Skip confirmation prompt")

	return cmd
}

// runAddFlags adds a single command described by flags.
func runAddFlags(ctx context.Context, a *app, trigger string, opts addOptions, out io.Writer) error {
	action, err := storage.ParseActionType(opts.action)
	if err != nil {
		return err
	}

	added, err := a.resolver.Add(ctx, storage.CustomCommand{
		Trigger:    trigger,
		Response:   opts.response,
		ActionType: action,
		Parameters: opts.params,
	})
	if err != nil {
		return fmt.Errorf("failed to add command: %w", err)
	}

	fmt.Fprintf(out, "✓ Added command '%s'\n", added.Trigger)
	fmt.Fprintf(out, "  Action:   %s\n", added.ActionType)
	if added.Parameters != "" {
		fmt.Fprintf(out, "  Params:   %s\n", added.Parameters)
	}
	if added.Response != "" {
		fmt.Fprintf(out, "  Response: %s\n", added.Response)
	}
	return nil
}

// runAddInteractive handles JSON input mode with preview and confirmation.
func runAddInteractive(ctx context.Context, a *app, opts addOptions, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)

	input := opts.jsonInput
	if input == "" {
		fmt.Fprintln(out, "📋 Paste a command as JSON (press Enter on an empty line when done):")
		fmt.Fprintln(out, `   {"trigger": "...", "response": "...", "action_type": "response|command|web", "parameters": "..."}`)
		fmt.Fprintln(out)

		input = readMultilineInput(reader)
		if strings.TrimSpace(input) == "" {
			return fmt.Errorf("no input provided")
		}
	}

	cmds, err := parseCommandJSON(input)
	if err != nil {
		return fmt.Errorf("failed to parse command: %w", err)
	}
	if len(cmds) == 0 {
		return fmt.Errorf("no commands found in input")
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "📦 Found %d command(s):\n\n", len(cmds))
	for _, c := range cmds {
		fmt.Fprintf(out, "  %s\n", colorGreen(c.Trigger))
		fmt.Fprintf(out, "    Action:   %s %s\n", c.ActionType, c.Parameters)
		fmt.Fprintf(out, "    Response: %s\n", c.Response)
		fmt.Fprintln(out)
	}

	if !opts.noConfirm && !confirm(reader, out, "Add these commands? [Y/n] ", true) {
		fmt.Fprintln(out, "Cancelled.")
		return nil
	}

	added := 0
	for _, c := range cmds {
		if _, err := a.resolver.Add(ctx, c); err != nil {
			fmt.Fprintf(out, "✗ %s: %v\n", c.Trigger, err)
			continue
		}
		added++
	}

	fmt.Fprintf(out, "\n✓ Added %d command(s)\n", added)
	if added < len(cmds) {
		return fmt.Errorf("%d command(s) could not be added", len(cmds)-added)
	}
	return nil
}

// commandJSON is the accepted input shape. Both the storage field names and
// a few short aliases are understood.
type commandJSON struct {
	Trigger    string `json:"trigger"`
	Response   string `json:"response"`
	ActionType string `json:"action_type"`
	Action     string `json:"action"`
	Parameters string `json:"parameters"`
	Params     string `json:"params"`
}

// parseCommandJSON accepts a single command object, an array of them, or an
// object wrapping an array under "commands".
func parseCommandJSON(input string) ([]storage.CustomCommand, error) {
	input = strings.TrimSpace(input)

	var raw []commandJSON
	switch {
	case strings.HasPrefix(input, "["):
		if err := json.Unmarshal([]byte(input), &raw); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	case strings.HasPrefix(input, "{"):
		var wrapped struct {
			Commands []commandJSON `json:"commands"`
		}
		if err := json.Unmarshal([]byte(input), &wrapped); err == nil && len(wrapped.Commands) > 0 {
			raw = wrapped.Commands
			break
		}
		var single commandJSON
		if err := json.Unmarshal([]byte(input), &single); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		raw = []commandJSON{single}
	default:
		return nil, fmt.Errorf("invalid JSON: expected an object or an array")
	}

	cmds := make([]storage.CustomCommand, 0, len(raw))
	for i, r := range raw {
		if strings.TrimSpace(r.Trigger) == "" {
			return nil, fmt.Errorf("command %d: trigger is required", i+1)
		}
		actionName := r.ActionType
		if actionName == "" {
			actionName = r.Action
		}
		action, err := storage.ParseActionType(actionName)
		if err != nil {
			return nil, fmt.Errorf("command %d: %w", i+1, err)
		}
		params := r.Parameters
		if params == "" {
			params = r.Params
		}
		cmds = append(cmds, storage.CustomCommand{
			Trigger:    r.Trigger,
			Response:   r.Response,
			ActionType: action,
			Parameters: params,
		})
	}
	return cmds, nil
}

// readMultilineInput reads lines until an empty line or EOF.
func readMultilineInput(reader *bufio.Reader) string {
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line == "" && (err != nil || len(lines) > 0) {
			break
		}
		if line != "" {
			lines = append(lines, line)
		}
		if err != nil {
			break
		}
	}
	return strings.Join(lines, "\n")
}

// confirm prints prompt and reads a yes/no answer. An empty answer returns def.
func confirm(reader *bufio.Reader, out io.Writer, prompt string, def bool) bool {
	fmt.Fprint(out, prompt)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	if response == "" {
		return def
	}
	return response == "y" || response == "yes"
}

func colorGreen(s string) string {
	return "\033[32m" + s + "\033[0m"
}
