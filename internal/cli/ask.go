package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// NewAskCmd creates the 'ask' command for one-shot utterances.
func NewAskCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "ask [utterance...]",
		Short: "Interpret a single utterance and print the reply",
		Long: `Run one utterance through the full pipeline: wake word removal, custom
commands, learned patterns, built-in intents and the fallback reply.

The interaction is recorded in conversation memory like any other turn.`,
		Example: `  tetris ask what time is it
  tetris ask "hey tetris open music"
  tetris ask tell me a joke --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, strings.Join(args, " "), jsonOutput)
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output the full result as JSON")

	return cmd
}

func runAsk(cmd *cobra.Command, text string, jsonOutput bool) error {
	ctx := commandContext(cmd)
	a, err := newApp(ctx, appOptions{keepActions: true})
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.engine.InterpretDetailed(ctx, text)
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), res)
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Response)
	return nil
}

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
