package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/khanglvm/tetris/internal/search"
	"github.com/spf13/cobra"
)

const chatPrompt = "> "

// NewChatCmd creates the 'chat' command, an interactive text session.
func NewChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive text conversation",
		Long: `Read utterances from standard input one line at a time and print each
reply before reading the next line. Type "exit" or "quit" to leave.

Lines starting with ':' are session commands:
  :suggest <text>   Show completions for a partial utterance
  :history <query>  Search conversation memory
  :learning on|off  Toggle learning mode
  :help             Show this list`,
		Example: `  tetris chat
  echo "what time is it" | tetris chat`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			a, err := newApp(ctx, appOptions{keepActions: true})
			if err != nil {
				return err
			}
			defer a.Close()
			return runChat(ctx, a, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	return cmd
}

// runChat runs the read-reply loop until EOF, an exit word or ctx is done.
func runChat(ctx context.Context, a *app, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, `Tetris is ready. Type "exit" to quit, ":help" for session commands.`)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, chatPrompt)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case isExitWord(line):
			fmt.Fprintln(out, "Goodbye!")
			return nil
		case strings.HasPrefix(line, ":"):
			chatCommand(ctx, a, line[1:], out)
		default:
			fmt.Fprintln(out, a.engine.Interpret(ctx, line))
		}
	}
}

func isExitWord(line string) bool {
	switch strings.ToLower(line) {
	case "exit", "quit":
		return true
	}
	return false
}

func chatCommand(ctx context.Context, a *app, line string, out io.Writer) {
	name, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "suggest":
		suggestions := a.suggester.Suggest(ctx, arg, 0)
		if len(suggestions) == 0 {
			fmt.Fprintln(out, "No suggestions.")
			return
		}
		for _, s := range suggestions {
			fmt.Fprintf(out, "  %s\n", s)
		}

	case "history":
		if arg == "" {
			fmt.Fprintln(out, "Usage: :history <query>")
			return
		}
		results, err := search.SearchHistory(ctx, a.store, arg, "", 5, a.logger)
		if err != nil {
			fmt.Fprintf(out, "✗ History search failed: %v\n", err)
			return
		}
		if len(results) == 0 {
			fmt.Fprintln(out, "Nothing found.")
			return
		}
		for _, r := range results {
			fmt.Fprintf(out, "  [%s] %s → %s\n", r.Timestamp.Local().Format("2006-01-02 15:04"), r.Input, r.Response)
		}

	case "learning":
		switch strings.ToLower(arg) {
		case "on":
			setLearning(ctx, a, true, out)
		case "off":
			setLearning(ctx, a, false, out)
		default:
			fmt.Fprintf(out, "Learning mode: %s\n", onOff(a.learner.IsEnabled()))
		}

	case "help":
		fmt.Fprintln(out, "  :suggest <text>   Show completions for a partial utterance")
		fmt.Fprintln(out, "  :history <query>  Search conversation memory")
		fmt.Fprintln(out, "  :learning on|off  Toggle learning mode")

	default:
		fmt.Fprintf(out, "Unknown session command %q. Type :help for the list.\n", name)
	}
}

func setLearning(ctx context.Context, a *app, enabled bool, out io.Writer) {
	if err := a.learner.SetEnabled(ctx, enabled); err != nil {
		fmt.Fprintf(out, "⚠ Learning mode %s for this session only: %v\n", onOff(enabled), err)
		return
	}
	fmt.Fprintf(out, "✓ Learning mode %s\n", onOff(enabled))
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
