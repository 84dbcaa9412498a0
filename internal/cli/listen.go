package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/khanglvm/tetris/internal/listener"
	"github.com/spf13/cobra"
)

// NewListenCmd creates the 'listen' command, the background listening path
// fed from standard input.
func NewListenCmd() *cobra.Command {
	var queueSize int

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Run the background listener on standard input",
		Long: `Start the background listener and feed it one utterance per line of
standard input, the way a speech recognizer would. Replies are printed as
the listener's worker produces them, without blocking input.

The listener stops once input ends and every queued utterance is answered.`,
		Example: `  tetris listen < utterances.txt
  some-speech-to-text | tetris listen --queue-size 16`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			a, err := newApp(ctx, appOptions{keepActions: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if queueSize <= 0 {
				queueSize = a.cfg.Listener.QueueSize
			}
			return runListen(ctx, a, queueSize, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&queueSize, "queue-size", "q", 0, "Utterance queue size (default from config)")

	return cmd
}

// runListen feeds in to a listener and prints replies until input ends.
func runListen(ctx context.Context, a *app, queueSize int, in io.Reader, out io.Writer) error {
	sink := listener.SinkFunc(func(r listener.Reply) {
		fmt.Fprintf(out, "Tetris: %s\n", r.Response)
	})

	l := listener.New(a.engine, sink, queueSize, a.logger.Named("listener"))
	err := l.Feed(ctx, in)
	l.Stop()

	if errors.Is(err, context.Canceled) || errors.Is(err, listener.ErrStopped) {
		return nil
	}
	return err
}
