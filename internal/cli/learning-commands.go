package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/khanglvm/tetris/internal/storage"
	"github.com/spf13/cobra"
)

// newLearningStatusCmd shows learning statistics.
func newLearningStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show learning statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, a *app) error {
				return runLearningStatus(ctx, a, jsonOutput, cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	return cmd
}

func runLearningStatus(ctx context.Context, a *app, jsonOutput bool, out io.Writer) error {
	st, err := a.learner.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to read learning status: %w", err)
	}
	if jsonOutput {
		return writeJSON(out, st)
	}

	fmt.Fprintln(out, "Learning System Status")
	fmt.Fprintln(out, "======================")
	fmt.Fprintf(out, "Learning mode:     %s\n", onOff(st.Enabled))
	fmt.Fprintf(out, "Threshold:         %.2f\n", st.Threshold)
	fmt.Fprintf(out, "Confidence policy: %s (min usage %d)\n", st.Policy, st.MinUsage)
	fmt.Fprintf(out, "Patterns:          %d (%d above threshold)\n", st.Patterns, st.Retrievable)
	fmt.Fprintf(out, "Turns:             %d\n", st.Turns)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Note: Run 'tetris learning patterns' to list learned patterns")
	return nil
}

// newLearningPatternsCmd lists learned patterns.
func newLearningPatternsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "List learned patterns, highest confidence first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, a *app) error {
				return runLearningPatterns(ctx, a, jsonOutput, cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	return cmd
}

func runLearningPatterns(ctx context.Context, a *app, jsonOutput bool, out io.Writer) error {
	patterns, err := a.learner.Patterns(ctx)
	if err != nil {
		return fmt.Errorf("failed to list patterns: %w", err)
	}
	if jsonOutput {
		if patterns == nil {
			patterns = []storage.LearnedPattern{}
		}
		return writeJSON(out, patterns)
	}

	if len(patterns) == 0 {
		fmt.Fprintln(out, "No learned patterns yet.")
		return nil
	}

	threshold := a.learner.Options().Threshold
	fmt.Fprintf(out, "Learned Patterns (%d):\n\n", len(patterns))
	for _, p := range patterns {
		marker := " "
		if p.ConfidenceScore > threshold {
			marker = "✓"
		}
		fmt.Fprintf(out, "  %s %-24s conf %.2f  success %.2f  used %d\n", marker, p.Pattern, p.ConfidenceScore, p.SuccessRate, p.UsageCount)
		fmt.Fprintf(out, "      → %s\n", p.ResponseTemplate)
	}
	return nil
}

// newLearningExportCmd exports patterns and conversation memory as JSON.
func newLearningExportCmd() *cobra.Command {
	var (
		outputFile string
		limit      int
		anonymize  bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export learned patterns and history as JSON",
		Example: `  tetris learning export > learning.json
  tetris learning export --anonymize --limit 500 -o shared.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, a *app) error {
				out := cmd.OutOrStdout()
				if outputFile == "" {
					return a.learner.WriteExport(ctx, out, limit, anonymize)
				}

				f, err := os.Create(outputFile)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", outputFile, err)
				}
				if err := a.learner.WriteExport(ctx, f, limit, anonymize); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return fmt.Errorf("failed to write %s: %w", outputFile, err)
				}
				fmt.Fprintf(out, "✓ Exported learning data to %s\n", outputFile)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Most recent turns to include (0 for all)")
	cmd.Flags().BoolVar(&anonymize, "anonymize", false, "Replace user text with SHA256 hashes")
	return cmd
}

// newLearningClearCmd deletes all learned patterns.
func newLearningClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all learned patterns",
		Long: `Delete every learned pattern. Conversation memory and custom commands
are kept, so patterns are rebuilt as new interactions arrive.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes && !confirm(bufio.NewReader(cmd.InOrStdin()), cmd.OutOrStdout(), "This will delete all learned patterns. Continue? (y/N): ", false) {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
				return nil
			}
			return withStore(cmd, func(ctx context.Context, a *app) error {
				return runLearningClear(ctx, a, cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")
	return cmd
}

func runLearningClear(ctx context.Context, a *app, out io.Writer) error {
	n, err := a.learner.Clear(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear patterns: %w", err)
	}
	if n == 0 {
		fmt.Fprintln(out, "No learned patterns found")
		return nil
	}
	fmt.Fprintf(out, "✓ Deleted %d learned pattern(s)\n", n)
	return nil
}

// newLearningDisableCmd turns off learning.
func newLearningDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Turn off learning mode",
		Long: `Turn off learning mode. The setting is stored as the learning_mode
preference and wins over learning.enabled in the config file. Interactions
are still written to conversation memory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, a *app) error {
				return runLearningToggle(ctx, a, false, cmd.OutOrStdout())
			})
		},
	}
}

// newLearningEnableCmd turns on learning.
func newLearningEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable",
		Short: "Turn on learning mode",
		Long: `Turn on learning mode. The setting is stored as the learning_mode
preference and wins over learning.enabled in the config file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, a *app) error {
				return runLearningToggle(ctx, a, true, cmd.OutOrStdout())
			})
		},
	}
}

func runLearningToggle(ctx context.Context, a *app, enabled bool, out io.Writer) error {
	if err := a.learner.SetEnabled(ctx, enabled); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Learning mode %s\n", onOff(enabled))
	return nil
}
