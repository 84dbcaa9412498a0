package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/khanglvm/tetris/internal/search"
	"github.com/khanglvm/tetris/internal/storage"
	"github.com/spf13/cobra"
)

// NewHistoryCmd creates the 'history' group for conversation memory.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse, search and prune conversation memory",
		Long: `Every interaction is appended to conversation memory with a context tag:
"normal" for engine replies and "command" for custom command matches.

Commands:
  list    Show the most recent turns
  search  Full-text search over all turns
  prune   Delete turns older than a given age`,
	}

	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistorySearchCmd())
	cmd.AddCommand(newHistoryPruneCmd())

	return cmd
}

func newHistoryListCmd() *cobra.Command {
	var (
		limit      int
		contextTag string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show the most recent turns, newest first",
		Example: `  tetris history list
  tetris history list --limit 50 --context command`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, a *app) error {
				return runHistoryList(ctx, a, limit, contextTag, jsonOutput, cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of turns to show (0 for all)")
	cmd.Flags().StringVarP(&contextTag, "context", "c", "", "Only show turns with this context tag")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	return cmd
}

func newHistorySearchCmd() *cobra.Command {
	var (
		limit      int
		contextTag string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Full-text search over conversation memory",
		Long: `Rank past turns by relevance to the query. Both the utterance and the
reply are searched; matches in the utterance weigh more.`,
		Example: `  tetris history search weather
  tetris history search "open music" --context command`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, a *app) error {
				return runHistorySearch(ctx, a, strings.Join(args, " "), contextTag, limit, jsonOutput, cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&contextTag, "context", "c", "", "Only search turns with this context tag")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	return cmd
}

func newHistoryPruneCmd() *cobra.Command {
	var olderThan string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete turns older than a given age",
		Long: `Delete conversation memory older than --older-than. Ages accept a day
suffix (30d) or a Go duration (72h). Custom commands and learned patterns
are not affected.`,
		Example: `  tetris history prune --older-than 90d`,
		RunE: func(cmd *cobra.Command, args []string) error {
			age, err := parseAge(olderThan)
			if err != nil {
				return err
			}
			return withStore(cmd, func(ctx context.Context, a *app) error {
				return runHistoryPrune(ctx, a, age, cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().StringVar(&olderThan, "older-than", "", "Age threshold, e.g. 30d or 72h")
	_ = cmd.MarkFlagRequired("older-than")

	return cmd
}

func runHistoryList(ctx context.Context, a *app, limit int, contextTag string, jsonOutput bool, out io.Writer) error {
	// Filtering happens after the query, so fetch everything when a tag is set.
	fetch := limit
	if contextTag != "" {
		fetch = 0
	}
	turns, err := a.store.RecentTurns(ctx, fetch)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	if contextTag != "" {
		filtered := turns[:0]
		for _, t := range turns {
			if t.Context == contextTag {
				filtered = append(filtered, t)
			}
		}
		turns = filtered
		if limit > 0 && len(turns) > limit {
			turns = turns[:limit]
		}
	}

	if jsonOutput {
		if turns == nil {
			turns = []storage.ConversationTurn{}
		}
		return writeJSON(out, turns)
	}

	if len(turns) == 0 {
		fmt.Fprintln(out, "No conversation history.")
		return nil
	}
	for _, t := range turns {
		fmt.Fprintf(out, "[%s] (%s)\n", t.Timestamp.Local().Format("2006-01-02 15:04:05"), t.Context)
		fmt.Fprintf(out, "  You:    %s\n", t.UserInput)
		fmt.Fprintf(out, "  Tetris: %s\n", t.SystemResponse)
	}
	return nil
}

func runHistorySearch(ctx context.Context, a *app, query, contextTag string, limit int, jsonOutput bool, out io.Writer) error {
	results, err := search.SearchHistory(ctx, a.store, query, contextTag, limit, a.logger.Named("search"))
	if err != nil {
		return fmt.Errorf("history search failed: %w", err)
	}

	if jsonOutput {
		if results == nil {
			results = []search.Result{}
		}
		return writeJSON(out, results)
	}

	if len(results) == 0 {
		fmt.Fprintf(out, "No turns match %q.\n", query)
		return nil
	}
	fmt.Fprintf(out, "Found %d turn(s):\n\n", len(results))
	for _, r := range results {
		fmt.Fprintf(out, "  %.2f  [%s] %s\n", r.Score, r.Timestamp.Local().Format("2006-01-02 15:04"), r.Input)
		fmt.Fprintf(out, "        → %s\n", r.Response)
	}
	return nil
}

func runHistoryPrune(ctx context.Context, a *app, age time.Duration, out io.Writer) error {
	cutoff := time.Now().Add(-age)
	n, err := a.store.PruneTurns(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune history: %w", err)
	}
	fmt.Fprintf(out, "✓ Deleted %d turn(s) older than %s\n", n, cutoff.Local().Format("2006-01-02 15:04"))
	return nil
}

// parseAge parses "30d" as days and anything else as a time.Duration.
func parseAge(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid age %q: want a positive number of days", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid age %q: want e.g. 30d or 72h", s)
	}
	return d, nil
}
