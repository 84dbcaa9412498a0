/*
Package cli provides commands for managing the learning system.

These commands allow users to view learning statistics, inspect and export
learned patterns, clear them, and toggle learning mode on/off.
*/
package cli

import (
	"github.com/spf13/cobra"
)

// NewLearningCmd creates the learning command group.
func NewLearningCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learning",
		Short: "Manage learning system (learned patterns and learning mode)",
		Long: `The learning system remembers the first two words of every utterance
that was not handled by a custom command, together with the reply it got.
A pattern whose confidence rises above the threshold answers later
utterances that contain it.

All data is stored locally in the memory database (~/.tetris/tetris_memory.db
by default). Exports can anonymize user text with SHA256 hashes.

Commands:
  status    Show learning statistics
  patterns  List learned patterns
  export    Export patterns and history as JSON
  clear     Delete all learned patterns
  disable   Turn off learning (persisted)
  enable    Turn on learning (persisted)`,
	}

	cmd.AddCommand(newLearningStatusCmd())
	cmd.AddCommand(newLearningPatternsCmd())
	cmd.AddCommand(newLearningExportCmd())
	cmd.AddCommand(newLearningClearCmd())
	cmd.AddCommand(newLearningDisableCmd())
	cmd.AddCommand(newLearningEnableCmd())

	return cmd
}
