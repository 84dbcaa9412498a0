/*
Package main is the entry point for the tetris CLI.

tetris is a text-based personal assistant with persistent memory. It
answers utterances from custom commands taught by the user, patterns
learned from earlier conversations, a set of built-in intents and a
fallback that suggests similar commands.

Usage:
  tetris [command]

Available Commands:
  ask         Interpret a single utterance and print the reply
  chat        Start an interactive text conversation
  listen      Run the background listener on standard input
  serve       Run the HTTP/WebSocket API and optionally the MCP server (stdio)
  commands    Manage custom commands
  learning    Manage learning system
  history     Browse, search and prune conversation memory
  prefs       Read and write user preferences
  verify      Verify configuration and the memory database
  version     Show version information
  help        Help about any command

Examples:
  # Ask one question
  tetris ask what time is it

  # Teach a command
  tetris commands add "open music" -r "Opening your playlist" -a command -p spotify

  # Run the API and MCP server
  tetris serve --mcp
*/
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/khanglvm/tetris/internal/cli"
	"github.com/khanglvm/tetris/internal/version"
	"github.com/spf13/cobra"
)

func main() {
	// TETRIS_* overrides may live in a local .env file; a missing file is fine.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "tetris",
		Short: "Text assistant with custom commands and learned replies",
		Long: `tetris is a text-based personal assistant with persistent memory.

Every utterance goes through the same pipeline:
  1. Wake words ("hey tetris", "ok friday", ...) are stripped
  2. Custom commands taught by you are matched by trigger
  3. Learned patterns answer once their confidence is high enough
  4. Built-in intents cover time, date, jokes and greetings
  5. Anything else gets a fallback reply suggesting similar commands

Memory lives in a local SQLite database (~/.tetris/tetris_memory.db) and the
configuration in ~/.tetris/config.yaml.`,
		Version:       version.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(cli.NewAskCmd())
	rootCmd.AddCommand(cli.NewChatCmd())
	rootCmd.AddCommand(cli.NewListenCmd())
	rootCmd.AddCommand(cli.NewServeCmd())
	rootCmd.AddCommand(cli.NewCommandsCmd())
	rootCmd.AddCommand(cli.NewLearningCmd())
	rootCmd.AddCommand(cli.NewHistoryCmd())
	rootCmd.AddCommand(cli.NewPrefsCmd())
	rootCmd.AddCommand(cli.NewVerifyCmd())
	rootCmd.AddCommand(cli.NewVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
