package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/khanglvm/tetris/internal/commands"
	"github.com/khanglvm/tetris/internal/storage"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

// Export formats.
const (
	formatJSON  = "json"
	formatJSONL = "jsonl"
)

// NewExportCmd creates the 'commands export' command.
func NewExportCmd() *cobra.Command {
	var format string
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export custom commands for backup or grep search",
		Long: `Write every custom command to ~/.tetris/commands.jsonl (one command per
line) or to a JSON array. The file can be read back with 'tetris commands
import' or searched offline with grep and jq.

Default output: ~/.tetris/commands.jsonl
Default format: JSONL (one command per line)`,
		Example: `  # Export to default location
  tetris commands export

  # Export as JSON array
  tetris commands export --format json --output ./commands.json

  # Print to stdout
  tetris commands export --output -

Grep usage examples:
  # Find commands that open a URL
  grep '"action_type":"web"' ~/.tetris/commands.jsonl

  # List all triggers
  jq -r '.trigger' ~/.tetris/commands.jsonl`,
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
			return runExport(ctx, a, format, output, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&format, "format", formatJSONL, "Output format: json or jsonl")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path, - for stdout (default: ~/.tetris/commands.jsonl)")

	return cmd
}

// runExport executes the export command.
func runExport(ctx context.Context, a *app, format, output string, out io.Writer) (err error) {
	if format != formatJSON && format != formatJSONL {
		return fmt.Errorf("unknown format %q (want json or jsonl)", format)
	}

	cmds, err := a.resolver.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list commands: %w", err)
	}
	cmds = commands.ByUsage(cmds)

	if output == "-" {
		return encodeCommands(out, cmds, format)
	}

	if output == "" {
		ext := "." + format
		output = filepath.Join(filepath.Dir(a.configPath), "commands"+ext)
	}

	lockFile, err := acquireFileLock(output)
	if err != nil {
		return fmt.Errorf("failed to acquire file lock: %w", err)
	}
	defer func() {
		if rerr := releaseFileLock(lockFile); rerr != nil && err == nil {
			err = fmt.Errorf("failed to release file lock: %w", rerr)
		}
	}()

	if err := writeCommands(cmds, output, format); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Exported %d command(s) to %s\n", len(cmds), output)
	return nil
}

// writeCommands writes the command list to path. Buffered data is flushed
// and the file closed before it returns, and errors from both are reported.
func writeCommands(cmds []storage.CustomCommand, path, format string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}

	w := bufio.NewWriter(file)
	if err := encodeCommands(w, cmds, format); err != nil {
		file.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("failed to write export file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	return nil
}

func encodeCommands(w io.Writer, cmds []storage.CustomCommand, format string) error {
	encoder := json.NewEncoder(w)

	if format == formatJSON {
		if cmds == nil {
			cmds = []storage.CustomCommand{}
		}
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(cmds); err != nil {
			return fmt.Errorf("failed to encode commands: %w", err)
		}
		return nil
	}

	for _, c := range cmds {
		if err := encoder.Encode(c); err != nil {
			return fmt.Errorf("failed to encode command: %w", err)
		}
	}
	return nil
}

// NewImportCmd creates the 'commands import' command.
func NewImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import custom commands from a JSON or JSONL file",
		Long: `Read custom commands written by 'tetris commands export' (or by hand) and
add them. A command whose trigger already exists is updated in place, so
importing the same file twice is harmless. Use - to read standard input.`,
		Example: `  tetris commands import ~/.tetris/commands.jsonl
  cat commands.json | tetris commands import -`,
		Args: cobra.ExactArgs(1),
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

			var data []byte
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			return runImport(ctx, a, data, cmd.OutOrStdout())
		},
	}

	return cmd
}

// runImport upserts every command found in data.
func runImport(ctx context.Context, a *app, data []byte, out io.Writer) error {
	cmds, err := parseCommandFile(data)
	if err != nil {
		return err
	}

	var created, updated, failed int
	for _, c := range cmds {
		isNew, err := a.resolver.Upsert(ctx, c)
		switch {
		case err != nil:
			failed++
			fmt.Fprintf(out, "✗ %s: %v\n", c.Trigger, err)
		case isNew:
			created++
		default:
			updated++
		}
	}

	fmt.Fprintf(out, "✓ Imported %d command(s): %d new, %d updated\n", created+updated, created, updated)
	if failed > 0 {
		return fmt.Errorf("%d command(s) could not be imported", failed)
	}
	return nil
}

// parseCommandFile accepts a JSON array, a wrapped or single JSON object,
// or one JSON object per line.
func parseCommandFile(data []byte) ([]storage.CustomCommand, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, fmt.Errorf("no commands found in input")
	}

	if cmds, err := parseCommandJSON(text); err == nil {
		return cmds, nil
	} else if strings.HasPrefix(text, "[") {
		return nil, err
	}

	var cmds []storage.CustomCommand
	dec := json.NewDecoder(strings.NewReader(text))
	for line := 1; ; line++ {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("entry %d: invalid JSON: %w", line, err)
		}
		parsed, err := parseCommandJSON(string(raw))
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", line, err)
		}
		cmds = append(cmds, parsed...)
	}
	return cmds, nil
}

// acquireFileLock acquires an exclusive lock next to the export file.
func acquireFileLock(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	lockPath := path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	// Non-blocking: a concurrent export fails fast instead of queueing.
	err = unix.Flock(int(lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("failed to acquire lock (another export in progress?): %w", err)
	}

	return lockFile, nil
}

// releaseFileLock releases the file lock and removes the lock file.
func releaseFileLock(lockFile *os.File) error {
	if lockFile == nil {
		return nil
	}

	lockPath := lockFile.Name()

	var errs []error
	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_UN); err != nil {
		errs = append(errs, fmt.Errorf("unlock: %w", err))
	}
	if err := lockFile.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("remove: %w", err))
	}
	return errors.Join(errs...)
}
