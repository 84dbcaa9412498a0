package cli

import (
	"fmt"
	"io"

	"github.com/khanglvm/tetris/internal/version"
	"github.com/spf13/cobra"
)

// NewVersionCmd creates the 'version' command
func NewVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display the current version, commit hash, and build date.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd.OutOrStdout())
		},
	}

	return cmd
}

func runVersion(out io.Writer) error {
	v, c, d := version.GetVersionComponents()
	fmt.Fprintf(out, "Version:  %s\n", v)
	fmt.Fprintf(out, "Commit:   %s\n", c)
	fmt.Fprintf(out, "Built:    %s\n", d)
	return nil
}
