package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/syncwave/syncwave/internal/buildinfo"
)

// Command creates a new cobra.Command to print build information.
func Command(build *buildinfo.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), build.String())
			return err
		},
	}
}
