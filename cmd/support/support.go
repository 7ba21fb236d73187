// Package support implements the `syncwave support` commands.
package support

import (
	"github.com/spf13/cobra"

	runtimectx "github.com/syncwave/syncwave/internal/runtime"
)

// Command creates the support parent command
func Command(rt *runtimectx.Context) *cobra.Command {
	supportCmd := &cobra.Command{
		Use:   "support",
		Short: "Commands for troubleshooting SyncWave",
	}

	supportCmd.AddCommand(CollectCommand(rt))

	return supportCmd
}
