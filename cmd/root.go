package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/syncwave/syncwave/cmd/devices"
	"github.com/syncwave/syncwave/cmd/notify"
	"github.com/syncwave/syncwave/cmd/simulate"
	"github.com/syncwave/syncwave/cmd/stream"
	"github.com/syncwave/syncwave/cmd/support"
	"github.com/syncwave/syncwave/cmd/version"
	runtimectx "github.com/syncwave/syncwave/internal/runtime"
)

// RootCommand creates and returns the root command
func RootCommand(rt *runtimectx.Context) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "syncwave",
		Short:         "SyncWave dual-output audio synchronizer",
		Long:          "Capture audio once and play it on one or two outputs, each with its own delay, volume, channel and filter settings.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to the config file (default: search the standard locations)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	runtimectx.MarkFlag(rootCmd.PersistentFlags(), "debug", "debug")

	versionCmd := version.Command(rt.Build)
	subcommands := []*cobra.Command{
		stream.Command(rt),
		devices.Command(rt),
		simulate.Command(rt),
		notify.Command(rt),
		support.Command(rt),
		versionCmd,
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// version works without a config file
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		return rt.Load(configFile, func(v *viper.Viper) error {
			return runtimectx.BindMarked(v, cmd.Flags())
		})
	}

	return rootCmd
}
