package support

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/syncwave/syncwave/internal/diagnostics"
	"github.com/syncwave/syncwave/internal/errors"
	runtimectx "github.com/syncwave/syncwave/internal/runtime"
)

// CollectCommand creates the support data collection subcommand
func CollectCommand(rt *runtimectx.Context) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect system diagnostics for troubleshooting",
		Long: `Print host and runtime statistics. With --dir the report is also
written to debug_<timestamp>.txt in that directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Collecting support data...")
			return Collect(cmd.OutOrStdout(), rt.Build.String(), dir)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Also write the report to this directory")
	cmd.Flags().Lookup("dir").NoOptDefVal = "."
	return cmd
}

// Collect writes the build line and a system report to w.
func Collect(w io.Writer, build, dir string) error {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.New(err).
				Component("support").
				Category(errors.CategoryFileIO).
				Context("dir", dir).
				Build()
		}
	}
	_, _ = fmt.Fprintln(w, build)
	_, err := fmt.Fprint(w, diagnostics.CaptureSystemInfo("support collect", dir))
	return err
}
