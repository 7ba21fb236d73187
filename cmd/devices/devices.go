// Package devices implements the `syncwave devices` command.
package devices

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/syncwave/syncwave/internal/device"
	"github.com/syncwave/syncwave/internal/errors"
	runtimectx "github.com/syncwave/syncwave/internal/runtime"
)

// Command creates the devices command.
func Command(rt *runtimectx.Context) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio devices",
		Long:  "List the playback and capture devices of the configured audio backend. Names or IDs from this list can be used for audio.input, audio.output and audio.defaultoutput.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := parseKind(kind)
			if err != nil {
				return err
			}
			backend, err := device.NewContext(device.Options{
				Backend: rt.Settings.Audio.Backend,
				Debug:   rt.Settings.Debug,
			})
			if err != nil {
				return err
			}
			defer func() { _ = backend.Close() }()

			if err := List(cmd.OutOrStdout(), backend, kinds...); err != nil {
				return err
			}
			if !backend.Loopback() {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "\nLoopback capture is not available on this backend.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "all", "Device kind: playback|capture|all")
	return cmd
}

func parseKind(kind string) ([]device.Kind, error) {
	switch strings.ToLower(kind) {
	case "all", "":
		return []device.Kind{device.KindPlayback, device.KindCapture}, nil
	case "playback", "output":
		return []device.Kind{device.KindPlayback}, nil
	case "capture", "input":
		return []device.Kind{device.KindCapture}, nil
	}
	return nil, errors.Newf("invalid device kind %q, expected playback, capture or all", kind).
		Component("device").
		Category(errors.CategoryValidation).
		Build()
}

// Lister enumerates devices. device.Backend implements it.
type Lister interface {
	Devices(kind device.Kind) ([]device.Info, error)
}

// List writes one table per kind to w.
func List(w io.Writer, backend Lister, kinds ...device.Kind) error {
	for i, kind := range kinds {
		infos, err := backend.Devices(kind)
		if err != nil {
			return err
		}
		if i > 0 {
			_, _ = fmt.Fprintln(w)
		}
		_, _ = fmt.Fprintf(w, "%s devices:\n", strings.ToUpper(kind.String()[:1])+kind.String()[1:])

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "  #\tDEFAULT\tNAME\tID")
		for _, info := range infos {
			def := ""
			if info.IsDefault {
				def = "*"
			}
			_, _ = fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\n", info.Index, def, info.Name, info.ID)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}
