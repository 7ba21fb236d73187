// Package simulate implements the `syncwave simulate` command, which runs
// a session against the software backend and reports the delay each output
// path applied.
package simulate

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/go-audio/audio"
	"github.com/spf13/cobra"

	"github.com/syncwave/syncwave/internal/conf"
	"github.com/syncwave/syncwave/internal/device"
	"github.com/syncwave/syncwave/internal/errors"
	"github.com/syncwave/syncwave/internal/logger"
	runtimectx "github.com/syncwave/syncwave/internal/runtime"
	"github.com/syncwave/syncwave/internal/session"
	sim "github.com/syncwave/syncwave/internal/simulate"
)

// Options configures one simulation run.
type Options struct {
	Routing       string
	DelayA        int
	DelayB        int
	SampleRate    int
	Channels      int
	PeriodFrames  int
	Duration      time.Duration
	ClickInterval time.Duration
	Threshold     float32
	WAVIn         string
	WAVOutA       string
	WAVOutB       string
}

// PathResult is the measurement of one output path.
type PathResult struct {
	Path          string
	Device        string
	DelayMs       int
	OnsetFrame    int // -1 when no onset was found
	MeasuredMs    float64
	SkippedFrames uint64
	PaddedFrames  uint64
}

// Report is the outcome of a simulation.
type Report struct {
	SampleRate      int
	Frames          int
	InputOnsetFrame int
	Paths           []PathResult
}

// Command creates the simulate command.
func Command(rt *runtimectx.Context) *cobra.Command {
	opts := Options{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a session on the software backend and measure path delays",
		Long: `Feed a click track, or a WAV file, through a session on the simulated
backend and report where the first onset lands on each output.

Examples:
  syncwave simulate --delay 250
  syncwave simulate --routing dual --delay 0 --delay-b 300 --wav-out-a a.wav --wav-out-b b.wav`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := Simulate(rt.Settings, opts, rt.Logger("simulate"))
			if err != nil {
				return err
			}
			return Print(cmd.OutOrStdout(), report)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Routing, "routing", "single", "Output routing: single or dual")
	flags.IntVar(&opts.DelayA, "delay", 0, "Path A delay in milliseconds")
	flags.IntVar(&opts.DelayB, "delay-b", 0, "Path B delay in milliseconds")
	flags.IntVar(&opts.SampleRate, "rate", conf.SampleRate, "Sample rate in Hz, ignored with --wav-in")
	flags.IntVar(&opts.Channels, "channels", conf.NumChannels, "Channel count, ignored with --wav-in")
	flags.IntVar(&opts.PeriodFrames, "period", 0, "Frames per device callback (default: 10 ms)")
	flags.DurationVar(&opts.Duration, "duration", 2*time.Second, "Simulated duration")
	flags.DurationVar(&opts.ClickInterval, "click-interval", time.Second, "Click track interval")
	flags.Float32Var(&opts.Threshold, "threshold", 0.5, "Onset detection threshold")
	flags.StringVar(&opts.WAVIn, "wav-in", "", "Capture this WAV file instead of a click track")
	flags.StringVar(&opts.WAVOutA, "wav-out-a", "", "Write path A output to this WAV file")
	flags.StringVar(&opts.WAVOutB, "wav-out-b", "", "Write path B output to this WAV file")
	return cmd
}

// Simulate runs opts on a fresh simulated backend. base supplies the
// engine tuning; devices, geometry, routing and delays come from opts.
func Simulate(base *conf.Settings, opts Options, log logger.Logger) (*Report, error) {
	var input *audio.Float32Buffer
	if opts.WAVIn != "" {
		buf, err := sim.LoadWAV(opts.WAVIn)
		if err != nil {
			return nil, err
		}
		input = buf
		opts.SampleRate = buf.Format.SampleRate
		opts.Channels = buf.Format.NumChannels
	}
	if opts.PeriodFrames <= 0 {
		opts.PeriodFrames = opts.SampleRate / 100
	}
	if opts.Duration <= 0 {
		return nil, errors.Newf("duration must be positive").
			Component("simulate").
			Category(errors.CategoryValidation).
			Build()
	}

	settings := *base
	settings.Audio = conf.AudioSettings{
		Backend:       conf.BackendNull,
		SampleRate:    opts.SampleRate,
		Channels:      opts.Channels,
		BufferFrames:  base.Audio.BufferFrames,
		PeriodFrames:  opts.PeriodFrames,
		Input:         sim.DefaultCaptureName,
		Loopback:      true,
		Output:        sim.HeadsetName,
		DefaultOutput: sim.DefaultPlaybackName,
	}
	settings.Engine.Routing = opts.Routing
	settings.Paths.A.DelayMs = opts.DelayA
	settings.Paths.B.DelayMs = opts.DelayB
	if err := conf.ValidateSettings(&settings); err != nil {
		return nil, err
	}

	var signal sim.Signal
	inputOnset := 0
	if input != nil {
		signal = sim.NewBufferSignal(input)
		inputOnset = sim.FirstOnset(input, opts.Threshold)
	} else {
		interval := int(opts.ClickInterval.Seconds() * float64(opts.SampleRate))
		signal = sim.NewClickTrack(opts.Channels, interval)
	}

	backend := sim.NewBackend(sim.Options{
		SampleRate:   opts.SampleRate,
		Channels:     opts.Channels,
		PeriodFrames: opts.PeriodFrames,
		Signal:       signal,
	})
	controller, err := session.NewController(session.Options{
		Settings:   &settings,
		NewBackend: func(*conf.Settings) (device.Backend, error) { return backend, nil },
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}
	if err := controller.Start(); err != nil {
		_ = controller.Close()
		return nil, err
	}

	periods := int(opts.Duration.Seconds() * float64(opts.SampleRate) / float64(opts.PeriodFrames))
	backend.StepN(max(periods, 1))
	status := controller.Status()
	if err := controller.Close(); err != nil {
		return nil, err
	}

	report := &Report{
		SampleRate:      opts.SampleRate,
		Frames:          periods * opts.PeriodFrames,
		InputOnsetFrame: inputOnset,
	}
	outFiles := []string{opts.WAVOutA, opts.WAVOutB}
	for i, ps := range status.Paths {
		if !ps.Active {
			continue
		}
		out := backend.Output(ps.Device)
		res := PathResult{
			Path:          ps.Path,
			Device:        ps.Device,
			DelayMs:       ps.DelayMs,
			OnsetFrame:    -1,
			SkippedFrames: ps.SkippedFrames,
			PaddedFrames:  ps.PaddedFrames,
		}
		if out != nil {
			res.OnsetFrame = sim.FirstOnset(out, opts.Threshold)
			if res.OnsetFrame >= 0 && inputOnset >= 0 {
				res.MeasuredMs = float64(res.OnsetFrame-inputOnset) * 1000 / float64(opts.SampleRate)
			}
			if outFiles[i] != "" {
				if err := sim.SaveWAV(outFiles[i], out); err != nil {
					return nil, err
				}
			}
		}
		report.Paths = append(report.Paths, res)
	}
	return report, nil
}

// Print writes report as a table.
func Print(w io.Writer, report *Report) error {
	_, _ = fmt.Fprintf(w, "Simulated %.2f s at %d Hz\n\n",
		float64(report.Frames)/float64(report.SampleRate), report.SampleRate)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PATH\tDEVICE\tTARGET\tMEASURED\tSKIPPED\tPADDED")
	for _, p := range report.Paths {
		measured := "no onset"
		if p.OnsetFrame >= 0 {
			measured = fmt.Sprintf("%.1f ms", p.MeasuredMs)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d ms\t%s\t%d\t%d\n",
			p.Path, p.Device, p.DelayMs, measured, p.SkippedFrames, p.PaddedFrames)
	}
	return tw.Flush()
}
