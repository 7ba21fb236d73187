package session

import (
	"math"
	"strconv"
	"strings"

	"github.com/syncwave/syncwave/internal/conf"
	"github.com/syncwave/syncwave/internal/errors"
	"github.com/syncwave/syncwave/internal/logger"
	"github.com/syncwave/syncwave/internal/synccore"
)

// Apply installs settings read from the config file. Device, routing and
// drift changes restart a running session; path controls are applied live.
// A path control changed at runtime keeps its live value until the file
// changes that same control.
func (c *Controller) Apply(next *conf.Settings) error {
	if next == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.base
	c.base = cloneSettings(next)

	eff := cloneSettings(next)
	mergePathControls(&eff.Paths.A, &c.settings.Paths.A, &prev.Paths.A, &next.Paths.A)
	mergePathControls(&eff.Paths.B, &c.settings.Paths.B, &prev.Paths.B, &next.Paths.B)
	old := c.settings
	c.settings = eff

	if prev.Engine.EventQueue != next.Engine.EventQueue {
		c.log.Warn("engine.eventqueue changes take effect after a process restart",
			logger.Int("current", prev.Engine.EventQueue),
			logger.Int("configured", next.Engine.EventQueue))
	}

	backendChanged := prev.Audio.Backend != next.Audio.Backend
	if c.active == nil {
		if backendChanged {
			c.releaseBackendLocked()
		}
		return nil
	}

	if needsRestart(prev, next) {
		c.log.Info("configuration change requires a session restart",
			logger.String("session_id", c.active.id))
		c.state = StateRestarting
		if err := c.stopLocked(); err != nil {
			c.log.Warn("errors while stopping session", logger.Error(err))
		}
		if backendChanged {
			c.releaseBackendLocked()
		}
		return c.startLocked()
	}

	var errs []error
	for _, p := range c.active.sess.ActivePaths() {
		if err := c.applyPathLocked(p, pathSettings(old, p), pathSettings(eff, p)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Controller) releaseBackendLocked() {
	if c.backend == nil {
		return
	}
	if err := c.backend.Close(); err != nil {
		c.log.Warn("failed to close audio backend", logger.Error(err))
	}
	c.backend = nil
}

func needsRestart(prev, next *conf.Settings) bool {
	return prev.Audio != next.Audio ||
		prev.Engine.Routing != next.Engine.Routing ||
		prev.Engine.Drift != next.Engine.Drift
}

// mergePathControls keeps the live value of every control the file did not
// change.
func mergePathControls(eff, live, prev, next *conf.PathSettings) {
	if prev.DelayMs == next.DelayMs {
		eff.DelayMs = live.DelayMs
	}
	if prev.Volume == next.Volume {
		eff.Volume = live.Volume
	}
	if prev.Channel == next.Channel {
		eff.Channel = live.Channel
	}
	if prev.LowPassHz == next.LowPassHz {
		eff.LowPassHz = live.LowPassHz
	}
	if prev.HighPassHz == next.HighPassHz {
		eff.HighPassHz = live.HighPassHz
	}
}

func (c *Controller) applyPathLocked(p synccore.Path, from, to *conf.PathSettings) error {
	sess := c.active.sess
	changed := false
	if from.DelayMs != to.DelayMs {
		if err := sess.AdjustDelay(p, uint32(to.DelayMs)); err != nil {
			return err
		}
		changed = true
	}
	if from.Volume != to.Volume {
		if err := sess.SetVolume(p, float32(to.Volume)); err != nil {
			return err
		}
		changed = true
	}
	if from.Channel != to.Channel {
		mode, err := synccore.ParseChannelMode(to.Channel)
		if err != nil {
			return err
		}
		if err := sess.SetChannelMode(p, mode); err != nil {
			return err
		}
		changed = true
	}
	if from.LowPassHz != to.LowPassHz {
		if err := sess.SetLowPass(p, int32(to.LowPassHz)); err != nil {
			return err
		}
		changed = true
	}
	if from.HighPassHz != to.HighPassHz {
		if err := sess.SetHighPass(p, int32(to.HighPassHz)); err != nil {
			return err
		}
		changed = true
	}
	if changed {
		c.log.Info("applied path settings from configuration",
			logger.String("path", p.String()),
			logger.Int("delay_ms", to.DelayMs),
			logger.Float64("volume", to.Volume),
			logger.String("channel", to.Channel),
			logger.Int("lowpass_hz", to.LowPassHz),
			logger.Int("highpass_hz", to.HighPassHz))
	}
	return nil
}

// Control names accepted by SetControl.
const (
	ControlDelay    = "delay"
	ControlVolume   = "volume"
	ControlChannel  = "channel"
	ControlLowPass  = "lowpass"
	ControlHighPass = "highpass"
)

// Controls lists every live path control.
var Controls = []string{ControlDelay, ControlVolume, ControlChannel, ControlLowPass, ControlHighPass}

// SetControl parses value for the named control and applies it to path.
func (c *Controller) SetControl(path, control, value string) error {
	value = strings.TrimSpace(value)
	switch strings.ToLower(control) {
	case ControlDelay:
		ms, err := strconv.Atoi(value)
		if err != nil {
			return controlError(control, path, value, "delay must be an integer number of milliseconds")
		}
		return c.SetDelay(path, ms)
	case ControlVolume:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return controlError(control, path, value, "volume must be a number")
		}
		return c.SetVolume(path, v)
	case ControlChannel:
		return c.SetChannel(path, value)
	case ControlLowPass, ControlHighPass:
		hz, err := strconv.Atoi(value)
		if err != nil {
			return controlError(control, path, value, "cutoff must be an integer number of hertz")
		}
		if strings.EqualFold(control, ControlLowPass) {
			return c.SetLowPass(path, hz)
		}
		return c.SetHighPass(path, hz)
	}
	return controlError(control, path, value, "unknown control %q", control)
}

// SetDelay changes the target delay of a path in milliseconds. The running
// session converges to the new target through drift correction.
func (c *Controller) SetDelay(path string, ms int) error {
	if ms < 0 || ms > conf.MaxOffsetMs {
		return controlError(ControlDelay, path, ms, "delay must be between 0 and %d ms", conf.MaxOffsetMs)
	}
	return c.updatePath(path, ControlDelay, ms,
		func(s *conf.Settings) error {
			frames := int64(ms) * int64(s.Audio.SampleRate) / 1000
			if frames > int64(s.Audio.BufferFrames) {
				return controlError(ControlDelay, path, ms, "delay exceeds the buffer capacity of %d ms",
					s.Audio.BufferFrames*1000/s.Audio.SampleRate)
			}
			return nil
		},
		func(ps *conf.PathSettings) { ps.DelayMs = ms },
		func(sess *synccore.Session, p synccore.Path) error { return sess.AdjustDelay(p, uint32(ms)) })
}

// SetVolume changes the linear gain of a path.
func (c *Controller) SetVolume(path string, volume float64) error {
	if volume < 0 || math.IsNaN(volume) || math.IsInf(volume, 0) {
		return controlError(ControlVolume, path, volume, "volume must be a finite value >= 0")
	}
	return c.updatePath(path, ControlVolume, volume, nil,
		func(ps *conf.PathSettings) { ps.Volume = volume },
		func(sess *synccore.Session, p synccore.Path) error { return sess.SetVolume(p, float32(volume)) })
}

// SetChannel changes the channel routing of a path: "both", "left" or
// "right".
func (c *Controller) SetChannel(path, channel string) error {
	mode, err := synccore.ParseChannelMode(channel)
	if err != nil {
		return err
	}
	return c.updatePath(path, ControlChannel, mode.String(), nil,
		func(ps *conf.PathSettings) { ps.Channel = mode.String() },
		func(sess *synccore.Session, p synccore.Path) error { return sess.SetChannelMode(p, mode) })
}

// SetLowPass changes the low-pass cutoff of a path. Cutoffs below 20 Hz
// bypass the filter.
func (c *Controller) SetLowPass(path string, hz int) error {
	return c.setCutoff(path, ControlLowPass, hz,
		func(ps *conf.PathSettings) { ps.LowPassHz = hz },
		func(sess *synccore.Session, p synccore.Path) error { return sess.SetLowPass(p, int32(hz)) })
}

// SetHighPass changes the high-pass cutoff of a path. Cutoffs below 20 Hz
// bypass the filter.
func (c *Controller) SetHighPass(path string, hz int) error {
	return c.setCutoff(path, ControlHighPass, hz,
		func(ps *conf.PathSettings) { ps.HighPassHz = hz },
		func(sess *synccore.Session, p synccore.Path) error { return sess.SetHighPass(p, int32(hz)) })
}

func (c *Controller) setCutoff(path, control string, hz int, set func(*conf.PathSettings), apply func(*synccore.Session, synccore.Path) error) error {
	if hz < 0 {
		return controlError(control, path, hz, "cutoff must not be negative")
	}
	return c.updatePath(path, control, hz,
		func(s *conf.Settings) error {
			if nyquist := s.Audio.SampleRate / 2; hz >= synccore.MinFilterHz && hz >= nyquist {
				return controlError(control, path, hz, "cutoff must be below %d Hz", nyquist)
			}
			return nil
		},
		set, apply)
}

// updatePath validates and applies one control change. A running session is
// updated first so that changes it rejects, such as controls of an inactive
// path, leave the settings untouched.
func (c *Controller) updatePath(
	name, control string,
	value any,
	validate func(*conf.Settings) error,
	set func(*conf.PathSettings),
	apply func(*synccore.Session, synccore.Path) error,
) error {
	p, err := synccore.ParsePath(name)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if validate != nil {
		if err := validate(c.settings); err != nil {
			return err
		}
	}
	if c.active != nil {
		if err := apply(c.active.sess, p); err != nil {
			return err
		}
	}
	set(pathSettings(c.settings, p))

	c.log.Info("path control changed",
		logger.String("path", p.String()),
		logger.String("control", control),
		logger.Any("value", value),
		logger.Bool("live", c.active != nil))
	return nil
}

func controlError(control, path string, value any, format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("session").
		Category(errors.CategoryValidation).
		Context("control", control).
		Context("path", path).
		Context("value", value).
		Build()
}
