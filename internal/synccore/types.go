package synccore

import (
	"fmt"
	"strings"

	"github.com/syncwave/syncwave/internal/errors"
)

// Path identifies an output path. Path A drives the secondary device, path B
// the system default device.
type Path int

const (
	PathA Path = iota
	PathB
)

const numPaths = 2

func (p Path) String() string {
	switch p {
	case PathA:
		return "A"
	case PathB:
		return "B"
	default:
		return fmt.Sprintf("Path(%d)", int(p))
	}
}

// ParsePath converts "a"/"b" (any case) to a Path.
func ParsePath(s string) (Path, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a":
		return PathA, nil
	case "b":
		return PathB, nil
	}
	return 0, errors.Newf("unknown output path %q", s).
		Component("synccore").
		Category(errors.CategoryValidation).
		Build()
}

// RoutingMode decides how many output paths a session drives. It is fixed
// for the lifetime of a session.
type RoutingMode int

const (
	// RoutingSingle drives path A only; the default device is untouched.
	RoutingSingle RoutingMode = iota
	// RoutingDual fans capture out to both paths.
	RoutingDual
)

func (m RoutingMode) String() string {
	if m == RoutingDual {
		return "dual"
	}
	return "single"
}

// ParseRoutingMode converts "single" or "dual" to a RoutingMode.
func ParseRoutingMode(s string) (RoutingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single", "":
		return RoutingSingle, nil
	case "dual":
		return RoutingDual, nil
	}
	return RoutingSingle, errors.Newf("unknown routing mode %q", s).
		Component("synccore").
		Category(errors.CategoryValidation).
		Build()
}

// ChannelMode selects stereo channel routing on a path.
type ChannelMode int32

const (
	ChannelBoth ChannelMode = iota
	ChannelLeftOnly
	ChannelRightOnly
)

func (m ChannelMode) String() string {
	switch m {
	case ChannelLeftOnly:
		return "left"
	case ChannelRightOnly:
		return "right"
	default:
		return "both"
	}
}

// ParseChannelMode converts "both", "left" or "right" to a ChannelMode.
func ParseChannelMode(s string) (ChannelMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "both", "stereo", "":
		return ChannelBoth, nil
	case "left":
		return ChannelLeftOnly, nil
	case "right":
		return ChannelRightOnly, nil
	}
	return ChannelBoth, errors.Newf("unknown channel mode %q", s).
		Component("synccore").
		Category(errors.CategoryValidation).
		Build()
}

// MinFilterHz is the lowest cutoff that enables a filter. Lower targets,
// including zero, leave the filter bypassed.
const MinFilterHz = 20

// DriftPolicy tunes drift correction. When a path has a target delay and the
// buffered frames exceed target + SkipThreshold*frameCount, the pipeline
// discards frames down to target + SkipRetain*frameCount before reading.
type DriftPolicy struct {
	SkipThreshold uint32
	SkipRetain    uint32
}

// DefaultDriftPolicy returns the standard thresholds.
func DefaultDriftPolicy() DriftPolicy {
	return DriftPolicy{SkipThreshold: 2, SkipRetain: 1}
}

// ErrDelayPartiallyApplied reports that a path buffer could not hold the
// whole initial delay. The partial pre-fill stays in place.
var ErrDelayPartiallyApplied = errors.NewStd("delay partially applied")

// ErrSessionClosed is returned by control calls after Close.
var ErrSessionClosed = errors.NewStd("session closed")
