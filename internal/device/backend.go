// Package device opens the capture and playback streams SyncWave runs on,
// using miniaudio through malgo.
package device

import (
	"runtime"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/syncwave/syncwave/internal/conf"
	"github.com/syncwave/syncwave/internal/errors"
)

// backendsFor returns the malgo backends to try, in order, for a configured
// backend name on goos.
func backendsFor(name, goos string) ([]malgo.Backend, error) {
	switch strings.ToLower(name) {
	case conf.BackendAuto, "":
		switch goos {
		case "windows":
			return []malgo.Backend{malgo.BackendWasapi}, nil
		case "darwin":
			return []malgo.Backend{malgo.BackendCoreaudio}, nil
		case "linux":
			// pulse exposes monitor sources for system audio capture
			return []malgo.Backend{malgo.BackendPulseaudio, malgo.BackendAlsa}, nil
		default:
			return nil, unsupportedBackendError(name, goos)
		}
	case conf.BackendWASAPI:
		return []malgo.Backend{malgo.BackendWasapi}, nil
	case conf.BackendPulse:
		return []malgo.Backend{malgo.BackendPulseaudio}, nil
	case conf.BackendALSA:
		return []malgo.Backend{malgo.BackendAlsa}, nil
	case conf.BackendCoreAudio:
		return []malgo.Backend{malgo.BackendCoreaudio}, nil
	case conf.BackendJACK:
		return []malgo.Backend{malgo.BackendJack}, nil
	case conf.BackendNull:
		return []malgo.Backend{malgo.BackendNull}, nil
	}
	return nil, unsupportedBackendError(name, goos)
}

// supportsLoopback reports whether the backend list captures loopback
// through a playback device. Other backends expose system audio as regular
// capture devices, such as pulse monitor sources.
func supportsLoopback(backends []malgo.Backend) bool {
	return len(backends) > 0 && backends[0] == malgo.BackendWasapi
}

func unsupportedBackendError(name, goos string) error {
	return errors.Newf("audio backend %q is not supported on %s", name, goos).
		Component("device").
		Category(errors.CategoryConfiguration).
		Context("backend", name).
		Context("os", goos).
		Build()
}

func platformBackends(name string) ([]malgo.Backend, error) {
	return backendsFor(name, runtime.GOOS)
}
