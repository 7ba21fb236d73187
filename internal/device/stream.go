package device

import (
	"time"
	"unsafe"

	"github.com/gen2brain/malgo"

	"github.com/syncwave/syncwave/internal/errors"
	"github.com/syncwave/syncwave/internal/observability/metrics"
)

type malgoStream struct {
	info Info
	dev  *malgo.Device
	ctx  *Context
}

func (s *malgoStream) Name() string { return s.info.Name }

func (s *malgoStream) Start() error {
	start := time.Now()
	err := s.dev.Start()
	s.ctx.record(metrics.OpDeviceStart, start, err)
	if err != nil {
		return errors.New(err).
			Component("device").
			Category(categoryFor(s.info.Kind)).
			DeviceContext(s.info.Kind.String(), s.info.Name).
			Context("operation", "start_device").
			Build()
	}
	return nil
}

func (s *malgoStream) Stop() error {
	if !s.dev.IsStarted() {
		return nil
	}
	start := time.Now()
	err := s.dev.Stop()
	s.ctx.record(metrics.OpDeviceStop, start, err)
	if err != nil {
		return errors.New(err).
			Component("device").
			Category(categoryFor(s.info.Kind)).
			DeviceContext(s.info.Kind.String(), s.info.Name).
			Context("operation", "stop_device").
			Build()
	}
	return nil
}

func (s *malgoStream) Close() {
	s.dev.Uninit()
}

// bytesToFloat32 views a miniaudio f32 buffer as samples without copying.
func bytesToFloat32(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(unsafe.SliceData(b))), len(b)/4)
}
