package api

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/syncwave/syncwave/internal/conf"
	"github.com/syncwave/syncwave/internal/device"
	"github.com/syncwave/syncwave/internal/errors"
	"github.com/syncwave/syncwave/internal/logger"
	"github.com/syncwave/syncwave/internal/observability"
	"github.com/syncwave/syncwave/internal/observability/metrics"
	"github.com/syncwave/syncwave/internal/profiles"
	"github.com/syncwave/syncwave/internal/session"
	"github.com/syncwave/syncwave/internal/simulate"
	"github.com/syncwave/syncwave/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testSettings() *conf.Settings {
	return &conf.Settings{
		Audio: conf.AudioSettings{
			Backend:       conf.BackendNull,
			SampleRate:    8000,
			Channels:      1,
			BufferFrames:  4000,
			PeriodFrames:  80,
			Input:         conf.DefaultDeviceName,
			Loopback:      true,
			Output:        simulate.HeadsetName,
			DefaultOutput: simulate.DefaultPlaybackName,
		},
		Engine: conf.EngineSettings{
			Routing:    "single",
			Drift:      conf.DriftSettings{SkipThreshold: 2, SkipRetain: 1},
			EventQueue: 64,
		},
		Paths: conf.PathsSettings{
			A: conf.PathSettings{DelayMs: 100, Volume: 1, Channel: "both"},
			B: conf.PathSettings{Volume: 1, Channel: "both"},
		},
		Diagnostics: conf.DiagnosticsSettings{RateLimit: 100, Burst: 10, JournalSize: 4096},
	}
}

func discardLogger() logger.Logger {
	return logger.NewJSONLogger(io.Discard, logger.LogLevelError)
}

func newRunningController(t *testing.T) *session.Controller {
	t.Helper()
	backend := simulate.NewBackend(simulate.Options{SampleRate: 8000, Channels: 1, PeriodFrames: 80})
	c, err := session.NewController(session.Options{
		Settings:   testSettings(),
		NewBackend: func(*conf.Settings) (device.Backend, error) { return backend, nil },
		Logger:     discardLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, c.Start())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

type fakeProfiles struct {
	list []profiles.Profile
}

func (f *fakeProfiles) List() ([]profiles.Profile, error) { return f.list, nil }

func (f *fakeProfiles) Delete(name string) error {
	for i, p := range f.list {
		if p.DeviceName == name {
			f.list = append(f.list[:i], f.list[i+1:]...)
			return nil
		}
	}
	return errors.Newf("no profile for %s", name).Category(errors.CategoryNotFound).Build()
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthAndStatus(t *testing.T) {
	t.Parallel()

	s := New("", newRunningController(t), WithLogger(discardLogger()), WithVersion("1.2.3"))

	rec := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[map[string]any](t, rec)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "1.2.3", health["version"])
	assert.Equal(t, "running", health["session_state"])

	rec = do(t, s, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[session.Status](t, rec)
	assert.Equal(t, session.StateRunning, st.State)
	require.Len(t, st.Paths, 2)
	assert.Equal(t, 100, st.Paths[0].DelayMs)
	assert.True(t, st.Paths[0].Active)
}

func TestPutControl(t *testing.T) {
	t.Parallel()

	m, err := observability.NewMetrics()
	require.NoError(t, err)
	c := newRunningController(t)
	s := New("", c, WithLogger(discardLogger()), WithMetrics(m.HTTP))

	rec := do(t, s, http.MethodPut, "/api/v1/paths/a/delay", `{"value": 250}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[ControlResult](t, rec)
	assert.True(t, res.Success)
	assert.Equal(t, "A", res.Path)
	assert.Equal(t, "250", res.Value)
	assert.Equal(t, 250, c.Settings().Paths.A.DelayMs)

	rec = do(t, s, http.MethodPut, "/api/v1/paths/a/channel", `{"value": "left"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "left", c.Settings().Paths.A.Channel)

	rec = do(t, s, http.MethodGet, "/api/v1/paths/a", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "left", decode[session.PathStatus](t, rec).Channel)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names[metrics.Namespace+"_control_changes_total"])
	assert.True(t, names[metrics.Namespace+"_http_requests_total"])
}

func TestPutControlRejections(t *testing.T) {
	t.Parallel()

	s := New("", newRunningController(t), WithLogger(discardLogger()))

	tests := []struct {
		name   string
		target string
		body   string
		status int
	}{
		{"out of range", "/api/v1/paths/a/delay", `{"value": 5000}`, http.StatusBadRequest},
		{"inactive path", "/api/v1/paths/b/delay", `{"value": 10}`, http.StatusBadRequest},
		{"unknown path", "/api/v1/paths/c/volume", `{"value": 1}`, http.StatusBadRequest},
		{"unknown control", "/api/v1/paths/a/pitch", `{"value": 1}`, http.StatusBadRequest},
		{"missing value", "/api/v1/paths/a/volume", `{}`, http.StatusBadRequest},
		{"boolean value", "/api/v1/paths/a/volume", `{"value": true}`, http.StatusBadRequest},
		{"malformed body", "/api/v1/paths/a/volume", `{"value":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPut, tt.target, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, tt.status, resp.Code)
			assert.Len(t, resp.CorrelationID, 8)
		})
	}
}

func TestGetEvents(t *testing.T) {
	t.Parallel()

	s := New("", newRunningController(t), WithLogger(discardLogger()))

	rec := do(t, s, http.MethodGet, "/api/v1/events?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/events?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDevices(t *testing.T) {
	t.Parallel()

	s := New("", newRunningController(t), WithLogger(discardLogger()))

	rec := do(t, s, http.MethodGet, "/api/v1/devices", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[DeviceList](t, rec)
	assert.Equal(t, "playback", list.Kind)
	require.Len(t, list.Devices, 2)
	assert.Equal(t, simulate.DefaultPlaybackName, list.Devices[0].Name)
	assert.True(t, list.Devices[0].IsDefault)

	rec = do(t, s, http.MethodGet, "/api/v1/devices?kind=capture", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, simulate.DefaultCaptureName, decode[DeviceList](t, rec).Devices[0].Name)

	rec = do(t, s, http.MethodGet, "/api/v1/devices?kind=midi", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProfilesEndpoints(t *testing.T) {
	t.Parallel()

	c := newRunningController(t)
	disabled := New("", c, WithLogger(discardLogger()))
	assert.Equal(t, http.StatusNotFound, do(t, disabled, http.MethodGet, "/api/v1/profiles", "").Code)

	store := &fakeProfiles{list: []profiles.Profile{{DeviceName: "WH-1000XM4", DelayMs: 180, Volume: 1}}}
	s := New("", c, WithLogger(discardLogger()), WithProfiles(store))

	rec := do(t, s, http.MethodGet, "/api/v1/profiles", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]profiles.Profile](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, 180, list[0].DelayMs)

	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodDelete, "/api/v1/profiles/WH-1000XM4", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodDelete, "/api/v1/profiles/WH-1000XM4", "").Code)
}

func TestUnknownRouteReturnsJSON(t *testing.T) {
	t.Parallel()

	s := New("", newRunningController(t), WithLogger(discardLogger()))
	rec := do(t, s, http.MethodGet, "/api/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, decode[ErrorResponse](t, rec).Code)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := New(ln.Addr().String(), newRunningController(t), WithLogger(discardLogger()))

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	client := &http.Client{Timeout: 2 * time.Second}
	require.Eventually(t, func() bool {
		resp, err := client.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	client.CloseIdleConnections()
	cancel()
	require.NoError(t, testutil.Returned(t, done))
}
