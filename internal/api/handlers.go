package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/syncwave/syncwave/internal/device"
	"github.com/syncwave/syncwave/internal/observability/metrics"
	"github.com/syncwave/syncwave/internal/synccore"
)

// ControlRequest is the body of PUT /api/v1/paths/:path/:control. Value may
// be a JSON number or string.
type ControlRequest struct {
	Value json.RawMessage `json:"value"`
}

// ControlResult reports an applied control change.
type ControlResult struct {
	Success   bool      `json:"success"`
	Path      string    `json:"path"`
	Control   string    `json:"control"`
	Value     string    `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// DeviceList is the body of GET /api/v1/devices.
type DeviceList struct {
	Kind    string        `json:"kind"`
	Devices []DeviceEntry `json:"devices"`
}

// DeviceEntry describes one audio device.
type DeviceEntry struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	ID        string `json:"id"`
	IsDefault bool   `json:"is_default"`
}

func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	st := s.controller.Status()
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"version":        s.version,
		"session_state":  st.State,
		"uptime":         uptime.Truncate(time.Second).String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

// getStatus handles GET /api/v1/status.
func (s *Server) getStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.controller.Status())
}

// getEvents handles GET /api/v1/events?limit=N.
func (s *Server) getEvents(c echo.Context) error {
	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return s.handleError(c, err, "limit must be a positive integer", http.StatusBadRequest)
		}
		limit = min(n, MaxEvents)
	}
	return c.JSON(http.StatusOK, s.controller.RecentEvents(limit))
}

// getDevices handles GET /api/v1/devices?kind=playback|capture.
func (s *Server) getDevices(c echo.Context) error {
	kind := device.KindPlayback
	switch strings.ToLower(c.QueryParam("kind")) {
	case "", "playback", "output":
	case "capture", "input":
		kind = device.KindCapture
	default:
		return s.handleError(c, nil, "kind must be playback or capture", http.StatusBadRequest)
	}

	backend := s.controller.Backend()
	if backend == nil {
		return s.handleError(c, nil, "audio backend is not open", http.StatusServiceUnavailable)
	}
	infos, err := backend.Devices(kind)
	if err != nil {
		return s.handleError(c, err, "failed to enumerate devices", statusFor(err))
	}

	out := DeviceList{Kind: kind.String(), Devices: make([]DeviceEntry, 0, len(infos))}
	for _, info := range infos {
		out.Devices = append(out.Devices, DeviceEntry{
			Index:     info.Index,
			Name:      info.Name,
			ID:        info.ID,
			IsDefault: info.IsDefault,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// getPath handles GET /api/v1/paths/:path.
func (s *Server) getPath(c echo.Context) error {
	p, err := synccore.ParsePath(c.Param("path"))
	if err != nil {
		return s.handleError(c, err, "path must be a or b", http.StatusBadRequest)
	}
	for _, ps := range s.controller.Status().Paths {
		if ps.Path == p.String() {
			return c.JSON(http.StatusOK, ps)
		}
	}
	return s.handleError(c, nil, "path not found", http.StatusNotFound)
}

// putControl handles PUT /api/v1/paths/:path/:control.
func (s *Server) putControl(c echo.Context) error {
	path := c.Param("path")
	control := strings.ToLower(c.Param("control"))

	var req ControlRequest
	if err := c.Bind(&req); err != nil {
		s.recordControl(control, metrics.StatusError)
		return s.handleError(c, err, "invalid request body", http.StatusBadRequest)
	}
	value, err := rawValue(req.Value)
	if err != nil {
		s.recordControl(control, metrics.StatusError)
		return s.handleError(c, err, "value must be a number or string", http.StatusBadRequest)
	}

	if err := s.controller.SetControl(path, control, value); err != nil {
		s.recordControl(control, metrics.StatusError)
		return s.handleError(c, err, "control change rejected", statusFor(err))
	}
	s.recordControl(control, metrics.StatusSuccess)

	return c.JSON(http.StatusOK, ControlResult{
		Success:   true,
		Path:      strings.ToUpper(path),
		Control:   control,
		Value:     value,
		Timestamp: time.Now(),
	})
}

func (s *Server) recordControl(control, status string) {
	if s.metrics != nil {
		s.metrics.RecordControlChange("api", control, status)
	}
}

// rawValue turns a JSON number or string into its text form.
func rawValue(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", echo.NewHTTPError(http.StatusBadRequest, "value is required")
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return "", err
	}
	return num.String(), nil
}

// getProfiles handles GET /api/v1/profiles.
func (s *Server) getProfiles(c echo.Context) error {
	if s.profiles == nil {
		return s.handleError(c, nil, "device profiles are disabled", http.StatusNotFound)
	}
	list, err := s.profiles.List()
	if err != nil {
		return s.handleError(c, err, "failed to list profiles", http.StatusInternalServerError)
	}
	return c.JSON(http.StatusOK, list)
}

// deleteProfile handles DELETE /api/v1/profiles/:device.
func (s *Server) deleteProfile(c echo.Context) error {
	if s.profiles == nil {
		return s.handleError(c, nil, "device profiles are disabled", http.StatusNotFound)
	}
	name, err := url.PathUnescape(c.Param("device"))
	if err != nil {
		return s.handleError(c, err, "invalid device name", http.StatusBadRequest)
	}
	if err := s.profiles.Delete(name); err != nil {
		return s.handleError(c, err, "failed to delete profile", statusFor(err))
	}
	return c.NoContent(http.StatusNoContent)
}
