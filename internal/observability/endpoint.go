package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/syncwave/syncwave/internal/logger"
	metricspkg "github.com/syncwave/syncwave/internal/observability/metrics"
)

const debugPath = "/debug/pprof/"

// Endpoint serves /metrics, and /debug/pprof when debug is enabled.
type Endpoint struct {
	server        *http.Server
	listenAddress string
	metrics       *Metrics
}

// NewEndpoint creates an endpoint listening on listenAddress.
func NewEndpoint(listenAddress string, m *Metrics, debug bool) *Endpoint {
	mux := http.NewServeMux()
	m.RegisterHandlers(mux)
	if debug {
		registerDebugHandlers(mux)
	}

	return &Endpoint{
		listenAddress: listenAddress,
		metrics:       m,
		server: &http.Server{
			Addr:              listenAddress,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Run serves until ctx is cancelled, then shuts the server down gracefully.
// It returns nil on a clean shutdown.
func (e *Endpoint) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return err
	}
	return e.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (e *Endpoint) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		GetLogger().Info("metrics endpoint starting", logger.String("address", ln.Addr().String()))
		errCh <- e.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	GetLogger().Info("stopping metrics endpoint")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), metricspkg.ShutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(shutdownCtx); err != nil {
		GetLogger().Error("metrics server shutdown error", logger.Error(err))
		return err
	}
	<-errCh
	return nil
}

// GetMetrics returns the Metrics instance associated with this Endpoint.
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}

func registerDebugHandlers(mux *http.ServeMux) {
	mux.HandleFunc(debugPath, pprof.Index)
	mux.HandleFunc(debugPath+"cmdline", pprof.Cmdline)
	mux.HandleFunc(debugPath+"profile", pprof.Profile)
	mux.HandleFunc(debugPath+"symbol", pprof.Symbol)
	mux.HandleFunc(debugPath+"trace", pprof.Trace)
}
