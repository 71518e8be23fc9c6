package cli

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/cuecard/internal/health"
	"github.com/MrWong99/cuecard/internal/observe"
)

// newMux builds the observability routes: /metrics, /healthz and /readyz.
func newMux(m *observe.Metrics, checkers ...health.Checker) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(checkers...).Register(mux)
	return observe.Instrument(m, mux)
}

// metricsServer serves newMux on addr until Shutdown.
type metricsServer struct {
	srv *http.Server
	ln  net.Listener
}

// startMetricsServer listens on addr and serves in the background.
func startMetricsServer(addr string, h http.Handler) (*metricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &metricsServer{
		srv: &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server stopped", "err", err)
		}
	}()
	slog.Info("metrics server listening", "addr", ln.Addr().String())
	return s, nil
}

// Addr returns the bound address.
func (s *metricsServer) Addr() string { return s.ln.Addr().String() }

// Shutdown stops the server gracefully.
func (s *metricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
