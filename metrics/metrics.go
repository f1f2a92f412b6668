// Package metrics exposes the bridge's Prometheus counters/gauges over
// HTTP, grounded on cloudflared's metrics/metrics.go (the /metrics
// promhttp.Handler and a bounded-shutdown http.Server), trimmed of the
// multi-binary concerns (gracenet socket handoff, the diagnostic and
// orchestration endpoints, build-info registration) this single-purpose
// server doesn't have.
package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const defaultShutdownTimeout = 15 * time.Second

// Registry is the bridge's domain counters/gauges, registered against the
// default prometheus registry so a single promhttp.Handler serves them all.
type Registry struct {
	ActiveConnections prometheus.Gauge
	ActiveStreams     prometheus.Gauge
	BytesFlushed      prometheus.Counter
	CodecErrors       prometheus.Counter
	HandlerPanics     prometheus.Counter
}

// NewRegistry constructs and registers every gauge/counter. Call once per
// process; a second call would panic on duplicate registration, matching
// prometheus.MustRegister's own behavior.
func NewRegistry() *Registry {
	r := &Registry{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fpy3d",
			Name:      "active_connections",
			Help:      "Number of QUIC connections currently open.",
		}),
		ActiveStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fpy3d",
			Name:      "active_streams",
			Help:      "Number of request streams currently registered across all connections.",
		}),
		BytesFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fpy3d",
			Name:      "bytes_flushed_total",
			Help:      "Total bytes written to QUIC streams by the flush engine.",
		}),
		CodecErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fpy3d",
			Name:      "codec_errors_total",
			Help:      "Total stream-local HTTP/3 framing errors observed.",
		}),
		HandlerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fpy3d",
			Name:      "handler_panics_total",
			Help:      "Total application handler callbacks that panicked.",
		}),
	}
	prometheus.MustRegister(r.ActiveConnections, r.ActiveStreams, r.BytesFlushed, r.CodecErrors, r.HandlerPanics)
	return r
}

// The Inc*/Add* helpers below are nil-receiver safe, so bridge code can hold
// a possibly-nil *Registry (e.g. in tests that don't care about metrics)
// without a nil check at every call site.

func (r *Registry) IncConnections() {
	if r != nil {
		r.ActiveConnections.Inc()
	}
}

func (r *Registry) DecConnections() {
	if r != nil {
		r.ActiveConnections.Dec()
	}
}

func (r *Registry) IncStreams() {
	if r != nil {
		r.ActiveStreams.Inc()
	}
}

func (r *Registry) DecStreams() {
	if r != nil {
		r.ActiveStreams.Dec()
	}
}

func (r *Registry) AddBytesFlushed(n int) {
	if r != nil && n > 0 {
		r.BytesFlushed.Add(float64(n))
	}
}

func (r *Registry) IncCodecErrors() {
	if r != nil {
		r.CodecErrors.Inc()
	}
}

func (r *Registry) IncHandlerPanics() {
	if r != nil {
		r.HandlerPanics.Inc()
	}
}

// Serve runs an HTTP server exposing /metrics on l until ctx is cancelled,
// then shuts it down within shutdownTimeout (defaulting if zero).
func Serve(ctx context.Context, l net.Listener, shutdownTimeout time.Duration, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprintln(w, "OK")
	})

	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	var serveErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		serveErr = srv.Serve(l)
	}()
	log.Info().Str("addr", l.Addr().String()).Msg("metrics server started")

	<-ctx.Done()
	if shutdownTimeout == 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	wg.Wait()

	if serveErr == http.ErrServerClosed {
		return nil
	}
	return serveErr
}
