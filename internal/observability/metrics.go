// Package observability wires the GVCP engine's statistics into Prometheus,
// wraps the admin HTTP surface with request metrics, and sets up the
// OpenTelemetry tracer the engine uses for per-datagram spans, adapted from
// the platform's shared observability conventions.
package observability

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/asgard/gvcam/internal/discovery"
	"github.com/asgard/gvcam/internal/gvcp"
)

const namespace = "gvcam"

// RegisterEngineMetrics exposes an Engine's live Statistics and a discovery
// Service's stats as Prometheus gauges/counters, delegating to their atomic
// fields rather than keeping a shadow copy (spec §3 "monotonically
// non-decreasing counters").
func RegisterEngineMetrics(stats *gvcp.Statistics, disc *discovery.Service) {
	counter := func(name, help string, fn func() float64) {
		promauto.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gvcp",
			Name:      name,
			Help:      help,
		}, fn)
	}

	counter("commands_total", "Total GVCP commands processed", func() float64 { return float64(stats.Snapshot().TotalCommands) })
	counter("errors_total", "Total NACK replies emitted", func() float64 { return float64(stats.Snapshot().TotalErrors) })
	counter("unknown_commands_total", "Total commands with no known handler", func() float64 { return float64(stats.Snapshot().UnknownCommands) })
	counter("packets_sent_total", "Total GVCP reply datagrams sent", func() float64 { return float64(stats.Snapshot().PacketsSent) })
	counter("packet_errors_total", "Total platform send failures", func() float64 { return float64(stats.Snapshot().PacketErrors) })
	counter("frames_sent_total", "Total streamed frames sent by the collaborator", func() float64 { return float64(stats.Snapshot().FramesSent) })
	counter("frame_errors_total", "Total frame capture/send failures", func() float64 { return float64(stats.Snapshot().FrameErrors) })
	counter("out_of_order_frames_total", "Total out-of-order streamed frames", func() float64 { return float64(stats.Snapshot().OutOfOrderFrames) })
	counter("lost_frames_total", "Total lost streamed frames", func() float64 { return float64(stats.Snapshot().LostFrames) })
	counter("duplicate_frames_total", "Total duplicate streamed frames", func() float64 { return float64(stats.Snapshot().DuplicateFrames) })
	counter("connection_failures_total", "Total socket-recreation-triggering failures", func() float64 { return float64(stats.Snapshot().ConnectionFailures) })

	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "gvcp",
		Name:      "connection_status",
		Help:      "Bitfield: bit0 GVCP socket, bit1 GVSP socket, bit2 client connected, bit3 streaming",
	}, func() float64 { return float64(stats.ConnectionStatus()) })

	if disc == nil {
		return
	}
	counter("discovery_broadcasts_sent_total", "Total unsolicited discovery broadcasts sent", func() float64 { return float64(disc.Stats().BroadcastsSent) })
	counter("discovery_broadcast_failures_total", "Total unsolicited discovery broadcast failures", func() float64 { return float64(disc.Stats().BroadcastFailures) })
}

// Handler returns the Prometheus scrape handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HTTPMiddleware wraps the admin router with request-duration and status
// metrics, following the same wrapped-ResponseWriter pattern used elsewhere
// in the platform's HTTP stack.
func HTTPMiddleware(next http.Handler) http.Handler {
	requestsTotal := promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "admin_http",
		Name:      "requests_total",
		Help:      "Total admin HTTP requests",
	}, []string{"method", "path", "status"})

	requestDuration := promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "admin_http",
		Name:      "request_duration_seconds",
		Help:      "Admin HTTP request duration in seconds",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"method", "path"})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		requestsTotal.WithLabelValues(r.Method, r.URL.Path, statusToStr(wrapped.status)).Inc()
		requestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("hijacker not supported")
	}
	return hijacker.Hijack()
}

func statusToStr(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}
