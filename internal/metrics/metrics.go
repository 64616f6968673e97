// Package metrics exposes Prometheus counters for the server's hot path and
// serves them over an optional side HTTP listener.
package metrics

import (
	"context"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QueriesTotal counts decoded requests, labeled by transport (udp/tcp)
	// and query type name.
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tacodnsd_queries_total", Help: "Total DNS queries received"},
		[]string{"transport", "qtype"},
	)

	// AnswersTotal counts responses by rcode.
	AnswersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tacodnsd_answers_total", Help: "Total DNS responses sent"},
		[]string{"rcode"},
	)

	// ParseErrorsTotal counts requests dropped for failing to decode.
	ParseErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "tacodnsd_parse_errors_total", Help: "Malformed requests dropped before resolution"},
	)

	// TruncationsTotal counts responses the wire codec truncated.
	TruncationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "tacodnsd_truncations_total", Help: "Responses truncated to fit the transport's size budget"},
	)

	// CacheHitsTotal and CacheMissesTotal instrument the resolver cache.
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "tacodnsd_cache_hits_total", Help: "Resolver cache hits"},
	)
	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "tacodnsd_cache_misses_total", Help: "Resolver cache misses"},
	)

	// QueryDuration tracks end-to-end handling latency.
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "tacodnsd_query_duration_seconds", Help: "Request handling latency", Buckets: prometheus.DefBuckets},
		[]string{"transport"},
	)

	// WorkerQueueDepth reports the worker pool's current backlog.
	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "tacodnsd_worker_queue_depth", Help: "Jobs currently queued for the worker pool"},
	)
)

func init() {
	prometheus.MustRegister(
		QueriesTotal,
		AnswersTotal,
		ParseErrorsTotal,
		TruncationsTotal,
		CacheHitsTotal,
		CacheMissesTotal,
		QueryDuration,
		WorkerQueueDepth,
	)
}

// Server serves /metrics on its own address, independent of the DNS
// listeners.
type Server struct {
	httpServer *http.Server
}

// NewServer builds (but does not start) a metrics HTTP server on addr.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{httpServer: &http.Server{Addr: addr, Handler: mux}}
}

// Start runs the metrics server in the background. Bind failures are logged,
// not fatal: metrics are an operational aid, not load-bearing for the DNS
// service itself.
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics: server error: %v", err)
		}
	}()
}

// Stop gracefully shuts the metrics server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
