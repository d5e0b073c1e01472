// Package observability — metrics.go
//
// Prometheus metrics for streamguard.
//
// Endpoint: GET /metrics on 127.0.0.1:9091 (configurable).
// Format: Prometheus text exposition format (OpenMetrics compatible).
// Bind: the configured address as given; the default is loopback.
//
// Metric naming convention: streamguard_<subsystem>_<name>_<unit>
//
// All metrics are registered on a dedicated prometheus.Registry (not the
// default global registry) to avoid collisions with other instrumented
// libraries in the same process.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric descriptors for streamguard.
type Metrics struct {
	registry *prometheus.Registry

	// ─── Ingestion / window ───────────────────────────────────────────────────

	// LogsIngestedTotal counts log entries accepted into the window.
	LogsIngestedTotal prometheus.Counter

	// LogsRejectedTotal counts malformed lines discarded by the parser,
	// by reason label. The ingestion adapter records every such line under
	// the single reason "parse_error".
	LogsRejectedTotal *prometheus.CounterVec

	// LogsExpiredTotal counts entries removed from the window by expiry.
	LogsExpiredTotal prometheus.Counter

	// WindowDepth is the current number of entries inside the window.
	WindowDepth prometheus.Gauge

	// ─── Analyzer ─────────────────────────────────────────────────────────────

	// ScoreHistogram records the distribution of computed user scores
	// (IP scores are not observed).
	ScoreHistogram prometheus.Histogram

	// EvaluationsTotal counts scoring evaluations performed, by target
	// (user, ip).
	EvaluationsTotal *prometheus.CounterVec

	// TrackedUsers is the current number of users in the index.
	TrackedUsers prometheus.Gauge

	// TrackedIPs is the current number of IPs in the index.
	TrackedIPs prometheus.Gauge

	// ─── Alerts ───────────────────────────────────────────────────────────────

	// AlertsEmittedTotal counts alerts accepted into the queue. It has no
	// labels; AlertsBySeverityTotal carries the per-severity breakdown.
	AlertsEmittedTotal prometheus.Counter

	// AlertsBySeverityTotal counts alerts by severity label.
	AlertsBySeverityTotal *prometheus.CounterVec

	// AlertsDroppedTotal counts alerts dropped because the queue was full.
	AlertsDroppedTotal prometheus.Counter

	// AlertsRejectedTotal counts alerts rejected by the integrity
	// validator before reaching the queue.
	AlertsRejectedTotal prometheus.Counter

	// AlertQueueDepth is the current depth of the Analyzer→Alert Sink
	// queue.
	AlertQueueDepth prometheus.Gauge

	// ─── Storage ──────────────────────────────────────────────────────────────

	// StorageWriteLatency records BoltDB write transaction latency.
	StorageWriteLatency prometheus.Histogram

	// StorageLedgerEntries is the current number of ledger entries.
	StorageLedgerEntries prometheus.Gauge

	// ─── Process ──────────────────────────────────────────────────────────────

	// UptimeSeconds is the number of seconds since the pipeline started.
	UptimeSeconds prometheus.Gauge

	startTime time.Time
}

// NewMetrics creates and registers all streamguard Prometheus metrics on a
// dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		LogsIngestedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamguard",
			Subsystem: "ingestion",
			Name:      "logs_ingested_total",
			Help:      "Total log entries accepted into the sliding window.",
		}),

		LogsRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamguard",
			Subsystem: "ingestion",
			Name:      "logs_rejected_total",
			Help:      "Total malformed lines discarded by the parser, by reason.",
		}, []string{"reason"}),

		LogsExpiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamguard",
			Subsystem: "window",
			Name:      "logs_expired_total",
			Help:      "Total log entries removed from the window by expiry.",
		}),

		WindowDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "streamguard",
			Subsystem: "window",
			Name:      "depth",
			Help:      "Current number of log entries inside the active window.",
		}),

		ScoreHistogram: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "streamguard",
			Subsystem: "analyzer",
			Name:      "score",
			Help:      "Distribution of scores computed by the active scoring policy.",
			Buckets:   []float64{1, 5, 10, 15, 21, 31, 45, 65, 90},
		}),

		EvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamguard",
			Subsystem: "analyzer",
			Name:      "evaluations_total",
			Help:      "Total scoring evaluations performed, by target kind.",
		}, []string{"target"}),

		TrackedUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "streamguard",
			Subsystem: "analyzer",
			Name:      "tracked_users",
			Help:      "Current number of users in the user index.",
		}),

		TrackedIPs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "streamguard",
			Subsystem: "analyzer",
			Name:      "tracked_ips",
			Help:      "Current number of IPs in the IP index.",
		}),

		AlertsEmittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamguard",
			Subsystem: "alerts",
			Name:      "emitted_total",
			Help:      "Total alerts accepted into the alert queue.",
		}),

		AlertsBySeverityTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamguard",
			Subsystem: "alerts",
			Name:      "by_severity_total",
			Help:      "Total alerts emitted, by severity.",
		}, []string{"severity"}),

		AlertsDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamguard",
			Subsystem: "alerts",
			Name:      "dropped_total",
			Help:      "Total alerts dropped because the alert queue was full.",
		}),

		AlertsRejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamguard",
			Subsystem: "alerts",
			Name:      "rejected_total",
			Help:      "Total alerts rejected by the integrity validator.",
		}),

		AlertQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "streamguard",
			Subsystem: "alerts",
			Name:      "queue_depth",
			Help:      "Current depth of the Analyzer to Alert Sink queue.",
		}),

		StorageWriteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "streamguard",
			Subsystem: "storage",
			Name:      "write_latency_seconds",
			Help:      "BoltDB write transaction latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),

		StorageLedgerEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "streamguard",
			Subsystem: "storage",
			Name:      "ledger_entries",
			Help:      "Current number of audit ledger entries in BoltDB.",
		}),

		UptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "streamguard",
			Subsystem: "process",
			Name:      "uptime_seconds",
			Help:      "Number of seconds since the pipeline started.",
		}),
	}

	reg.MustRegister(
		m.LogsIngestedTotal,
		m.LogsRejectedTotal,
		m.LogsExpiredTotal,
		m.WindowDepth,
		m.ScoreHistogram,
		m.EvaluationsTotal,
		m.TrackedUsers,
		m.TrackedIPs,
		m.AlertsEmittedTotal,
		m.AlertsBySeverityTotal,
		m.AlertsDroppedTotal,
		m.AlertsRejectedTotal,
		m.AlertQueueDepth,
		m.StorageWriteLatency,
		m.StorageLedgerEntries,
		m.UptimeSeconds,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// ServeMetrics starts the Prometheus HTTP metrics server on the given
// address. Blocks until ctx is cancelled or the server fails. Binds to
// addr (e.g. "127.0.0.1:9091") and serves GET /metrics and GET /healthz.
func (m *Metrics) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go m.updateUptime(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
	return nil
}

// updateUptime periodically updates the UptimeSeconds gauge.
func (m *Metrics) updateUptime(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.UptimeSeconds.Set(time.Since(m.startTime).Seconds())
		case <-ctx.Done():
			return
		}
	}
}
