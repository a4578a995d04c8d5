// Package metrics implements the Performance Collector: per-stage duration
// instrumentation exposed to Prometheus, plus a rolling per-stage latency
// summary that FlushBaselines writes to krai_system.performance_baselines for
// alerting/dashboarding consumers that cannot scrape /metrics directly.
//
// Grounded on the pack's ecosystem choice of github.com/prometheus/client_golang
// for first-party instrumentation (jordigilh-kubernaut's go.mod); the teacher
// itself ships no metrics package, so the shape of Collector (a struct
// wrapping a handful of named collectors, constructed once at startup and
// threaded through as a dependency) follows the teacher's general
// "construct once in main, pass down" style used for every other
// long-lived collaborator (pkg/database.Pool, pkg/objectstore.Store, etc).
package metrics

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/krai-project/krai/pkg/models"
)

// windowSize bounds the in-memory sample set used to compute the rolling
// p50/p95/p99 written to performance_baselines. Older samples are evicted
// FIFO once the window fills.
const windowSize = 1000

// Collector implements processor.MetricsRecorder, exporting stage duration
// as Prometheus histograms/counters and maintaining a per-stage sliding
// window of recent durations for periodic baseline snapshots.
type Collector struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	reg    *prometheus.Registry

	duration *prometheus.HistogramVec
	total    *prometheus.CounterVec

	mu      sync.Mutex
	samples map[models.StageName][]float64
}

// New constructs a Collector and registers its collectors with reg. Passing
// a fresh *prometheus.Registry (rather than prometheus.DefaultRegisterer)
// keeps test instantiation free of global-registry collisions.
func New(pool *pgxpool.Pool, reg *prometheus.Registry, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Collector{
		pool:   pool,
		logger: logger,
		reg:    reg,
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "krai",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of one pipeline stage attempt, labeled by stage and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage", "status"}),
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "krai",
			Subsystem: "pipeline",
			Name:      "stage_attempts_total",
			Help:      "Count of pipeline stage attempts, labeled by stage and outcome.",
		}, []string{"stage", "status"}),
		samples: make(map[models.StageName][]float64),
	}
	reg.MustRegister(c.duration, c.total)
	return c
}

// ObserveStageDuration implements processor.MetricsRecorder.
func (c *Collector) ObserveStageDuration(stage models.StageName, status models.ResultStatus, d time.Duration) {
	seconds := d.Seconds()
	c.duration.WithLabelValues(string(stage), string(status)).Observe(seconds)
	c.total.WithLabelValues(string(stage), string(status)).Inc()

	c.mu.Lock()
	window := append(c.samples[stage], seconds)
	if len(window) > windowSize {
		window = window[len(window)-windowSize:]
	}
	c.samples[stage] = window
	c.mu.Unlock()
}

// Handler returns the Prometheus text-exposition HTTP handler for /metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// FlushBaselines computes p50/p95/p99 over each stage's current sample
// window and upserts krai_system.performance_baselines. Neither cmd/krai
// nor pkg/pipeline.RetentionService calls it, so nothing in this module
// writes baselines on a schedule; a caller has to invoke it explicitly.
func (c *Collector) FlushBaselines(ctx context.Context) {
	snapshot := c.snapshotSamples()
	for stage, samples := range snapshot {
		if len(samples) == 0 {
			continue
		}
		p50, p95, p99 := percentiles(samples)
		if err := c.upsertBaseline(ctx, stage, p50, p95, p99, int64(len(samples))); err != nil {
			c.logger.Error("metrics: failed to persist performance baseline", "stage", stage, "error", err)
		}
	}
}

func (c *Collector) snapshotSamples() map[models.StageName][]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[models.StageName][]float64, len(c.samples))
	for stage, samples := range c.samples {
		cp := make([]float64, len(samples))
		copy(cp, samples)
		out[stage] = cp
	}
	return out
}

func (c *Collector) upsertBaseline(ctx context.Context, stage models.StageName, p50, p95, p99 float64, count int64) error {
	_, err := c.pool.Exec(ctx,
		`INSERT INTO krai_system.performance_baselines (stage_name, p50_millis, p95_millis, p99_millis, sample_count, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (stage_name) DO UPDATE SET
		   p50_millis = EXCLUDED.p50_millis,
		   p95_millis = EXCLUDED.p95_millis,
		   p99_millis = EXCLUDED.p99_millis,
		   sample_count = EXCLUDED.sample_count,
		   updated_at = now()`,
		string(stage), p50*1000, p95*1000, p99*1000, count,
	)
	return err
}

// percentiles returns the p50/p95/p99 of samples (in seconds), sorting a
// copy so the caller's slice ordering is unaffected.
func percentiles(samples []float64) (p50, p95, p99 float64) {
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	return quantile(sorted, 0.50), quantile(sorted, 0.95), quantile(sorted, 0.99)
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	// Nearest-rank: the smallest sample with at least q of the window at or
	// below it.
	idx := int(math.Ceil(q*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}
