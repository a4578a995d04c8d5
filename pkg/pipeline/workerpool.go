package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

// Config controls how the worker pool polls, claims, and processes
// documents. Field names and validation semantics mirror the teacher's
// config.QueueConfig (pkg/config/queue.go), generalized from sessions to
// documents.
type Config struct {
	WorkerCount             int           `yaml:"worker_count"`
	MaxConcurrentDocuments  int           `yaml:"max_concurrent_documents"`
	PollInterval            time.Duration `yaml:"poll_interval"`
	PollIntervalJitter      time.Duration `yaml:"poll_interval_jitter"`
	StageTimeout            time.Duration `yaml:"stage_timeout"`
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
	HeartbeatInterval       time.Duration `yaml:"heartbeat_interval"`
	OrphanDetectionInterval time.Duration `yaml:"orphan_detection_interval"`
	OrphanThreshold         time.Duration `yaml:"orphan_threshold"`
}

// DefaultConfig returns the built-in worker pool defaults.
func DefaultConfig() Config {
	return Config{
		WorkerCount:             5,
		MaxConcurrentDocuments:  5,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		StageTimeout:            15 * time.Minute,
		GracefulShutdownTimeout: 15 * time.Minute,
		HeartbeatInterval:       30 * time.Second,
		OrphanDetectionInterval: 5 * time.Minute,
		OrphanThreshold:         5 * time.Minute,
	}
}

// PoolHealth mirrors the teacher's queue.PoolHealth shape, generalized from
// sessions to documents.
type PoolHealth struct {
	IsHealthy      bool           `json:"is_healthy"`
	PodID          string         `json:"pod_id"`
	ActiveWorkers  int            `json:"active_workers"`
	TotalWorkers   int            `json:"total_workers"`
	RunningCount   int            `json:"running_count"`
	MaxConcurrent  int            `json:"max_concurrent"`
	WorkerStats    []WorkerHealth `json:"worker_stats"`
	LastOrphanScan time.Time      `json:"last_orphan_scan"`
	OrphansFound   int            `json:"orphans_recovered"`
}

// WorkerHealth mirrors the teacher's queue.WorkerHealth shape.
type WorkerHealth struct {
	ID                 string    `json:"id"`
	Status             string    `json:"status"`
	CurrentDocumentID  string    `json:"current_document_id,omitempty"`
	DocumentsProcessed int       `json:"documents_processed"`
	LastActivity       time.Time `json:"last_activity"`
}

// WorkerPool manages a pool of pipeline workers sharing one QueueStore and
// one Pipeline.
//
// Grounded on the teacher's queue.WorkerPool (pkg/queue/pool.go),
// generalized from ent-backed alert sessions to the raw-pgx QueueStore.
type WorkerPool struct {
	podID    string
	queue    *QueueStore
	pipeline *Pipeline
	cfg      Config
	logger   *slog.Logger

	workers  []*worker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool

	orphansMu      sync.Mutex
	lastOrphanScan time.Time
	orphansFound   int
}

// NewWorkerPool constructs a WorkerPool.
func NewWorkerPool(podID string, queue *QueueStore, pl *Pipeline, cfg Config, logger *slog.Logger) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{
		podID:    podID,
		queue:    queue,
		pipeline: pl,
		cfg:      cfg,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start recovers any documents this pod's own previous process left
// 'running', then spawns worker goroutines and the orphan-detection loop.
// Safe to call once; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.started {
		p.logger.Warn("worker pool already started, ignoring duplicate Start call", "pod_id", p.podID)
		return nil
	}
	p.started = true

	// Rows are claimed under each worker's id, not the pod id, so recover
	// every worker id this pod will reuse.
	recovered := 0
	for i := 0; i < p.cfg.WorkerCount; i++ {
		n, err := p.queue.CleanupStartupOrphans(ctx, fmt.Sprintf("%s-worker-%d", p.podID, i))
		if err != nil {
			p.logger.Error("failed to clean up startup orphans", "pod_id", p.podID, "error", err)
			continue
		}
		recovered += n
	}
	if recovered > 0 {
		p.logger.Warn("recovered startup orphans from previous run", "pod_id", p.podID, "count", recovered)
	}

	p.logger.Info("starting worker pool", "pod_id", p.podID, "worker_count", p.cfg.WorkerCount)

	for i := 0; i < p.cfg.WorkerCount; i++ {
		w := newWorker(fmt.Sprintf("%s-worker-%d", p.podID, i), p.podID, p.queue, p.pipeline, p.cfg, p.logger)
		p.workers = append(p.workers, w)
		w.start(ctx)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runOrphanDetection(ctx)
	}()

	return nil
}

// Stop signals all workers and the orphan loop to stop, then waits for
// in-flight documents to finish their current pipeline run.
func (p *WorkerPool) Stop() {
	p.logger.Info("stopping worker pool gracefully")
	for _, w := range p.workers {
		w.stop()
	}
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// Health reports the pool's current status.
func (p *WorkerPool) Health(ctx context.Context) *PoolHealth {
	running, err := p.queue.CountRunning(ctx)
	if err != nil {
		p.logger.Error("failed to query running count for health check", "error", err)
	}

	stats := make([]WorkerHealth, len(p.workers))
	active := 0
	for i, w := range p.workers {
		h := w.health()
		stats[i] = h
		if h.Status == string(workerStatusWorking) {
			active++
		}
	}

	p.orphansMu.Lock()
	lastScan := p.lastOrphanScan
	found := p.orphansFound
	p.orphansMu.Unlock()

	return &PoolHealth{
		IsHealthy:      len(p.workers) > 0 && err == nil,
		PodID:          p.podID,
		ActiveWorkers:  active,
		TotalWorkers:   len(p.workers),
		RunningCount:   running,
		MaxConcurrent:  p.cfg.MaxConcurrentDocuments,
		WorkerStats:    stats,
		LastOrphanScan: lastScan,
		OrphansFound:   found,
	}
}

// runOrphanDetection periodically scans for documents claimed by a worker
// that stopped heartbeating.
//
// Grounded on the teacher's runOrphanDetection (pkg/queue/orphan.go).
func (p *WorkerPool) runOrphanDetection(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.OrphanDetectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			n, err := p.queue.DetectAndRecoverOrphans(ctx, p.cfg.OrphanThreshold)
			if err != nil {
				p.logger.Error("orphan detection failed", "error", err)
				continue
			}
			if n > 0 {
				p.logger.Warn("recovered orphaned documents", "count", n)
			}
			p.orphansMu.Lock()
			p.lastOrphanScan = time.Now()
			p.orphansFound += n
			p.orphansMu.Unlock()
		}
	}
}

// pollJitter returns the poll duration with jitter applied, mirroring the
// teacher's Worker.pollInterval (pkg/queue/worker.go).
func pollJitter(base, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}
