package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/krai-project/krai/pkg/models"
)

type workerStatus string

const (
	workerStatusIdle    workerStatus = "idle"
	workerStatusWorking workerStatus = "working"
)

// worker polls QueueStore for claimable documents and runs them through the
// Pipeline, one document at a time.
//
// Grounded on the teacher's queue.Worker (pkg/queue/worker.go), generalized
// from single-pass agent execution to the Master Pipeline's per-stage loop.
type worker struct {
	id    string
	podID string

	queue    *QueueStore
	pipeline *Pipeline
	cfg      Config
	logger   *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu                 sync.RWMutex
	status             workerStatus
	currentDocumentID  string
	documentsProcessed int
	lastActivity       time.Time
}

func newWorker(id, podID string, queue *QueueStore, pl *Pipeline, cfg Config, logger *slog.Logger) *worker {
	return &worker{
		id:           id,
		podID:        podID,
		queue:        queue,
		pipeline:     pl,
		cfg:          cfg,
		logger:       logger,
		stopCh:       make(chan struct{}),
		status:       workerStatusIdle,
		lastActivity: time.Now(),
	}
}

func (w *worker) start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

func (w *worker) stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *worker) health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:                 w.id,
		Status:             string(w.status),
		CurrentDocumentID:  w.currentDocumentID,
		DocumentsProcessed: w.documentsProcessed,
		LastActivity:       w.lastActivity,
	}
}

func (w *worker) run(ctx context.Context) {
	defer w.wg.Done()
	log := w.logger.With("worker_id", w.id, "pod_id", w.podID)
	log.Info("worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("worker shutting down")
			return
		case <-ctx.Done():
			log.Info("context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoDocumentsAvailable) || errors.Is(err, ErrAtCapacity) {
					w.sleep(pollJitter(w.cfg.PollInterval, w.cfg.PollIntervalJitter))
					continue
				}
				log.Error("error processing document", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

func (w *worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess checks global capacity, claims the next pending document,
// and runs it through the pipeline with a heartbeat goroutine keeping the
// claim alive.
func (w *worker) pollAndProcess(ctx context.Context) error {
	running, err := w.queue.CountRunning(ctx)
	if err != nil {
		return err
	}
	if running >= w.cfg.MaxConcurrentDocuments {
		return ErrAtCapacity
	}

	entry, err := w.queue.Claim(ctx, w.id)
	if err != nil {
		return err
	}

	log := w.logger.With("document_id", entry.DocumentID, "worker_id", w.id)
	log.Info("document claimed")

	w.setStatus(workerStatusWorking, entry.DocumentID.String())
	defer w.setStatus(workerStatusIdle, "")

	stageCtx, cancel := context.WithTimeout(ctx, w.cfg.StageTimeout)
	defer cancel()

	heartbeatCtx, cancelHeartbeat := context.WithCancel(stageCtx)
	go w.runHeartbeat(heartbeatCtx, entry.ID)
	defer cancelHeartbeat()

	runErr := w.pipeline.Run(stageCtx, entry.DocumentID)

	if runErr != nil {
		log.Error("pipeline run did not complete", "error", runErr)
		if err := w.queue.MarkFailed(context.Background(), entry.ID); err != nil {
			log.Error("failed to mark queue row failed", "error", err)
		}
	} else {
		if err := w.queue.MarkCompleted(context.Background(), entry.ID); err != nil {
			log.Error("failed to mark queue row completed", "error", err)
		}
	}

	w.mu.Lock()
	w.documentsProcessed++
	w.mu.Unlock()

	log.Info("document processing complete", "status", pipelineOutcomeLabel(runErr))
	return nil
}

// runHeartbeat periodically refreshes heartbeat_at for queueRowID so orphan
// detection can distinguish a slow document from a dead worker.
func (w *worker) runHeartbeat(ctx context.Context, queueRowID uuid.UUID) {
	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.queue.Heartbeat(context.Background(), queueRowID); err != nil {
				w.logger.Warn("heartbeat update failed", "queue_row_id", queueRowID, "error", err)
			}
		}
	}
}

func (w *worker) setStatus(status workerStatus, documentID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentDocumentID = documentID
	w.lastActivity = time.Now()
}

func pipelineOutcomeLabel(err error) models.ResultStatus {
	if err != nil {
		return models.StatusFailed
	}
	return models.StatusCompleted
}
