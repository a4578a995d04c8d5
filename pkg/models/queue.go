package models

import (
	"time"

	"github.com/google/uuid"
)

// QueueEntry is a pending unit of work in krai_system.processing_queue: a
// document handed from the ingestion API to the pipeline worker pool,
// claimed with FOR UPDATE SKIP LOCKED.
type QueueEntry struct {
	ID             uuid.UUID
	DocumentID     uuid.UUID
	FilePath       string
	Status         string
	ClaimedBy      string
	ClaimedAt      *time.Time
	HeartbeatAt    *time.Time
	ForceReprocess bool
	CreatedAt      time.Time
}

// Queue entry lifecycle states.
const (
	QueueStatusPending   = "pending"
	QueueStatusClaimed   = "claimed"
	QueueStatusRunning   = "running"
	QueueStatusCompleted = "completed"
	QueueStatusFailed    = "failed"
	QueueStatusTimedOut  = "timed_out"
)

// PerformanceBaseline is a rolling per-stage latency summary written by the
// Performance Collector for alerting/dashboarding consumers.
type PerformanceBaseline struct {
	StageName    StageName
	P50Millis    float64
	P95Millis    float64
	P99Millis    float64
	SampleCount  int64
	UpdatedAt    time.Time
}
