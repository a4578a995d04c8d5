package config

import "fmt"

// Validator validates operational configuration with clear error messages,
// following the teacher's Validator (pkg/config/validator.go), narrowed to
// the two sections KRAI's config carries.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll performs comprehensive validation, fail-fast at the first
// error.
func (v *Validator) ValidateAll() error {
	if err := v.validatePipeline(); err != nil {
		return fmt.Errorf("pipeline validation failed: %w", err)
	}
	if err := v.validateRetention(); err != nil {
		return fmt.Errorf("retention validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validatePipeline() error {
	p := v.cfg.Pipeline

	if p.WorkerCount < 1 || p.WorkerCount > 50 {
		return fmt.Errorf("worker_count must be between 1 and 50, got %d", p.WorkerCount)
	}
	if p.MaxConcurrentDocuments < 1 {
		return fmt.Errorf("max_concurrent_documents must be at least 1, got %d", p.MaxConcurrentDocuments)
	}
	if p.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %v", p.PollInterval)
	}
	if p.PollIntervalJitter < 0 {
		return fmt.Errorf("poll_interval_jitter must be non-negative, got %v", p.PollIntervalJitter)
	}
	if p.PollIntervalJitter >= p.PollInterval {
		return fmt.Errorf("poll_interval_jitter must be less than poll_interval, got jitter=%v interval=%v", p.PollIntervalJitter, p.PollInterval)
	}
	if p.StageTimeout <= 0 {
		return fmt.Errorf("stage_timeout must be positive, got %v", p.StageTimeout)
	}
	if p.GracefulShutdownTimeout <= 0 {
		return fmt.Errorf("graceful_shutdown_timeout must be positive, got %v", p.GracefulShutdownTimeout)
	}
	if p.OrphanDetectionInterval <= 0 {
		return fmt.Errorf("orphan_detection_interval must be positive, got %v", p.OrphanDetectionInterval)
	}
	if p.OrphanThreshold <= 0 {
		return fmt.Errorf("orphan_threshold must be positive, got %v", p.OrphanThreshold)
	}
	if p.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive, got %v", p.HeartbeatInterval)
	}
	if p.HeartbeatInterval >= p.OrphanThreshold {
		return fmt.Errorf("heartbeat_interval must be less than orphan_threshold to prevent false orphan detection, got heartbeat=%v threshold=%v", p.HeartbeatInterval, p.OrphanThreshold)
	}

	return nil
}

func (v *Validator) validateRetention() error {
	r := v.cfg.Retention

	if r.PipelineErrorRetentionDays < 1 {
		return fmt.Errorf("pipeline_error_retention_days must be at least 1, got %d", r.PipelineErrorRetentionDays)
	}
	if r.CompletedQueueRetention <= 0 {
		return fmt.Errorf("completed_queue_retention must be positive, got %v", r.CompletedQueueRetention)
	}
	if r.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup_interval must be positive, got %v", r.CleanupInterval)
	}

	return nil
}
