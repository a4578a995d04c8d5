package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krai-project/krai/pkg/pipeline"
)

func validConfig() *Config {
	return &Config{
		Pipeline:  pipeline.DefaultConfig(),
		Retention: pipeline.DefaultRetentionConfig(),
	}
}

func TestValidateAllAcceptsDefaults(t *testing.T) {
	require.NoError(t, NewValidator(validConfig()).ValidateAll())
}

func TestValidatePipeline(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*pipeline.Config)
		wantErr string
	}{
		{
			name:    "worker count too low",
			mutate:  func(p *pipeline.Config) { p.WorkerCount = 0 },
			wantErr: "worker_count must be between 1 and 50",
		},
		{
			name:    "worker count too high",
			mutate:  func(p *pipeline.Config) { p.WorkerCount = 51 },
			wantErr: "worker_count must be between 1 and 50",
		},
		{
			name:    "max concurrent documents zero",
			mutate:  func(p *pipeline.Config) { p.MaxConcurrentDocuments = 0 },
			wantErr: "max_concurrent_documents must be at least 1",
		},
		{
			name:    "poll interval zero",
			mutate:  func(p *pipeline.Config) { p.PollInterval = 0 },
			wantErr: "poll_interval must be positive",
		},
		{
			name:    "negative jitter",
			mutate:  func(p *pipeline.Config) { p.PollIntervalJitter = -time.Second },
			wantErr: "poll_interval_jitter must be non-negative",
		},
		{
			name: "jitter not less than poll interval",
			mutate: func(p *pipeline.Config) {
				p.PollInterval = time.Second
				p.PollIntervalJitter = time.Second
			},
			wantErr: "poll_interval_jitter must be less than poll_interval",
		},
		{
			name:    "stage timeout zero",
			mutate:  func(p *pipeline.Config) { p.StageTimeout = 0 },
			wantErr: "stage_timeout must be positive",
		},
		{
			name:    "orphan detection interval zero",
			mutate:  func(p *pipeline.Config) { p.OrphanDetectionInterval = 0 },
			wantErr: "orphan_detection_interval must be positive",
		},
		{
			name:    "orphan threshold zero",
			mutate:  func(p *pipeline.Config) { p.OrphanThreshold = 0 },
			wantErr: "orphan_threshold must be positive",
		},
		{
			name:    "heartbeat interval zero",
			mutate:  func(p *pipeline.Config) { p.HeartbeatInterval = 0 },
			wantErr: "heartbeat_interval must be positive",
		},
		{
			name: "heartbeat interval not less than orphan threshold",
			mutate: func(p *pipeline.Config) {
				p.OrphanThreshold = time.Minute
				p.HeartbeatInterval = time.Minute
			},
			wantErr: "heartbeat_interval must be less than orphan_threshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg.Pipeline)
			err := NewValidator(cfg).ValidateAll()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateRetention(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*pipeline.RetentionConfig)
		wantErr string
	}{
		{
			name:    "retention days zero",
			mutate:  func(r *pipeline.RetentionConfig) { r.PipelineErrorRetentionDays = 0 },
			wantErr: "pipeline_error_retention_days must be at least 1",
		},
		{
			name:    "completed queue retention zero",
			mutate:  func(r *pipeline.RetentionConfig) { r.CompletedQueueRetention = 0 },
			wantErr: "completed_queue_retention must be positive",
		},
		{
			name:    "cleanup interval zero",
			mutate:  func(r *pipeline.RetentionConfig) { r.CleanupInterval = 0 },
			wantErr: "cleanup_interval must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg.Retention)
			err := NewValidator(cfg).ValidateAll()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
