package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/krai-project/krai/pkg/pipeline"
)

// pipelineYAMLConfig mirrors pipeline.Config with duration fields as plain
// strings. yaml.v3 has no built-in decoder from a duration string like "2s"
// into a time.Duration-kinded field, so every duration here is parsed
// explicitly below, following the teacher's own RunbooksYAMLConfig.CacheTTL
// pattern (pkg/config/loader.go) rather than relying on yaml.v3 to do it.
type pipelineYAMLConfig struct {
	WorkerCount             *int   `yaml:"worker_count"`
	MaxConcurrentDocuments  *int   `yaml:"max_concurrent_documents"`
	PollInterval            string `yaml:"poll_interval"`
	PollIntervalJitter      string `yaml:"poll_interval_jitter"`
	StageTimeout            string `yaml:"stage_timeout"`
	GracefulShutdownTimeout string `yaml:"graceful_shutdown_timeout"`
	HeartbeatInterval       string `yaml:"heartbeat_interval"`
	OrphanDetectionInterval string `yaml:"orphan_detection_interval"`
	OrphanThreshold         string `yaml:"orphan_threshold"`
}

// retentionYAMLConfig mirrors pipeline.RetentionConfig the same way.
type retentionYAMLConfig struct {
	PipelineErrorRetentionDays *int   `yaml:"pipeline_error_retention_days"`
	CompletedQueueRetention    string `yaml:"completed_queue_retention"`
	CleanupInterval            string `yaml:"cleanup_interval"`
}

// kraiYAMLConfig represents the complete krai.yaml file structure: the
// operational knobs an operator tunes per deployment, as opposed to secrets
// and connection strings, which stay in the environment.
type kraiYAMLConfig struct {
	Pipeline  *pipelineYAMLConfig  `yaml:"pipeline"`
	Retention *retentionYAMLConfig `yaml:"retention"`
}

// Initialize loads, merges, and validates krai.yaml from configDir. This is
// the primary entry point for operational configuration loading; database,
// object-store, and AI-service connection settings are loaded separately by
// their own packages' LoadConfigFromEnv, since those are secrets-bearing and
// environment-sourced rather than YAML-sourced.
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("configuration initialized",
		"worker_count", cfg.Pipeline.WorkerCount,
		"pipeline_error_retention_days", cfg.Retention.PipelineErrorRetentionDays)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	yamlCfg, err := loader.loadKRAIYAML()
	if err != nil {
		return nil, NewLoadError("krai.yaml", err)
	}

	pipelineOverride := resolvePipelineOverride(yamlCfg.Pipeline)
	pipelineCfg := pipeline.DefaultConfig()
	if pipelineOverride != nil {
		if err := mergo.Merge(&pipelineCfg, *pipelineOverride, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge pipeline config: %w", err)
		}
	}

	retentionOverride := resolveRetentionOverride(yamlCfg.Retention)
	retentionCfg := pipeline.DefaultRetentionConfig()
	if retentionOverride != nil {
		if err := mergo.Merge(&retentionCfg, *retentionOverride, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge retention config: %w", err)
		}
	}

	return &Config{
		configDir: configDir,
		Pipeline:  pipelineCfg,
		Retention: retentionCfg,
	}, nil
}

func validate(cfg *Config) error {
	v := NewValidator(cfg)
	return v.ValidateAll()
}

type configLoader struct {
	configDir string
}

// loadKRAIYAML reads krai.yaml, returning a zero-value config (all defaults
// apply) if the file is absent, since every field here has a sensible
// built-in default and an operator may legitimately run KRAI without an
// override file.
func (l *configLoader) loadKRAIYAML() (*kraiYAMLConfig, error) {
	path := filepath.Join(l.configDir, "krai.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &kraiYAMLConfig{}, nil
		}
		return nil, err
	}

	data = ExpandEnv(data)

	var cfg kraiYAMLConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return &cfg, nil
}

// resolvePipelineOverride converts the YAML-facing shadow struct into a
// pipeline.Config containing only the fields the operator actually set;
// unset fields are left at their Go zero value so the subsequent mergo pass
// leaves pipeline.DefaultConfig()'s value in place for them.
func resolvePipelineOverride(y *pipelineYAMLConfig) *pipeline.Config {
	if y == nil {
		return nil
	}
	cfg := &pipeline.Config{}
	if y.WorkerCount != nil {
		cfg.WorkerCount = *y.WorkerCount
	}
	if y.MaxConcurrentDocuments != nil {
		cfg.MaxConcurrentDocuments = *y.MaxConcurrentDocuments
	}
	cfg.PollInterval = parseDurationField("poll_interval", y.PollInterval)
	cfg.PollIntervalJitter = parseDurationField("poll_interval_jitter", y.PollIntervalJitter)
	cfg.StageTimeout = parseDurationField("stage_timeout", y.StageTimeout)
	cfg.GracefulShutdownTimeout = parseDurationField("graceful_shutdown_timeout", y.GracefulShutdownTimeout)
	cfg.HeartbeatInterval = parseDurationField("heartbeat_interval", y.HeartbeatInterval)
	cfg.OrphanDetectionInterval = parseDurationField("orphan_detection_interval", y.OrphanDetectionInterval)
	cfg.OrphanThreshold = parseDurationField("orphan_threshold", y.OrphanThreshold)
	return cfg
}

func resolveRetentionOverride(y *retentionYAMLConfig) *pipeline.RetentionConfig {
	if y == nil {
		return nil
	}
	cfg := &pipeline.RetentionConfig{}
	if y.PipelineErrorRetentionDays != nil {
		cfg.PipelineErrorRetentionDays = *y.PipelineErrorRetentionDays
	}
	cfg.CompletedQueueRetention = parseDurationField("completed_queue_retention", y.CompletedQueueRetention)
	cfg.CleanupInterval = parseDurationField("cleanup_interval", y.CleanupInterval)
	return cfg
}

// parseDurationField parses a YAML duration string (e.g. "30s"), logging
// and returning the zero Duration on a malformed value so it is dropped by
// mergo rather than corrupting the merged config with a bogus override.
func parseDurationField(field, raw string) time.Duration {
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("config: ignoring malformed duration override", "field", field, "value", raw, "error", err)
		return 0
	}
	return d
}
