package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeWithNoYAMLFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Pipeline.WorkerCount)
	assert.Equal(t, 90, cfg.Retention.PipelineErrorRetentionDays)
	assert.Equal(t, dir, cfg.ConfigDir())
}

func TestInitializeMergesYAMLOverridesOnTopOfDefaults(t *testing.T) {
	dir := t.TempDir()
	yaml := `
pipeline:
  worker_count: 10
  poll_interval: 2s
retention:
  pipeline_error_retention_days: 30
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "krai.yaml"), []byte(yaml), 0o644))

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Pipeline.WorkerCount)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.PollInterval)
	// Fields left unset in the YAML keep their built-in defaults.
	assert.Equal(t, 5, cfg.Pipeline.MaxConcurrentDocuments)
	assert.Equal(t, 30, cfg.Retention.PipelineErrorRetentionDays)
	assert.Equal(t, 7*24*time.Hour, cfg.Retention.CompletedQueueRetention)
}

func TestInitializeExpandsEnvVarsInYAML(t *testing.T) {
	dir := t.TempDir()
	yaml := "pipeline:\n  worker_count: ${KRAI_WORKER_COUNT}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "krai.yaml"), []byte(yaml), 0o644))
	t.Setenv("KRAI_WORKER_COUNT", "12")

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Pipeline.WorkerCount)
}

func TestInitializeRejectsInvalidMergedConfig(t *testing.T) {
	dir := t.TempDir()
	// 0 would be indistinguishable from "unset" to mergo's zero-value check
	// (see mergo.WithOverride semantics in loader.go), so this exercises the
	// out-of-range branch instead of the zero branch.
	yaml := "pipeline:\n  worker_count: 100\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "krai.yaml"), []byte(yaml), 0o644))

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker_count")
}

func TestInitializeRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "krai.yaml"), []byte("pipeline: [not a map"), 0o644))

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
}
