// Package config loads KRAI's operational configuration: the worker pool
// and retention knobs that tune how the pipeline runs, as opposed to the
// connection settings (database, object store, AI service) each of those
// packages loads directly from the environment via its own
// LoadConfigFromEnv.
//
// Grounded on the teacher's pkg/config: a YAML file under a configured
// directory, environment variable expansion, built-in defaults merged with
// user overrides via dario.cat/mergo, and a NewValidator pass before the
// result is handed to the rest of the application.
package config

import (
	"github.com/krai-project/krai/pkg/pipeline"
)

// Config is the operational configuration assembled by Initialize.
type Config struct {
	configDir string

	Pipeline  pipeline.Config
	Retention pipeline.RetentionConfig
}

// ConfigDir returns the directory Initialize loaded this Config from.
func (c *Config) ConfigDir() string {
	return c.configDir
}
