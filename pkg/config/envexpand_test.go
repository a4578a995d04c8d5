package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnv(t *testing.T) {
	tests := []struct {
		name  string
		input string
		env   map[string]string
		want  string
	}{
		{
			name:  "braced substitution",
			input: "endpoint: ${OBJECT_STORAGE_ENDPOINT}",
			env:   map[string]string{"OBJECT_STORAGE_ENDPOINT": "minio:9000"},
			want:  "endpoint: minio:9000",
		},
		{
			name:  "bare dollar substitution",
			input: "key: $API_KEY",
			env:   map[string]string{"API_KEY": "secret123"},
			want:  "key: secret123",
		},
		{
			name:  "multiple substitutions in one line",
			input: "url: ${PROTOCOL}://${HOST}:${PORT}",
			env: map[string]string{
				"PROTOCOL": "https",
				"HOST":     "example.com",
				"PORT":     "443",
			},
			want: "url: https://example.com:443",
		},
		{
			name:  "missing variable expands to empty",
			input: "endpoint: ${MISSING_VAR}",
			env:   map[string]string{},
			want:  "endpoint: ",
		},
		{
			name:  "no substitution when no variables",
			input: "static: value",
			env:   map[string]string{"UNUSED": "value"},
			want:  "static: value",
		},
		{
			name:  "variables in nested YAML structure",
			input: "pipeline:\n  worker_count: ${WORKER_COUNT}",
			env:   map[string]string{"WORKER_COUNT": "8"},
			want:  "pipeline:\n  worker_count: 8",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			result := ExpandEnv([]byte(tt.input))
			assert.Equal(t, tt.want, string(result))
		})
	}
}

func TestExpandEnvWithEmptyInput(t *testing.T) {
	assert.Equal(t, "", string(ExpandEnv([]byte(""))))
}

func TestExpandEnvPreservesLiteralDollarWithoutMatchingEnvVar(t *testing.T) {
	input := "pattern: ^secret.*$"
	assert.Equal(t, input, string(ExpandEnv([]byte(input))))
}
