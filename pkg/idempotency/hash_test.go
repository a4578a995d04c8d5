package idempotency

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeContextHashStability(t *testing.T) {
	fields := map[string]any{
		"file_hash": "abc123",
		"filename":  "service_manual.pdf",
		"page_count": 120,
	}

	h1 := ComputeContextHash(fields)
	h2 := ComputeContextHash(fields)
	assert.Equal(t, h1, h2, "identical input must hash identically")
	assert.Len(t, h1, 64, "sha256 hex digest is 64 chars")
}

func TestComputeContextHashOrderIndependent(t *testing.T) {
	a := map[string]any{"x": 1, "y": 2, "z": 3}
	b := map[string]any{"z": 3, "x": 1, "y": 2}
	assert.Equal(t, ComputeContextHash(a), ComputeContextHash(b), "map iteration order must not affect the hash")
}

func TestComputeContextHashDiffersOnChange(t *testing.T) {
	a := map[string]any{"chunk_text": "hello"}
	b := map[string]any{"chunk_text": "hello world"}
	assert.NotEqual(t, ComputeContextHash(a), ComputeContextHash(b))
}

func TestComputeContextHashNestedMaps(t *testing.T) {
	a := map[string]any{"meta": map[string]any{"b": 2, "a": 1}}
	b := map[string]any{"meta": map[string]any{"a": 1, "b": 2}}
	assert.Equal(t, ComputeContextHash(a), ComputeContextHash(b))
}
