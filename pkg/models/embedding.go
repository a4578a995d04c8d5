package models

import "github.com/google/uuid"

// SourceKind identifies which modality an embedding row represents.
type SourceKind string

const (
	SourceChunk SourceKind = "text_chunk"
	SourceImage SourceKind = "image"
	SourceTable SourceKind = "table"
)

// EmbeddingDim is the fixed, stored dimension every unified_embeddings row
// must satisfy. Models whose native output differs are padded or truncated
// at the boundary; NativeDim records the true dimension for rehydration.
const EmbeddingDim = 768

// Embedding is one row in the unified embeddings table, covering text
// chunks, images, and extracted tables uniformly.
type Embedding struct {
	ID         uuid.UUID
	SourceKind SourceKind
	SourceID   uuid.UUID
	Vector     []float32
	NativeDim  int
	Model      string
	Metadata   map[string]any
}

// Normalize pads or truncates v to EmbeddingDim, returning the native
// dimension observed before adjustment.
func Normalize(v []float32) (out []float32, nativeDim int) {
	nativeDim = len(v)
	if nativeDim == EmbeddingDim {
		return v, nativeDim
	}
	out = make([]float32, EmbeddingDim)
	n := copy(out, v)
	_ = n
	return out, nativeDim
}
