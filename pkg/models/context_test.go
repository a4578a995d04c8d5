package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestDocumentOverallProgress(t *testing.T) {
	doc := &Document{
		StageStatus: StageStatusMap{
			StageUpload: {Status: "completed", Progress: 1.0},
			StageText:   {Status: "processing", Progress: 0.5},
		},
	}
	progress := doc.OverallProgress()
	assert.InDelta(t, 1.5/float64(len(CanonicalStages)), progress, 1e-9)
}

func TestDocumentCanRetry(t *testing.T) {
	doc := &Document{StageStatus: StageStatusMap{StageUpload: {Status: "completed"}}}
	assert.False(t, doc.CanRetry())

	doc.StageStatus[StageText] = StageState{Status: "failed"}
	assert.True(t, doc.CanRetry())
}

func TestEmbeddingNormalizePadsShortVector(t *testing.T) {
	v := make([]float32, 384)
	out, native := Normalize(v)
	assert.Len(t, out, EmbeddingDim)
	assert.Equal(t, 384, native)
}

func TestEmbeddingNormalizeTruncatesLongVector(t *testing.T) {
	v := make([]float32, 1024)
	out, native := Normalize(v)
	assert.Len(t, out, EmbeddingDim)
	assert.Equal(t, 1024, native)
}

func TestEmbeddingNormalizePassthroughAtTargetDim(t *testing.T) {
	v := make([]float32, EmbeddingDim)
	out, native := Normalize(v)
	assert.Len(t, out, EmbeddingDim)
	assert.Equal(t, EmbeddingDim, native)
}

func TestChunkLinkedListInvariant(t *testing.T) {
	a := &Chunk{ID: uuid.New()}
	b := &Chunk{ID: uuid.New()}
	a.NextChunkID = &b.ID
	b.PreviousChunkID = &a.ID

	assert.Equal(t, b.ID, *a.NextChunkID)
	assert.Equal(t, a.ID, *b.PreviousChunkID)
}

func TestImageInSizeRange(t *testing.T) {
	tests := []struct {
		name   string
		w, h   int
		expect bool
	}{
		{"too small", 50, 50, false},
		{"too large", 6000, 6000, false},
		{"just right", 800, 600, true},
		{"at min boundary", MinImageWidth, MinImageHeight, true},
		{"at max boundary", MaxImageWidth, MaxImageHeight, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := &Image{Width: tt.w, Height: tt.h}
			assert.Equal(t, tt.expect, img.InSizeRange())
		})
	}
}
