package models

import "github.com/google/uuid"

// Chunk is one unit of hierarchically-split document text. Chunks within a
// document form a doubly linked chain via PreviousChunkID/NextChunkID,
// ordered by (PageNumber, in-page offset).
type Chunk struct {
	ID                uuid.UUID
	DocumentID        uuid.UUID
	PageNumber         int
	Text              string
	SectionHierarchy  []string
	PreviousChunkID   *uuid.UUID
	NextChunkID       *uuid.UUID
	Metadata          map[string]any
	Embedding         []float32
}

// MinChunkChars is the default minimum chunk length; shorter chunks are
// dropped unless DEBUG_ALLOW_SHORT_CHUNKS is set.
const MinChunkChars = 50

// DefaultChunkMinSize and DefaultChunkMaxSize are the text stage's default
// MinChunkSize/MaxChunkSize. The splitter starts a new chunk at the next
// line once MaxChunkSize is exceeded; it enforces no minimum beyond
// MinChunkChars and does no hard cut inside a line.
const (
	DefaultChunkMinSize = 500
	DefaultChunkMaxSize = 1500
)
