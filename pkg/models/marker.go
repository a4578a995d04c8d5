package models

import (
	"time"

	"github.com/google/uuid"
)

// StageCompletionMarker proves that (DocumentID, StageName) ran to success
// against the context captured by DataHash. Re-entry with a matching hash is
// the idempotency gate that lets a stage be safely re-invoked.
type StageCompletionMarker struct {
	DocumentID  uuid.UUID
	StageName   StageName
	DataHash    string
	CompletedAt time.Time
}
