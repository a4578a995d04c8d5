package models

import "github.com/google/uuid"

// ErrorCode is an equipment error/fault code extracted from a service
// manual, with its documented cause and fix.
type ErrorCode struct {
	ID               uuid.UUID
	Code             string
	Description      string
	SolutionText     string
	ContextText      string
	Severity         string
	Confidence       float64
	DocumentID       uuid.UUID
	ChunkID          *uuid.UUID
	RelatedImages    []uuid.UUID
	RelatedParts     []string
}

// Minimum field lengths enforced during extraction; codes with shorter
// fields are discarded as low-confidence matches rather than stored.
const (
	MinDescriptionChars = 10
	MinContextChars     = 50
)

// Part is a spare-part catalog entry linked back to the error codes whose
// solution text mentions it.
type Part struct {
	ID                uuid.UUID
	PartNumber        string
	Description       string
	DocumentID        uuid.UUID
	LinkedErrorCodes  []string
}
