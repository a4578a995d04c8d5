package metadata

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krai-project/krai/pkg/models"
)

func TestExtractErrorCodesAppliesMinimumLengthThresholds(t *testing.T) {
	chunk := &models.Chunk{
		ID:   uuid.New(),
		Text: "E-123 Fuser unit overheating detected. Replace the fuser unit part A123456789 immediately and allow the device to cool for at least thirty minutes before restarting the print engine.",
	}
	codes := extractErrorCodes(uuid.New(), chunk, "Konica Minolta")
	require.Len(t, codes, 1)
	assert.Equal(t, "E-123", codes[0].Code)
	assert.GreaterOrEqual(t, len(codes[0].Description), models.MinDescriptionChars)
	assert.GreaterOrEqual(t, len(codes[0].ContextText), models.MinContextChars)
}

func TestExtractErrorCodesDropsLowConfidenceShortMatches(t *testing.T) {
	chunk := &models.Chunk{ID: uuid.New(), Text: "E-9 ok."}
	codes := extractErrorCodes(uuid.New(), chunk, "HP")
	assert.Empty(t, codes)
}

func TestExtractPartsUsesManufacturerSpecificPattern(t *testing.T) {
	text := "Replace part A123456789 and order V123456789 for this unit."
	parts := extractParts(uuid.New(), text, "Konica Minolta")
	require.Len(t, parts, 2)
	assert.Equal(t, "A123456789", parts[0].PartNumber)
	assert.Equal(t, "V123456789", parts[1].PartNumber)
}

func TestExtractPartsFallsBackToDefaultPatternForUnknownManufacturer(t *testing.T) {
	text := "Order part AB12345 from the depot."
	parts := extractParts(uuid.New(), text, "Unknown Co")
	require.Len(t, parts, 1)
	assert.Equal(t, "AB12345", parts[0].PartNumber)
}

func TestLinkPartsToErrorCodesByMentionInSolutionText(t *testing.T) {
	code := &models.ErrorCode{Code: "E-123", SolutionText: "Replace part A123456789 to resolve."}
	part := &models.Part{PartNumber: "A123456789"}

	linkPartsToErrorCodes([]*models.ErrorCode{code}, []*models.Part{part})

	assert.Contains(t, code.RelatedParts, "A123456789")
	assert.Contains(t, part.LinkedErrorCodes, "E-123")
}

func TestDetectVersionExtractsFromFirstPages(t *testing.T) {
	assert.Equal(t, "v2.4.1", detectVersion("Field Service Manual\nVersion: v2.4.1\nAll rights reserved."))
	assert.Equal(t, "", detectVersion("no version information present here"))
}
