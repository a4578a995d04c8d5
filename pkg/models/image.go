package models

import "github.com/google/uuid"

// BoundingBox locates an image within its page, in PDF user-space units.
type BoundingBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Image is one embedded image extracted from a page. StorageKey equals
// SHA256 by construction: duplicate bytes always resolve to the same
// object-store key.
type Image struct {
	ID             uuid.UUID
	DocumentID     uuid.UUID
	PageNumber     int
	SHA256         string
	StorageKey     string
	StorageURL     string
	MimeType       string
	Width          int
	Height         int
	OriginalFilename string
	OCRText        *string
	OCRConfidence  *float64
	AIDescription  *string
	BBox           BoundingBox
	RelatedChunks  []uuid.UUID

	// Bytes holds the raw image payload for the duration of a pipeline run;
	// never persisted directly (the storage stage uploads it and clears it).
	Bytes []byte
}

// Size bounds applied by the image processor; images outside this range are
// filtered as non-content (icons, full-page scans misdetected as images).
const (
	MinImageWidth  = 100
	MinImageHeight = 100
	MaxImageWidth  = 5000
	MaxImageHeight = 5000
)

// InSizeRange reports whether the image passes the configured size filter.
func (img *Image) InSizeRange() bool {
	if img.Width < MinImageWidth || img.Height < MinImageHeight {
		return false
	}
	if img.Width > MaxImageWidth || img.Height > MaxImageHeight {
		return false
	}
	return true
}
