package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleGetDocument handles GET /api/v1/documents/:id: the document record
// (file hash, filename, page count, document type, manufacturer and series
// IDs, created_at, stage_status) plus the derived overall progress and
// can-retry fields. No counts of chunks, images or other child rows are
// included (SPEC_FULL.md section 6 — not present in the distilled spec, added
// because a document detail view needs more than stage_status alone).
func (s *Server) handleGetDocument(c *gin.Context) {
	id, err := parseDocumentID(c)
	if err != nil {
		writeError(c, err)
		return
	}

	doc, err := s.docs.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, &DocumentResponse{
		ID:              doc.ID,
		FileHash:        doc.FileHash,
		Filename:        doc.Filename,
		PageCount:       doc.PageCount,
		DocumentType:    doc.DocumentType,
		ManufacturerID:  doc.ManufacturerID,
		SeriesID:        doc.SeriesID,
		CreatedAt:       doc.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		OverallProgress: doc.OverallProgress(),
		CanRetry:        doc.CanRetry(),
		Stages:          stageStatusResponse(doc.StageStatus),
	})
}
