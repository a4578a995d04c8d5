package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/krai-project/krai/pkg/models"
	"github.com/krai-project/krai/pkg/services"
)

// handleGetStages handles GET /api/v1/documents/:id/stages (spec section 6:
// returns stage_status map + derived overall_progress and can_retry).
func (s *Server) handleGetStages(c *gin.Context) {
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

	c.JSON(http.StatusOK, &StagesResponse{
		DocumentID:      doc.ID,
		Stages:          stageStatusResponse(doc.StageStatus),
		OverallProgress: doc.OverallProgress(),
		CanRetry:        doc.CanRetry(),
	})
}

// handleRetryStage handles POST /api/v1/documents/:id/stages/:stage/retry.
// Re-runs exactly the named stage via the Master Pipeline's RunSingleStage,
// matching spec section 4.16's "supports run_single_stage(stage_name,
// doc_id) for retry from API".
func (s *Server) handleRetryStage(c *gin.Context) {
	id, err := parseDocumentID(c)
	if err != nil {
		writeError(c, err)
		return
	}

	stageParam := c.Param("stage")
	stage, ok := validStageName(stageParam)
	if !ok {
		writeError(c, services.NewValidationError("stage", "unknown stage name: "+stageParam))
		return
	}

	if _, err := s.docs.Get(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	// Re-running happens in the background: the retry request is an
	// instruction, not a synchronous operation, consistent with every other
	// pipeline entry point being async.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), retryTimeout)
		defer cancel()
		if err := s.pipeline.RunSingleStage(ctx, id, stage); err != nil {
			s.logger.Warn("api: stage retry failed", "document_id", id, "stage", stage, "error", err)
		}
	}()

	c.JSON(http.StatusAccepted, &RetryResponse{
		DocumentID: id,
		Stage:      string(stage),
		Status:     "retrying",
	})
}

const retryTimeout = 10 * time.Minute

func parseDocumentID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, services.NewValidationError("id", "not a valid document id")
	}
	return id, nil
}

func validStageName(raw string) (models.StageName, bool) {
	candidate := models.StageName(raw)
	for _, s := range models.CanonicalStages {
		if s == candidate {
			return candidate, true
		}
	}
	return "", false
}

func stageStatusResponse(status models.StageStatusMap) map[string]StageStatusEntry {
	out := make(map[string]StageStatusEntry, len(status))
	for name, st := range status {
		entry := StageStatusEntry{
			Status:   st.Status,
			Progress: st.Progress,
			Error:    st.Error,
			Metadata: st.Metadata,
		}
		if st.StartedAt != nil {
			s := st.StartedAt.Format(time.RFC3339)
			entry.StartedAt = &s
		}
		if st.CompletedAt != nil {
			s := st.CompletedAt.Format(time.RFC3339)
			entry.CompletedAt = &s
		}
		out[string(name)] = entry
	}
	return out
}
