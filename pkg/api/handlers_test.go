package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krai-project/krai/pkg/models"
	"github.com/krai-project/krai/pkg/services"
	"github.com/krai-project/krai/pkg/stages/upload"
)

func newTestServer() *Server {
	return NewServer(nil, nil, nil, nil, nil, nil)
}

func TestHandleRetryStageRejectsUnknownStage(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/"+mustUUID(t)+"/stages/not-a-stage/retry", nil)
	rec := httptest.NewRecorder()

	s.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRetryStageRejectsInvalidDocumentID(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/not-a-uuid/stages/upload/retry", nil)
	rec := httptest.NewRecorder()

	s.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetStagesRejectsInvalidDocumentID(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/not-a-uuid/stages", nil)
	rec := httptest.NewRecorder()

	s.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleUploadRejectsMissingFile(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", nil)
	rec := httptest.NewRecorder()

	s.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidStageName(t *testing.T) {
	stage, ok := validStageName("embedding")
	require.True(t, ok)
	assert.Equal(t, models.StageEmbedding, stage)

	_, ok = validStageName("not-a-stage")
	assert.False(t, ok)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation error", services.NewValidationError("stage", "unknown"), http.StatusBadRequest},
		{"invalid file type", &upload.InvalidFileTypeError{DetectedType: "text/plain"}, http.StatusUnprocessableEntity},
		{"not found", services.ErrNotFound, http.StatusNotFound},
		{"already exists", services.ErrAlreadyExists, http.StatusConflict},
		{"invalid input", services.ErrInvalidInput, http.StatusBadRequest},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := classifyError(tt.err)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}

func TestStageStatusResponseFormatsTimestamps(t *testing.T) {
	now := time.Now()
	status := models.StageStatusMap{
		models.StageUpload: {
			Status:      "completed",
			Progress:    1.0,
			StartedAt:   &now,
			CompletedAt: &now,
		},
	}

	out := stageStatusResponse(status)
	entry, ok := out["upload"]
	require.True(t, ok)
	assert.Equal(t, "completed", entry.Status)
	require.NotNil(t, entry.StartedAt)
	assert.Equal(t, now.Format(time.RFC3339), *entry.StartedAt)
}

func mustUUID(t *testing.T) string {
	t.Helper()
	return "11111111-1111-1111-1111-111111111111"
}
