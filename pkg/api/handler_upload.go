package api

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/krai-project/krai/pkg/services"
	"github.com/krai-project/krai/pkg/stages/upload"
)

// handleUpload handles POST /api/v1/upload (spec section 6: `POST /upload`
// (multipart) → 202 {document_id}; runs pipeline asynchronously).
//
// Grounded on the teacher's submitAlertHandler (pkg/api/handler_alert.go)
// for the bind/validate/call-service/respond shape, generalized from a JSON
// body to a multipart file upload.
func (s *Server) handleUpload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		writeError(c, services.NewValidationError("file", "multipart file field is required"))
		return
	}

	stagedPath, err := s.stageUpload(c, fileHeader)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to stage upload: %v", err)})
		return
	}

	// The content-type sniff happens here, synchronously, rather than only
	// inside the Upload stage, so a non-PDF upload fails fast with a 4xx
	// instead of being silently enqueued and only discovered to have failed
	// on a later GET .../stages poll (spec scenario 4).
	mtype, err := mimetype.DetectFile(stagedPath)
	if err != nil {
		_ = os.Remove(stagedPath)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to sniff content type: %v", err)})
		return
	}
	if !mtype.Is("application/pdf") {
		_ = os.Remove(stagedPath)
		writeError(c, &upload.InvalidFileTypeError{DetectedType: mtype.String()})
		return
	}

	hash, err := upload.HashFile(stagedPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to hash upload: %v", err)})
		return
	}

	ctx := c.Request.Context()
	documentID, err := upload.Register(ctx, s.pool, hash, fileHeader.Filename)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to register document: %v", err)})
		return
	}

	if _, err := s.queue.Enqueue(ctx, documentID, stagedPath, false); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to enqueue document: %v", err)})
		return
	}

	c.JSON(http.StatusAccepted, &UploadResponse{
		DocumentID: documentID,
		Status:     "queued",
	})
}

// stageUpload saves an incoming multipart file to the shared staging
// directory under a name derived from a fresh UUID, so concurrent uploads
// of files with the same original name never collide.
func (s *Server) stageUpload(c *gin.Context, fileHeader *multipart.FileHeader) (string, error) {
	if err := os.MkdirAll(s.stagingDir, 0o755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	dest := filepath.Join(s.stagingDir, uuid.NewString()+"_"+filepath.Base(fileHeader.Filename))
	if err := c.SaveUploadedFile(fileHeader, dest); err != nil {
		return "", fmt.Errorf("save uploaded file: %w", err)
	}
	return dest, nil
}
