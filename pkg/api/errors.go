package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"

	"github.com/krai-project/krai/pkg/services"
	"github.com/krai-project/krai/pkg/stages/upload"
)

// writeError maps an error to an HTTP status and JSON body, the gin
// counterpart of the teacher's mapServiceError.
func writeError(c *gin.Context, err error) {
	status, msg := classifyError(err)
	c.JSON(status, gin.H{"error": msg})
}

func classifyError(err error) (int, string) {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		return http.StatusBadRequest, validErr.Error()
	}
	var invalidType *upload.InvalidFileTypeError
	if errors.As(err, &invalidType) {
		return http.StatusUnprocessableEntity, invalidType.Error()
	}
	if errors.Is(err, services.ErrNotFound) || errors.Is(err, pgx.ErrNoRows) {
		return http.StatusNotFound, "resource not found"
	}
	if errors.Is(err, services.ErrAlreadyExists) {
		return http.StatusConflict, "resource already exists"
	}
	if errors.Is(err, services.ErrInvalidInput) {
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusInternalServerError, "internal server error"
}
