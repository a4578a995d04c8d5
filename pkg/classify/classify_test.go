package classify

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/krai-project/krai/pkg/models"
)

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		expected models.ErrorCategory
	}{
		{"408 request timeout", 408, models.CategoryTransient},
		{"429 too many requests", 429, models.CategoryTransient},
		{"500 internal error", 500, models.CategoryTransient},
		{"503 unavailable", 503, models.CategoryTransient},
		{"400 bad request", 400, models.CategoryPermanent},
		{"401 unauthorized", 401, models.CategoryPermanent},
		{"403 forbidden", 403, models.CategoryPermanent},
		{"404 not found", 404, models.CategoryPermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(errors.New("http error"), tt.status)
			assert.Equal(t, tt.expected, got.Category)
		})
	}
}

func TestClassifyConnectionAndContextErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected models.ErrorCategory
	}{
		{"nil error", nil, models.CategoryUnknown},
		{"context canceled", context.Canceled, models.CategoryPermanent},
		{"context deadline exceeded", context.DeadlineExceeded, models.CategoryPermanent},
		{"io.EOF", io.EOF, models.CategoryTransient},
		{"connection refused", errors.New("dial tcp 127.0.0.1:8080: connection refused"), models.CategoryTransient},
		{"connection reset", errors.New("read tcp: connection reset by peer"), models.CategoryTransient},
		{"no such host", errors.New("lookup db.internal: no such host"), models.CategoryTransient},
		{"unknown error", errors.New("something unexpected happened"), models.CategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err, 0)
			assert.Equal(t, tt.expected, got.Category)
		})
	}
}

func TestClassifySpecialErrorTypes(t *testing.T) {
	missingDep := Classify(&MissingDependencyError{Message: "structured_tables missing"}, 0)
	assert.Equal(t, models.CategoryMissingDependency, missingDep.Category)

	ctxLimit := Classify(&ContextLimitError{Message: "prompt too long"}, 0)
	assert.Equal(t, models.CategoryContextLimit, ctxLimit.Category)

	validation := Classify(&SchemaValidationError{Message: "bad field"}, 0)
	assert.Equal(t, models.CategoryPermanent, validation.Category)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, Classification{Category: models.CategoryTransient}.IsRetryable())
	assert.False(t, Classification{Category: models.CategoryPermanent}.IsRetryable())
	assert.False(t, Classification{Category: models.CategoryContextLimit}.IsRetryable())
	assert.False(t, Classification{Category: models.CategoryMissingDependency}.IsRetryable())
	assert.False(t, Classification{Category: models.CategoryUnknown}.IsRetryable())
}
