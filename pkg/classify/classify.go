// Package classify maps stage-processing errors and HTTP status codes to a
// retry category (Error Classifier, C4).
package classify

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/krai-project/krai/pkg/models"
)

// Classification is the Error Classifier's verdict.
type Classification struct {
	Category  models.ErrorCategory
	ErrorType string
}

// SchemaValidationError marks an error as a permanent input-validation
// failure (schema/validation errors are never retried).
type SchemaValidationError struct {
	Message string
}

func (e *SchemaValidationError) Error() string { return e.Message }

// MissingDependencyError marks a DB function/table/feature as absent; the
// caller should auto-disable the feature rather than retry.
type MissingDependencyError struct {
	Message string
}

func (e *MissingDependencyError) Error() string { return e.Message }

// ContextLimitError marks a prompt-too-long condition that the calling
// stage must handle in-line (progressive truncation), not via the generic
// retry path.
type ContextLimitError struct {
	Message string
}

func (e *ContextLimitError) Error() string { return e.Message }

// Classify determines the retry category for a stage failure. httpStatus is
// 0 when the error did not originate from an HTTP call.
//
// Grounded on pkg/mcp/recovery.go's ClassifyError: context cancellation is
// never retried, connection-level errors are transient, unknown errors
// default to permanent. Extended here with the spec's explicit HTTP status
// rules and the ContextLimit/MissingDependency categories from section 7.
func Classify(err error, httpStatus int) Classification {
	if err == nil {
		return Classification{Category: models.CategoryUnknown, ErrorType: "nil_error"}
	}

	var missingDep *MissingDependencyError
	if errors.As(err, &missingDep) {
		return Classification{Category: models.CategoryMissingDependency, ErrorType: "missing_dependency"}
	}

	var ctxLimit *ContextLimitError
	if errors.As(err, &ctxLimit) {
		return Classification{Category: models.CategoryContextLimit, ErrorType: "context_limit"}
	}

	var validationErr *SchemaValidationError
	if errors.As(err, &validationErr) {
		return Classification{Category: models.CategoryPermanent, ErrorType: "validation_error"}
	}

	if httpStatus != 0 {
		return classifyHTTPStatus(httpStatus)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Classification{Category: models.CategoryPermanent, ErrorType: "context_error"}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Classification{Category: models.CategoryTransient, ErrorType: "network_timeout"}
		}
		return Classification{Category: models.CategoryTransient, ErrorType: "network_error"}
	}

	if isConnectionError(err) {
		return Classification{Category: models.CategoryTransient, ErrorType: "connection_error"}
	}

	return Classification{Category: models.CategoryUnknown, ErrorType: "unknown"}
}

// classifyHTTPStatus applies the spec's explicit status-code rules: 408/429
// and 5xx are transient; every other 4xx is permanent.
func classifyHTTPStatus(status int) Classification {
	switch {
	case status == 408 || status == 429:
		return Classification{Category: models.CategoryTransient, ErrorType: "http_retryable"}
	case status >= 500 && status < 600:
		return Classification{Category: models.CategoryTransient, ErrorType: "http_server_error"}
	case status >= 400 && status < 500:
		return Classification{Category: models.CategoryPermanent, ErrorType: "http_client_error"}
	default:
		return Classification{Category: models.CategoryUnknown, ErrorType: "http_unexpected_status"}
	}
}

// isConnectionError detects connection-level transport failures by sentinel
// and by substring match on common driver error text, same approach as
// pkg/mcp/recovery.go's isConnectionError.
func isConnectionError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}

	msg := strings.ToLower(err.Error())
	connectionErrors := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"connection closed",
		"no such host",
		"i/o timeout",
		"dial tcp",
	}
	for _, e := range connectionErrors {
		if strings.Contains(msg, e) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether the category should be handed to the Retry
// Orchestrator at all (ContextLimit and MissingDependency are handled
// in-stage per section 7, never through the generic retry path).
func (c Classification) IsRetryable() bool {
	return c.Category == models.CategoryTransient
}
