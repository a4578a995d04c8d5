package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krai-project/krai/pkg/models"
)

type fakeStage struct {
	name   models.StageName
	result *models.ProcessingResult
	err    error
	calls  int
}

func (f *fakeStage) Name() models.StageName { return f.name }

func (f *fakeStage) Process(ctx context.Context, pctx *models.ProcessingContext) (*models.ProcessingResult, error) {
	f.calls++
	return f.result, f.err
}

func (f *fakeStage) HashFields(pctx *models.ProcessingContext) map[string]any {
	return map[string]any{"file_hash": pctx.FileHash}
}

type httpError struct {
	status int
}

func (e *httpError) Error() string   { return "http error" }
func (e *httpError) HTTPStatus() int { return e.status }

func TestSafeProcessSuccess(t *testing.T) {
	p := New(nil, nil, nil, nil, nil, nil, "test-service")
	stage := &fakeStage{name: models.StageUpload, result: &models.ProcessingResult{Status: models.StatusCompleted}}
	pctx := models.NewProcessingContext(uuid.New(), "req-1")

	result := p.SafeProcess(context.Background(), stage, pctx)

	require.NotNil(t, result)
	assert.Equal(t, models.StatusCompleted, result.Status)
	assert.Equal(t, 1, stage.calls)
	assert.NotEmpty(t, result.CorrelationID)
}

func TestSafeProcessPermanentFailureNoRetry(t *testing.T) {
	p := New(nil, nil, nil, nil, nil, nil, "test-service")
	stage := &fakeStage{name: models.StageUpload, err: &httpError{status: 400}}
	pctx := models.NewProcessingContext(uuid.New(), "req-1")

	result := p.SafeProcess(context.Background(), stage, pctx)

	assert.Equal(t, models.StatusFailed, result.Status)
	assert.Equal(t, models.CategoryPermanent, result.Metadata["error_category"])
}

func TestSafeProcessTransientWithoutOrchestratorFallsBackSynchronously(t *testing.T) {
	p := New(nil, nil, nil, nil, nil, nil, "test-service")
	attempts := 0
	stage := &fakeStageSeq{
		name: models.StageEmbedding,
		fn: func() (*models.ProcessingResult, error) {
			attempts++
			if attempts == 1 {
				return nil, &httpError{status: 503}
			}
			return &models.ProcessingResult{Status: models.StatusCompleted}, nil
		},
	}
	pctx := models.NewProcessingContext(uuid.New(), "req-1")

	result := p.SafeProcess(context.Background(), stage, pctx)

	assert.Equal(t, models.StatusCompleted, result.Status)
	assert.Equal(t, 2, attempts, "synchronous fallback must retry once in-line")
}

func TestSafeProcessUnknownErrorTreatedAsPermanent(t *testing.T) {
	p := New(nil, nil, nil, nil, nil, nil, "test-service")
	stage := &fakeStage{name: models.StageText, err: errors.New("totally unexpected")}
	pctx := models.NewProcessingContext(uuid.New(), "req-1")

	result := p.SafeProcess(context.Background(), stage, pctx)

	assert.Equal(t, models.StatusFailed, result.Status)
	assert.Equal(t, models.CategoryUnknown, result.Metadata["error_category"])
}

// fakeStageSeq lets a test vary the Process outcome across calls, needed to
// exercise the synchronous-fallback-then-succeed path.
type fakeStageSeq struct {
	name models.StageName
	fn   func() (*models.ProcessingResult, error)
}

func (f *fakeStageSeq) Name() models.StageName { return f.name }
func (f *fakeStageSeq) Process(ctx context.Context, pctx *models.ProcessingContext) (*models.ProcessingResult, error) {
	return f.fn()
}
func (f *fakeStageSeq) HashFields(pctx *models.ProcessingContext) map[string]any {
	return map[string]any{"x": 1}
}
