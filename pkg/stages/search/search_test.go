package search

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/krai-project/krai/pkg/models"
)

func TestProcessAlwaysCompletesAsNoOpStage(t *testing.T) {
	p := New(nil)
	pctx := &models.ProcessingContext{DocumentID: uuid.New()}

	result, err := p.Process(nil, pctx)

	assert.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, result.Status)
}

func TestHashFieldsKeyedByDocumentID(t *testing.T) {
	p := New(nil)
	id := uuid.New()
	pctx := &models.ProcessingContext{DocumentID: id}

	assert.Equal(t, id, p.HashFields(pctx)["document_id"])
}
