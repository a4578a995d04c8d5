package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/krai-project/krai/pkg/models"
)

func TestPgvectorLiteralFormatsBracketedList(t *testing.T) {
	got := pgvectorLiteral([]float32{0.1, 0.2, -0.3})
	assert.Equal(t, "[0.1,0.2,-0.3]", got)
}

func TestPgvectorLiteralEmptyVector(t *testing.T) {
	assert.Equal(t, "[]", pgvectorLiteral(nil))
}

func TestHashFieldsIncludesModelAndChunkIDs(t *testing.T) {
	p := &Processor{model: "embeddinggemma"}
	pctx := &models.ProcessingContext{Chunks: []*models.Chunk{{}, {}}}

	fields := p.HashFields(pctx)
	assert.Equal(t, "embeddinggemma", fields["model"])
	ids, ok := fields["chunk_ids"].([]string)
	assert.True(t, ok)
	assert.Len(t, ids, 2)
}
