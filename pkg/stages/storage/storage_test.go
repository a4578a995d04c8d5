package storage

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/krai-project/krai/pkg/models"
)

func TestHashFieldsCollectsImageHashesDeterministically(t *testing.T) {
	p := &Processor{}
	pctx := &models.ProcessingContext{
		Images: []*models.Image{
			{SHA256: "aaa"},
			{SHA256: "bbb"},
		},
	}

	fields := p.HashFields(pctx)
	hashes, ok := fields["image_hashes"].([]string)
	assert.True(t, ok)
	assert.Equal(t, []string{"aaa", "bbb"}, hashes)
}

func TestHashFieldsEmptyForNoImages(t *testing.T) {
	p := &Processor{}
	pctx := &models.ProcessingContext{DocumentID: uuid.New()}

	fields := p.HashFields(pctx)
	hashes, ok := fields["image_hashes"].([]string)
	assert.True(t, ok)
	assert.Empty(t, hashes)
}
