package stagetracker

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krai-project/krai/pkg/models"
)

func TestClassifyAndDisableSetsDisabled(t *testing.T) {
	tr := NewTracker(nil, nil)
	assert.False(t, tr.isDisabled())

	err := tr.classifyAndDisable(errors.New("column \"stage_status\" does not exist"))
	assert.NoError(t, err, "classifyAndDisable swallows a missing-column error")
	assert.True(t, tr.isDisabled())
}

func TestClassifyAndDisableIsIdempotent(t *testing.T) {
	tr := NewTracker(nil, nil)

	_ = tr.classifyAndDisable(errors.New("column \"stage_status\" does not exist"))
	_ = tr.classifyAndDisable(errors.New("relation \"krai_core.documents\" does not exist"))
	require.True(t, tr.isDisabled())
}

func TestPatchIsNoOpOnceDisabled(t *testing.T) {
	tr := NewTracker(nil, nil)
	tr.disabled = true

	err := tr.patch(context.Background(), uuid.New(), models.StageUpload, func(s *models.StageState) {
		s.Status = "completed"
	})
	assert.NoError(t, err, "patch must not touch the pool once the tracker has disabled itself")
}
