package structured

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMissingTableDetectsPostgresUndefinedTable(t *testing.T) {
	err := errors.New(`ERROR: relation "krai_intelligence.structured_tables" does not exist (SQLSTATE 42P01)`)
	assert.True(t, isMissingTable(err))
}

func TestIsMissingTableFalseForUnrelatedError(t *testing.T) {
	err := errors.New("connection refused")
	assert.False(t, isMissingTable(err))
}

func TestDisableIsIdempotentAndObservable(t *testing.T) {
	p := &Processor{}
	assert.False(t, p.isDisabled())
	p.disable()
	assert.True(t, p.isDisabled())
	p.disable()
	assert.True(t, p.isDisabled())
}
