package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIllegalTransitionIsConflict(t *testing.T) {
	err := fmt.Errorf("quotation Q1: %w", ErrIllegalTransition)
	assert.True(t, errors.Is(err, ErrIllegalTransition))
	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(ErrConflict, ErrIllegalTransition))
}

func TestHelpers(t *testing.T) {
	v := Validation("amount must be positive, got %d", -1)
	assert.True(t, errors.Is(v, ErrValidation))
	assert.Contains(t, v.Error(), "amount must be positive, got -1")

	nf := NotFound("invoice")
	assert.True(t, errors.Is(nf, ErrNotFound))
	assert.Equal(t, "invoice not found", nf.Error())
}
