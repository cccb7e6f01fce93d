package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	err := NewValidation("role", `must be "user" or "assistant"`)

	assert.True(t, IsValidation(err))
	assert.False(t, IsConflict(err))
	assert.False(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "validation")
	assert.Contains(t, err.Error(), "role")
}

func TestReferentialError(t *testing.T) {
	err := NewReferential("note-1", 3)

	assert.True(t, IsReferential(err))
	assert.Equal(t, "note-1", err.NodeID)
	assert.Equal(t, int64(3), err.RefCount)
	assert.Contains(t, err.Error(), "3 relationship")
}

func TestTransientStoreError(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := NewTransientStore(3, cause)

	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, cause)
}

func TestConflictError(t *testing.T) {
	err := NewConflict("entity-9", "already merged")

	assert.True(t, IsConflict(err))
	assert.False(t, IsValidation(err))
}

func TestIsErrorTypeThroughWrapping(t *testing.T) {
	inner := NewConflict("entity-9", "already merged")
	wrapped := fmt.Errorf("merge group failed: %w", inner)

	assert.True(t, IsErrorType(wrapped, ErrorTypeConflict))
	assert.False(t, IsErrorType(wrapped, ErrorTypeValidation))
	assert.False(t, IsErrorType(nil, ErrorTypeConflict))
	assert.False(t, IsErrorType(fmt.Errorf("plain"), ErrorTypeConflict))
}
