package errors

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeoutError_Classification(t *testing.T) {
	err := NewTimeoutError("span", 50*time.Millisecond, nil)

	assert.True(t, IsTimeoutError(err))
	assert.Contains(t, err.Error(), "span")
	assert.Contains(t, err.Error(), "50ms")

	wrapped := WrapWithContext("read document", err)
	assert.True(t, IsTimeoutError(wrapped))

	assert.True(t, IsTimeoutError(context.DeadlineExceeded))
	assert.False(t, IsTimeoutError(nil))
	assert.False(t, IsTimeoutError(fmt.Errorf("plain failure")))
}

func TestCancellationError_Classification(t *testing.T) {
	assert.True(t, IsCancellationError(context.Canceled))
	assert.True(t, IsCancellationError(WrapWithContext("read", context.Canceled)))
	assert.False(t, IsCancellationError(nil))
	assert.False(t, IsCancellationError(fmt.Errorf("plain failure")))
}

func TestValidationError_Classification(t *testing.T) {
	err := NewValidationError("offset", "offset outside document")

	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "offset")
	assert.False(t, IsValidationError(fmt.Errorf("plain failure")))
}

func TestProcessError_UnwrapsCause(t *testing.T) {
	cause := fmt.Errorf("broken pipe")
	err := NewProcessError("ghci", "communication", cause)

	assert.True(t, IsProcessError(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "communication")
}

func TestWrapWithContext_NilPassthrough(t *testing.T) {
	assert.NoError(t, WrapWithContext("anything", nil))
}
