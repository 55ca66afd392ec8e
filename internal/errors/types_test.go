package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNone, KindOf(nil))
	assert.Equal(t, KindValidation, KindOf(ValidationError("empty input")))
	assert.Equal(t, KindValidation, KindOf(ConflictError("busy")))
	assert.Equal(t, KindNotFound, KindOf(NotFoundError("missing")))
	assert.Equal(t, KindIdleTimeout, KindOf(IdleTimeoutError("slow")))
	assert.Equal(t, KindHistoryCorrupted, KindOf(HistoryCorruptedError("corrupt", errors.New("x"))))
	assert.Equal(t, KindCancelled, KindOf(fmt.Errorf("stream: %w", context.Canceled)))
	assert.Equal(t, KindIdleTimeout, KindOf(fmt.Errorf("wrapped: %w", ErrIdleTimeout)))
	assert.Equal(t, KindExecution, KindOf(errors.New("boom")))
}

func TestUserErrorKeepsMessageAndSentinel(t *testing.T) {
	err := ConflictError("Another workflow is already running. Please wait.")
	assert.Equal(t, "Another workflow is already running. Please wait.", err.Error())
	assert.ErrorIs(t, err, ErrConflict)
	assert.True(t, IsValidation(err))

	cause := errors.New("INVALID_CHAT_HISTORY")
	corrupt := HistoryCorruptedError("start a new chat", cause)
	assert.ErrorIs(t, corrupt, ErrHistoryCorrupted)
	assert.ErrorIs(t, corrupt, cause)
}

func TestIsHistoryCorruption(t *testing.T) {
	assert.True(t, IsHistoryCorruption("Error: INVALID_CHAT_HISTORY in thread"))
	assert.True(t, IsHistoryCorruption("Found AIMessages with tool_calls that do not have a corresponding ToolMessage."))
	assert.False(t, IsHistoryCorruption("connection refused"))
}
