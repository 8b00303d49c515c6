package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		want     string
	}{
		{
			name:     "basic error",
			appError: &AppError{Type: ErrTypeConfig, Message: "configuration is invalid"},
			want:     "config: configuration is invalid",
		},
		{
			name:     "error with code",
			appError: &AppError{Type: ErrTypeLock, Message: "lock is held", Code: "LOCK_HELD"},
			want:     "lock: lock is held: code=LOCK_HELD",
		},
		{
			name: "error with cause",
			appError: &AppError{
				Type:    ErrTypeConnection,
				Message: "redis unreachable",
				Cause:   errors.New("dial tcp: connection refused"),
			},
			want: "connection: redis unreachable: cause=dial tcp: connection refused",
		},
		{
			name: "error with context",
			appError: &AppError{
				Type:    ErrTypeValidation,
				Message: "invalid level",
				Context: map[string]interface{}{"level": 7, "adapter": "file"},
			},
			want: "validation: invalid level: context={adapter=file, level=7}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.appError.Error())
		})
	}
}

func TestAppError_Is(t *testing.T) {
	sentinel := LockError("lock is held").WithCode("LOCK_HELD")

	wrapped := fmt.Errorf("increment: %w", sentinel.WithContext("key", "counter"))
	assert.True(t, errors.Is(wrapped, sentinel))

	other := StorageError("not stored", nil).WithCode("NOT_STORED")
	assert.False(t, errors.Is(wrapped, other))

	uncoded := ValidationError("bad key")
	assert.True(t, errors.Is(uncoded, uncoded))
	assert.False(t, errors.Is(ValidationError("bad key"), uncoded))
}

func TestAppError_WithContextDoesNotMutate(t *testing.T) {
	base := LockError("held").WithCode("LOCK_HELD")
	derived := base.WithContext("key", "k1")

	assert.Nil(t, base.Context)
	assert.Equal(t, "k1", derived.Context["key"])
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := StorageError("write failed", cause)

	assert.Equal(t, cause, errors.Unwrap(err))
	assert.True(t, errors.Is(err, cause))
}

func TestConstructors(t *testing.T) {
	assert.Equal(t, ErrTypeNotFound, NotFoundError("adapter").Type)
	assert.Equal(t, "adapter not found", NotFoundError("adapter").Message)
	assert.Equal(t, "timeout during redis get", TimeoutError("redis get").Message)
	assert.Equal(t, ErrTypeCorrupted, CorruptedError("bad header", nil).Type)
	assert.Equal(t, ErrTypeInternal, InternalError("boom", nil).Type)
	assert.Equal(t, ErrTypeConfig, ConfigError("bad").Type)
}

func TestIsTypeAndGetType(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", ValidationError("empty key"))

	assert.True(t, IsType(err, ErrTypeValidation))
	assert.False(t, IsType(err, ErrTypeLock))
	assert.False(t, IsType(nil, ErrTypeValidation))

	assert.Equal(t, ErrTypeValidation, GetType(err))
	assert.Equal(t, ErrTypeInternal, GetType(errors.New("plain")))
	assert.Equal(t, ErrorType(""), GetType(nil))
}
