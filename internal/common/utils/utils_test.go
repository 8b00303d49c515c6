package utils

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateLockToken(t *testing.T) {
	a := GenerateLockToken()
	b := GenerateLockToken()

	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, hostname+"-"))
	assert.Len(t, a, len(hostname)+1+36)
}

func TestGenerateRequestID(t *testing.T) {
	id := GenerateRequestID()
	assert.True(t, strings.HasPrefix(id, "req-"))
	assert.NotEqual(t, id, GenerateRequestID())
}

func TestGenerateInstanceID(t *testing.T) {
	assert.NotEqual(t, GenerateInstanceID(), GenerateInstanceID())
}

func TestRetryWithBackoff_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2}

	err := RetryWithBackoff(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_Exhausted(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}
	cause := errors.New("connection refused")

	err := RetryWithBackoff(context.Background(), cfg, func() error { return cause })

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "max retries exceeded")
}

func TestRetryWithBackoff_NonRetryable(t *testing.T) {
	calls := 0
	fatal := errors.New("bad config")
	cfg := RetryConfig{
		MaxAttempts:     5,
		InitialDelay:    time.Millisecond,
		RetryableErrors: func(err error) bool { return !errors.Is(err, fatal) },
	}

	err := RetryWithBackoff(context.Background(), cfg, func() error {
		calls++
		return fatal
	})

	assert.Equal(t, fatal, err)
	assert.Equal(t, 1, calls)
}

func TestRetryWithBackoff_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Second}
	err := RetryWithBackoff(ctx, cfg, func() error { return errors.New("down") })

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"1800", 30 * time.Minute, false},
		{"90s", 90 * time.Second, false},
		{"1h30m", 90 * time.Minute, false},
		{"1d", 24 * time.Hour, false},
		{"2w", 14 * 24 * time.Hour, false},
		{"0", 0, false},
		{"soon", 0, true},
		{"d", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDuration(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "30s", FormatDuration(30*time.Second))
	assert.Equal(t, "30m", FormatDuration(30*time.Minute))
	assert.Equal(t, "2.5h", FormatDuration(150*time.Minute))
	assert.Equal(t, "1.5d", FormatDuration(36*time.Hour))
}

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"1024", 1024, false},
		{"50M", 50 << 20, false},
		{"64kb", 64 << 10, false},
		{"2 G", 2 << 30, false},
		{"10B", 10, false},
		{"", 0, true},
		{"-5M", 0, true},
		{"lots", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseByteSize(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatByteSize(t *testing.T) {
	assert.Equal(t, "512B", FormatByteSize(512))
	assert.Equal(t, "1.5K", FormatByteSize(1536))
	assert.Equal(t, "50.0M", FormatByteSize(50<<20))
	assert.Equal(t, "2.0G", FormatByteSize(2<<30))
}
