// Package utils provides small helpers shared across the cache service:
// identifier generation, retry with backoff and duration parsing.
package utils

import (
	"os"
	"strings"

	"github.com/google/uuid"
)

// hostname is resolved once; tokens only need it as a readable prefix.
var hostname = func() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown"
	}
	return strings.ReplaceAll(h, " ", "_")
}()

// GenerateLockToken returns a token identifying one lock holder.
//
// The format is "hostname-uuid" so tokens from different processes never
// collide and an operator can tell which host holds a lock.
func GenerateLockToken() string {
	return hostname + "-" + uuid.NewString()
}

// GenerateRequestID generates a unique request ID for tracing and correlation.
func GenerateRequestID() string {
	return "req-" + uuid.NewString()
}

// GenerateInstanceID identifies this process on the invalidation bus.
func GenerateInstanceID() string {
	return hostname + "-" + uuid.NewString()[:8]
}
