package health

import (
	"fmt"
	"math"
	"runtime"
	"runtime/debug"
	"strings"
	"sync/atomic"

	"fastsearch-cache/internal/common/errors"
	"fastsearch-cache/internal/common/utils"
)

// MemorySnapshot describes process memory. Limit is 0 when unbounded.
type MemorySnapshot struct {
	Usage int64 `json:"usage"`
	Peak  int64 `json:"peak"`
	Limit int64 `json:"limit"`
}

// Percent returns usage as a percentage of the limit, 0 without a limit.
func (m MemorySnapshot) Percent() float64 {
	if m.Limit <= 0 {
		return 0
	}
	return float64(m.Usage) / float64(m.Limit) * 100
}

var peakUsage atomic.Int64

// ReadMemory samples the Go runtime. A limit of 0 or less falls back to the
// runtime soft memory limit.
func ReadMemory(limit int64) MemorySnapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	usage := int64(ms.Sys - ms.HeapReleased)
	for {
		peak := peakUsage.Load()
		if usage <= peak || peakUsage.CompareAndSwap(peak, usage) {
			break
		}
	}

	if limit <= 0 {
		if soft := debug.SetMemoryLimit(-1); soft != math.MaxInt64 {
			limit = soft
		} else {
			limit = 0
		}
	}

	return MemorySnapshot{
		Usage: usage,
		Peak:  peakUsage.Load(),
		Limit: limit,
	}
}

// ParseMemoryLimit parses sizes such as "512M", "1g", "64KB" or a plain
// byte count. "-1" and the empty string mean no limit and return 0.
func ParseMemoryLimit(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" || s == "-1" {
		return 0, nil
	}
	n, err := utils.ParseByteSize(s)
	if err != nil {
		return 0, errors.ValidationError(fmt.Sprintf("invalid memory limit %q", raw))
	}
	return n, nil
}
