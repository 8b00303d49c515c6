package cache

import (
	"fmt"
	"strings"

	"fastsearch-cache/internal/adapters"
	"fastsearch-cache/internal/common/errors"
)

// Level is a rank in the cache hierarchy. Lower levels are faster and are
// consulted first.
type Level int

const (
	// LevelMemory is the in-process tier.
	LevelMemory Level = 1
	// LevelPersistent is the host-local tier (go-cache, files, SQL).
	LevelPersistent Level = 2
	// LevelDistributed is the shared network tier (Redis, memcached).
	LevelDistributed Level = 3
)

func (l Level) String() string {
	switch l {
	case LevelMemory:
		return "memory"
	case LevelPersistent:
		return "persistent"
	case LevelDistributed:
		return "distributed"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	return l >= LevelMemory && l <= LevelDistributed
}

// ParseLevel accepts a level name or its number.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "memory":
		return LevelMemory, nil
	case "2", "persistent":
		return LevelPersistent, nil
	case "3", "distributed":
		return LevelDistributed, nil
	default:
		return 0, errors.ValidationError(fmt.Sprintf("invalid cache level %q", s))
	}
}

// LevelBinding attaches an adapter to a level. Several bindings may share a
// level; their order sets the priority within it.
type LevelBinding struct {
	Level   Level
	Adapter adapters.Adapter
}

// tier is one configured level with its adapters in priority order.
type tier struct {
	level    Level
	adapters []adapters.Adapter
}
