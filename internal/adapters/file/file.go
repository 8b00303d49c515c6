// Package file implements a persistent cache level storing one file per key.
//
// Files live under <dir>/<first two hex digits>/<xxhash64 of key><ext>. Each
// file holds a codec payload wrapping the normalized key and the item, so a
// hash collision reads as a miss. Writes go to a temp file in the same
// directory and are renamed into place, so readers never see partial files.
package file

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"fastsearch-cache/internal/adapters"
	"fastsearch-cache/internal/codec"
	"fastsearch-cache/internal/common/errors"
	"fastsearch-cache/internal/common/logging"

	"github.com/cespare/xxhash/v2"
)

const (
	lockDir    = "locks"
	lockSuffix = ".lock"
	tempPrefix = ".tmp-"

	// breakSuffix names the guard file held while an expired lock is removed
	breakSuffix = ".break"
)

// Config configures the file level.
type Config struct {
	Directory string `yaml:"directory" validate:"required"`
	Extension string `yaml:"extension"`
}

// DefaultConfig stores ".cache" files under <tmp>/fastsearch_cache.
func DefaultConfig() Config {
	return Config{
		Directory: filepath.Join(os.TempDir(), "fastsearch_cache"),
		Extension: ".cache",
	}
}

type record struct {
	Key  string
	Item *adapters.Item
}

// Adapter is the file cache level.
type Adapter struct {
	dir    string
	ext    string
	codec  *codec.Codec
	now    func() time.Time
	logger logging.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithClock overrides the time source used by CleanExpired and locks.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// WithLogger sets the adapter logger.
func WithLogger(logger logging.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// New creates the cache directory if needed and returns the adapter.
func New(config Config, c *codec.Codec, opts ...Option) (*Adapter, error) {
	if config.Directory == "" {
		return nil, errors.ConfigError("file cache directory is required")
	}
	if config.Extension == "" {
		config.Extension = ".cache"
	}
	if c == nil {
		c = codec.Default()
	}

	if err := os.MkdirAll(filepath.Join(config.Directory, lockDir), 0o755); err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("cannot create cache directory %s: %v", config.Directory, err))
	}

	a := &Adapter{
		dir:   config.Directory,
		ext:   config.Extension,
		codec: c,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logging.Component("file_adapter")
	}
	return a, nil
}

// Name implements adapters.Adapter.
func (a *Adapter) Name() string { return "file" }

// Dir returns the cache directory.
func (a *Adapter) Dir() string { return a.dir }

func (a *Adapter) path(key string) string {
	sum := strconv.FormatUint(xxhash.Sum64String(key), 16)
	sum = strings.Repeat("0", 16-len(sum)) + sum
	return filepath.Join(a.dir, sum[:2], sum+a.ext)
}

func (a *Adapter) lockPath(key string) string {
	sum := strconv.FormatUint(xxhash.Sum64String(key), 16)
	return filepath.Join(a.dir, lockDir, sum+lockSuffix)
}

// Get implements adapters.Adapter. Unreadable files are removed and read as a miss.
func (a *Adapter) Get(_ context.Context, key string) (*adapters.Item, error) {
	path := a.path(key)
	rec, err := a.read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		if errors.IsType(err, errors.ErrTypeCorrupted) {
			a.logger.Warn("Removing corrupted cache file", logging.Field{Key: "path", Value: path}, logging.Err(err))
			_ = os.Remove(path)
			return nil, nil
		}
		return nil, errors.InternalError("failed to read cache file", err)
	}
	if rec.Key != key {
		return nil, nil
	}
	return rec.Item, nil
}

func (a *Adapter) read(path string) (*record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec record
	if err := a.codec.Decode(data, &rec); err != nil {
		return nil, err
	}
	if rec.Item == nil {
		return nil, errors.CorruptedError("cache file holds no item", nil)
	}
	return &rec, nil
}

// Set implements adapters.Adapter.
func (a *Adapter) Set(_ context.Context, key string, item *adapters.Item) error {
	data, err := a.codec.Encode(record{Key: key, Item: item})
	if err != nil {
		return err
	}
	return a.writeAtomic(a.path(key), data)
}

func (a *Adapter) writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.InternalError("failed to create cache subdirectory", err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return errors.InternalError("failed to create temp file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.InternalError("failed to write cache file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.InternalError("failed to close cache file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.InternalError("failed to move cache file into place", err)
	}
	return nil
}

// Delete implements adapters.Adapter.
func (a *Adapter) Delete(_ context.Context, key string) (bool, error) {
	err := os.Remove(a.path(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.InternalError("failed to delete cache file", err)
}

// Clear implements adapters.Adapter. Lock files are kept.
func (a *Adapter) Clear(ctx context.Context) error {
	return a.walk(ctx, func(path string) error {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	})
}

// CleanExpired implements adapters.Adapter. Corrupted files are removed and counted.
func (a *Adapter) CleanExpired(ctx context.Context) (int, error) {
	now := a.now()
	removed := 0

	err := a.walk(ctx, func(path string) error {
		rec, err := a.read(path)
		switch {
		case err == nil && !rec.Item.Expired(now):
			return nil
		case err != nil && os.IsNotExist(err):
			return nil
		case err != nil && !errors.IsType(err, errors.ErrTypeCorrupted):
			return err
		}
		if err := os.Remove(path); err == nil {
			removed++
		}
		return nil
	})
	return removed, err
}

// walk visits every cache file, skipping the lock directory and temp files.
func (a *Adapter) walk(ctx context.Context, fn func(path string) error) error {
	return filepath.WalkDir(a.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if d.Name() == lockDir && filepath.Dir(path) == filepath.Clean(a.dir) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), tempPrefix) || !strings.HasSuffix(d.Name(), a.ext) {
			return nil
		}
		return fn(path)
	})
}

// Close implements adapters.Adapter.
func (a *Adapter) Close() error { return nil }

// breakTimeout is how old a break guard must be before it is considered
// abandoned by a crashed process.
const breakTimeout = 10 * time.Second

// TryLock implements adapters.Locker. The lock file is prepared under a temp
// name and hard-linked into place; os.Link fails when the lock already exists.
// An expired lock is broken and the link retried once.
func (a *Adapter) TryLock(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	path := a.lockPath(key)
	content := token + "\n" + strconv.FormatInt(a.now().Add(ttl).UnixNano(), 10)

	tmp, err := os.CreateTemp(filepath.Dir(path), tempPrefix+"*")
	if err != nil {
		return false, errors.InternalError("failed to create lock file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	_, werr := tmp.WriteString(content)
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return false, errors.InternalError("failed to write lock file", werr)
	}

	for attempt := 0; attempt < 2; attempt++ {
		err := os.Link(tmpName, path)
		if err == nil {
			return true, nil
		}
		if !os.IsExist(err) {
			return false, errors.InternalError("failed to link lock file", err)
		}

		broken, err := a.breakExpiredLock(path)
		if err != nil || !broken {
			return false, err
		}
	}
	return false, nil
}

// breakExpiredLock removes the lock file at path if it has expired. The check
// and the removal run while holding an exclusive break guard, so a lock linked
// by another caller in between is never removed. It reports whether path is
// free for a new link.
func (a *Adapter) breakExpiredLock(path string) (bool, error) {
	guard := path + breakSuffix
	f, err := os.OpenFile(guard, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if !os.IsExist(err) {
			return false, errors.InternalError("failed to create lock break guard", err)
		}
		if info, serr := os.Stat(guard); serr == nil && time.Since(info.ModTime()) > breakTimeout {
			_ = os.Remove(guard)
		}
		return false, nil
	}
	_ = f.Close()
	defer os.Remove(guard)

	// malformed lock files are treated as expired
	_, expiresAt, rerr := readLock(path)
	switch {
	case os.IsNotExist(rerr):
		return true, nil
	case rerr == nil && expiresAt.After(a.now()):
		return false, nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return false, errors.InternalError("failed to remove expired lock file", err)
	}
	return true, nil
}

// Unlock implements adapters.Locker.
func (a *Adapter) Unlock(_ context.Context, key, token string) (bool, error) {
	path := a.lockPath(key)
	held, _, err := readLock(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.InternalError("failed to read lock file", err)
	}
	if held != token {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.InternalError("failed to remove lock file", err)
	}
	return true, nil
}

func readLock(path string) (string, time.Time, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", time.Time{}, err
	}
	token, expires, ok := strings.Cut(string(data), "\n")
	if !ok {
		return "", time.Time{}, fmt.Errorf("malformed lock file %s", path)
	}
	nanos, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("malformed lock expiry in %s: %w", path, err)
	}
	return token, time.Unix(0, nanos), nil
}

// DiskUsage returns the number and total size of cache files.
func (a *Adapter) DiskUsage(ctx context.Context) (int, int64, error) {
	files := 0
	var total int64
	err := a.walk(ctx, func(path string) error {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		files++
		total += info.Size()
		return nil
	})
	return files, total, err
}

// Stats implements adapters.StatsProvider.
func (a *Adapter) Stats(ctx context.Context) map[string]interface{} {
	files, total, err := a.DiskUsage(ctx)
	stats := map[string]interface{}{
		"directory":   a.dir,
		"files":       files,
		"bytes":       total,
		"serializer":  a.codec.Serializer().String(),
		"compression": a.codec.Compression().String(),
	}
	if err != nil {
		stats["error"] = err.Error()
	}
	return stats
}
