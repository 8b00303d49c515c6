// Package sqldb implements a persistent cache level backed by a database table,
// using SQLite (mattn/go-sqlite3) or PostgreSQL (jackc/pgx).
//
// Items are stored as codec payloads next to their expiry in unix
// nanoseconds, so expired rows can be swept with a single DELETE. Locks use
// an upsert that only replaces a row whose lock has expired.
package sqldb

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"regexp"
	"time"

	"fastsearch-cache/internal/adapters"
	"fastsearch-cache/internal/codec"
	"fastsearch-cache/internal/common/errors"
	"fastsearch-cache/internal/common/logging"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Config configures the SQL level.
type Config struct {
	Driver       string `yaml:"driver" validate:"required,oneof=sqlite3 sqlite postgres pgx"`
	DSN          string `yaml:"dsn" validate:"required"`
	Table        string `yaml:"table"`
	MaxOpenConns int    `yaml:"max_open_conns" validate:"min=0"`
}

// DefaultConfig returns an SQLite database in the working directory.
func DefaultConfig() Config {
	return Config{
		Driver:       "sqlite3",
		DSN:          "fastsearch_cache.db",
		Table:        "cache_items",
		MaxOpenConns: 1,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if _, err := lookupDialect(c.Driver); err != nil {
		return errors.ConfigError(err.Error())
	}
	if c.DSN == "" {
		return errors.ConfigError("sql dsn is required")
	}
	if !tableNamePattern.MatchString(c.Table) {
		return errors.ConfigError(fmt.Sprintf("invalid sql table name %q", c.Table))
	}
	return nil
}

type record struct {
	Key  string
	Item *adapters.Item
}

// Adapter is the SQL cache level.
type Adapter struct {
	db      *sql.DB
	dialect dialect
	codec   *codec.Codec
	logger  logging.Logger
	now     func() time.Time

	qGet, qSet, qDelete, qClear, qSweep, qCount string
	qLock, qUnlock                              string
}

// New opens the database, verifies the connection and creates the tables.
func New(ctx context.Context, config Config, c *codec.Codec) (*Adapter, error) {
	if config.Table == "" {
		config.Table = "cache_items"
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	d, _ := lookupDialect(config.Driver)
	if c == nil {
		c = codec.Default()
	}

	db, err := sql.Open(d.driver, config.DSN)
	if err != nil {
		return nil, errors.ConnectionError("failed to open database", err)
	}
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.ConnectionError("failed to ping database", err)
	}

	a := &Adapter{
		db:      db,
		dialect: d,
		codec:   c,
		logger:  logging.Component("sql_adapter").WithFields(logging.Field{Key: "driver", Value: d.driver}),
		now:     time.Now,
	}
	a.prepareQueries(config.Table)

	if err := a.migrate(ctx, config.Table); err != nil {
		db.Close()
		return nil, errors.InternalError("failed to migrate cache tables", err)
	}
	return a, nil
}

func (a *Adapter) prepareQueries(table string) {
	locks := table + "_locks"
	r := a.dialect.rebind

	a.qGet = r(fmt.Sprintf(`SELECT payload FROM %s WHERE cache_key = ?`, table))
	a.qSet = r(fmt.Sprintf(`INSERT INTO %s (cache_key, payload, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (cache_key) DO UPDATE SET payload = excluded.payload, expires_at = excluded.expires_at`, table))
	a.qDelete = r(fmt.Sprintf(`DELETE FROM %s WHERE cache_key = ?`, table))
	a.qClear = fmt.Sprintf(`DELETE FROM %s`, table)
	a.qSweep = r(fmt.Sprintf(`DELETE FROM %s WHERE expires_at <= ?`, table))
	a.qCount = fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)
	a.qLock = r(fmt.Sprintf(`INSERT INTO %[1]s (lock_key, token, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (lock_key) DO UPDATE SET token = excluded.token, expires_at = excluded.expires_at
		WHERE %[1]s.expires_at <= ?`, locks))
	a.qUnlock = r(fmt.Sprintf(`DELETE FROM %s WHERE lock_key = ? AND token = ?`, locks))
}

func (a *Adapter) migrate(ctx context.Context, table string) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			cache_key VARCHAR(255) PRIMARY KEY,
			payload %s NOT NULL,
			expires_at BIGINT NOT NULL
		)`, table, a.dialect.blobType),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_expires_at ON %[1]s (expires_at)`, table),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s_locks (
			lock_key VARCHAR(255) PRIMARY KEY,
			token VARCHAR(255) NOT NULL,
			expires_at BIGINT NOT NULL
		)`, table),
	}
	for _, stmt := range statements {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Name implements adapters.Adapter.
func (a *Adapter) Name() string { return "sql" }

// Get implements adapters.Adapter. Undecodable rows are deleted and read as a miss.
func (a *Adapter) Get(ctx context.Context, key string) (*adapters.Item, error) {
	var payload []byte
	err := a.db.QueryRowContext(ctx, a.qGet, key).Scan(&payload)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.ConnectionError("failed to read cache row", err)
	}

	var rec record
	if err := a.codec.Decode(payload, &rec); err != nil || rec.Item == nil {
		a.logger.Warn("Removing corrupted cache row", logging.Field{Key: "key", Value: key}, logging.Err(err))
		_, _ = a.db.ExecContext(ctx, a.qDelete, key)
		return nil, nil
	}
	return rec.Item, nil
}

// Set implements adapters.Adapter.
func (a *Adapter) Set(ctx context.Context, key string, item *adapters.Item) error {
	payload, err := a.codec.Encode(record{Key: key, Item: item})
	if err != nil {
		return err
	}
	if _, err := a.db.ExecContext(ctx, a.qSet, key, payload, item.ExpiresAt.UnixNano()); err != nil {
		return errors.ConnectionError("failed to write cache row", err)
	}
	return nil
}

// Delete implements adapters.Adapter.
func (a *Adapter) Delete(ctx context.Context, key string) (bool, error) {
	res, err := a.db.ExecContext(ctx, a.qDelete, key)
	if err != nil {
		return false, errors.ConnectionError("failed to delete cache row", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.InternalError("failed to read affected rows", err)
	}
	return n > 0, nil
}

// Clear implements adapters.Adapter.
func (a *Adapter) Clear(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, a.qClear); err != nil {
		return errors.ConnectionError("failed to clear cache table", err)
	}
	return nil
}

// CleanExpired implements adapters.Adapter.
func (a *Adapter) CleanExpired(ctx context.Context) (int, error) {
	res, err := a.db.ExecContext(ctx, a.qSweep, a.now().UnixNano())
	if err != nil {
		return 0, errors.ConnectionError("failed to sweep expired rows", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.InternalError("failed to read affected rows", err)
	}
	return int(n), nil
}

// Close implements adapters.Adapter.
func (a *Adapter) Close() error {
	return a.db.Close()
}

// TryLock implements adapters.Locker.
func (a *Adapter) TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	now := a.now()
	res, err := a.db.ExecContext(ctx, a.qLock, key, token, now.Add(ttl).UnixNano(), now.UnixNano())
	if err != nil {
		return false, errors.ConnectionError("failed to acquire lock", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.InternalError("failed to read affected rows", err)
	}
	return n > 0, nil
}

// Unlock implements adapters.Locker.
func (a *Adapter) Unlock(ctx context.Context, key, token string) (bool, error) {
	res, err := a.db.ExecContext(ctx, a.qUnlock, key, token)
	if err != nil {
		return false, errors.ConnectionError("failed to release lock", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.InternalError("failed to read affected rows", err)
	}
	return n > 0, nil
}

// Stats implements adapters.StatsProvider.
func (a *Adapter) Stats(ctx context.Context) map[string]interface{} {
	stats := map[string]interface{}{
		"driver":           a.dialect.driver,
		"open_connections": a.db.Stats().OpenConnections,
	}
	var rows int64
	if err := a.db.QueryRowContext(ctx, a.qCount).Scan(&rows); err != nil {
		stats["error"] = err.Error()
	} else {
		stats["rows"] = rows
	}
	return stats
}
