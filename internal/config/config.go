// Package config provides configuration management for the cache service.
// Settings start from built-in defaults, are overlaid by an optional YAML
// file and finally by environment variables, then validated before use.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: HTTP port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//   - LOG_FILE: Log file path, stdout when empty
//   - TLS_CERT_FILE / TLS_KEY_FILE: Serve HTTPS when both are set
//   - INSTANCE_ID: Identifier of this process on the invalidation bus (default: hostname-random)
//   - CACHE_CONFIG_FILE: Optional YAML file applied before environment variables
//
// Cache Settings:
//   - CACHE_ENABLED: Serve reads and writes (default: true)
//   - CACHE_DEFAULT_TTL: Default item lifetime (default: 30m, bare numbers are seconds)
//   - CACHE_LOCK_TIMEOUT: Lock lifetime used by increment/decrement (default: 5s)
//   - CACHE_MEMORY_ADAPTERS: Adapters of the memory level (default: memory)
//   - CACHE_PERSISTENT_ADAPTERS: Adapters of the persistent level in priority order (default: local,file)
//   - CACHE_DISTRIBUTED_ADAPTERS: Adapters of the distributed level (default: none)
//   - CACHE_CLEANUP_SCHEDULE: Cron schedule of the expiry sweep, empty disables it (default: */5 * * * *)
//   - CACHE_MEMORY_LIMIT: Process memory limit used by the health report (default: runtime limit)
//
// Adapter Settings:
//   - CACHE_MEMORY_MAX_ITEMS / CACHE_MEMORY_MAX_BYTES: Memory level ceilings (default: 1000 / 50M)
//   - CACHE_LOCAL_CLEANUP_INTERVAL: go-cache janitor interval (default: 1m)
//   - CACHE_FILE_DIR / CACHE_FILE_EXTENSION: File level location (default: <tmp>/fastsearch_cache, .cache)
//   - CACHE_SERIALIZER / CACHE_COMPRESSION: Persisted payload encoding (default: json / none)
//   - CACHE_SQL_DRIVER / CACHE_SQL_DSN / CACHE_SQL_TABLE: SQL level (default: sqlite3, fastsearch_cache.db, cache_items)
//   - REDIS_ADDRESS / REDIS_PASSWORD / REDIS_DB / REDIS_POOL_SIZE / REDIS_PREFIX
//   - MEMCACHED_SERVERS / MEMCACHED_PREFIX
//   - CACHE_BACKEND_TIMEOUT: Per-call timeout of network adapters (default: 500ms)
//   - CIRCUIT_BREAKER_MAX_FAILURES / CIRCUIT_BREAKER_TIMEOUT
//
// Other:
//   - INVALIDATION_ENABLED / INVALIDATION_CHANNEL: Redis pub/sub invalidation bus
//   - METRICS_ENABLED: Serve /metrics (default: true)
//   - RATE_LIMIT_ENABLED / RATE_LIMIT_RPS / RATE_LIMIT_BURST: Per-client API throttling (default: off, 100, 200)
//   - WARMER_CONCURRENCY / WARMER_RATE: Warm-up producer limits
//   - CACHE_WARM_FILE: YAML seed file loaded into the cache at startup
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"fastsearch-cache/internal/adapters/file"
	"fastsearch-cache/internal/adapters/local"
	"fastsearch-cache/internal/adapters/memcached"
	"fastsearch-cache/internal/adapters/memory"
	"fastsearch-cache/internal/adapters/sqldb"
	"fastsearch-cache/internal/cache"
	"fastsearch-cache/internal/circuitbreaker"
	"fastsearch-cache/internal/common/errors"
	"fastsearch-cache/internal/common/utils"
	"fastsearch-cache/internal/common/validation"
	"fastsearch-cache/internal/metrics"
	"fastsearch-cache/internal/ratelimit"
	redisclient "fastsearch-cache/internal/redis"
	"fastsearch-cache/internal/warmer"
)

// Config holds all configuration values of the cache service.
type Config struct {
	Port       string `yaml:"port" validate:"required,numeric"`
	LogLevel   string `yaml:"log_level" validate:"oneof=debug info warn warning error"`
	LogFile    string `yaml:"log_file"`
	TLSCert    string `yaml:"tls_cert_file"`
	TLSKey     string `yaml:"tls_key_file"`
	InstanceID string `yaml:"instance_id"`

	Cache           cache.Config `yaml:"cache"`
	Levels          LevelsConfig `yaml:"levels"`
	CleanupSchedule string       `yaml:"cleanup_schedule" validate:"cron_spec"`
	MemoryLimit     string       `yaml:"memory_limit" validate:"byte_size"`

	Memory    memory.Config    `yaml:"memory"`
	Local     local.Config     `yaml:"local"`
	File      FileConfig       `yaml:"file"`
	SQL       sqldb.Config     `yaml:"sql"`
	Redis     RedisConfig      `yaml:"redis"`
	Memcached memcached.Config `yaml:"memcached"`

	BackendTimeout time.Duration         `yaml:"backend_timeout" validate:"gt=0"`
	Breaker        circuitbreaker.Config `yaml:"circuit_breaker"`

	Invalidation InvalidationConfig `yaml:"invalidation"`
	Metrics      metrics.Config     `yaml:"metrics"`
	RateLimit    ratelimit.Config   `yaml:"rate_limit"`
	Warmer       warmer.Config      `yaml:"warmer"`
	WarmFile     string             `yaml:"warm_file"`
}

// LevelsConfig lists the adapters bound to each level in priority order.
// An empty list leaves the level out.
type LevelsConfig struct {
	Memory      []string `yaml:"memory" validate:"dive,cache_adapter"`
	Persistent  []string `yaml:"persistent" validate:"dive,cache_adapter"`
	Distributed []string `yaml:"distributed" validate:"dive,cache_adapter"`
}

// ByLevel returns the adapter names of every configured level.
func (l LevelsConfig) ByLevel() map[cache.Level][]string {
	out := make(map[cache.Level][]string, 3)
	if len(l.Memory) > 0 {
		out[cache.LevelMemory] = l.Memory
	}
	if len(l.Persistent) > 0 {
		out[cache.LevelPersistent] = l.Persistent
	}
	if len(l.Distributed) > 0 {
		out[cache.LevelDistributed] = l.Distributed
	}
	return out
}

// Uses reports whether adapter is bound to any level.
func (l LevelsConfig) Uses(adapter string) bool {
	for _, names := range l.ByLevel() {
		for _, name := range names {
			if name == adapter {
				return true
			}
		}
	}
	return false
}

// FileConfig configures the file level and its payload encoding.
type FileConfig struct {
	file.Config `yaml:",inline"`
	Serializer  string `yaml:"serializer" validate:"serializer"`
	Compression string `yaml:"compression" validate:"compression"`
}

// RedisConfig configures the shared Redis connection and the key prefix of
// the redis level.
type RedisConfig struct {
	redisclient.Config `yaml:",inline"`
	Prefix             string `yaml:"prefix"`
}

// InvalidationConfig configures the cross-process invalidation bus.
type InvalidationConfig struct {
	Enabled bool   `yaml:"enabled"`
	Channel string `yaml:"channel"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:       "8080",
		LogLevel:   "info",
		InstanceID: utils.GenerateInstanceID(),

		Cache: cache.DefaultConfig(),
		Levels: LevelsConfig{
			Memory:     []string{"memory"},
			Persistent: []string{"local", "file"},
		},
		CleanupSchedule: "*/5 * * * *",

		Memory: memory.DefaultConfig(),
		Local:  local.DefaultConfig(),
		File: FileConfig{
			Config:      file.DefaultConfig(),
			Serializer:  "json",
			Compression: "none",
		},
		SQL: sqldb.DefaultConfig(),
		Redis: RedisConfig{
			Config: redisclient.Config{
				Address:     "localhost:6379",
				PoolSize:    10,
				DialTimeout: 5 * time.Second,
			},
			Prefix: "fastsearch:",
		},
		Memcached: memcached.DefaultConfig(),

		BackendTimeout: 500 * time.Millisecond,
		Breaker:        circuitbreaker.DefaultConfig(),

		Invalidation: InvalidationConfig{Channel: "fastsearch:invalidation"},
		Metrics:      metrics.DefaultConfig(),
		RateLimit:    ratelimit.DefaultConfig(),
		Warmer:       warmer.DefaultConfig(),
	}
}

// Load builds the configuration from defaults, the YAML file named by
// CACHE_CONFIG_FILE and the environment. It does not validate.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("CACHE_CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadFile overlays the YAML file at path on c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.ConfigError(fmt.Sprintf("cannot read config file: %v", err)).WithContext("path", path)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.ConfigError(fmt.Sprintf("invalid config file: %v", err)).WithContext("path", path)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)
	c.TLSCert = getEnv("TLS_CERT_FILE", c.TLSCert)
	c.TLSKey = getEnv("TLS_KEY_FILE", c.TLSKey)
	c.InstanceID = getEnv("INSTANCE_ID", c.InstanceID)

	c.Cache.Enabled = getBoolEnv("CACHE_ENABLED", c.Cache.Enabled)
	c.Cache.DefaultTTL = getDurationEnv("CACHE_DEFAULT_TTL", c.Cache.DefaultTTL)
	c.Cache.LockTimeout = getDurationEnv("CACHE_LOCK_TIMEOUT", c.Cache.LockTimeout)
	c.Levels.Memory = getListEnv("CACHE_MEMORY_ADAPTERS", c.Levels.Memory)
	c.Levels.Persistent = getListEnv("CACHE_PERSISTENT_ADAPTERS", c.Levels.Persistent)
	c.Levels.Distributed = getListEnv("CACHE_DISTRIBUTED_ADAPTERS", c.Levels.Distributed)
	c.CleanupSchedule = getEnv("CACHE_CLEANUP_SCHEDULE", c.CleanupSchedule)
	c.MemoryLimit = getEnv("CACHE_MEMORY_LIMIT", c.MemoryLimit)

	c.Memory.MaxItems = getIntEnv("CACHE_MEMORY_MAX_ITEMS", c.Memory.MaxItems)
	c.Memory.MaxBytes = getByteSizeEnv("CACHE_MEMORY_MAX_BYTES", c.Memory.MaxBytes)
	c.Local.CleanupInterval = getDurationEnv("CACHE_LOCAL_CLEANUP_INTERVAL", c.Local.CleanupInterval)
	c.File.Directory = getEnv("CACHE_FILE_DIR", c.File.Directory)
	c.File.Extension = getEnv("CACHE_FILE_EXTENSION", c.File.Extension)
	c.File.Serializer = getEnv("CACHE_SERIALIZER", c.File.Serializer)
	c.File.Compression = getEnv("CACHE_COMPRESSION", c.File.Compression)
	c.SQL.Driver = getEnv("CACHE_SQL_DRIVER", c.SQL.Driver)
	c.SQL.DSN = getEnv("CACHE_SQL_DSN", c.SQL.DSN)
	c.SQL.Table = getEnv("CACHE_SQL_TABLE", c.SQL.Table)

	c.Redis.Address = getEnv("REDIS_ADDRESS", c.Redis.Address)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getIntEnv("REDIS_DB", c.Redis.DB)
	c.Redis.PoolSize = getIntEnv("REDIS_POOL_SIZE", c.Redis.PoolSize)
	c.Redis.Prefix = getEnv("REDIS_PREFIX", c.Redis.Prefix)
	c.Memcached.Servers = getListEnv("MEMCACHED_SERVERS", c.Memcached.Servers)
	c.Memcached.Prefix = getEnv("MEMCACHED_PREFIX", c.Memcached.Prefix)

	c.BackendTimeout = getDurationEnv("CACHE_BACKEND_TIMEOUT", c.BackendTimeout)
	c.Breaker.MaxFailures = getIntEnv("CIRCUIT_BREAKER_MAX_FAILURES", c.Breaker.MaxFailures)
	c.Breaker.Timeout = getDurationEnv("CIRCUIT_BREAKER_TIMEOUT", c.Breaker.Timeout)

	c.Invalidation.Enabled = getBoolEnv("INVALIDATION_ENABLED", c.Invalidation.Enabled)
	c.Invalidation.Channel = getEnv("INVALIDATION_CHANNEL", c.Invalidation.Channel)
	c.Metrics.Enabled = getBoolEnv("METRICS_ENABLED", c.Metrics.Enabled)
	c.RateLimit.Enabled = getBoolEnv("RATE_LIMIT_ENABLED", c.RateLimit.Enabled)
	c.RateLimit.RequestsPerSecond = getFloatEnv("RATE_LIMIT_RPS", c.RateLimit.RequestsPerSecond)
	c.RateLimit.Burst = getIntEnv("RATE_LIMIT_BURST", c.RateLimit.Burst)
	c.Warmer.Concurrency = getIntEnv("WARMER_CONCURRENCY", c.Warmer.Concurrency)
	c.Warmer.RatePerSecond = getFloatEnv("WARMER_RATE", c.Warmer.RatePerSecond)
	c.WarmFile = getEnv("CACHE_WARM_FILE", c.WarmFile)
}

// getEnv retrieves an environment variable value or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv accepts the strconv.ParseBool spellings and falls back to the
// default for anything else.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getDurationEnv also accepts bare seconds, days and weeks.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := utils.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getByteSizeEnv(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := utils.ParseByteSize(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getListEnv splits a comma separated value. "none" yields an empty list.
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if strings.EqualFold(strings.TrimSpace(value), "none") {
		return []string{}
	}
	out := []string{}
	for _, part := range strings.Split(value, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks struct tags and the rules spanning several fields.
func (c *Config) Validate() error {
	if err := validation.NewCentralizedValidator().ValidateStruct(c); err != nil {
		return err
	}

	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return errors.ConfigError("PORT must be a valid port number between 1 and 65535")
	}

	levels := c.Levels.ByLevel()
	if len(levels) == 0 {
		return errors.ConfigError("at least one cache level needs an adapter")
	}
	seen := make(map[string]cache.Level)
	for level, names := range levels {
		for _, name := range names {
			if prev, dup := seen[name]; dup {
				return errors.ConfigError(fmt.Sprintf("adapter %q is bound to both %s and %s", name, prev, level))
			}
			seen[name] = level
		}
	}

	if c.Levels.Uses("sql") {
		if err := c.SQL.Validate(); err != nil {
			return err
		}
	}
	if c.Invalidation.Enabled && c.Invalidation.Channel == "" {
		return errors.ConfigError("INVALIDATION_CHANNEL is required when the invalidation bus is enabled")
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return errors.ConfigError("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}
	if _, err := c.ParsedMemoryLimit(); err != nil {
		return err
	}
	return nil
}

// NeedsRedis reports whether any component uses the Redis connection.
func (c *Config) NeedsRedis() bool {
	return c.Levels.Uses("redis") || c.Invalidation.Enabled
}

// ParsedMemoryLimit returns MemoryLimit in bytes, 0 when unset.
func (c *Config) ParsedMemoryLimit() (int64, error) {
	s := strings.TrimSpace(c.MemoryLimit)
	if s == "" || s == "-1" {
		return 0, nil
	}
	n, err := utils.ParseByteSize(s)
	if err != nil {
		return 0, errors.ConfigError(err.Error())
	}
	return n, nil
}
