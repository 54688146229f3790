package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrConfigMissing means the config file or a file it points to does not exist.
	ErrConfigMissing = errors.New("config missing")
	// ErrConfigInvalid means the config could not be parsed or failed validation.
	ErrConfigInvalid = errors.New("config invalid")
	// ErrConfigExists is returned by Save when it would overwrite an existing file.
	ErrConfigExists = errors.New("config already exists")
)

// Config holds everything a worker needs for one run. It is loaded once and
// never mutated afterwards.
type Config struct {
	Corpus   string       `json:"corpus"`
	Vectors  string       `json:"vectors"`
	FastText string       `json:"fasttext"`
	Threads  int          `json:"threads"`
	LogFile  string       `json:"logfile"`
	Hostname string       `json:"hostname"`
	Queue    QueueConfig  `json:"queue"`
	Status   StatusConfig `json:"status"`

	// Keys written by older bootstrappers; folded into Queue.Sheets on load.
	LegacyAPIKey        string `json:"api_key,omitempty"`
	LegacySpreadsheetID string `json:"spreadshet_id,omitempty"`
}

type QueueConfig struct {
	Backend  string         `json:"backend"`
	Sheets   SheetsConfig   `json:"sheets"`
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
	Retry    RetryConfig    `json:"retry"`
}

type SheetsConfig struct {
	APIKey            string `json:"api_key"`
	SpreadsheetID     string `json:"spreadsheet_id"`
	Worksheet         string `json:"worksheet"`
	RequestsPerMinute int    `json:"requests_per_minute"`
}

type PostgresConfig struct {
	URL             string   `json:"url"`
	Grid            string   `json:"grid"`
	MaxConns        int      `json:"max_conns"`
	ConnMaxLifetime Duration `json:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL  string `json:"url"`
	Grid string `json:"grid"`
}

type RetryConfig struct {
	Attempts int      `json:"attempts"`
	Min      Duration `json:"min"`
	Max      Duration `json:"max"`
}

type StatusConfig struct {
	Addr      string `json:"addr"`
	TokenHash string `json:"token_hash"`
}

const (
	BackendSheets   = "sheets"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"

	DefaultWorksheet = "Params combined"
	DefaultGrid      = "default"
	DefaultLogFile   = "log.jsonl"
)

var validBackends = map[string]bool{
	BackendSheets:   true,
	BackendPostgres: true,
	BackendRedis:    true,
}

// Load reads the JSON config at path, applies environment overrides and
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s does not exist, run `gridrunner setup` first", ErrConfigMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrConfigMissing, path, err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s is corrupt, run `gridrunner setup --overwrite-config`: %v", ErrConfigInvalid, path, err)
	}

	cfg.applyEnv()
	cfg.ApplyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with every optional field set to its default.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

func (c *Config) applyEnv() {
	c.Queue.Backend = envString("GRIDRUNNER_QUEUE_BACKEND", c.Queue.Backend)
	c.Queue.Postgres.URL = envString("DATABASE_URL", c.Queue.Postgres.URL)
	c.Queue.Redis.URL = envString("REDIS_URL", c.Queue.Redis.URL)
	c.Queue.Retry.Max = Duration(envDuration("GRIDRUNNER_QUEUE_RETRY_MAX", c.Queue.Retry.Max.Std()))
	c.Threads = envInt("GRIDRUNNER_THREADS", c.Threads)
	c.Hostname = envString("GRIDRUNNER_HOSTNAME", c.Hostname)
	c.LogFile = envString("GRIDRUNNER_LOGFILE", c.LogFile)
	c.Status.Addr = envString("GRIDRUNNER_STATUS_ADDR", c.Status.Addr)
}

// ApplyDefaults fills every unset optional field and folds legacy keys.
func (c *Config) ApplyDefaults() {
	if c.Queue.Sheets.APIKey == "" {
		c.Queue.Sheets.APIKey = c.LegacyAPIKey
	}
	if c.Queue.Sheets.SpreadsheetID == "" {
		c.Queue.Sheets.SpreadsheetID = c.LegacySpreadsheetID
	}
	c.LegacyAPIKey, c.LegacySpreadsheetID = "", ""

	if c.Queue.Backend == "" {
		c.Queue.Backend = BackendSheets
	}
	if c.Queue.Sheets.Worksheet == "" {
		c.Queue.Sheets.Worksheet = DefaultWorksheet
	}
	if c.Queue.Sheets.RequestsPerMinute <= 0 {
		c.Queue.Sheets.RequestsPerMinute = 60
	}
	if c.Queue.Postgres.Grid == "" {
		c.Queue.Postgres.Grid = DefaultGrid
	}
	if c.Queue.Postgres.MaxConns <= 0 {
		c.Queue.Postgres.MaxConns = 4
	}
	if c.Queue.Postgres.ConnMaxLifetime <= 0 {
		c.Queue.Postgres.ConnMaxLifetime = Duration(5 * time.Minute)
	}
	if c.Queue.Redis.Grid == "" {
		c.Queue.Redis.Grid = DefaultGrid
	}
	if c.Queue.Retry.Attempts <= 0 {
		c.Queue.Retry.Attempts = 5
	}
	if c.Queue.Retry.Min <= 0 {
		c.Queue.Retry.Min = Duration(time.Second)
	}
	if c.Queue.Retry.Max <= 0 {
		c.Queue.Retry.Max = Duration(time.Minute)
	}
	if c.Threads <= 0 {
		c.Threads = DefaultThreads()
	}
	if c.LogFile == "" {
		c.LogFile = DefaultLogFile
	}
	if c.Hostname == "" {
		if h, err := os.Hostname(); err == nil {
			c.Hostname = h
		}
	}
}

func (c *Config) validate() error {
	if c.Corpus == "" {
		return fmt.Errorf("%w: corpus is required", ErrConfigInvalid)
	}
	if c.Vectors == "" {
		return fmt.Errorf("%w: vectors is required", ErrConfigInvalid)
	}
	if c.FastText == "" {
		return fmt.Errorf("%w: fasttext is required", ErrConfigInvalid)
	}
	if c.Hostname == "" {
		return fmt.Errorf("%w: hostname is required", ErrConfigInvalid)
	}

	if !validBackends[c.Queue.Backend] {
		return fmt.Errorf("%w: queue.backend must be one of sheets, postgres, redis; got %q", ErrConfigInvalid, c.Queue.Backend)
	}

	switch c.Queue.Backend {
	case BackendSheets:
		if c.Queue.Sheets.APIKey == "" {
			return fmt.Errorf("%w: queue.sheets.api_key is required when queue.backend is sheets", ErrConfigInvalid)
		}
		if c.Queue.Sheets.SpreadsheetID == "" {
			return fmt.Errorf("%w: queue.sheets.spreadsheet_id is required when queue.backend is sheets", ErrConfigInvalid)
		}
	case BackendPostgres:
		u := c.Queue.Postgres.URL
		if !strings.HasPrefix(u, "postgres://") && !strings.HasPrefix(u, "postgresql://") {
			return fmt.Errorf("%w: queue.postgres.url (DATABASE_URL) must start with postgres:// or postgresql://, got %q", ErrConfigInvalid, u)
		}
	case BackendRedis:
		u := c.Queue.Redis.URL
		if !strings.HasPrefix(u, "redis://") && !strings.HasPrefix(u, "rediss://") {
			return fmt.Errorf("%w: queue.redis.url (REDIS_URL) must start with redis:// or rediss://, got %q", ErrConfigInvalid, u)
		}
	}

	if c.Queue.Retry.Max < c.Queue.Retry.Min {
		return fmt.Errorf("%w: queue.retry.max (%s) is shorter than queue.retry.min (%s)", ErrConfigInvalid, c.Queue.Retry.Max, c.Queue.Retry.Min)
	}

	if c.Status.TokenHash != "" {
		if _, err := bcrypt.Cost([]byte(c.Status.TokenHash)); err != nil {
			return fmt.Errorf("%w: status.token_hash is not a bcrypt hash: %v", ErrConfigInvalid, err)
		}
	}

	return nil
}

// Save writes cfg to path as indented JSON. An existing file is only
// replaced when overwrite is set.
func Save(path string, cfg *Config, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
	}

	data, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}

// DefaultThreads leaves two cores for the system, but never goes below one.
func DefaultThreads() int {
	if n := runtime.NumCPU() - 2; n > 0 {
		return n
	}
	return 1
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
