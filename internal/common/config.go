// -----------------------------------------------------------------------
// Modified By: dreamforge
// -----------------------------------------------------------------------

// Package common holds process-wide concerns that do not belong to any one
// component: configuration loading, the global logger, id helpers and
// version metadata.
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration.
type Config struct {
	Environment string            `toml:"environment"` // "development" or "production"
	Server      ServerConfig      `toml:"server"`
	Queue       QueueConfig       `toml:"queue"`
	SQLite      SQLiteConfig      `toml:"sqlite"`
	ObjectStore ObjectStoreConfig `toml:"object_store"`
	Streaming   StreamingConfig   `toml:"streaming"`
	Readiness   ReadinessConfig   `toml:"readiness"`
	Models      ModelsConfig      `toml:"models"`
	Logging     LoggingConfig     `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// QueueConfig configures the dispatcher (C5). Eager selects inline
// execution; Name and Concurrency apply only to the async mode.
type QueueConfig struct {
	Eager       bool   `toml:"eager"`       // run steps inline on the submitting goroutine
	Name        string `toml:"name"`        // goqite queue name
	Concurrency int    `toml:"concurrency"` // worker pool size
}

// SQLiteConfig configures the persistence repository (C1).
type SQLiteConfig struct {
	Path           string `toml:"path"`
	BusyTimeoutMS  int    `toml:"busy_timeout_ms"`
	CacheSizeMB    int    `toml:"cache_size_mb"`
	WALMode        bool   `toml:"wal_mode"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
	// Environment mirrors Config.Environment; NewSQLiteDB only honors
	// ResetOnStartup when this is "development", so it is copied down here
	// rather than threading the whole Config into the storage layer.
	Environment string `toml:"-"`
}

// ObjectStoreConfig configures the S3/MinIO adapter (C2).
type ObjectStoreConfig struct {
	Endpoint       string `toml:"endpoint"`        // internal endpoint, used for writes
	PublicEndpoint string `toml:"public_endpoint"` // optional, used only to sign GETs
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	Bucket         string `toml:"bucket"`
	Region         string `toml:"region"`
	PresignExpireS int    `toml:"presign_expires_s"`
}

// StreamingConfig configures the NDJSON log tail and SSE progress stream
// (C10).
type StreamingConfig struct {
	SSEPollMS       int `toml:"sse_poll_ms"`
	SSEHeartbeatS   int `toml:"sse_heartbeat_s"`
	LogsTailDefault int `toml:"logs_tail_default"`
	LogsTailMax     int `toml:"logs_tail_max"`
}

// ReadinessConfig configures which dependency checks GET /readyz performs.
type ReadinessConfig struct {
	Checks []string `toml:"checks"` // subset of {"db", "s3"}
}

// ModelsConfig configures model resolution fallbacks (C7/C11).
type ModelsConfig struct {
	InstallRoot  string `toml:"install_root"`
	FallbackPath string `toml:"fallback_path"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`
	Format     string   `toml:"format"`
	Output     []string `toml:"output"`
	TimeFormat string   `toml:"time_format"`
}

// NewDefaultConfig returns the compiled-in baseline configuration. Every
// loader call starts from this value.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Queue: QueueConfig{
			Eager:       false,
			Name:        "dreamforge_jobs",
			Concurrency: 2,
		},
		SQLite: SQLiteConfig{
			Path:          "./data/dreamforge.db",
			BusyTimeoutMS: 5000,
			CacheSizeMB:   64,
			WALMode:       true,
		},
		ObjectStore: ObjectStoreConfig{
			Bucket:         "dreamforge",
			Region:         "us-east-1",
			PresignExpireS: 3600,
		},
		Streaming: StreamingConfig{
			SSEPollMS:       500,
			SSEHeartbeatS:   15,
			LogsTailDefault: 100,
			LogsTailMax:     2000,
		},
		Readiness: ReadinessConfig{
			Checks: []string{"db"},
		},
		Models: ModelsConfig{
			InstallRoot:  "./data/models",
			FallbackPath: "./data/models/sdxl-checkpoint/default",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05.000",
		},
	}
}

// LoadFromFiles loads the default config, then sequentially unmarshals each
// TOML path over it (later files override earlier ones), then applies
// environment variable overrides. Missing files are skipped, not fatal.
func LoadFromFiles(paths ...string) (*Config, error) {
	cfg := NewDefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid TOML in %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.SQLite.Environment = cfg.Environment

	return cfg, nil
}

// applyEnvOverrides reads DF_* environment variables, taking precedence over
// any TOML file value.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DF_ENVIRONMENT"); v != "" {
		cfg.Environment = v
	}

	if v := os.Getenv("DF_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("DF_SERVER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}

	if v := os.Getenv("DF_CELERY_EAGER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Queue.Eager = b
		}
	}
	if v := os.Getenv("DF_WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Queue.Concurrency = n
		}
	}

	if v := os.Getenv("DF_DB_URL"); v != "" {
		cfg.SQLite.Path = v
	}
	if v := os.Getenv("DF_SQLITE_PATH"); v != "" {
		cfg.SQLite.Path = v
	}

	if v := firstNonEmpty(os.Getenv("DF_MINIO_ENDPOINT"), os.Getenv("DF_S3_ENDPOINT")); v != "" {
		cfg.ObjectStore.Endpoint = v
	}
	if v := firstNonEmpty(os.Getenv("DF_MINIO_ACCESS_KEY"), os.Getenv("DF_S3_ACCESS_KEY")); v != "" {
		cfg.ObjectStore.AccessKey = v
	}
	if v := firstNonEmpty(os.Getenv("DF_MINIO_SECRET_KEY"), os.Getenv("DF_S3_SECRET_KEY")); v != "" {
		cfg.ObjectStore.SecretKey = v
	}
	if v := firstNonEmpty(os.Getenv("DF_MINIO_BUCKET"), os.Getenv("DF_S3_BUCKET")); v != "" {
		cfg.ObjectStore.Bucket = v
	}
	if v := os.Getenv("DF_S3_REGION"); v != "" {
		cfg.ObjectStore.Region = v
	}
	if v := firstNonEmpty(os.Getenv("DF_S3_PUBLIC_ENDPOINT"), os.Getenv("DF_MINIO_PUBLIC_ENDPOINT")); v != "" {
		cfg.ObjectStore.PublicEndpoint = v
	}
	if v := os.Getenv("DF_PRESIGN_EXPIRES_S"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ObjectStore.PresignExpireS = n
		}
	}

	if v := os.Getenv("DF_SSE_POLL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Streaming.SSEPollMS = n
		}
	}
	if v := os.Getenv("DF_SSE_HEARTBEAT_S"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Streaming.SSEHeartbeatS = n
		}
	}
	if v := os.Getenv("DF_LOGS_TAIL_DEFAULT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Streaming.LogsTailDefault = n
		}
	}
	if v := os.Getenv("DF_LOGS_TAIL_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Streaming.LogsTailMax = n
		}
	}

	if v := os.Getenv("DF_READY_CHECKS"); v != "" {
		cfg.Readiness.Checks = splitAndTrim(v, ",")
	}

	if v := os.Getenv("DF_MODEL_INSTALL_ROOT"); v != "" {
		cfg.Models.InstallRoot = v
	}
	if v := os.Getenv("DF_MODEL_FALLBACK_PATH"); v != "" {
		cfg.Models.FallbackPath = v
	}

	if v := os.Getenv("DF_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DF_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("DF_LOG_OUTPUT"); v != "" {
		cfg.Logging.Output = splitAndTrim(v, ",")
	}
}

// ApplyFlagOverrides applies command-line flag values, which take priority
// over both the config file and the environment.
func ApplyFlagOverrides(cfg *Config, port int, host string) {
	if port != 0 {
		cfg.Server.Port = port
	}
	if host != "" {
		cfg.Server.Host = host
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// PresignTTLSeconds clamps a requested TTL to [300, 86400], falling back to
// the configured default when ttl <= 0.
func (c *ObjectStoreConfig) PresignTTLSeconds(requested int) int {
	ttl := requested
	if ttl <= 0 {
		ttl = c.PresignExpireS
	}
	if ttl < 300 {
		ttl = 300
	}
	if ttl > 86400 {
		ttl = 86400
	}
	return ttl
}
