/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Event bus backends.
const (
	EventBusMemory = "memory"
	EventBusNATS   = "nats"
	EventBusRedis  = "redis"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment     string
	HTTPBind        string
	HTTPPort        int
	DBBackend       DatabaseBackend
	DBDSN           string
	JWTSigningKey   string // empty disables auth on mutating routes
	MetricsEnabled  bool
	MaxUploadSizeMB int
	GraphvizBin     string
	LogBufferSize   int // entries kept for /api/v1/system/logs

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Result cache
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Event bus backend. Defaults to nats when a NATS URL is set, memory
	// otherwise. The redis backend reuses the Redis connection settings.
	EventBus    string
	NATSURL     string
	NATSSubject string

	// Salida archive. S3 wins when a bucket is set, otherwise ArchiveDir is
	// used when set, otherwise archiving is off.
	ArchiveDir        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string // For S3-compatible services (MinIO, etc.)
	S3UsePathStyle    bool
	S3Prefix          string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:     getEnvAny([]string{"INVERNADERO_ENV"}, "development"),
		HTTPBind:        getEnvAny([]string{"INVERNADERO_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:        getEnvIntAny([]string{"INVERNADERO_HTTP_PORT", "PORT"}, 8080),
		DBBackend:       DatabaseBackend(getEnvAny([]string{"INVERNADERO_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:           getEnvAny([]string{"INVERNADERO_DB_DSN"}, ""),
		JWTSigningKey:   getEnvAny([]string{"INVERNADERO_JWT_SIGNING_KEY"}, ""),
		MetricsEnabled:  getEnvBoolAny([]string{"INVERNADERO_METRICS_ENABLED"}, true),
		MaxUploadSizeMB: getEnvIntAny([]string{"INVERNADERO_MAX_UPLOAD_SIZE_MB"}, 10),
		GraphvizBin:     getEnvAny([]string{"INVERNADERO_GRAPHVIZ_BIN"}, "dot"),
		LogBufferSize:   getEnvIntAny([]string{"INVERNADERO_LOG_BUFFER_SIZE"}, 2000),

		TracingEnabled:    getEnvBoolAny([]string{"INVERNADERO_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"INVERNADERO_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"INVERNADERO_TRACING_SAMPLE_RATE"}, 1.0),

		RedisEnabled:  getEnvBoolAny([]string{"INVERNADERO_REDIS_ENABLED"}, false),
		RedisAddr:     getEnvAny([]string{"INVERNADERO_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: getEnvAny([]string{"INVERNADERO_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"INVERNADERO_REDIS_DB"}, 0),

		EventBus:    strings.ToLower(getEnvAny([]string{"INVERNADERO_EVENTBUS"}, "")),
		NATSURL:     getEnvAny([]string{"INVERNADERO_NATS_URL", "NATS_URL"}, ""),
		NATSSubject: getEnvAny([]string{"INVERNADERO_NATS_SUBJECT"}, "invernadero.events"),

		ArchiveDir:        getEnvAny([]string{"INVERNADERO_ARCHIVE_DIR"}, ""),
		S3AccessKeyID:     getEnvAny([]string{"INVERNADERO_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"INVERNADERO_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"INVERNADERO_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"INVERNADERO_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Endpoint:        getEnvAny([]string{"INVERNADERO_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"INVERNADERO_S3_USE_PATH_STYLE", "S3_USE_PATH_STYLE"}, false),
		S3Prefix:          getEnvAny([]string{"INVERNADERO_S3_PREFIX"}, "salidas/"),
	}

	switch cfg.DBBackend {
	case DatabasePostgres, DatabaseMySQL:
		if cfg.DBDSN == "" {
			return nil, fmt.Errorf("INVERNADERO_DB_DSN must be provided for %s", cfg.DBBackend)
		}
	case DatabaseSQLite:
		if cfg.DBDSN == "" {
			cfg.DBDSN = "invernadero.db"
		}
	default:
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	switch cfg.EventBus {
	case "":
		cfg.EventBus = EventBusMemory
		if cfg.NATSURL != "" {
			cfg.EventBus = EventBusNATS
		}
	case EventBusMemory, EventBusRedis:
	case EventBusNATS:
		if cfg.NATSURL == "" {
			return nil, fmt.Errorf("INVERNADERO_NATS_URL must be provided for the nats event bus")
		}
	default:
		return nil, fmt.Errorf("unsupported event bus %q", cfg.EventBus)
	}

	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("invalid INVERNADERO_HTTP_PORT %d", cfg.HTTPPort)
	}

	if strings.EqualFold(cfg.Environment, "production") && cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("INVERNADERO_JWT_SIGNING_KEY must be provided in production")
	}

	return cfg, nil
}

// LoadEnvFile merges KEY=VALUE pairs from path into the process environment.
// Variables already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

// MaxUploadSizeBytes returns the configured upload limit in bytes.
func (c *Config) MaxUploadSizeBytes() int64 {
	if c == nil || c.MaxUploadSizeMB <= 0 {
		return 10 << 20
	}
	return int64(c.MaxUploadSizeMB) << 20
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "1", "yes":
				return true
			case "false", "0", "no":
				return false
			}
		}
	}
	return def
}

func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
