package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	dErrors "opgate/pkg/domain-errors"
	strs "opgate/pkg/platform/strings"
)

// Audit backends selectable with OPGATE_AUDIT_BACKEND.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config is the full process configuration.
type Config struct {
	Audit    AuditConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Ops      OpsConfig
	Log      LogConfig
}

// AuditConfig selects where the audit trail is stored.
type AuditConfig struct {
	Backend string
	File    string
	Format  string
}

// DatabaseConfig configures the PostgreSQL backend.
type DatabaseConfig struct {
	URL    string
	Driver string // "postgres" (lib/pq) or "pgx"
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	URL          string
	Key          string
	WaitReplicas int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the audit mirror. Mirroring is off without brokers.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Group   string
}

// Enabled reports whether brokers are configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// OpsConfig configures the metrics and health listener.
type OpsConfig struct {
	Addr string
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string
	Format string
}

// FromEnv builds a Config from OPGATE_* environment variables so main stays lean.
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	waitReplicas, err := strconv.Atoi(get("OPGATE_REDIS_WAIT_REPLICAS", "0"))
	if err != nil {
		return Config{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "OPGATE_REDIS_WAIT_REPLICAS must be an integer")
	}

	cfg := Config{
		Audit: AuditConfig{
			Backend: get("OPGATE_AUDIT_BACKEND", BackendFile),
			File:    get("OPGATE_AUDIT_FILE", "operation_logs.json"),
			Format:  get("OPGATE_AUDIT_FORMAT", "array"),
		},
		Database: DatabaseConfig{
			URL:    get("OPGATE_DATABASE_URL", ""),
			Driver: get("OPGATE_DATABASE_DRIVER", "postgres"),
		},
		Redis: RedisConfig{
			URL:          get("OPGATE_REDIS_URL", ""),
			Key:          get("OPGATE_REDIS_KEY", "opgate:audit:entries"),
			WaitReplicas: waitReplicas,
			PoolSize:     10,
			MinIdleConns: 1,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: strs.SplitList(get("OPGATE_KAFKA_BROKERS", "")),
			Topic:   get("OPGATE_KAFKA_TOPIC", "opgate.audit"),
			Group:   get("OPGATE_KAFKA_GROUP", "opgate-replicate"),
		},
		Ops: OpsConfig{
			Addr: get("OPGATE_OPS_ADDR", ":9090"),
		},
		Log: LogConfig{
			Level:  get("OPGATE_LOG_LEVEL", "info"),
			Format: get("OPGATE_LOG_FORMAT", "text"),
		},
	}
	return cfg, cfg.Validate()
}

// Validate checks that the selected backend has what it needs.
func (c Config) Validate() error {
	switch c.Audit.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Audit.File == "" {
			return invalid("OPGATE_AUDIT_FILE is required for the file backend")
		}
		if c.Audit.Format != "array" && c.Audit.Format != "lines" {
			return invalid(fmt.Sprintf("OPGATE_AUDIT_FORMAT %q is not array or lines", c.Audit.Format))
		}
	case BackendPostgres:
		if c.Database.URL == "" {
			return invalid("OPGATE_DATABASE_URL is required for the postgres backend")
		}
		if c.Database.Driver != "postgres" && c.Database.Driver != "pgx" {
			return invalid(fmt.Sprintf("OPGATE_DATABASE_DRIVER %q is not postgres or pgx", c.Database.Driver))
		}
	case BackendRedis:
		if c.Redis.URL == "" {
			return invalid("OPGATE_REDIS_URL is required for the redis backend")
		}
		if c.Redis.WaitReplicas < 0 {
			return invalid("OPGATE_REDIS_WAIT_REPLICAS must not be negative")
		}
	default:
		return invalid(fmt.Sprintf("OPGATE_AUDIT_BACKEND %q is not one of memory, file, postgres, redis", c.Audit.Backend))
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return invalid(fmt.Sprintf("OPGATE_LOG_FORMAT %q is not text or json", c.Log.Format))
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		return invalid("OPGATE_KAFKA_TOPIC is required when brokers are set")
	}
	return nil
}

func invalid(msg string) error {
	return dErrors.New(dErrors.CodeInvalidInput, msg)
}
