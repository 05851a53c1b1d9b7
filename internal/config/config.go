// Package config loads process configuration from CARERULES_* environment
// variables.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"carerules/pkg/domain"
)

// Storage drivers for the repository capability.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageBadger   = "badger"
	StorageRedis    = "redis"
)

// Asset drivers for the asset-loader capability.
const (
	AssetFilesystem = "fs"
	AssetS3         = "s3"
	AssetMemory     = "memory"
)

// Metrics backends for the host service.
const (
	MetricsNone       = "none"
	MetricsExpvar     = "expvar"
	MetricsPrometheus = "prometheus"
)

// Tracing backends for the host service.
const (
	TracingNone = "none"
	TracingJSON = "json"
	TracingOTLP = "otlp"
)

// Config is the full process configuration.
type Config struct {
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"sqlite"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"carerules.db"`
	PostgresDSN   string `env:"POSTGRES_DSN"`
	BadgerDir     string `env:"BADGER_DIR"`
	RedisURL      string `env:"REDIS_URL"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"carerules:"`

	AssetDriver string `env:"ASSET_DRIVER" envDefault:"fs"`
	AssetFSRoot string `env:"ASSET_FS_ROOT" envDefault:"./assets"`
	AssetWatch  bool   `env:"ASSET_WATCH" envDefault:"false"`
	S3          S3Config

	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	SimplifyDepth    int    `env:"SIMPLIFY_DEPTH" envDefault:"3"`
	BlockingPriority string `env:"BLOCKING_PRIORITY" envDefault:"error"`
	Metrics          string `env:"METRICS" envDefault:"none"`
	Tracing          string `env:"TRACING" envDefault:"none"`
	OTLPEndpoint     string `env:"OTLP_ENDPOINT"`
	InheritRules     bool   `env:"INHERIT_RULES" envDefault:"false"`

	HTTP HTTPConfig
}

// HTTPConfig configures the rule host HTTP surface. A zero RateLimit
// disables per-client rate limiting; an empty JWTSecret disables bearer
// authentication.
type HTTPConfig struct {
	Addr      string `env:"HTTP_ADDR" envDefault:":8080"`
	RateLimit int    `env:"HTTP_RATE_LIMIT" envDefault:"0"`
	JWTSecret string `env:"HTTP_JWT_SECRET"`
}

// S3Config configures the S3-compatible asset store.
type S3Config struct {
	Bucket          string `env:"ASSET_S3_BUCKET"`
	Region          string `env:"ASSET_S3_REGION" envDefault:"us-east-1"`
	Endpoint        string `env:"ASSET_S3_ENDPOINT"`
	PathStyle       bool   `env:"ASSET_S3_PATH_STYLE" envDefault:"false"`
	Prefix          string `env:"ASSET_S3_PREFIX"`
	AccessKeyID     string `env:"ASSET_S3_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"ASSET_S3_SECRET_ACCESS_KEY"`
	SessionToken    string `env:"ASSET_S3_SESSION_TOKEN"`
}

// Prefix is prepended to every variable name. Without explicit S3 keys the
// AWS default credential chain applies.
const Prefix = "CARERULES_"

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	return LoadFrom(nil)
}

// LoadFrom parses and validates the supplied environment map, or the
// process environment when vars is nil.
func LoadFrom(vars map[string]string) (Config, error) {
	cfg, err := Parse(vars)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse reads the environment without validating, so callers can apply
// overrides before calling Validate.
func Parse(vars map[string]string) (Config, error) {
	var cfg Config
	opts := env.Options{Prefix: Prefix}
	if vars != nil {
		opts.Environment = vars
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks enumerated values and required combinations.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageMemory, StorageSQLite, StorageBadger:
	case StorageRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("%sREDIS_URL required for redis storage", Prefix)
		}
	case StoragePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%sPOSTGRES_DSN required for postgres storage", Prefix)
		}
	default:
		return fmt.Errorf("unknown storage driver %s", c.StorageDriver)
	}
	switch c.AssetDriver {
	case AssetFilesystem, AssetMemory:
	case AssetS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("%sASSET_S3_BUCKET required for s3 asset driver", Prefix)
		}
	default:
		return fmt.Errorf("unknown asset driver %s", c.AssetDriver)
	}
	switch c.Metrics {
	case MetricsNone, MetricsExpvar, MetricsPrometheus:
	default:
		return fmt.Errorf("unknown metrics backend %s", c.Metrics)
	}
	switch c.Tracing {
	case TracingNone, TracingJSON, TracingOTLP:
	default:
		return fmt.Errorf("unknown tracing backend %s", c.Tracing)
	}
	if c.AssetWatch && c.AssetDriver != AssetFilesystem {
		return fmt.Errorf("asset watching requires the %s asset driver", AssetFilesystem)
	}
	if c.HTTP.RateLimit < 0 {
		return fmt.Errorf("http rate limit must not be negative")
	}
	if c.SimplifyDepth < 0 {
		return fmt.Errorf("simplify depth must not be negative")
	}
	if _, err := c.Blocking(); err != nil {
		return err
	}
	return nil
}

// Blocking returns the parsed blocking priority.
func (c Config) Blocking() (domain.Priority, error) {
	return domain.ParsePriority(c.BlockingPriority)
}
