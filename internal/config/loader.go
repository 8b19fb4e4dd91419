package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "weaver.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom is Load with an explicit YAML path.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "WEAVER_PORT")
	setString(&cfg.Server.CORSOrigin, "WEAVER_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "WEAVER_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "WEAVER_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "WEAVER_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "WEAVER_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "WEAVER_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setBool(&cfg.NATS.Enabled, "WEAVER_NATS_ENABLED")
	setString(&cfg.Logging.Level, "WEAVER_LOG_LEVEL")
	setString(&cfg.Logging.Service, "WEAVER_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "WEAVER_LOG_ASYNC")

	// Container
	setString(&cfg.Container.Engine, "WEAVER_CONTAINER_ENGINE")
	setString(&cfg.Container.Image, "WEAVER_CONTAINER_IMAGE")
	setString(&cfg.Container.NamePrefix, "WEAVER_CONTAINER_NAME_PREFIX")
	setString(&cfg.Container.Label, "WEAVER_CONTAINER_LABEL")
	setString(&cfg.Container.DataVolume, "WEAVER_CONTAINER_DATA_VOLUME")
	setString(&cfg.Container.DataMountPath, "WEAVER_CONTAINER_DATA_MOUNT_PATH")
	setString(&cfg.Workspace.BasePath, "WEAVER_WORKSPACE_BASE_PATH")

	// Editor
	setBool(&cfg.VSCode.Enabled, "WEAVER_VSCODE_ENABLED")
	setInt(&cfg.VSCode.InternalPort, "WEAVER_VSCODE_INTERNAL_PORT")
	setString(&cfg.VSCode.BaseURL, "WEAVER_VSCODE_BASE_URL")
	setInt(&cfg.VSCode.HostPortStart, "WEAVER_VSCODE_HOST_PORT_START")
	setInt(&cfg.VSCode.HostPortEnd, "WEAVER_VSCODE_HOST_PORT_END")

	// Session lifecycle
	setString(&cfg.SessionLogs.Backend, "WEAVER_SESSION_LOGS_BACKEND")
	setString(&cfg.SessionLogs.BasePath, "WEAVER_SESSION_LOGS_PATH")
	setInt(&cfg.SessionLogs.RetentionDays, "WEAVER_SESSION_LOGS_RETENTION_DAYS")
	setBool(&cfg.Cleanup.Enabled, "WEAVER_CLEANUP_ENABLED")
	setDuration(&cfg.Cleanup.Interval, "WEAVER_CLEANUP_INTERVAL")
	setBool(&cfg.RateLimit.Enabled, "WEAVER_RATE_LIMIT_ENABLED")
	setInt(&cfg.RateLimit.MaxRequests, "WEAVER_RATE_LIMIT_MAX_REQUESTS")
	setDuration(&cfg.RateLimit.Window, "WEAVER_RATE_LIMIT_WINDOW")
	setInt(&cfg.Executor.CorePoolSize, "WEAVER_EXECUTOR_CORE_POOL_SIZE")
	setInt(&cfg.Executor.MaxPoolSize, "WEAVER_EXECUTOR_MAX_POOL_SIZE")
	setInt(&cfg.Executor.QueueCapacity, "WEAVER_EXECUTOR_QUEUE_CAPACITY")
	setString(&cfg.Executor.ThreadNamePrefix, "WEAVER_EXECUTOR_NAME_PREFIX")

	// Providers
	setString(&cfg.Crypto.Key, "WEAVER_CRYPTO_KEY")
	setDuration(&cfg.Providers.Timeout, "WEAVER_PROVIDER_TIMEOUT")
	setInt(&cfg.Breaker.MaxFailures, "WEAVER_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "WEAVER_BREAKER_TIMEOUT")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "WEAVER_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "WEAVER_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.TTL, "WEAVER_CACHE_TTL")

	// Telemetry
	setBool(&cfg.OTEL.Enabled, "WEAVER_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "WEAVER_OTEL_INSECURE")
}

// validate checks that required fields are set and ranges are sane.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.NATS.Enabled && cfg.NATS.URL == "" {
		return errors.New("nats.url is required when nats is enabled")
	}
	if cfg.Container.Engine == "" {
		return errors.New("container.engine is required")
	}
	if cfg.Container.Image == "" {
		return errors.New("container.image is required")
	}
	if cfg.Container.NamePrefix == "" {
		return errors.New("container.name_prefix is required")
	}
	if cfg.Container.Label == "" {
		return errors.New("container.label is required")
	}
	if cfg.Workspace.BasePath == "" {
		return errors.New("workspace.base_path is required")
	}
	if cfg.VSCode.Enabled && (cfg.VSCode.InternalPort < 1 || cfg.VSCode.InternalPort > 65535) {
		return errors.New("vscode.internal_port must be within 1..65535")
	}
	switch cfg.SessionLogs.Backend {
	case "postgres":
	case "file":
		if cfg.SessionLogs.BasePath == "" {
			return errors.New("session_logs.base_path is required for the file backend")
		}
	default:
		return fmt.Errorf("session_logs.backend must be postgres or file, got %q", cfg.SessionLogs.Backend)
	}
	if cfg.Cleanup.Enabled && cfg.Cleanup.Interval <= 0 {
		return errors.New("cleanup.interval must be > 0")
	}
	if cfg.RateLimit.Enabled && cfg.RateLimit.Window <= 0 {
		return errors.New("rate_limit.window must be > 0")
	}
	if cfg.Executor.CorePoolSize < 1 {
		return errors.New("executor.core_pool_size must be >= 1")
	}
	if cfg.Executor.MaxPoolSize < cfg.Executor.CorePoolSize {
		return errors.New("executor.max_pool_size must be >= executor.core_pool_size")
	}
	if cfg.Executor.QueueCapacity < 0 {
		return errors.New("executor.queue_capacity must be >= 0")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
