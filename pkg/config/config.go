package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/coursemetrics/pkg/cache"
	"github.com/platinummonkey/coursemetrics/pkg/storage"
)

const envPrefix = "COURSEMETRICS_"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       storage.Config
	Cache         CacheConfig
	Jobs          JobsConfig
	Report        ReportConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s liveness and readiness checks)
	HealthPort string
}

// CacheConfig holds cache tuning. Namespaces starts from
// cache.DefaultNamespaces and is overridden by the optional YAML file.
type CacheConfig struct {
	SingleFlight bool
	RedisPrefix  string
	File         string
	Namespaces   map[cache.Namespace]cache.NamespaceConfig
}

// JobsConfig holds cron schedules; an empty schedule disables the job
type JobsConfig struct {
	WarmSchedule   string
	SweepSchedule  string
	ReportSchedule string
	// WarmInstructors and WarmCourses are extra dashboards precomputed by
	// the warm job next to the platform one
	WarmInstructors []string
	WarmCourses     []string
}

// ReportConfig holds platform report export settings
type ReportConfig struct {
	Enabled bool
	Prefix  string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel string

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables and the
// optional cache override file
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Cache:         loadCacheConfig(),
		Jobs:          loadJobsConfig(),
		Report:        loadReportConfig(),
		Observability: loadObservabilityConfig(),
	}

	if cfg.Cache.File != "" {
		data, err := os.ReadFile(cfg.Cache.File)
		if err != nil {
			return nil, fmt.Errorf("failed to read cache file: %w", err)
		}
		if err := cfg.Cache.ApplyYAML(data); err != nil {
			return nil, fmt.Errorf("failed to apply cache file %s: %w", cfg.Cache.File, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("HOST", "0.0.0.0"),
		Port:            getEnv("PORT", "8080"),
		ReadTimeout:     getEnvDuration("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:     getEnvDuration("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("HEALTH_PORT", "9090"),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	cfg.Driver = getEnv("DB_DRIVER", cfg.Driver)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.ReplicaURLs = getEnv("DATABASE_REPLICA_URLS", cfg.ReplicaURLs)
	if maxConns := getEnvInt("DB_MAX_CONNS", 0); maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns := getEnvInt("DB_MIN_CONNS", 0); minConns > 0 {
		cfg.MinConns = minConns
	}
	if timeout := getEnvDuration("DB_TIMEOUT", 0); timeout > 0 {
		cfg.Timeout = timeout
	}

	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	if redisDB := getEnvInt("REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	cfg.S3Endpoint = getEnv("S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3Region = getEnv("S3_REGION", cfg.S3Region)
	cfg.S3Bucket = getEnv("S3_BUCKET", cfg.S3Bucket)
	cfg.S3AccessKey = getEnv("S3_ACCESS_KEY", cfg.S3AccessKey)
	cfg.S3SecretKey = getEnv("S3_SECRET_KEY", cfg.S3SecretKey)
	cfg.S3UsePathStyle = getEnvBool("S3_USE_PATH_STYLE", cfg.S3UsePathStyle)

	return cfg
}

func loadCacheConfig() CacheConfig {
	return CacheConfig{
		SingleFlight: getEnvBool("CACHE_SINGLE_FLIGHT", true),
		RedisPrefix:  getEnv("CACHE_REDIS_PREFIX", cache.DefaultRedisPrefix),
		File:         getEnv("CACHE_FILE", ""),
		Namespaces:   cache.DefaultNamespaces(),
	}
}

func loadJobsConfig() JobsConfig {
	return JobsConfig{
		WarmSchedule:    getEnv("WARM_SCHEDULE", "*/10 * * * *"),
		SweepSchedule:   getEnv("SWEEP_SCHEDULE", "* * * * *"),
		ReportSchedule:  getEnv("REPORT_SCHEDULE", "0 1 * * *"),
		WarmInstructors: getEnvList("WARM_INSTRUCTORS"),
		WarmCourses:     getEnvList("WARM_COURSES"),
	}
}

func loadReportConfig() ReportConfig {
	return ReportConfig{
		Enabled: getEnvBool("REPORT_ENABLED", false),
		Prefix:  getEnv("REPORT_PREFIX", "reports"),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("OTEL_SERVICE_NAME", "coursemetrics"),
		OTelServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("OTEL_SAMPLE_RATIO", 1),
	}
}

// cacheFile is the YAML layout of COURSEMETRICS_CACHE_FILE:
//
//	single_flight: false
//	namespaces:
//	  courses: {capacity: 2000, ttl: 20m}
type cacheFile struct {
	SingleFlight *bool                        `yaml:"single_flight"`
	Namespaces   map[string]namespaceOverride `yaml:"namespaces"`
}

type namespaceOverride struct {
	Capacity int    `yaml:"capacity"`
	TTL      string `yaml:"ttl"`
}

// ApplyYAML overrides the single-flight switch and per-namespace settings.
// Fields left out of the document keep their current values.
func (c *CacheConfig) ApplyYAML(data []byte) error {
	var file cacheFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("invalid cache yaml: %w", err)
	}

	if file.SingleFlight != nil {
		c.SingleFlight = *file.SingleFlight
	}
	if c.Namespaces == nil {
		c.Namespaces = cache.DefaultNamespaces()
	}

	for name, o := range file.Namespaces {
		ns := cache.Namespace(name)
		if !ns.Valid() {
			return fmt.Errorf("unknown cache namespace %q", name)
		}
		nc, ok := c.Namespaces[ns]
		if !ok {
			nc = cache.FallbackNamespaceConfig
		}
		if o.Capacity != 0 {
			nc.Capacity = o.Capacity
		}
		if o.TTL != "" {
			ttl, err := time.ParseDuration(o.TTL)
			if err != nil {
				return fmt.Errorf("namespace %s: invalid ttl %q: %w", name, o.TTL, err)
			}
			nc.TTL = ttl
		}
		c.Namespaces[ns] = nc
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	if c.Server.HealthPort == "" {
		return errors.New("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return errors.New("server port and health port must be different")
	}

	switch c.Storage.Driver {
	case storage.DriverPostgres, storage.DriverSQLite:
	default:
		return fmt.Errorf("invalid database driver: %s (must be %s or %s)", c.Storage.Driver, storage.DriverPostgres, storage.DriverSQLite)
	}
	if c.Storage.DatabaseURL == "" {
		return errors.New("database URL is required")
	}

	for ns, nc := range c.Cache.Namespaces {
		if nc.Capacity <= 0 {
			return fmt.Errorf("cache namespace %s: capacity must be positive", ns)
		}
		if nc.TTL <= 0 {
			return fmt.Errorf("cache namespace %s: ttl must be positive", ns)
		}
	}

	for name, spec := range map[string]string{
		"warm":   c.Jobs.WarmSchedule,
		"sweep":  c.Jobs.SweepSchedule,
		"report": c.Jobs.ReportSchedule,
	} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("invalid %s schedule %q: %w", name, spec, err)
		}
	}

	if c.Report.Enabled && c.Storage.S3Bucket == "" {
		return errors.New("S3 bucket is required when report export is enabled")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return errors.New("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return errors.New("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns COURSEMETRICS_<key> or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(envPrefix + key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(envPrefix + key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(envPrefix + key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(envPrefix + key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated environment variable
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(envPrefix+key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
