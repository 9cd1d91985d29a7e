package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/assethub/assethub/pkg/auth"
	"github.com/assethub/assethub/pkg/observability"
	"github.com/assethub/assethub/pkg/scheduler"
	"github.com/assethub/assethub/pkg/storage"
)

// Profiles gate what configuration is acceptable. Production refuses the
// development escape hatches outright.
const (
	ProfileDevelopment = "development"
	ProfileProduction  = "production"
)

// Config holds all application configuration
type Config struct {
	// Profile is the deployment profile: development or production
	Profile string

	// Server configuration
	Server ServerConfig

	// Auth configuration
	Auth AuthConfig

	// Storage configuration
	Storage storage.Config

	// Scheduler configuration
	Scheduler scheduler.Config

	// Observability configuration
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

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// Per-caller rate limiting (shared via redis)
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// AuthConfig holds the OIDC and policy settings
type AuthConfig struct {
	// OIDCDiscoveryURL is the identity provider's discovery endpoint
	OIDCDiscoveryURL string

	// OIDCClientID names this application at the identity provider and
	// derives the default role names
	OIDCClientID string

	// OIDCClientSecret is used by the interactive login flow only
	OIDCClientSecret string

	// OIDCRedirectURL is the login callback URL
	OIDCRedirectURL string

	// AdminRole and BasicAccessRole are the token role names that confer
	// admin and basic access. Defaults derive from the client id.
	AdminRole       string
	BasicAccessRole string

	// DisableTokenVerification decodes tokens without signature or expiry
	// checks. Development only; production refuses it.
	DisableTokenVerification bool

	// VerboseAuthErrors surfaces failure detail in 401 bodies. Development
	// only; production refuses it.
	VerboseAuthErrors bool

	// JWKS cache tuning
	JWKSCacheTTL  time.Duration
	JWKSCacheSize int

	// PolicyDir optionally overrides the packaged policy; watched for
	// changes when set
	PolicyDir string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Profile:       strings.ToLower(getEnv("ASSETHUB_PROFILE", ProfileDevelopment)),
		Server:        loadServerConfig(),
		Auth:          loadAuthConfig(),
		Storage:       loadStorageConfig(),
		Scheduler:     loadSchedulerConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("ASSETHUB_HOST", "0.0.0.0"),
		Port:            getEnv("ASSETHUB_PORT", "8080"),
		ReadTimeout:     getEnvDuration("ASSETHUB_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("ASSETHUB_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("ASSETHUB_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("ASSETHUB_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("ASSETHUB_HEALTH_PORT", "9090"),

		RateLimitEnabled:  getEnvBool("ASSETHUB_RATE_LIMIT_ENABLED", true),
		RateLimitRequests: getEnvInt("ASSETHUB_RATE_LIMIT_REQUESTS", 300),
		RateLimitWindow:   getEnvDuration("ASSETHUB_RATE_LIMIT_WINDOW", time.Minute),
	}
}

// loadAuthConfig loads auth configuration from environment
func loadAuthConfig() AuthConfig {
	clientID := getEnv("ASSETHUB_OIDC_CLIENT_ID", "assethub")

	return AuthConfig{
		OIDCDiscoveryURL: getEnv("ASSETHUB_OIDC_DISCOVERY_URL",
			"http://localhost:8081/realms/assethub/.well-known/openid-configuration"),
		OIDCClientID:     clientID,
		OIDCClientSecret: getEnv("ASSETHUB_OIDC_CLIENT_SECRET", ""),
		OIDCRedirectURL:  getEnv("ASSETHUB_OIDC_REDIRECT_URL", "http://localhost:8080/auth/callback"),

		AdminRole:       getEnv("ASSETHUB_ADMIN_ROLE", clientID+"_admin"),
		BasicAccessRole: getEnv("ASSETHUB_BASIC_ACCESS_ROLE", clientID+"_basic_access"),

		DisableTokenVerification: getEnvBool("ASSETHUB_DISABLE_TOKEN_VERIFICATION", false),
		VerboseAuthErrors:        getEnvBool("ASSETHUB_VERBOSE_AUTH_ERRORS", false),

		JWKSCacheTTL:  getEnvDuration("ASSETHUB_JWKS_CACHE_TTL", 24*time.Hour),
		JWKSCacheSize: getEnvInt("ASSETHUB_JWKS_CACHE_SIZE", 128),

		PolicyDir: getEnv("ASSETHUB_POLICY_DIR", ""),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if pgURL := getEnv("ASSETHUB_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if maxConns := getEnvInt("ASSETHUB_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("ASSETHUB_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("ASSETHUB_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	if s3Endpoint := getEnv("ASSETHUB_S3_ENDPOINT", ""); s3Endpoint != "" {
		cfg.S3Endpoint = s3Endpoint
	}
	if s3Region := getEnv("ASSETHUB_S3_REGION", ""); s3Region != "" {
		cfg.S3Region = s3Region
	}
	if s3Bucket := getEnv("ASSETHUB_S3_BUCKET", ""); s3Bucket != "" {
		cfg.S3Bucket = s3Bucket
	}
	if s3AccessKey := getEnv("ASSETHUB_S3_ACCESS_KEY", ""); s3AccessKey != "" {
		cfg.S3AccessKey = s3AccessKey
	}
	if s3SecretKey := getEnv("ASSETHUB_S3_SECRET_KEY", ""); s3SecretKey != "" {
		cfg.S3SecretKey = s3SecretKey
	}
	if s3UsePathStyle := getEnv("ASSETHUB_S3_USE_PATH_STYLE", ""); s3UsePathStyle != "" {
		cfg.S3UsePathStyle = strings.ToLower(s3UsePathStyle) == "true"
	}

	if redisURL := getEnv("ASSETHUB_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("ASSETHUB_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("ASSETHUB_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisPoolSize := getEnvInt("ASSETHUB_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	return cfg
}

// loadSchedulerConfig loads sweep configuration from environment
func loadSchedulerConfig() scheduler.Config {
	cfg := scheduler.DefaultConfig()

	if schedule := getEnv("ASSETHUB_EXPIRE_REQUESTS_SCHEDULE", ""); schedule != "" {
		cfg.ExpireRequestsSchedule = schedule
	}
	if schedule := getEnv("ASSETHUB_PURGE_JOBS_SCHEDULE", ""); schedule != "" {
		cfg.PurgeJobsSchedule = schedule
	}
	if retention := getEnvDuration("ASSETHUB_DEAD_JOB_RETENTION", 0); retention > 0 {
		cfg.DeadJobRetention = retention
	}

	return cfg
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("ASSETHUB_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("ASSETHUB_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("ASSETHUB_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("ASSETHUB_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("ASSETHUB_OTEL_SERVICE_NAME", "assethub"),
		OTelServiceVersion: getEnv("ASSETHUB_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("ASSETHUB_OTEL_INSECURE", true),
	}
}

// ResolverConfig maps the loaded settings onto the token resolver.
func (c *Config) ResolverConfig() auth.ResolverConfig {
	return auth.ResolverConfig{
		DiscoveryURL:        c.Auth.OIDCDiscoveryURL,
		DisableVerification: c.Auth.DisableTokenVerification,
		JWKSCacheTTL:        c.Auth.JWKSCacheTTL,
		JWKSCacheSize:       c.Auth.JWKSCacheSize,
	}
}

// IdentityConfig maps the loaded settings onto identity construction.
func (c *Config) IdentityConfig() auth.Config {
	return auth.Config{
		ClientID:        c.Auth.OIDCClientID,
		AdminRole:       c.Auth.AdminRole,
		BasicAccessRole: c.Auth.BasicAccessRole,
		VerboseErrors:   c.Auth.VerboseAuthErrors,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Profile != ProfileDevelopment && c.Profile != ProfileProduction {
		return fmt.Errorf("invalid profile: %s (must be development or production)", c.Profile)
	}

	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate auth config
	if c.Auth.OIDCDiscoveryURL == "" && !c.Auth.DisableTokenVerification {
		return fmt.Errorf("OIDC discovery URL is required when token verification is enabled")
	}
	if c.Auth.OIDCClientID == "" {
		return fmt.Errorf("OIDC client id is required")
	}
	if c.Auth.AdminRole == "" || c.Auth.BasicAccessRole == "" {
		return fmt.Errorf("admin and basic-access role names are required")
	}

	// The development backdoors never run in production
	if c.Profile == ProfileProduction {
		if c.Auth.DisableTokenVerification {
			return fmt.Errorf("disable_token_verification is not permitted under the production profile")
		}
		if c.Auth.VerboseAuthErrors {
			return fmt.Errorf("verbose auth errors are not permitted under the production profile")
		}
	}

	// Validate storage config
	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Storage.S3Bucket == "" {
		return fmt.Errorf("S3 bucket is required")
	}
	if c.Storage.RedisURL == "" {
		return fmt.Errorf("redis URL is required")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
