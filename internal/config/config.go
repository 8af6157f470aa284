package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server         ServerConfig
	App            AppConfig
	Aggregator     AggregatorConfig
	MTLS           MTLSConfig
	Keyring        KeyringConfig
	Redis          RedisConfig
	Replay         ReplayConfig
	RateLimit      RateLimitConfig
	CircuitBreaker CircuitBreakerConfig
	Logging        LoggingConfig
	Tracing        TracingConfig
}

type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	TrustedProxies  []string
}

type AppConfig struct {
	Environment       string
	ClientsConfigPath string
	TemplatesPath     string
}

type AggregatorConfig struct {
	AuthorizeCreationURL string
	ConnectivityTestURL  string
	EddaStatusURL        string
	PublicKeyPath        string
	PublicKeyFingerprint string
	DispatchTimeout      time.Duration
}

type MTLSConfig struct {
	CertPath string
	KeyPath  string
	CAPath   string
}

type KeyringConfig struct {
	BaseDir    string
	StaleAfter time.Duration
}

type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	TLS          bool
	KeyPrefix    string
	PoolSize     int
	MinIdleConns int
}

// Enabled reports whether a Redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type ReplayConfig struct {
	Enabled bool
	TTL     time.Duration
}

type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	Burst             int
	// Window is the fixed window used when counters live in Redis.
	Window time.Duration
}

type CircuitBreakerConfig struct {
	Enabled             bool
	FailureThreshold    int
	SuccessThreshold    int
	Timeout             time.Duration
	MaxRequestsHalfOpen int
}

type LoggingConfig struct {
	Level      string
	Encoding   string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type TracingConfig struct {
	Enabled     bool
	SampleRate  float64
	ServiceName string
}

func LoadConfig() (*Config, error) {
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("SERVER_READ_TIMEOUT", "10s")
	viper.SetDefault("SERVER_WRITE_TIMEOUT", "40s")
	viper.SetDefault("SERVER_SHUTDOWN_TIMEOUT", "15s")
	viper.SetDefault("APP_ENV", "sandbox")
	viper.SetDefault("CLIENTS_CONFIG_PATH", "config/clients.yaml")
	viper.SetDefault("AGGREGATOR_DISPATCH_TIMEOUT", "30s")
	viper.SetDefault("KEYRING_STALE_AFTER", "1h")
	viper.SetDefault("REDIS_PORT", 6379)
	viper.SetDefault("REDIS_KEY_PREFIX", "egiro")
	viper.SetDefault("REPLAY_GUARD_ENABLED", true)
	viper.SetDefault("REPLAY_GUARD_TTL", "24h")
	viper.SetDefault("RATE_LIMIT_REQUESTS_PER_SECOND", 5)
	viper.SetDefault("RATE_LIMIT_BURST", 10)
	viper.SetDefault("CIRCUIT_BREAKER_ENABLED", true)
	viper.SetDefault("CIRCUIT_BREAKER_FAILURE_THRESHOLD", 5)
	viper.SetDefault("CIRCUIT_BREAKER_SUCCESS_THRESHOLD", 2)
	viper.SetDefault("CIRCUIT_BREAKER_TIMEOUT", "60s")
	viper.SetDefault("CIRCUIT_BREAKER_MAX_HALF_OPEN", 3)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_ENCODING", "json")
	viper.SetDefault("LOG_MAX_SIZE_MB", 100)
	viper.SetDefault("LOG_MAX_BACKUPS", 5)
	viper.SetDefault("LOG_MAX_AGE_DAYS", 28)
	viper.SetDefault("TRACING_SAMPLE_RATE", 1.0)
	viper.SetDefault("TRACING_SERVICE_NAME", "egiro-gateway")

	durations := map[string]time.Duration{}
	for key, def := range map[string]time.Duration{
		"SERVER_READ_TIMEOUT":         10 * time.Second,
		"SERVER_WRITE_TIMEOUT":        40 * time.Second,
		"SERVER_SHUTDOWN_TIMEOUT":     15 * time.Second,
		"AGGREGATOR_DISPATCH_TIMEOUT": 30 * time.Second,
		"KEYRING_STALE_AFTER":         time.Hour,
		"REPLAY_GUARD_TTL":            24 * time.Hour,
		"RATE_LIMIT_WINDOW":           time.Minute,
		"CIRCUIT_BREAKER_TIMEOUT":     60 * time.Second,
	} {
		d, err := parseDurationWithDefault(viper.GetString(key), def)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		durations[key] = d
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            viper.GetInt("SERVER_PORT"),
			Host:            viper.GetString("SERVER_HOST"),
			ReadTimeout:     durations["SERVER_READ_TIMEOUT"],
			WriteTimeout:    durations["SERVER_WRITE_TIMEOUT"],
			ShutdownTimeout: durations["SERVER_SHUTDOWN_TIMEOUT"],
			TrustedProxies:  splitList(viper.GetString("TRUSTED_PROXY_CIDRS")),
		},
		App: AppConfig{
			Environment:       viper.GetString("APP_ENV"),
			ClientsConfigPath: viper.GetString("CLIENTS_CONFIG_PATH"),
			TemplatesPath:     viper.GetString("TEMPLATES_PATH"),
		},
		Aggregator: AggregatorConfig{
			AuthorizeCreationURL: viper.GetString("AGGREGATOR_AUTHORIZE_CREATION_URL"),
			ConnectivityTestURL:  viper.GetString("AGGREGATOR_CONNECTIVITY_TEST_URL"),
			EddaStatusURL:        viper.GetString("AGGREGATOR_EDDA_STATUS_URL"),
			PublicKeyPath:        viper.GetString("AGGREGATOR_PUBLIC_KEY_PATH"),
			PublicKeyFingerprint: viper.GetString("AGGREGATOR_PUBLIC_KEY_FINGERPRINT"),
			DispatchTimeout:      durations["AGGREGATOR_DISPATCH_TIMEOUT"],
		},
		MTLS: MTLSConfig{
			CertPath: viper.GetString("MTLS_CERT_PATH"),
			KeyPath:  viper.GetString("MTLS_KEY_PATH"),
			CAPath:   viper.GetString("MTLS_CA_PATH"),
		},
		Keyring: KeyringConfig{
			BaseDir:    viper.GetString("KEYRING_BASE_DIR"),
			StaleAfter: durations["KEYRING_STALE_AFTER"],
		},
		Redis: RedisConfig{
			Host:         viper.GetString("REDIS_HOST"),
			Port:         viper.GetInt("REDIS_PORT"),
			Password:     viper.GetString("REDIS_PASSWORD"),
			DB:           viper.GetInt("REDIS_DB"),
			TLS:          viper.GetBool("REDIS_TLS"),
			KeyPrefix:    viper.GetString("REDIS_KEY_PREFIX"),
			PoolSize:     viper.GetInt("REDIS_POOL_SIZE"),
			MinIdleConns: viper.GetInt("REDIS_MIN_IDLE_CONNS"),
		},
		Replay: ReplayConfig{
			Enabled: viper.GetBool("REPLAY_GUARD_ENABLED"),
			TTL:     durations["REPLAY_GUARD_TTL"],
		},
		RateLimit: RateLimitConfig{
			Enabled:           viper.GetBool("RATE_LIMIT_ENABLED"),
			RequestsPerSecond: viper.GetFloat64("RATE_LIMIT_REQUESTS_PER_SECOND"),
			Burst:             viper.GetInt("RATE_LIMIT_BURST"),
			Window:            durations["RATE_LIMIT_WINDOW"],
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:             viper.GetBool("CIRCUIT_BREAKER_ENABLED"),
			FailureThreshold:    viper.GetInt("CIRCUIT_BREAKER_FAILURE_THRESHOLD"),
			SuccessThreshold:    viper.GetInt("CIRCUIT_BREAKER_SUCCESS_THRESHOLD"),
			Timeout:             durations["CIRCUIT_BREAKER_TIMEOUT"],
			MaxRequestsHalfOpen: viper.GetInt("CIRCUIT_BREAKER_MAX_HALF_OPEN"),
		},
		Logging: LoggingConfig{
			Level:      viper.GetString("LOG_LEVEL"),
			Encoding:   viper.GetString("LOG_ENCODING"),
			File:       viper.GetString("LOG_FILE"),
			MaxSizeMB:  viper.GetInt("LOG_MAX_SIZE_MB"),
			MaxBackups: viper.GetInt("LOG_MAX_BACKUPS"),
			MaxAgeDays: viper.GetInt("LOG_MAX_AGE_DAYS"),
		},
		Tracing: TracingConfig{
			Enabled:     viper.GetBool("TRACING_ENABLED"),
			SampleRate:  viper.GetFloat64("TRACING_SAMPLE_RATE"),
			ServiceName: viper.GetString("TRACING_SERVICE_NAME"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.validateApp(); err != nil {
		return fmt.Errorf("app config: %w", err)
	}
	if err := c.validateAggregator(); err != nil {
		return fmt.Errorf("aggregator config: %w", err)
	}
	if err := c.validateMTLS(); err != nil {
		return fmt.Errorf("mtls config: %w", err)
	}
	if err := c.validateRedis(); err != nil {
		return fmt.Errorf("redis config: %w", err)
	}
	if err := c.validateRateLimit(); err != nil {
		return fmt.Errorf("rate limit config: %w", err)
	}
	if err := c.validateCircuitBreaker(); err != nil {
		return fmt.Errorf("circuit breaker config: %w", err)
	}
	if err := c.validateLogging(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing config: sample rate must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	for _, cidr := range c.Server.TrustedProxies {
		if !strings.Contains(cidr, "/") {
			return fmt.Errorf("trusted proxy %q must be a CIDR", cidr)
		}
	}
	return nil
}

func (c *Config) validateApp() error {
	if c.App.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.App.ClientsConfigPath == "" {
		return fmt.Errorf("clients config path is required")
	}
	return nil
}

func (c *Config) validateAggregator() error {
	urls := map[string]string{
		"authorize creation url": c.Aggregator.AuthorizeCreationURL,
		"connectivity test url":  c.Aggregator.ConnectivityTestURL,
		"edda status url":        c.Aggregator.EddaStatusURL,
	}
	configured := 0
	for name, raw := range urls {
		if raw == "" {
			continue
		}
		configured++
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
			return fmt.Errorf("%s must be an absolute http(s) URL", name)
		}
	}
	if configured == 0 {
		return fmt.Errorf("at least one endpoint url is required")
	}
	if c.Aggregator.ConnectivityTestURL != "" && c.Aggregator.PublicKeyPath == "" {
		return fmt.Errorf("public key path is required when the connectivity test url is set")
	}
	if c.Aggregator.DispatchTimeout <= 0 {
		return fmt.Errorf("dispatch timeout must be greater than 0")
	}
	return nil
}

func (c *Config) validateMTLS() error {
	if (c.MTLS.CertPath == "") != (c.MTLS.KeyPath == "") {
		return fmt.Errorf("cert path and key path must be set together")
	}
	return nil
}

func (c *Config) validateRedis() error {
	if !c.Redis.Enabled() {
		return nil
	}
	if c.Redis.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if c.Redis.KeyPrefix == "" {
		return fmt.Errorf("key prefix is required")
	}
	return nil
}

func (c *Config) validateRateLimit() error {
	if !c.RateLimit.Enabled {
		return nil
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("rate limit requests per second must be greater than 0 when enabled")
	}
	if c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate limit burst must be greater than 0 when enabled")
	}
	return nil
}

func (c *Config) validateCircuitBreaker() error {
	if !c.CircuitBreaker.Enabled {
		return nil
	}
	if c.CircuitBreaker.FailureThreshold <= 0 {
		return fmt.Errorf("failure threshold must be greater than 0")
	}
	if c.CircuitBreaker.SuccessThreshold <= 0 {
		return fmt.Errorf("success threshold must be greater than 0")
	}
	if c.CircuitBreaker.MaxRequestsHalfOpen < c.CircuitBreaker.SuccessThreshold {
		return fmt.Errorf("max half-open requests (%d) must be >= success threshold (%d)", c.CircuitBreaker.MaxRequestsHalfOpen, c.CircuitBreaker.SuccessThreshold)
	}
	if c.CircuitBreaker.Timeout <= 0 {
		return fmt.Errorf("timeout must be greater than 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	switch c.Logging.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log encoding %q", c.Logging.Encoding)
	}
	return nil
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration string")
	}
	return time.ParseDuration(s)
}

func parseDurationWithDefault(s string, defaultVal time.Duration) (time.Duration, error) {
	if s == "" {
		return defaultVal, nil
	}
	return parseDuration(s)
}
