package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const DefaultLetKnowEndpoint = "https://pay.letknow.com/api/2/get_deposit_address"

type Config struct {
	Server         ServerConfig
	Postgres       PostgresConfig
	Redis          RedisConfig
	LetKnow        LetKnowConfig
	Storefront     StorefrontConfig
	RateLimit      RateLimitConfig
	CircuitBreaker CircuitBreakerConfig
	Replay         ReplayConfig
	Streams        StreamsConfig
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

type PostgresConfig struct {
	Host                  string
	Port                  int
	User                  string
	Password              string
	DB                    string
	SSLMode               string
	MaxConnections        int
	MaxIdleConnections    int
	ConnectionMaxLifetime time.Duration
}

// DSN returns the lib/pq connection string.
func (p PostgresConfig) DSN() string {
	sslMode := p.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DB, sslMode)
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

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, fmt.Sprintf("%d", r.Port))
}

// LetKnowConfig holds the provider endpoint and merchant credentials.
// ShopID and ShopKey come from the environment or a mounted secret, never from source.
type LetKnowConfig struct {
	Endpoint       string
	ShopID         string
	ShopKey        string
	Timeout        time.Duration
	ConnectTimeout time.Duration
}

type StorefrontConfig struct {
	ID         string
	APIKeyHash string
	AllowedIPs []string
	// CacheTTL bounds how long a storefront loaded from Postgres is served from Redis.
	CacheTTL time.Duration
}

type RateLimitConfig struct {
	Enabled           bool
	RedisKeyPrefix    string
	RequestsPerWindow int
	WindowSeconds     int
}

type CircuitBreakerConfig struct {
	FailureThreshold    int
	SuccessThreshold    int
	OpenTimeout         time.Duration
	MaxRequestsHalfOpen int
}

type ReplayConfig struct {
	// OutcomeTTL bounds how long a successful outcome is replayed for the same reference id. Zero disables replay.
	OutcomeTTL time.Duration
}

type StreamsConfig struct {
	PaymentEvents string
	MaxLen        int64
}

type LoggingConfig struct {
	Level    string
	Encoding string
}

type TracingConfig struct {
	Enabled     bool
	ServiceName string
}

func LoadConfig() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadStorageConfig loads the same environment but validates only Postgres and Redis.
// Used by tooling that never talks to LetKnow.
func LoadStorageConfig() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}

	if err := cfg.validatePostgres(); err != nil {
		return nil, fmt.Errorf("config validation failed: postgres config: %w", err)
	}
	if err := cfg.validateRedis(); err != nil {
		return nil, fmt.Errorf("config validation failed: redis config: %w", err)
	}

	return cfg, nil
}

func load() (*Config, error) {
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("SERVER_READ_TIMEOUT", "10s")
	viper.SetDefault("SERVER_WRITE_TIMEOUT", "130s") // provider call may take up to connect + total timeout
	viper.SetDefault("SERVER_SHUTDOWN_TIMEOUT", "15s")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_ENCODING", "json")
	viper.SetDefault("POSTGRES_SSL_MODE", "require")
	viper.SetDefault("POSTGRES_MAX_CONNECTIONS", 10)
	viper.SetDefault("POSTGRES_MAX_IDLE_CONNECTIONS", 5)
	viper.SetDefault("POSTGRES_CONNECTION_MAX_LIFETIME", "1h")
	viper.SetDefault("REDIS_KEY_PREFIX", "letknow")
	viper.SetDefault("LETKNOW_ENDPOINT", DefaultLetKnowEndpoint)
	viper.SetDefault("LETKNOW_TIMEOUT", "60s")
	viper.SetDefault("LETKNOW_CONNECT_TIMEOUT", "60s")
	viper.SetDefault("STOREFRONT_ID", "default")
	viper.SetDefault("STOREFRONT_CACHE_TTL", "5m")
	viper.SetDefault("RATE_LIMIT_ENABLED", true)
	viper.SetDefault("RATE_LIMIT_REDIS_KEY_PREFIX", "letknow:ratelimit")
	viper.SetDefault("RATE_LIMIT_REQUESTS_PER_WINDOW", 60)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	viper.SetDefault("CIRCUIT_BREAKER_FAILURE_THRESHOLD", 5)
	viper.SetDefault("CIRCUIT_BREAKER_SUCCESS_THRESHOLD", 2)
	viper.SetDefault("CIRCUIT_BREAKER_OPEN_TIMEOUT", "30s")
	viper.SetDefault("CIRCUIT_BREAKER_MAX_REQUESTS_HALF_OPEN", 1)
	viper.SetDefault("OUTCOME_CACHE_TTL", "30m")
	viper.SetDefault("STREAM_PAYMENT_EVENTS", "stream.letknow.payment_events")
	viper.SetDefault("STREAM_MAX_LEN", 100000)
	viper.SetDefault("TRACING_SERVICE_NAME", "letknow-gateway")

	readTimeout, err := parseDurationWithDefault(viper.GetString("SERVER_READ_TIMEOUT"), 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_READ_TIMEOUT: %w", err)
	}
	writeTimeout, err := parseDurationWithDefault(viper.GetString("SERVER_WRITE_TIMEOUT"), 130*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_WRITE_TIMEOUT: %w", err)
	}
	shutdownTimeout, err := parseDurationWithDefault(viper.GetString("SERVER_SHUTDOWN_TIMEOUT"), 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_SHUTDOWN_TIMEOUT: %w", err)
	}
	providerTimeout, err := parseDurationWithDefault(viper.GetString("LETKNOW_TIMEOUT"), 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid LETKNOW_TIMEOUT: %w", err)
	}
	connectTimeout, err := parseDurationWithDefault(viper.GetString("LETKNOW_CONNECT_TIMEOUT"), 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid LETKNOW_CONNECT_TIMEOUT: %w", err)
	}
	openTimeout, err := parseDurationWithDefault(viper.GetString("CIRCUIT_BREAKER_OPEN_TIMEOUT"), 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid CIRCUIT_BREAKER_OPEN_TIMEOUT: %w", err)
	}
	outcomeTTL, err := parseDurationWithDefault(viper.GetString("OUTCOME_CACHE_TTL"), 30*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid OUTCOME_CACHE_TTL: %w", err)
	}
	storefrontCacheTTL, err := parseDurationWithDefault(viper.GetString("STOREFRONT_CACHE_TTL"), 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid STOREFRONT_CACHE_TTL: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            viper.GetInt("SERVER_PORT"),
			Host:            viper.GetString("SERVER_HOST"),
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			TrustedProxies:  parseList(viper.GetString("SERVER_TRUSTED_PROXIES")),
		},
		Postgres: func() PostgresConfig {
			connMaxLifetime, _ := parseDurationWithDefault(viper.GetString("POSTGRES_CONNECTION_MAX_LIFETIME"), time.Hour)
			return PostgresConfig{
				Host:                  viper.GetString("POSTGRES_HOST"),
				Port:                  viper.GetInt("POSTGRES_PORT"),
				User:                  viper.GetString("POSTGRES_USER"),
				Password:              viper.GetString("POSTGRES_PASSWORD"),
				DB:                    viper.GetString("POSTGRES_DB"),
				SSLMode:               viper.GetString("POSTGRES_SSL_MODE"),
				MaxConnections:        viper.GetInt("POSTGRES_MAX_CONNECTIONS"),
				MaxIdleConnections:    viper.GetInt("POSTGRES_MAX_IDLE_CONNECTIONS"),
				ConnectionMaxLifetime: connMaxLifetime,
			}
		}(),
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
		LetKnow: LetKnowConfig{
			Endpoint:       viper.GetString("LETKNOW_ENDPOINT"),
			ShopID:         viper.GetString("LETKNOW_SHOP_ID"),
			ShopKey:        viper.GetString("LETKNOW_SHOP_KEY"),
			Timeout:        providerTimeout,
			ConnectTimeout: connectTimeout,
		},
		Storefront: StorefrontConfig{
			ID:         viper.GetString("STOREFRONT_ID"),
			APIKeyHash: viper.GetString("STOREFRONT_API_KEY_HASH"),
			AllowedIPs: parseList(viper.GetString("STOREFRONT_ALLOWED_IPS")),
			CacheTTL:   storefrontCacheTTL,
		},
		RateLimit: RateLimitConfig{
			Enabled:           viper.GetBool("RATE_LIMIT_ENABLED"),
			RedisKeyPrefix:    viper.GetString("RATE_LIMIT_REDIS_KEY_PREFIX"),
			RequestsPerWindow: viper.GetInt("RATE_LIMIT_REQUESTS_PER_WINDOW"),
			WindowSeconds:     viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold:    viper.GetInt("CIRCUIT_BREAKER_FAILURE_THRESHOLD"),
			SuccessThreshold:    viper.GetInt("CIRCUIT_BREAKER_SUCCESS_THRESHOLD"),
			OpenTimeout:         openTimeout,
			MaxRequestsHalfOpen: viper.GetInt("CIRCUIT_BREAKER_MAX_REQUESTS_HALF_OPEN"),
		},
		Replay: ReplayConfig{
			OutcomeTTL: outcomeTTL,
		},
		Streams: StreamsConfig{
			PaymentEvents: viper.GetString("STREAM_PAYMENT_EVENTS"),
			MaxLen:        viper.GetInt64("STREAM_MAX_LEN"),
		},
		Logging: LoggingConfig{
			Level:    viper.GetString("LOG_LEVEL"),
			Encoding: viper.GetString("LOG_ENCODING"),
		},
		Tracing: TracingConfig{
			Enabled:     viper.GetBool("TRACING_ENABLED"),
			ServiceName: viper.GetString("TRACING_SERVICE_NAME"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if err := c.validateLetKnow(); err != nil {
		return fmt.Errorf("letknow config: %w", err)
	}
	if err := c.validatePostgres(); err != nil {
		return fmt.Errorf("postgres config: %w", err)
	}
	if err := c.validateRedis(); err != nil {
		return fmt.Errorf("redis config: %w", err)
	}
	if err := c.validateStorefront(); err != nil {
		return fmt.Errorf("storefront config: %w", err)
	}
	for _, entry := range c.Server.TrustedProxies {
		if !validIPRange(entry) {
			return fmt.Errorf("server config: invalid SERVER_TRUSTED_PROXIES entry %q", entry)
		}
	}
	if err := c.validateRateLimit(); err != nil {
		return fmt.Errorf("rate limit config: %w", err)
	}
	if err := c.validateCircuitBreaker(); err != nil {
		return fmt.Errorf("circuit breaker config: %w", err)
	}
	if c.Replay.OutcomeTTL < 0 {
		return fmt.Errorf("replay config: outcome ttl must not be negative")
	}
	if c.Streams.PaymentEvents == "" {
		return fmt.Errorf("streams config: payment events stream is required")
	}
	return nil
}

func (c *Config) validateLetKnow() error {
	if c.LetKnow.ShopID == "" {
		return fmt.Errorf("shop id is required")
	}
	if c.LetKnow.ShopKey == "" {
		return fmt.Errorf("shop key is required")
	}
	endpoint, err := url.Parse(c.LetKnow.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	if endpoint.Scheme != "https" || endpoint.Host == "" {
		return fmt.Errorf("endpoint must be an absolute https url")
	}
	if c.LetKnow.Timeout <= 0 {
		return fmt.Errorf("timeout must be greater than 0")
	}
	if c.LetKnow.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be greater than 0")
	}
	return nil
}

func (c *Config) validatePostgres() error {
	if c.Postgres.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Postgres.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if c.Postgres.User == "" {
		return fmt.Errorf("user is required")
	}
	if c.Postgres.DB == "" {
		return fmt.Errorf("database name is required")
	}
	return nil
}

func (c *Config) validateRedis() error {
	if c.Redis.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Redis.Port == 0 {
		return fmt.Errorf("port is required")
	}
	return nil
}

func (c *Config) validateStorefront() error {
	if c.Storefront.APIKeyHash == "" {
		return fmt.Errorf("api key hash is required")
	}
	for _, entry := range c.Storefront.AllowedIPs {
		if !validIPRange(entry) {
			return fmt.Errorf("invalid allowed ip range %q", entry)
		}
	}
	if c.Storefront.CacheTTL < 0 {
		return fmt.Errorf("cache ttl must not be negative")
	}
	return nil
}

func (c *Config) validateRateLimit() error {
	if !c.RateLimit.Enabled {
		return nil
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("rate limit requests per window must be greater than 0 when enabled")
	}
	if c.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("rate limit window seconds must be greater than 0 when enabled")
	}
	return nil
}

func (c *Config) validateCircuitBreaker() error {
	if c.CircuitBreaker.FailureThreshold <= 0 {
		return fmt.Errorf("failure threshold must be greater than 0")
	}
	if c.CircuitBreaker.SuccessThreshold <= 0 {
		return fmt.Errorf("success threshold must be greater than 0")
	}
	if c.CircuitBreaker.MaxRequestsHalfOpen <= 0 {
		return fmt.Errorf("max requests in half-open must be greater than 0")
	}
	if c.CircuitBreaker.OpenTimeout <= 0 {
		return fmt.Errorf("open timeout must be greater than 0")
	}
	return nil
}

// validIPRange accepts a CIDR range or a single address.
func validIPRange(entry string) bool {
	if net.ParseIP(entry) != nil {
		return true
	}
	_, _, err := net.ParseCIDR(entry)
	return err == nil
}

func parseList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
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
