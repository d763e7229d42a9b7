package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LETKNOW_SHOP_ID", "shop-1")
	t.Setenv("LETKNOW_SHOP_KEY", "secret-key")
	t.Setenv("POSTGRES_HOST", "localhost")
	t.Setenv("POSTGRES_PORT", "5432")
	t.Setenv("POSTGRES_USER", "gateway")
	t.Setenv("POSTGRES_DB", "payments")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("STOREFRONT_API_KEY_HASH", "$2a$10$abcdefghijklmnopqrstuv")
}

func TestLoadConfig_Success(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DefaultLetKnowEndpoint, cfg.LetKnow.Endpoint)
	assert.Equal(t, "shop-1", cfg.LetKnow.ShopID)
	assert.Equal(t, "secret-key", cfg.LetKnow.ShopKey)
	assert.Equal(t, 60*time.Second, cfg.LetKnow.Timeout)
	assert.Equal(t, 60*time.Second, cfg.LetKnow.ConnectTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Replay.OutcomeTTL)
	assert.Equal(t, "stream.letknow.payment_events", cfg.Streams.PaymentEvents)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 5, cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
}

func TestLoadConfig_MissingShopKey(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LETKNOW_SHOP_KEY", "")

	cfg, err := LoadConfig()

	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "letknow config")
	assert.Contains(t, err.Error(), "shop key is required")
}

func TestLoadConfig_RejectsPlainHTTPEndpoint(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LETKNOW_ENDPOINT", "http://pay.letknow.com/api/2/get_deposit_address")

	cfg, err := LoadConfig()

	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "https")
}

func TestLoadConfig_InvalidTimeout(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LETKNOW_TIMEOUT", "sixty")

	cfg, err := LoadConfig()

	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "LETKNOW_TIMEOUT")
}

func TestLoadConfig_MissingPostgresHost(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("POSTGRES_HOST", "")

	cfg, err := LoadConfig()

	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "postgres config")
}

func TestLoadConfig_StorefrontAllowedIPs(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STOREFRONT_ALLOWED_IPS", "10.0.0.0/8, 192.168.1.0/24")

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.0/24"}, cfg.Storefront.AllowedIPs)
}

func TestLoadConfig_InvalidAllowedIP(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STOREFRONT_ALLOWED_IPS", "not-a-cidr")

	cfg, err := LoadConfig()

	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "storefront config")
}

func TestLoadConfig_AllowedIPsAcceptBareAddresses(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STOREFRONT_ALLOWED_IPS", "203.0.113.7,10.0.0.0/8")
	t.Setenv("SERVER_TRUSTED_PROXIES", "10.20.0.5, 172.16.0.0/12")

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, []string{"203.0.113.7", "10.0.0.0/8"}, cfg.Storefront.AllowedIPs)
	assert.Equal(t, []string{"10.20.0.5", "172.16.0.0/12"}, cfg.Server.TrustedProxies)
}

func TestLoadConfig_InvalidTrustedProxy(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SERVER_TRUSTED_PROXIES", "10.0.0.0/8,edge-lb")

	cfg, err := LoadConfig()

	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), `SERVER_TRUSTED_PROXIES entry "edge-lb"`)
}

func TestValidate_RateLimitDisabledSkipsChecks(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit = RateLimitConfig{Enabled: false}

	assert.NoError(t, cfg.Validate())
}

func TestValidate_CircuitBreaker(t *testing.T) {
	cfg := validConfig()
	cfg.CircuitBreaker.FailureThreshold = 0

	err := cfg.Validate()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failure threshold")
}

func TestValidate_NegativeReplayTTL(t *testing.T) {
	cfg := validConfig()
	cfg.Replay.OutcomeTTL = -time.Second

	assert.Error(t, cfg.Validate())
}

func TestPostgresConfig_DSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", DB: "payments"}

	assert.Equal(t, "host=db port=5432 user=u password=p dbname=payments sslmode=require", p.DSN())
}

func TestParseList(t *testing.T) {
	assert.Nil(t, parseList(""))
	assert.Nil(t, parseList("   "))
	assert.Equal(t, []string{"a", "b"}, parseList("a, ,b,"))
}

func validConfig() *Config {
	return &Config{
		Postgres: PostgresConfig{Host: "localhost", Port: 5432, User: "u", DB: "payments"},
		Redis:    RedisConfig{Host: "localhost", Port: 6379},
		LetKnow: LetKnowConfig{
			Endpoint:       DefaultLetKnowEndpoint,
			ShopID:         "shop-1",
			ShopKey:        "secret",
			Timeout:        60 * time.Second,
			ConnectTimeout: 60 * time.Second,
		},
		Storefront: StorefrontConfig{ID: "default", APIKeyHash: "hash"},
		RateLimit:  RateLimitConfig{Enabled: true, RequestsPerWindow: 60, WindowSeconds: 60},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold:    5,
			SuccessThreshold:    2,
			OpenTimeout:         30 * time.Second,
			MaxRequestsHalfOpen: 1,
		},
		Streams: StreamsConfig{PaymentEvents: "stream.letknow.payment_events"},
	}
}

func TestLoadConfig_StorefrontCacheTTL(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.Storefront.CacheTTL)

	t.Setenv("STOREFRONT_CACHE_TTL", "90s")
	cfg, err = LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Storefront.CacheTTL)
}

func TestLoadStorageConfig_IgnoresProviderCredentials(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LETKNOW_SHOP_ID", "")
	t.Setenv("LETKNOW_SHOP_KEY", "")
	t.Setenv("STOREFRONT_API_KEY_HASH", "")

	cfg, err := LoadStorageConfig()

	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
}

func TestLoadStorageConfig_MissingRedisHost(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("REDIS_HOST", "")

	cfg, err := LoadStorageConfig()

	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "redis config")
}
