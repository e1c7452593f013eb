package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("UPSTREAM_URL", "http://127.0.0.1:3000")
	t.Setenv("BASE_DOMAIN", "StormCom.App.")
	t.Setenv("CSRF_SECRET", secret)
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "stormcom.app", cfg.BaseDomain)
	assert.Equal(t, "development", cfg.Environment)
	assert.False(t, cfg.Production())
	assert.Equal(t, 24*time.Hour, cfg.CSRFTTL)
	assert.True(t, cfg.RateEnabled)
	assert.Equal(t, DriverMemory, cfg.LookupDriver)
	assert.Equal(t, 2*time.Second, cfg.LookupTimeout)
	assert.Equal(t, 100, cfg.ConcurrencyMax)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("RATE_ENABLED", "false")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("LOOKUP_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/shop")
	t.Setenv("LOOKUP_TIMEOUT", "750ms")
	t.Setenv("TRUST_FORWARDED_HOST", "true")
	t.Setenv("CONCURRENCY_MAX", "0")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.True(t, cfg.Production())
	assert.False(t, cfg.RateEnabled)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, DriverPostgres, cfg.LookupDriver)
	assert.Equal(t, 750*time.Millisecond, cfg.LookupTimeout)
	assert.True(t, cfg.TrustForwardedHost)
	assert.Equal(t, 0, cfg.ConcurrencyMax)
}

func TestLoad_ShortSecretRejected(t *testing.T) {
	setRequired(t)
	t.Setenv("CSRF_SECRET", "short")

	_, err := Load(viper.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csrf_secret")
}

func TestLoad_DatabaseURLRequiredForSQLDrivers(t *testing.T) {
	for _, driver := range []string{"postgres", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			setRequired(t)
			t.Setenv("LOOKUP_DRIVER", driver)

			_, err := Load(viper.New())
			require.Error(t, err)
			assert.Contains(t, err.Error(), "database_url")
		})
	}
}

func TestLoad_TagValidation(t *testing.T) {
	cases := map[string]string{
		"LOOKUP_DRIVER": "mongo",
		"LOG_LEVEL":     "verbose",
		"ENVIRONMENT":   "qa",
		"UPSTREAM_URL":  "not a url",
		"REDIS_ADDR":    "no-port",
	}
	for env, val := range cases {
		t.Run(env, func(t *testing.T) {
			setRequired(t)
			t.Setenv(env, val)

			_, err := Load(viper.New())
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("CSRF_SECRET", secret)

	_, err := Load(viper.New())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "UpstreamURL") || strings.Contains(err.Error(), "BaseDomain"), err.Error())
}

func TestLoad_StatsNeedRateLimiter(t *testing.T) {
	setRequired(t)
	t.Setenv("RATE_ENABLED", "false")
	t.Setenv("RATE_STATS_ENABLED", "true")

	_, err := Load(viper.New())
	assert.Error(t, err)
}

func TestLoad_YAMLWithStores(t *testing.T) {
	setRequired(t)
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":9000"
stores:
  - id: store-demo
    slug: demo
    plan: PROFESSIONAL
    domains:
      - domain: shop.example.com
        primary: true
      - domain: www.shop.example.com
`), 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	require.Len(t, cfg.Stores, 1)
	assert.Equal(t, "demo", cfg.Stores[0].Slug)
	require.Len(t, cfg.Stores[0].Domains, 2)
	assert.True(t, cfg.Stores[0].Domains[0].Primary)
	assert.False(t, cfg.Stores[0].Domains[1].Primary)
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	setRequired(t)
	t.Setenv("LISTEN_ADDR", ":7000")
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: \":9000\"\n"), 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.ListenAddr)
}

func TestLoad_MissingFileFails(t *testing.T) {
	setRequired(t)
	v := viper.New()
	v.SetConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := Load(v)
	assert.Error(t, err)
}
