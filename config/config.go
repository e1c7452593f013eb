// Package config carrega a configuração do gateway: defaults, arquivo YAML
// opcional e variáveis de ambiente (nomes sem prefixo, ex.: LISTEN_ADDR).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	MinCSRFSecretLen = 32
)

type Config struct {
	ListenAddr  string `mapstructure:"listen_addr" validate:"required"`
	UpstreamURL string `mapstructure:"upstream_url" validate:"required,url"`
	BaseDomain  string `mapstructure:"base_domain" validate:"required,hostname_rfc1123"`
	Environment string `mapstructure:"environment" validate:"oneof=development test staging production"`

	CSRFSecret string        `mapstructure:"csrf_secret"`
	CSRFTTL    time.Duration `mapstructure:"csrf_ttl" validate:"gt=0"`

	RateEnabled      bool          `mapstructure:"rate_enabled"`
	RateStatsEnabled bool          `mapstructure:"rate_stats_enabled"`
	RedisAddr        string        `mapstructure:"redis_addr" validate:"omitempty,hostname_port"`
	RedisPassword    string        `mapstructure:"redis_password"`
	RedisDB          int           `mapstructure:"redis_db" validate:"gte=0"`
	RedisPrefix      string        `mapstructure:"redis_prefix"`
	RedisTimeout     time.Duration `mapstructure:"redis_timeout" validate:"gt=0"`

	LookupDriver   string        `mapstructure:"lookup_driver" validate:"oneof=memory postgres sqlite"`
	DatabaseURL    string        `mapstructure:"database_url"`
	LookupTimeout  time.Duration `mapstructure:"lookup_timeout" validate:"gt=0"`
	LookupCacheTTL time.Duration `mapstructure:"lookup_cache_ttl" validate:"gte=0"`

	TrustForwardedHost bool `mapstructure:"trust_forwarded_host"`
	TrustXFF           bool `mapstructure:"trust_xff"`

	ConcurrencyMax     int           `mapstructure:"concurrency_max" validate:"gte=0"`
	ConcurrencyTimeout time.Duration `mapstructure:"concurrency_timeout" validate:"gte=0"`

	LogLevel    string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat   string `mapstructure:"log_format" validate:"oneof=json console"`
	MetricsAddr string `mapstructure:"metrics_addr"`

	// Stores alimenta o driver memory; só vem do arquivo YAML.
	Stores []StoreSeed `mapstructure:"stores" validate:"omitempty,dive"`
}

type StoreSeed struct {
	ID      string       `mapstructure:"id" validate:"required"`
	Slug    string       `mapstructure:"slug" validate:"required"`
	Plan    string       `mapstructure:"plan"`
	Domains []DomainSeed `mapstructure:"domains" validate:"omitempty,dive"`
}

type DomainSeed struct {
	Domain  string `mapstructure:"domain" validate:"required"`
	Primary bool   `mapstructure:"primary"`
}

func (c *Config) Production() bool { return c.Environment == "production" }

var defaults = map[string]any{
	"listen_addr":  ":8080",
	"upstream_url": "",
	"base_domain":  "",
	"environment":  "development",

	"csrf_secret": "",
	"csrf_ttl":    "24h",

	"rate_enabled":       true,
	"rate_stats_enabled": false,
	"redis_addr":         "",
	"redis_password":     "",
	"redis_db":           0,
	"redis_prefix":       "ratelimit",
	"redis_timeout":      "200ms",

	"lookup_driver":    DriverMemory,
	"database_url":     "",
	"lookup_timeout":   "2s",
	"lookup_cache_ttl": "30s",

	"trust_forwarded_host": false,
	"trust_xff":            false,

	"concurrency_max":     100,
	"concurrency_timeout": "0s",

	"log_level":    "info",
	"log_format":   "json",
	"metrics_addr": ":9090",
}

// Bind registra defaults e env em v. Cada chave lê a variável de mesmo nome
// em maiúsculas (listen_addr -> LISTEN_ADDR).
func Bind(v *viper.Viper) {
	for k, def := range defaults {
		v.SetDefault(k, def)
		_ = v.BindEnv(k, strings.ToUpper(k))
	}
}

// Load lê o arquivo configurado em v (se houver), aplica env e valida.
func Load(v *viper.Viper) (*Config, error) {
	Bind(v)

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.BaseDomain = strings.Trim(strings.ToLower(strings.TrimSpace(c.BaseDomain)), ".")
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	c.LookupDriver = strings.ToLower(strings.TrimSpace(c.LookupDriver))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
}

// Validate aplica as tags e as regras entre campos.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if len(c.CSRFSecret) < MinCSRFSecretLen {
		return fmt.Errorf("csrf_secret: must be at least %d bytes", MinCSRFSecretLen)
	}
	if c.LookupDriver != DriverMemory && strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("database_url: required when lookup_driver=%s", c.LookupDriver)
	}
	if c.RateStatsEnabled && !c.RateEnabled {
		return errors.New("rate_stats_enabled: requires rate_enabled")
	}
	return nil
}

func formatValidationErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
