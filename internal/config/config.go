// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
//
// Exactly one database credential resolution path must be configured:
// either DatabaseURL (direct DSN) or the Vault trio (VaultURL, VaultToken,
// VaultSecretPath). Load returns an error when both or neither are set.
type Config struct {
	// DatabaseURL is a Postgres DSN used directly, bypassing Vault (e.g. local dev).
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// VaultURL is the base URL of the Vault server (e.g. http://localhost:8200).
	VaultURL string `mapstructure:"VAULT_URL"`
	// VaultToken authenticates reads against Vault. Never logged.
	VaultToken string `mapstructure:"VAULT_TOKEN"`
	// VaultSecretPath is the KV v2 path holding the database credentials
	// (e.g. secret/data/ndamli_db_access_dev).
	VaultSecretPath string `mapstructure:"VAULT_SECRET_PATH"`
	// VaultCacheTTL is how long fetched credentials stay valid (e.g. "5m").
	VaultCacheTTL string `mapstructure:"VAULT_CACHE_TTL"`

	// DBMaxOpenConns caps concurrent connections per pooled handle (default 10).
	DBMaxOpenConns int `mapstructure:"DB_MAX_OPEN_CONNS"`
	// DBMaxIdleConns is the number of idle connections kept per handle (default 2).
	DBMaxIdleConns int `mapstructure:"DB_MAX_IDLE_CONNS"`
	// DBConnectTimeout bounds initial connect + ping (e.g. "30s").
	DBConnectTimeout string `mapstructure:"DB_CONNECT_TIMEOUT"`
	// DBConnMaxIdleTime is how long a connection may sit idle (e.g. "10m").
	DBConnMaxIdleTime string `mapstructure:"DB_CONN_MAX_IDLE_TIME"`
	// DBConnMaxLifetime is the max lifetime of a pooled connection (e.g. "30m").
	DBConnMaxLifetime string `mapstructure:"DB_CONN_MAX_LIFETIME"`

	// BcryptCost is the bcrypt cost factor (4–31); default 12. Used by cmd/seed only.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables telemetry.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("VAULT_URL", "")
	v.SetDefault("VAULT_TOKEN", "")
	v.SetDefault("VAULT_SECRET_PATH", "")
	v.SetDefault("VAULT_CACHE_TTL", "5m")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 2)
	v.SetDefault("DB_CONNECT_TIMEOUT", "30s")
	v.SetDefault("DB_CONN_MAX_IDLE_TIME", "10m")
	v.SetDefault("DB_CONN_MAX_LIFETIME", "30m")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	vaultSet := cfg.VaultURL != "" || cfg.VaultToken != "" || cfg.VaultSecretPath != ""
	if vaultSet && cfg.DatabaseURL != "" {
		return nil, errors.New("config: set DATABASE_URL or the VAULT_* trio, not both")
	}
	if !vaultSet && cfg.DatabaseURL == "" {
		return nil, errors.New("config: DATABASE_URL or VAULT_URL/VAULT_TOKEN/VAULT_SECRET_PATH must be set")
	}
	if vaultSet && (cfg.VaultURL == "" || cfg.VaultToken == "" || cfg.VaultSecretPath == "") {
		return nil, errors.New("config: VAULT_URL, VAULT_TOKEN, and VAULT_SECRET_PATH must all be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.DBMaxOpenConns <= 0 {
		return nil, errors.New("config: DB_MAX_OPEN_CONNS must be positive")
	}
	if cfg.DBMaxIdleConns < 0 {
		return nil, errors.New("config: DB_MAX_IDLE_CONNS must not be negative")
	}

	return &cfg, nil
}

// UsesVault reports whether credentials are resolved through Vault rather than a direct DSN.
func (c *Config) UsesVault() bool {
	return c.VaultURL != ""
}

// CacheTTL parses VaultCacheTTL as a time.Duration. Returns 5m if unset or invalid.
func (c *Config) CacheTTL() time.Duration {
	d, err := time.ParseDuration(c.VaultCacheTTL)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// ConnectTimeout parses DBConnectTimeout. Returns 30s if unset or invalid.
func (c *Config) ConnectTimeout() time.Duration {
	d, err := time.ParseDuration(c.DBConnectTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// ConnMaxIdleTime parses DBConnMaxIdleTime. Returns 10m if unset or invalid.
func (c *Config) ConnMaxIdleTime() time.Duration {
	d, err := time.ParseDuration(c.DBConnMaxIdleTime)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// ConnMaxLifetime parses DBConnMaxLifetime. Returns 30m if unset or invalid.
func (c *Config) ConnMaxLifetime() time.Duration {
	d, err := time.ParseDuration(c.DBConnMaxLifetime)
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}
