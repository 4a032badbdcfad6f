// Package config defines the top-level configuration for the clash core
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CLASH_* environment variables.
type Config struct {
	Arena    ArenaConfig    `toml:"arena"`
	Chain    ChainConfig    `toml:"chain"`
	Wallet   WalletConfig   `toml:"wallet"`
	Pricing  PricingConfig  `toml:"pricing"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	Rates    RatesConfig    `toml:"rates"`
	Server   ServerConfig   `toml:"server"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ArenaConfig holds the battle backend's REST and push-channel endpoints and
// the polling cadence for each source.
type ArenaConfig struct {
	RestHost        string   `toml:"rest_host"`
	WsHost          string   `toml:"ws_host"`
	AuthToken       string   `toml:"auth_token"`
	HTTPTimeout     duration `toml:"http_timeout"`
	WorldInterval   duration `toml:"world_interval"`
	BattleInterval  duration `toml:"battle_interval"`
	BalanceInterval duration `toml:"balance_interval"`
	WatchTTL        duration `toml:"watch_ttl"`
	ActivityCap     int      `toml:"activity_cap"`
}

// ChainConfig holds the EVM node endpoint and the shares contract address.
type ChainConfig struct {
	RPCURL          string `toml:"rpc_url"`
	ChainID         int64  `toml:"chain_id"`
	ContractAddress string `toml:"contract_address"`
}

// WalletConfig holds Ethereum wallet credentials. Only needed when trade
// submission is enabled; read-only modes run without a key.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PricingConfig holds the bonding curve parameters and the protocol rates.
// Curve parameters are 18-decimal fixed-point integers in decimal string
// form; empty strings select the contract defaults.
type PricingConfig struct {
	CurveA       string  `toml:"curve_a"`
	CurveB       string  `toml:"curve_b"`
	CurveC       string  `toml:"curve_c"`
	FeeRate      float64 `toml:"fee_rate"`
	TransferRate float64 `toml:"transfer_rate"`
	VerifyCurve  bool    `toml:"verify_curve"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds PostgreSQL connection parameters for the activity
// archive.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RatesConfig holds the fiat exchange-rate provider settings.
type RatesConfig struct {
	URL      string   `toml:"url"`
	Interval duration `toml:"interval"`
}

// ServerConfig holds the HTTP/WS API server settings.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding ("5s", "1m30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse human-readable duration strings.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config pre-populated with sensible defaults. Load merges
// the TOML file on top of this.
func Defaults() Config {
	return Config{
		Arena: ArenaConfig{
			RestHost:        "http://localhost:8080/api",
			WsHost:          "ws://localhost:8080/ws",
			HTTPTimeout:     duration{10 * time.Second},
			WorldInterval:   duration{1 * time.Second},
			BattleInterval:  duration{5 * time.Second},
			BalanceInterval: duration{2 * time.Second},
			WatchTTL:        duration{30 * time.Second},
			ActivityCap:     500,
		},
		Chain: ChainConfig{
			RPCURL:  "http://localhost:8545",
			ChainID: 8453,
		},
		Pricing: PricingConfig{
			FeeRate:      0.02,
			TransferRate: 0.10,
			VerifyCurve:  true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   10,
			MaxRetries: 3,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "clashcore",
			User:          "clashcore",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Rates: RatesConfig{
			URL:      "https://api.coinbase.com/v2/exchange-rates?currency=ETH",
			Interval: duration{60 * time.Second},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        9090,
			CORSOrigins: []string{"*"},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":   true,
	"monitor": true,
	"archive": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, monitor, archive, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Arena endpoints and cadence
	if c.Arena.RestHost == "" {
		errs = append(errs, "arena: rest_host must not be empty")
	}
	if c.Arena.WorldInterval.Duration <= 0 {
		errs = append(errs, "arena: world_interval must be positive")
	}
	if c.Arena.BattleInterval.Duration <= 0 {
		errs = append(errs, "arena: battle_interval must be positive")
	}
	if c.Arena.BalanceInterval.Duration <= 0 {
		errs = append(errs, "arena: balance_interval must be positive")
	}
	if c.Arena.ActivityCap < 1 {
		errs = append(errs, "arena: activity_cap must be >= 1")
	}

	// Chain
	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}

	// Wallet: key material is only required when a key source is half-configured.
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Pricing: curve parameters must be set all together or not at all.
	ca := c.Pricing.CurveA != ""
	cb := c.Pricing.CurveB != ""
	cc := c.Pricing.CurveC != ""
	if ca || cb || cc {
		if !(ca && cb && cc) {
			errs = append(errs, "pricing: curve_a, curve_b, and curve_c must all be set together")
		}
	}
	if c.Pricing.FeeRate < 0 || c.Pricing.FeeRate >= 1 {
		errs = append(errs, fmt.Sprintf("pricing: fee_rate must be in [0, 1), got %g", c.Pricing.FeeRate))
	}
	if c.Pricing.TransferRate < 0 || c.Pricing.TransferRate > 1 {
		errs = append(errs, fmt.Sprintf("pricing: transfer_rate must be in [0, 1], got %g", c.Pricing.TransferRate))
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Postgres: only needed by the archive modes.
	needsPostgres := c.Mode == "archive" || c.Mode == "full"
	if needsPostgres {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Rates
	if c.Rates.URL == "" {
		errs = append(errs, "rates: url must not be empty")
	}
	if c.Rates.Interval.Duration <= 0 {
		errs = append(errs, "rates: interval must be positive")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
