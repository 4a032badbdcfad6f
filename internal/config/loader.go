package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CLASH_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CLASH_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Arena ──
	setStr(&cfg.Arena.RestHost, "CLASH_ARENA_REST_HOST")
	setStr(&cfg.Arena.WsHost, "CLASH_ARENA_WS_HOST")
	setStr(&cfg.Arena.AuthToken, "CLASH_ARENA_AUTH_TOKEN")
	setDuration(&cfg.Arena.HTTPTimeout, "CLASH_ARENA_HTTP_TIMEOUT")
	setDuration(&cfg.Arena.WorldInterval, "CLASH_ARENA_WORLD_INTERVAL")
	setDuration(&cfg.Arena.BattleInterval, "CLASH_ARENA_BATTLE_INTERVAL")
	setDuration(&cfg.Arena.BalanceInterval, "CLASH_ARENA_BALANCE_INTERVAL")
	setDuration(&cfg.Arena.WatchTTL, "CLASH_ARENA_WATCH_TTL")
	setInt(&cfg.Arena.ActivityCap, "CLASH_ARENA_ACTIVITY_CAP")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "CLASH_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "CLASH_CHAIN_CHAIN_ID")
	setStr(&cfg.Chain.ContractAddress, "CLASH_CHAIN_CONTRACT_ADDRESS")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "CLASH_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "CLASH_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "CLASH_WALLET_KEY_PASSWORD")

	// ── Pricing ──
	setStr(&cfg.Pricing.CurveA, "CLASH_PRICING_CURVE_A")
	setStr(&cfg.Pricing.CurveB, "CLASH_PRICING_CURVE_B")
	setStr(&cfg.Pricing.CurveC, "CLASH_PRICING_CURVE_C")
	setFloat64(&cfg.Pricing.FeeRate, "CLASH_PRICING_FEE_RATE")
	setFloat64(&cfg.Pricing.TransferRate, "CLASH_PRICING_TRANSFER_RATE")
	setBool(&cfg.Pricing.VerifyCurve, "CLASH_PRICING_VERIFY_CURVE")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CLASH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CLASH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CLASH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CLASH_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CLASH_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CLASH_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "CLASH_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CLASH_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CLASH_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CLASH_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CLASH_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CLASH_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CLASH_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CLASH_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CLASH_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CLASH_POSTGRES_RUN_MIGRATIONS")

	// ── Rates ──
	setStr(&cfg.Rates.URL, "CLASH_RATES_URL")
	setDuration(&cfg.Rates.Interval, "CLASH_RATES_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CLASH_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CLASH_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CLASH_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CLASH_SERVER_API_KEY")

	// ── Top-level ──
	setStr(&cfg.Mode, "CLASH_MODE")
	setStr(&cfg.LogLevel, "CLASH_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
