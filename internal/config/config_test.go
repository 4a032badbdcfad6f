package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsPartialCurveParams(t *testing.T) {
	cfg := Defaults()
	cfg.Pricing.CurveA = "50000000000000000"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "curve_a, curve_b, and curve_c")
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "replay"
	cfg.Pricing.FeeRate = 1.5
	cfg.Redis.Addr = ""
	cfg.Server.Port = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "fee_rate")
	assert.Contains(t, err.Error(), "redis: addr")
	assert.Contains(t, err.Error(), "server: port")
}

func TestValidatePostgresOnlyRequiredForArchiveModes(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "serve"
	cfg.Postgres.Host = ""
	cfg.Postgres.Database = ""
	require.NoError(t, cfg.Validate())

	cfg.Mode = "archive"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: host")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CLASH_ARENA_REST_HOST", "https://arena.example.com/api")
	t.Setenv("CLASH_ARENA_WORLD_INTERVAL", "250ms")
	t.Setenv("CLASH_PRICING_FEE_RATE", "0.03")
	t.Setenv("CLASH_SERVER_CORS_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "https://arena.example.com/api", cfg.Arena.RestHost)
	assert.Equal(t, "250ms", cfg.Arena.WorldInterval.Duration.String())
	assert.Equal(t, 0.03, cfg.Pricing.FeeRate)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.CORSOrigins)
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Arena.AuthToken = "token"
	cfg.Wallet.PrivateKey = "0xdeadbeef"
	cfg.Redis.Password = "hunter2"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Arena.AuthToken)
	assert.Equal(t, "***", red.Wallet.PrivateKey)
	assert.Equal(t, "***", red.Redis.Password)
	// Original untouched.
	assert.Equal(t, "hunter2", cfg.Redis.Password)
}
