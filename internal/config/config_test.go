package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LEDGER_MAX_RETRIES", "")
	t.Setenv("HOLD_TTL", "")

	cfg := Load()

	assert.Equal(t, 3, cfg.Ledger.MaxRetries)
	assert.Equal(t, "postgres", cfg.Ledger.Store)
	assert.Equal(t, time.Duration(0), cfg.Sweeper.HoldTTL)
	assert.Equal(t, "@every 1m", cfg.Sweeper.Schedule)
	assert.Equal(t, "ledger_events", cfg.RabbitMQ.Exchange)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LEDGER_MAX_RETRIES", "5")
	t.Setenv("LEDGER_STORE", "memory")
	t.Setenv("HOLD_TTL", "2h")
	t.Setenv("OPERATOR_FEE_RATES", "moov=0.03, yas-togo=0.01")
	t.Setenv("REDIS_ENABLED", "false")

	cfg := Load()

	assert.Equal(t, 5, cfg.Ledger.MaxRetries)
	assert.Equal(t, "memory", cfg.Ledger.Store)
	assert.Equal(t, 2*time.Hour, cfg.Sweeper.HoldTTL)
	assert.Equal(t, map[string]string{"moov": "0.03", "yas-togo": "0.01"}, cfg.Operators.FeeRates)
	assert.False(t, cfg.Redis.Enabled)
}

func TestValidate_JWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("ENV", "development")
	assert.NoError(t, Load().Validate(), "the dev secret is fine outside production")

	t.Setenv("ENV", "production")
	cfg := Load()
	assert.Equal(t, DevJWTSecret, cfg.JWT.Secret)
	assert.ErrorIs(t, cfg.Validate(), ErrInsecureJWTSecret)

	t.Setenv("JWT_SECRET", DevJWTSecret)
	assert.ErrorIs(t, Load().Validate(), ErrInsecureJWTSecret)

	t.Setenv("JWT_SECRET", "a-real-production-secret")
	assert.NoError(t, Load().Validate())
}

func TestGetEnvHelpers_FallBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_INT", "abc")
	t.Setenv("SOME_DURATION", "soon")
	t.Setenv("SOME_BOOL", "maybe")

	assert.Equal(t, 7, GetIntEnv("SOME_INT", 7))
	assert.Equal(t, time.Minute, GetDurationEnv("SOME_DURATION", time.Minute))
	assert.True(t, GetBoolEnv("SOME_BOOL", true))
}

func TestParseMap(t *testing.T) {
	assert.Empty(t, ParseMap(""))
	assert.Equal(t, map[string]string{"a": "1"}, ParseMap("a=1,broken,=2"))
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", Name: "medipay", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=medipay sslmode=disable", cfg.DSN())
}
