package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// GIVEN: No environment overrides
	for _, k := range []string{"PORT", "DB_DRIVER", "DB_PATH", "DATABASE_URL", "KAFKA_BROKERS", "CORS_ORIGINS", "ACCOUNT_NUMBER_ATTEMPTS"} {
		t.Setenv(k, "")
	}

	// WHEN: Config is loaded without flags
	cfg, err := Load(nil)

	// THEN: Defaults apply
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.Driver)
	assert.Equal(t, "ledger.db", cfg.DBPath)
	assert.Equal(t, 50, cfg.AccountNumberAttempts)
	assert.False(t, cfg.EventsEnabled())
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:3000"}, cfg.CORSOrigins)
}

func TestLoad_FlagsOverrideEnvironment(t *testing.T) {
	// GIVEN: Environment values
	t.Setenv("PORT", "9000")
	t.Setenv("DB_DRIVER", "memory")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	// WHEN: A flag sets the port
	cfg, err := Load([]string{"-port", "7000"})

	// THEN: The flag wins, the rest comes from the environment
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, DriverMemory, cfg.Driver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.EventsEnabled())
}

func TestLoad_PostgresRequiresURL(t *testing.T) {
	// GIVEN: The postgres driver without a URL
	t.Setenv("DATABASE_URL", "")

	// WHEN: Config is loaded
	_, err := Load([]string{"-driver", "postgres"})

	// THEN: Validation fails
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := Config{Port: 8080, Driver: "mysql", AccountNumberAttempts: 1}
	assert.Error(t, cfg.Validate())
}

func TestLoad_BadIntegerEnv(t *testing.T) {
	t.Setenv("PORT", "eighty")
	_, err := Load(nil)
	assert.Error(t, err)
}
