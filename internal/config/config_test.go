package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TH_AUTH_DISABLED", "true")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "EUR", cfg.Platform.Currency)
	assert.Equal(t, "platform", cfg.Platform.AccountID)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ShutdownTimeout)
	// optional backends default off
	assert.Empty(t, cfg.DB.DSN)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoadReadsEnv(t *testing.T) {
	t.Setenv("TH_FIREBASE_PROJECT_ID", "transferhub-dev")
	t.Setenv("TH_KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("TH_SHUTDOWN_SECONDS", "3")
	t.Setenv("TH_CURRENCY", "USD")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 3*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, "USD", cfg.Platform.Currency)
}

func TestLoadReportsEveryProblem(t *testing.T) {
	t.Setenv("TH_SHUTDOWN_SECONDS", "soon")
	t.Setenv("TH_AUTH_DISABLED", "maybe")
	t.Setenv("TH_CURRENCY", "EURO")
	_, err := Load()
	require.Error(t, err)
	for _, want := range []string{"TH_SHUTDOWN_SECONDS", "TH_AUTH_DISABLED", "TH_CURRENCY", "TH_FIREBASE_PROJECT_ID"} {
		assert.Contains(t, err.Error(), want)
	}
}
