package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
)

func TestLoad(t *testing.T) {
	t.Setenv("DB_NAME", "customers_test")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("RECOMPUTE_INTERVAL", "1h")
	t.Setenv("AUTO_CREATE_GUEST_IDENTITIES", "true")
	t.Setenv("FORBIDDEN_TAG_SIGNATURES", "spam,,test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "customers_test", cfg.DatabaseName)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, time.Hour, cfg.RecomputeInterval)
	// defaults
	assert.Equal(t, 3, cfg.TxRetryAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.KafkaRetryBackoff)
	assert.Equal(t, "bolt", cfg.GraphDBScheme)

	assert.Equal(t, models.IdentityPolicy{AutoCreateGuestIdentities: true}, cfg.IdentityPolicy())
	settings := cfg.Classification()
	assert.Equal(t, "Guest", settings.GroupLabels[models.CustomerGroupGuest])
	assert.Equal(t, []string{"spam", "test"}, settings.ForbiddenTagSignatures)
}

func TestRetry(t *testing.T) {
	cfg := &Config{TxRetryAttempts: 5, TxRetryBackoff: 10 * time.Millisecond}

	retry := cfg.Retry()

	assert.Equal(t, 5, retry.Attempts)
	assert.Equal(t, 10*time.Millisecond, retry.Backoff)
}
