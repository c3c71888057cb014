package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 10, cfg.RateLimit.CreateLimit)
	assert.Equal(t, time.Hour, cfg.RateLimit.CreateWindow)
	assert.Equal(t, 24*time.Hour, cfg.Lifecycle.SchedulerInterval)
	assert.False(t, cfg.UsesPostgres())
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, 500, cfg.Lifecycle.BatchSize)
	assert.True(t, cfg.Database.Migrate)
	assert.NotEmpty(t, cfg.Export.PseudonymKey)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("SAFEREPORT_ADDR", ":9000")
	t.Setenv("SAFEREPORT_DATABASE_URL", "postgres://localhost/safereport")
	t.Setenv("SAFEREPORT_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SAFEREPORT_RATE_LIMIT_WINDOW", "30m")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr)
	assert.True(t, cfg.UsesPostgres())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 30*time.Minute, cfg.RateLimit.CreateWindow)
}

func TestFromEnv_RejectsZeroLimit(t *testing.T) {
	t.Setenv("SAFEREPORT_RATE_LIMIT_CREATE", "0")

	_, err := FromEnv()
	assert.Error(t, err)
}
