package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.True(t, cfg.RunMigrations)
	require.Equal(t, int64(1_000_000), cfg.LargeTransactionThreshold)
	require.Equal(t, "orange", cfg.SMS.Provider)
	require.Equal(t, "AgriConnect", cfg.SMS.SenderID)
	require.Equal(t, 5, cfg.Webhook.MaxRetries)
	require.Equal(t, 5*time.Second, cfg.Webhook.Timeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SMS_PROVIDER", "mtn")
	t.Setenv("LARGE_TRANSACTION_THRESHOLD", "500000")
	t.Setenv("WEBHOOK_POLL_INTERVAL", "250ms")
	t.Setenv("RUN_MIGRATIONS", "false")

	cfg := Load()

	require.Equal(t, "mtn", cfg.SMS.Provider)
	require.Equal(t, int64(500_000), cfg.LargeTransactionThreshold)
	require.Equal(t, 250*time.Millisecond, cfg.Webhook.PollInterval)
	require.False(t, cfg.RunMigrations)
}

func TestLoadIgnoresGarbage(t *testing.T) {
	t.Setenv("WEBHOOK_BATCH_SIZE", "not-a-number")
	t.Setenv("RUN_MIGRATIONS", "maybe")

	cfg := Load()

	require.Equal(t, 20, cfg.Webhook.BatchSize)
	require.True(t, cfg.RunMigrations)
}
