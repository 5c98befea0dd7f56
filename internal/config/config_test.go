package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("RUN_LOCK_TTL", "not-a-duration")
	t.Setenv("DEFAULT_BATCH_SIZE", "-3")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.RunLockTTL)
	assert.Equal(t, 100, cfg.DefaultBatchSize)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("RUN_LOCK_TTL", "2m")
	t.Setenv("DELETION_SCAN_LIMIT", "500")
	t.Setenv("SCHEDULER_ENABLED", "false")
	t.Setenv("ENVIRONMENT", "Production")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.RunLockTTL)
	assert.Equal(t, 500, cfg.DeletionScanLimit)
	assert.False(t, cfg.SchedulerEnabled)
	assert.True(t, cfg.IsProduction())
}
