package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"SCHEDULER_INTERVAL", "MAX_RETRIES", "WEEKLY_REPORT_DAY", "PLATFORM_REQUESTS_PER_SECOND"} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()
	assert.Equal(t, time.Minute, cfg.Automation.SchedulerInterval)
	assert.Equal(t, 3, cfg.Automation.MaxRetries)
	assert.Equal(t, time.Monday, cfg.Automation.WeeklyReportDay)
	assert.Equal(t, 5.0, cfg.Platforms.RequestsPerSecond)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SCHEDULER_INTERVAL", "30s")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("PLATFORM_REQUESTS_PER_SECOND", "0.5")
	t.Setenv("TOKEN_ENCRYPTION_KEY", "0123456789abcdef")
	// unparsable values fall back to defaults
	t.Setenv("DUE_BATCH_SIZE", "lots")
	t.Setenv("PROCESSING_LEASE", "ten minutes")

	cfg := LoadConfig()
	assert.Equal(t, 30*time.Second, cfg.Automation.SchedulerInterval)
	assert.Equal(t, 5, cfg.Automation.MaxRetries)
	assert.Equal(t, 0.5, cfg.Platforms.RequestsPerSecond)
	assert.Equal(t, "0123456789abcdef", cfg.EncryptionKey)
	assert.Equal(t, 100, cfg.Automation.DueBatchSize)
	assert.Equal(t, 10*time.Minute, cfg.Automation.LeaseDuration)
}
