package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &AppConfig{}
	applyDefaults(cfg)

	assert.Equal(t, "netwallfa", cfg.AppName)
	assert.Equal(t, "sqlite", cfg.Database.Dialect)
	assert.Equal(t, 8401, cfg.Server.Port)
	assert.Equal(t, 5514, cfg.UDP.Port)
	assert.True(t, cfg.Retention.Enabled)
	assert.Equal(t, 90, cfg.Retention.KeepDays)
	assert.Equal(t, int64(1<<30), cfg.Import.MaxUploadBytes)
	assert.Equal(t, 5000, cfg.Import.BatchSize)
	assert.Equal(t, "zone_first", cfg.Classify.Precedence)
}

func TestLoadWithoutFileAppliesDefaultsAndValidates(t *testing.T) {
	cfg, err := Load("")
	assert.NoError(t, err)
	assert.Equal(t, "netwallfa", cfg.AppName)
}

func TestEnvOverridesTakePrecedenceOverDefaults(t *testing.T) {
	t.Setenv("NETWALLFA_SERVER_PORT", "9900")
	t.Setenv("NETWALLFA_RETENTION_KEEP_DAYS", "7")

	cfg, err := Load("")
	assert.NoError(t, err)
	assert.Equal(t, 9900, cfg.Server.Port)
	assert.Equal(t, 7, cfg.Retention.KeepDays)
}
