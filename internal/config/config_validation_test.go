package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *AppConfig {
	cfg := &AppConfig{}
	applyDefaults(cfg)
	return cfg
}

func TestValidConfigPasses(t *testing.T) {
	assert.NoError(t, Validate(validConfig()))
}

func TestInvalidDatabaseDialectFails(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Dialect = "mongodb"
	err := Validate(cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database.dialect")
}

func TestEmptyDSNFails(t *testing.T) {
	cfg := validConfig()
	cfg.Database.DSN = ""
	assert.Error(t, Validate(cfg))
}

func TestServerPortOutOfRangeFails(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 70000
	assert.Error(t, Validate(cfg))
}

func TestUDPDisabledSkipsPortValidation(t *testing.T) {
	cfg := validConfig()
	cfg.UDP.Enabled = false
	cfg.UDP.Port = -1
	assert.NoError(t, Validate(cfg))
}

func TestTailEnabledRequiresPath(t *testing.T) {
	cfg := validConfig()
	cfg.Tail.Enabled = true
	cfg.Tail.Path = ""
	err := Validate(cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "tail.path")
}

func TestWatchFolderEnabledRequiresDirectory(t *testing.T) {
	cfg := validConfig()
	cfg.WatchFolder.Enabled = true
	cfg.WatchFolder.Directory = ""
	assert.Error(t, Validate(cfg))
}

func TestRetentionEnabledRequiresPositiveKeepDays(t *testing.T) {
	cfg := validConfig()
	cfg.Retention.Enabled = true
	cfg.Retention.KeepDays = 0
	assert.Error(t, Validate(cfg))
}

func TestRetentionDisabledSkipsKeepDaysValidation(t *testing.T) {
	cfg := validConfig()
	cfg.Retention.Enabled = false
	cfg.Retention.KeepDays = 0
	assert.NoError(t, Validate(cfg))
}

func TestImportLimitsMustBePositive(t *testing.T) {
	cfg := validConfig()
	cfg.Import.MaxUploadBytes = 0
	assert.Error(t, Validate(cfg))

	cfg = validConfig()
	cfg.Import.BatchSize = 0
	assert.Error(t, Validate(cfg))

	cfg = validConfig()
	cfg.Import.CancelCheckLines = 0
	assert.Error(t, Validate(cfg))
}

func TestClassificationPrecedenceMustBeKnownValue(t *testing.T) {
	cfg := validConfig()
	cfg.Classify.Precedence = "bogus"
	err := Validate(cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "classification.precedence")
}
