package model

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Jira.PageSize)
	assert.Equal(t, 15, cfg.Cache.IssueTTLMin)
	assert.Equal(t, 10, cfg.Cache.QueryTTLMin)
	assert.Equal(t, 25, cfg.Fetch.SubtaskConcurrency)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestSaveThenLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := defaultAppConfig()
	cfg.Jira.BaseURL = "https://jira.example.com"
	cfg.Jira.PageSize = 100
	cfg.Cache.IssueTTLMin = 5
	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://jira.example.com", loaded.Jira.BaseURL)
	assert.Equal(t, 100, loaded.Jira.PageSize)
	assert.Equal(t, 5, loaded.Cache.IssueTTLMin)
	assert.Equal(t, 10, loaded.Cache.QueryTTLMin)
}

func TestLoadConfigEnvironmentOverride(t *testing.T) {
	t.Setenv("JWL_JIRA_BASE_URL", "https://env.example.com")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.Jira.BaseURL)
}

func TestValidateRejectsNonPositiveLimits(t *testing.T) {
	cfg := defaultAppConfig()
	cfg.Fetch.SubtaskConcurrency = 0
	assert.Error(t, cfg.Validate())
}
