package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// JiraConfig holds connection settings for the Jira instance.
type JiraConfig struct {
	// BaseURL is the root URL of the Jira instance.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// CredentialKey names the keyring entry holding the access token.
	CredentialKey string `mapstructure:"credential_key" yaml:"credential_key"`

	// PageSize is the maxResults value sent with paginated requests.
	PageSize int `mapstructure:"page_size" yaml:"page_size"`

	// TimeoutSec bounds a single HTTP request.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`

	// AuthMaxAgeMin is how long a validated token is trusted before the
	// session re-authenticates.
	AuthMaxAgeMin int `mapstructure:"auth_max_age_min" yaml:"auth_max_age_min"`
}

// CacheConfig holds the in-memory cache lifetimes.
type CacheConfig struct {
	IssueTTLMin int `mapstructure:"issue_ttl_min" yaml:"issue_ttl_min"`
	QueryTTLMin int `mapstructure:"query_ttl_min" yaml:"query_ttl_min"`
}

// FetchConfig bounds concurrent network work.
type FetchConfig struct {
	// SubtaskConcurrency caps in-flight subtask fetches across one
	// recursive fetch tree.
	SubtaskConcurrency int `mapstructure:"subtask_concurrency" yaml:"subtask_concurrency"`

	// LoadConcurrency caps per-record payload loads in a query.
	LoadConcurrency int `mapstructure:"load_concurrency" yaml:"load_concurrency"`
}

// LogConfig controls logger output.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
}

// StoreConfig locates the worklog export database.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Jira  JiraConfig  `mapstructure:"jira" yaml:"jira"`
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`
	Fetch FetchConfig `mapstructure:"fetch" yaml:"fetch"`
	Log   LogConfig   `mapstructure:"log" yaml:"log"`
	Store StoreConfig `mapstructure:"store" yaml:"store"`
}

// IssueTTL returns the issue cache lifetime.
func (c *AppConfig) IssueTTL() time.Duration {
	return time.Duration(c.Cache.IssueTTLMin) * time.Minute
}

// QueryTTL returns the query cache lifetime.
func (c *AppConfig) QueryTTL() time.Duration {
	return time.Duration(c.Cache.QueryTTLMin) * time.Minute
}

// RequestTimeout returns the per-request HTTP timeout.
func (c *AppConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Jira.TimeoutSec) * time.Second
}

// AuthMaxAge returns how long a validated token is trusted.
func (c *AppConfig) AuthMaxAge() time.Duration {
	return time.Duration(c.Jira.AuthMaxAgeMin) * time.Minute
}

// configDir returns ~/.config/jwl, or the working directory when the
// home directory cannot be resolved.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "jwl")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/jwl/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Jira: JiraConfig{
			CredentialKey: "jira-token",
			PageSize:      50,
			TimeoutSec:    30,
			AuthMaxAgeMin: 30,
		},
		Cache: CacheConfig{
			IssueTTLMin: 15,
			QueryTTLMin: 10,
		},
		Fetch: FetchConfig{
			SubtaskConcurrency: 25,
			LoadConcurrency:    8,
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
		Store: StoreConfig{
			Path: filepath.Join(configDir(), "worklogs.db"),
		},
	}
}

// setDefaults mirrors defaultAppConfig so missing keys resolve to
// sensible values.
func setDefaults(v *viper.Viper) {
	d := defaultAppConfig()
	v.SetDefault("jira.base_url", d.Jira.BaseURL)
	v.SetDefault("jira.credential_key", d.Jira.CredentialKey)
	v.SetDefault("jira.page_size", d.Jira.PageSize)
	v.SetDefault("jira.timeout_sec", d.Jira.TimeoutSec)
	v.SetDefault("jira.auth_max_age_min", d.Jira.AuthMaxAgeMin)
	v.SetDefault("cache.issue_ttl_min", d.Cache.IssueTTLMin)
	v.SetDefault("cache.query_ttl_min", d.Cache.QueryTTLMin)
	v.SetDefault("fetch.subtask_concurrency", d.Fetch.SubtaskConcurrency)
	v.SetDefault("fetch.load_concurrency", d.Fetch.LoadConcurrency)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.pretty", d.Log.Pretty)
	v.SetDefault("store.path", d.Store.Path)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns the defaults. Any key can be
// overridden by a JWL_-prefixed environment variable, e.g.
// JWL_JIRA_BASE_URL.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("jwl")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if _, ok := err.(*os.PathError); !ok && !notFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate rejects values the client cannot run with.
func (c *AppConfig) Validate() error {
	switch {
	case c.Jira.PageSize <= 0:
		return fmt.Errorf("jira.page_size must be positive, got %d", c.Jira.PageSize)
	case c.Cache.IssueTTLMin <= 0 || c.Cache.QueryTTLMin <= 0:
		return fmt.Errorf("cache ttls must be positive")
	case c.Fetch.SubtaskConcurrency <= 0 || c.Fetch.LoadConcurrency <= 0:
		return fmt.Errorf("fetch concurrency limits must be positive")
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("jira", cfg.Jira)
	v.Set("cache", cfg.Cache)
	v.Set("fetch", cfg.Fetch)
	v.Set("log", cfg.Log)
	v.Set("store", cfg.Store)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
