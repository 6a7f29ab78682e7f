// Package config provides configuration management for the ofclient launcher.
// It handles loading, validating and saving the YAML settings file that locates
// the user data directory and the cache trees, and tunes downloads, hashing and
// logging. Missing settings fall back to sensible defaults.
package config

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/glorpus-work/ofclient/pkg/errors"
	"github.com/glorpus-work/ofclient/pkg/fsutil"
)

// Config represents the application configuration.
type Config struct {
	Settings Settings `yaml:"settings"`
}

// Settings represents general application settings.
type Settings struct {
	// Locations. Empty roots are derived from UserDir.
	UserDir      string `yaml:"user_dir,omitempty"`
	PlayableRoot string `yaml:"playable_root,omitempty"`
	OfflineRoot  string `yaml:"offline_root,omitempty"`
	WebRoot      string `yaml:"web_root,omitempty"`

	// Cache settings
	CDNRoot       string `yaml:"cdn_root"`
	LiveCacheName string `yaml:"live_cache_name"`
	CacheSwapping bool   `yaml:"cache_swapping"`

	// Concurrency settings
	DownloadConcurrency  int `yaml:"download_concurrency"`
	HashCheckConcurrency int `yaml:"hash_check_concurrency"`

	// Network settings
	RetryDelay  time.Duration `yaml:"retry_delay"`
	MaxRetries  int           `yaml:"max_retries"`  // 0 retries until cancelled
	HTTPTimeout time.Duration `yaml:"http_timeout"` // 0 disables the timeout
	UserAgent   string        `yaml:"user_agent"`

	// Output settings
	LogLevel string `yaml:"log_level"` // panic, fatal, error, warn, info, debug, trace
	LogDir   string `yaml:"log_dir,omitempty"`
}

// Default configuration values.
const (
	// DefaultCDNRoot serves the offline cache files, one directory per version.
	DefaultCDNRoot = "http://cdn.dexlabs.systems/ff/big"

	// DefaultLiveCacheName is the playable cache directory the web player reads.
	DefaultLiveCacheName = "FusionFall"

	// DefaultDownloadConcurrency is the default number of parallel downloads.
	DefaultDownloadConcurrency = 5

	// DefaultHashCheckConcurrency is the default number of files hashed in parallel.
	DefaultHashCheckConcurrency = 20

	// DefaultRetryDelay is the pause between download attempts.
	DefaultRetryDelay = time.Second

	// DefaultUserAgent is sent with every download request.
	DefaultUserAgent = "ofclient/1.0"

	// ConfigFileName is the name of the settings file in the user data directory.
	ConfigFileName = "config.yaml"

	// YAMLIndent is the number of spaces to use for YAML indentation.
	YAMLIndent = 2
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	userDir, err := fsutil.GetDataDir()
	if err != nil {
		// Fallback to current directory if we can't determine the data dir
		userDir = "."
	}

	return &Config{
		Settings: Settings{
			UserDir:              userDir,
			CDNRoot:              DefaultCDNRoot,
			LiveCacheName:        DefaultLiveCacheName,
			CacheSwapping:        true,
			DownloadConcurrency:  DefaultDownloadConcurrency,
			HashCheckConcurrency: DefaultHashCheckConcurrency,
			RetryDelay:           DefaultRetryDelay,
			UserAgent:            DefaultUserAgent,
			LogLevel:             "info",
		},
	}
}

// LoadConfig loads configuration from a file. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}

	file, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, errors.Wrapf(err, "failed to open config file: %s", path)
	}
	defer func() { _ = file.Close() }()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader. Settings absent
// from the document keep their default values.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config data")
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(errors.ErrConfigParse, err.Error())
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// SaveConfig saves configuration to a file.
func (c *Config) SaveConfig(path string) error {
	if path == "" {
		return errors.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}

	if err := os.MkdirAll(filepath.Dir(absPath), fsutil.DirModeDefault); err != nil {
		return errors.Wrap(errors.ErrConfigDirectory, err.Error())
	}

	tempPath := absPath + ".tmp"
	file, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fsutil.FileModeDefault)
	if err != nil {
		return errors.Wrap(errors.ErrConfigFileCreate, err.Error())
	}

	encoder := yaml.NewEncoder(file)
	encoder.SetIndent(YAMLIndent)

	if err := encoder.Encode(c); err != nil {
		_ = file.Close()
		_ = os.Remove(tempPath)
		return errors.Wrap(errors.ErrConfigEncode, err.Error())
	}

	_ = encoder.Close()
	_ = file.Close()

	// Atomically replace the config file
	if err := os.Rename(tempPath, absPath); err != nil {
		_ = os.Remove(tempPath)
		return errors.Wrap(errors.ErrConfigFileRename, err.Error())
	}

	if err := os.Chmod(absPath, fsutil.FileModeDefault); err != nil {
		return errors.Wrap(errors.ErrConfigFileChmod, err.Error())
	}

	return nil
}

// ToYAML converts the config to YAML bytes.
func (c *Config) ToYAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(errors.ErrConfigMarshal, err.Error())
	}
	return data, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c == nil {
		return errors.ErrConfigValidation
	}
	if err := validateSettings(c.Settings); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrConfigValidation, err)
	}
	return nil
}

func validateSettings(s Settings) error {
	if s.UserDir == "" {
		return fmt.Errorf("user_dir must not be empty")
	}
	u, err := url.Parse(s.CDNRoot)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("cdn_root must be an http(s) URL, got %q", s.CDNRoot)
	}
	if s.LiveCacheName == "" || filepath.Base(s.LiveCacheName) != s.LiveCacheName || strings.ContainsAny(s.LiveCacheName, `/\`) {
		return fmt.Errorf("live_cache_name must be a plain directory name, got %q", s.LiveCacheName)
	}
	if s.DownloadConcurrency < 1 {
		return fmt.Errorf("download_concurrency must be at least 1")
	}
	if s.HashCheckConcurrency < 1 {
		return fmt.Errorf("hash_check_concurrency must be at least 1")
	}
	if s.RetryDelay < 0 {
		return fmt.Errorf("retry_delay cannot be negative")
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}
	if s.HTTPTimeout < 0 {
		return fmt.Errorf("http_timeout cannot be negative")
	}
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(s.LogLevel)] {
		return fmt.Errorf("invalid log_level %q", s.LogLevel)
	}
	return nil
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() (string, error) {
	dataDir, err := fsutil.GetDataDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user data directory: %w", err)
	}
	return filepath.Join(dataDir, ConfigFileName), nil
}

// GetUserDir returns the directory holding the version, server and manifest files.
func (c *Config) GetUserDir() string {
	return c.Settings.UserDir
}

// GetPlayableRoot returns the directory holding the live and swapped-out playable caches.
func (c *Config) GetPlayableRoot() string {
	if c.Settings.PlayableRoot != "" {
		return c.Settings.PlayableRoot
	}
	return fsutil.DefaultPlayableRoot(c.Settings.UserDir)
}

// GetOfflineRoot returns the directory holding the per-version offline caches.
func (c *Config) GetOfflineRoot() string {
	if c.Settings.OfflineRoot != "" {
		return c.Settings.OfflineRoot
	}
	return fsutil.DefaultOfflineRoot(c.Settings.UserDir)
}

// GetWebRoot returns the directory the launch files are written to.
func (c *Config) GetWebRoot() string {
	if c.Settings.WebRoot != "" {
		return c.Settings.WebRoot
	}
	return filepath.Join(c.Settings.UserDir, "web")
}

// applyDefaults fills in values a document set to their zero value.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Settings.UserDir == "" {
		c.Settings.UserDir = defaults.Settings.UserDir
	}
	if c.Settings.CDNRoot == "" {
		c.Settings.CDNRoot = defaults.Settings.CDNRoot
	}
	if c.Settings.LiveCacheName == "" {
		c.Settings.LiveCacheName = defaults.Settings.LiveCacheName
	}
	if c.Settings.DownloadConcurrency == 0 {
		c.Settings.DownloadConcurrency = defaults.Settings.DownloadConcurrency
	}
	if c.Settings.HashCheckConcurrency == 0 {
		c.Settings.HashCheckConcurrency = defaults.Settings.HashCheckConcurrency
	}
	if c.Settings.RetryDelay == 0 {
		c.Settings.RetryDelay = defaults.Settings.RetryDelay
	}
	if c.Settings.UserAgent == "" {
		c.Settings.UserAgent = defaults.Settings.UserAgent
	}
	if c.Settings.LogLevel == "" {
		c.Settings.LogLevel = defaults.Settings.LogLevel
	}
}
