// Package config handles TOML-based configuration loading and validation.
// TOML is parsed as data only; no code execution is possible.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
)

const appName = "reelscout"

// Duration is a time.Duration written as a Go duration string ("30s") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config holds all application configuration.
type Config struct {
	// ProxyURL is the operator's simple proxy. Empty means every request goes direct.
	ProxyURL   string `toml:"proxy_url"`
	TMDBAPIKey string `toml:"tmdb_api_key"`

	// WebtorURL is the Webtor REST API used by the torrent source. Empty disables it.
	WebtorURL string `toml:"webtor_url"`

	// Bases overrides an adapter's site origin, keyed by provider id.
	Bases map[string]string `toml:"bases"`

	ProviderTimeout Duration `toml:"provider_timeout"`
	FetchTimeout    Duration `toml:"fetch_timeout"`
	VariantTimeout  Duration `toml:"variant_timeout"`

	// Retries is how many times a network or timeout failure is retried.
	Retries      int      `toml:"retries"`
	RetryBackoff Duration `toml:"retry_backoff"`

	MinRank int `toml:"min_rank"`
	MaxRank int `toml:"max_rank"`

	// Disabled adapters stay listed but never run; Exclude drops sources from runs.
	Disabled []string `toml:"disabled"`
	Exclude  []string `toml:"exclude"`

	BrowserTLS        bool `toml:"browser_tls"`
	RequestsPerSecond int  `toml:"requests_per_second"`

	SubsLanguage string `toml:"subs_language"`

	LogLevel string `toml:"log_level"`
	LogJSON  bool   `toml:"log_json"`
	LogDir   string `toml:"log_dir"`
	History  bool   `toml:"history"`
	Debug    bool   `toml:"debug"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		ProviderTimeout: Duration{30 * time.Second},
		FetchTimeout:    Duration{15 * time.Second},
		VariantTimeout:  Duration{10 * time.Second},
		Retries:         1,
		RetryBackoff:    Duration{500 * time.Millisecond},
		MinRank:         1,
		MaxRank:         10000,
		SubsLanguage:    "english",
		LogLevel:        "info",
		History:         true,
	}
}

// configDir returns the XDG-compliant config directory.
func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config file at the default path and merges it with defaults
// and the environment. If the config file doesn't exist, defaults are used.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		cfg := Default()
		cfg.ApplyEnv()
		return cfg, cfg.Validate()
	}
	return LoadFile(path)
}

// LoadFile reads the config file at path. A missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides secrets and endpoints from REELSCOUT_* environment variables.
func (c *Config) ApplyEnv() {
	for env, field := range map[string]*string{
		"REELSCOUT_PROXY_URL":    &c.ProxyURL,
		"REELSCOUT_TMDB_API_KEY": &c.TMDBAPIKey,
		"REELSCOUT_WEBTOR_URL":   &c.WebtorURL,
		"REELSCOUT_LOG_LEVEL":    &c.LogLevel,
	} {
		if v, ok := os.LookupEnv(env); ok {
			*field = v
		}
	}
}

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	urls := map[string]string{"proxy_url": c.ProxyURL, "webtor_url": c.WebtorURL}
	for id, u := range c.Bases {
		urls["bases."+id] = u
	}
	for name, u := range urls {
		if u == "" {
			continue
		}
		parsed, err := url.Parse(u)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return fmt.Errorf("%s %q must be an http(s) URL", name, u)
		}
	}

	for name, d := range map[string]Duration{
		"provider_timeout": c.ProviderTimeout,
		"fetch_timeout":    c.FetchTimeout,
		"variant_timeout":  c.VariantTimeout,
	} {
		if d.Duration <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}
	if c.RetryBackoff.Duration < 0 {
		return fmt.Errorf("retry_backoff cannot be negative")
	}

	if c.Retries < 0 || c.Retries > 5 {
		return fmt.Errorf("retries %d out of range (0-5)", c.Retries)
	}
	if c.MinRank > c.MaxRank {
		return fmt.Errorf("min_rank %d exceeds max_rank %d", c.MinRank, c.MaxRank)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second cannot be negative")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	return nil
}

// HistoryPath returns the path to the run history file.
func HistoryPath() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, appName, "history.tsv"), nil
}
