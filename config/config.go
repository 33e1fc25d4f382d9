package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Progress modes control the denominator reported while a scrape runs.
const (
	ProgressListing = "listing"
	ProgressMatched = "matched"
)

// Config holds scraper configuration.
type Config struct {
	APIHost         string        `yaml:"api_host"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxAttempts     int           `yaml:"max_attempts"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
	RetryBackoffMax time.Duration `yaml:"retry_backoff_max"`
	CacheSize       int           `yaml:"cache_size"`
	UserAgent       string        `yaml:"user_agent"`
	OutputFile      string        `yaml:"output_file"`
	OutputFormat    string        `yaml:"output_format"` // csv, json, or dual
	ProgressMode    string        `yaml:"progress_mode"` // listing or matched
	ListenAddr      string        `yaml:"listen_addr"`
	MetricsAddr     string        `yaml:"metrics_addr"`
	Verbose         bool          `yaml:"verbose"`
}

// DefaultConfig returns defaults matching the public citybik.es API.
func DefaultConfig() *Config {
	return &Config{
		APIHost:         "http://api.citybik.es",
		Timeout:         30 * time.Second,
		MaxAttempts:     5,
		RetryBackoff:    500 * time.Millisecond,
		RetryBackoffMax: 2 * time.Minute,
		CacheSize:       4096,
		UserAgent:       "citybike-scraper/1.0 (+https://api.citybik.es/v2/)",
		OutputFile:      "city_bike.csv",
		OutputFormat:    "csv",
		ProgressMode:    ProgressListing,
		ListenAddr:      ":8080",
		MetricsAddr:     "",
		Verbose:         false,
	}
}

// NetworksURL is the listing endpoint for all networks.
func (c *Config) NetworksURL() string {
	return strings.TrimSuffix(c.APIHost, "/") + "/v2/networks"
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.APIHost == "" {
		return fmt.Errorf("api host cannot be empty")
	}

	parsedURL, err := url.Parse(c.APIHost)
	if err != nil {
		return fmt.Errorf("invalid api host: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("api host must use http or https")
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("api host must include a host")
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache size cannot be negative")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.ProgressMode != ProgressListing && c.ProgressMode != ProgressMatched {
		return fmt.Errorf("progress mode must be %s or %s", ProgressListing, ProgressMatched)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// LoadFile overlays values from a YAML file onto c. Keys absent from the
// file keep their current value.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %q: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays CITYBIKES_* environment variables onto c.
func (c *Config) ApplyEnv() error {
	if value, ok := EnvString("CITYBIKES_API_HOST"); ok {
		c.APIHost = value
	}
	if value, ok, err := EnvDuration("CITYBIKES_TIMEOUT"); err != nil {
		return err
	} else if ok {
		c.Timeout = value
	}
	if value, ok, err := EnvInt("CITYBIKES_MAX_ATTEMPTS"); err != nil {
		return err
	} else if ok {
		c.MaxAttempts = value
	}
	if value, ok, err := EnvDuration("CITYBIKES_RETRY_BACKOFF"); err != nil {
		return err
	} else if ok {
		c.RetryBackoff = value
	}
	if value, ok, err := EnvDuration("CITYBIKES_RETRY_BACKOFF_MAX"); err != nil {
		return err
	} else if ok {
		c.RetryBackoffMax = value
	}
	if value, ok, err := EnvInt("CITYBIKES_CACHE_SIZE"); err != nil {
		return err
	} else if ok {
		c.CacheSize = value
	}
	if value, ok := EnvString("CITYBIKES_USER_AGENT"); ok {
		c.UserAgent = value
	}
	if value, ok := EnvString("CITYBIKES_OUTPUT"); ok {
		c.OutputFile = value
	}
	if value, ok := EnvString("CITYBIKES_OUTPUT_FORMAT"); ok {
		c.OutputFormat = strings.ToLower(value)
	}
	if value, ok := EnvString("CITYBIKES_PROGRESS"); ok {
		c.ProgressMode = strings.ToLower(value)
	}
	if value, ok := EnvString("CITYBIKES_LISTEN_ADDR"); ok {
		c.ListenAddr = value
	}
	if value, ok := EnvString("CITYBIKES_METRICS_ADDR"); ok {
		c.MetricsAddr = value
	}
	return nil
}

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer when it is set.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}

// EnvDuration parses key as a time.Duration when it is set.
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}
