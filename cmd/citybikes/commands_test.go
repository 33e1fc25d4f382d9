package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aluiziolira/citybike-scraper/config"
)

func TestLoadConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "citybikes.yaml")
	content := "api_host: http://file.example.test\ncache_size: 10\nmax_attempts: 3\nprogress_mode: matched\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CITYBIKES_CACHE_SIZE", "20")
	t.Setenv("CITYBIKES_MAX_ATTEMPTS", "4")

	cfg = config.DefaultConfig()
	configFile = path
	t.Cleanup(func() {
		cfg = config.DefaultConfig()
		configFile = ""
	})

	if err := scrapeCmd.ParseFlags([]string{"--country", "FR", "--max-attempts", "2", "--format", "JSON", "--retry-backoff-max", "10s", "--user-agent", "citybikes-cli/2"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if err := loadConfig(scrapeCmd); err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.APIHost != "http://file.example.test" {
		t.Fatalf("api host = %q, want value from file", cfg.APIHost)
	}
	if cfg.CacheSize != 20 {
		t.Fatalf("cache size = %d, want value from env", cfg.CacheSize)
	}
	if cfg.MaxAttempts != 2 {
		t.Fatalf("max attempts = %d, want value from flag", cfg.MaxAttempts)
	}
	if cfg.ProgressMode != config.ProgressMatched {
		t.Fatalf("progress mode = %q, want matched", cfg.ProgressMode)
	}
	if cfg.OutputFormat != "json" {
		t.Fatalf("output format = %q, want json", cfg.OutputFormat)
	}
	if cfg.RetryBackoffMax != 10*time.Second || cfg.UserAgent != "citybikes-cli/2" {
		t.Fatalf("backoff max=%v user agent=%q, want values from flags", cfg.RetryBackoffMax, cfg.UserAgent)
	}
	if cfg.OutputFile != "city_bike.csv" {
		t.Fatalf("output file = %q, want default", cfg.OutputFile)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cfg = config.DefaultConfig()
	configFile = ""
	t.Cleanup(func() {
		cfg = config.DefaultConfig()
	})

	if err := countriesCmd.ParseFlags([]string{"--progress", "sideways"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if err := loadConfig(countriesCmd); err == nil {
		t.Fatalf("expected invalid progress mode to be rejected")
	}
}
