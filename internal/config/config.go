// Package config collects all process settings. Values come from environment
// variables with defaults; the CLI layer overrides them from flags before
// validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Output format names accepted by --format.
const (
	FormatCSV    = "csv"
	FormatJSON   = "json"
	FormatNDJSON = "ndjson"
)

// DefaultResourceID is the CKAN package holding the address base registry
// town-level datasets.
const DefaultResourceID = "ba000001"

// Config holds all settings for both subcommands.
type Config struct {
	DataDir    string
	ResourceID string

	// Geocode settings.
	Format      string
	Fuzzy       rune   // 0 disables wildcard matching
	Source      string // input path, "-" for stdin
	Columns     []string
	NoHeader    bool
	TrieCache   int // per-scope trie LRU entries
	MetricsAddr string

	// Download settings.
	CatalogBaseURL  string
	DownloadTimeout time.Duration
	MaxInFlight     int
	CacheEntries    int

	// Optional Kafka sink for geocoded records.
	KafkaBrokers []string
	KafkaTopic   string

	LogLevel  string
	LogFormat string

	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults
// where unset. Validation happens in Validate, after the CLI has applied
// flag overrides.
func Load() (*Config, error) {
	timeout, err := parseDuration("ABRG_DOWNLOAD_TIMEOUT", "5m")
	if err != nil {
		return nil, err
	}
	shutdown, err := parseDuration("ABRG_SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	fuzzy, err := parseFuzzy(os.Getenv("ABRG_FUZZY"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:         envOrDefault("ABRG_DATA_DIR", defaultDataDir()),
		ResourceID:      envOrDefault("ABRG_RESOURCE_ID", DefaultResourceID),
		Format:          envOrDefault("ABRG_FORMAT", FormatCSV),
		Fuzzy:           fuzzy,
		Source:          envOrDefault("ABRG_SOURCE", "-"),
		Columns:         splitList(os.Getenv("ABRG_COLUMNS")),
		TrieCache:       envIntOrDefault("ABRG_TRIE_CACHE", 256),
		MetricsAddr:     os.Getenv("ABRG_METRICS_ADDR"),
		CatalogBaseURL:  envOrDefault("ABRG_CATALOG_URL", "https://catalog.registries.digital.go.jp/rc"),
		DownloadTimeout: timeout,
		MaxInFlight:     envIntOrDefault("ABRG_MAX_IN_FLIGHT", 10),
		CacheEntries:    envIntOrDefault("ABRG_CACHE_ENTRIES", 1024),
		KafkaBrokers:    splitList(os.Getenv("ABRG_KAFKA_BROKERS")),
		KafkaTopic:      envOrDefault("ABRG_KAFKA_TOPIC", "geocoded-addresses"),
		LogLevel:        envOrDefault("ABRG_LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("ABRG_LOG_FORMAT", "text"),
		ShutdownTimeout: shutdown,
	}
	return cfg, nil
}

// Validate checks the assembled configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data dir is required")
	}
	switch c.Format {
	case FormatCSV, FormatJSON, FormatNDJSON:
	default:
		return fmt.Errorf("unknown output format %q", c.Format)
	}
	if c.ResourceID == "" {
		return errors.New("resource id is required")
	}
	if c.MaxInFlight < 1 {
		return errors.New("max in-flight downloads must be at least 1")
	}
	return nil
}

// DatabasePath returns the location of the reference SQLite database inside
// the data dir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "abr.sqlite")
}

// CacheDir returns the download cache location inside the data dir.
func (c *Config) CacheDir() string {
	return filepath.Join(c.DataDir, "cache")
}

// SetFuzzy parses a --fuzzy flag value into the wildcard rune.
func (c *Config) SetFuzzy(s string) error {
	r, err := parseFuzzy(s)
	if err != nil {
		return err
	}
	c.Fuzzy = r
	return nil
}

func parseFuzzy(s string) (rune, error) {
	if s == "" {
		return 0, nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("fuzzy wildcard must be a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".abr-geocoder"
	}
	return filepath.Join(home, ".abr-geocoder")
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	s := envOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
