package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/prsum/internal/providers"
	"github.com/dshills/prsum/internal/summary"
)

//go:embed sample_config.toml
var sampleConfig string

// Config represents the prsum configuration.
type Config struct {
	Provider string `toml:"provider"`
	// Model is empty to use the provider's default.
	Model string `toml:"model"`
	// BaseBranch is empty to auto-detect main/master.
	BaseBranch          string        `toml:"base_branch"`
	MaxFiles            int           `toml:"max_files"`
	TimeoutSeconds      int           `toml:"timeout_seconds"`
	RetryTimeoutSeconds int           `toml:"retry_timeout_seconds"`
	Concurrency         int           `toml:"concurrency"`
	Temperature         float64       `toml:"temperature"`
	OverallTemperature  float64       `toml:"overall_temperature"`
	MaxTokens           int           `toml:"max_tokens"`
	OverallMaxTokens    int           `toml:"overall_max_tokens"`
	MaxDiffLines        int           `toml:"max_diff_lines"`
	Format              string        `toml:"format"`
	Exclude             []string      `toml:"exclude"`
	ExcludeGlobs        []string      `toml:"exclude_globs"`
	ValidateCoverage    bool          `toml:"validate_coverage"`
	Store               StoreConfig   `toml:"store"`
	Cache               CacheConfig   `toml:"cache"`
	Privacy             PrivacyConfig `toml:"privacy"`
	Log                 LogConfig     `toml:"log"`
}

// StoreConfig controls report persistence.
type StoreConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// CacheConfig controls caching behavior.
type CacheConfig struct {
	Enabled    bool   `toml:"enabled"`
	Dir        string `toml:"dir"`
	TTLSeconds int    `toml:"ttl_seconds"`
}

// PrivacyConfig controls privacy/redaction behavior.
type PrivacyConfig struct {
	RedactSecrets bool     `toml:"redact_secrets"`
	RedactPaths   []string `toml:"redact_paths"`
}

// LogConfig controls diagnostic logging.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Formats lists the accepted output formats.
var Formats = []string{"text", "markdown", "json", "html"}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Provider:            "anthropic",
		MaxFiles:            10,
		TimeoutSeconds:      200,
		RetryTimeoutSeconds: 600,
		Concurrency:         1,
		Temperature:         0.3,
		OverallTemperature:  0.5,
		MaxTokens:           500,
		OverallMaxTokens:    1000,
		MaxDiffLines:        150,
		Format:              "text",
		Exclude:             summary.DefaultExclusions(),
		ValidateCoverage:    true,
		Store: StoreConfig{
			Enabled: true,
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTLSeconds: 86400,
		},
		Privacy: PrivacyConfig{
			RedactSecrets: true,
			RedactPaths:   []string{"**/.env", "**/*secrets*"},
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Timeout is the per-file summarisation timeout.
func (c Config) Timeout() time.Duration { return time.Duration(c.TimeoutSeconds) * time.Second }

// RetryTimeout is the timeout used when retrying failed files.
func (c Config) RetryTimeout() time.Duration {
	return time.Duration(c.RetryTimeoutSeconds) * time.Second
}

// Validate rejects settings no command can run with.
func (c Config) Validate() error {
	var problems []string
	if !slices.Contains(providers.Names(), c.Provider) {
		problems = append(problems, fmt.Sprintf("unknown provider %q", c.Provider))
	}
	if !slices.Contains(Formats, c.Format) {
		problems = append(problems, fmt.Sprintf("format must be one of %s", strings.Join(Formats, ", ")))
	}
	if c.MaxFiles <= 0 {
		problems = append(problems, "max_files must be positive")
	}
	if c.TimeoutSeconds <= 0 || c.RetryTimeoutSeconds <= 0 {
		problems = append(problems, "timeouts must be positive")
	}
	if c.Concurrency < 1 {
		problems = append(problems, "concurrency must be at least 1")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ConfigDir returns the platform-appropriate config directory for prsum.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "prsum"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "prsum"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "prsum"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "prsum"), nil
	default:
		return filepath.Join(home, ".config", "prsum"), nil
	}
}

// DataDir returns where persisted reports live.
func DataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "prsum"), nil
	}
	if runtime.GOOS != "linux" {
		return ConfigDir()
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "prsum"), nil
}

// StorePath returns the configured report database path or its default.
func (c Config) StorePath() (string, error) {
	if c.Store.Path != "" {
		return c.Store.Path, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "reports.db"), nil
}

// ConfigPath returns the full path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// SampleConfig returns the commented sample written by "config init".
func SampleConfig() string {
	return sampleConfig
}

// loadFile decodes the config file onto cfg so that keys missing from the
// file keep their current values. A missing file is not an error.
func loadFile(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// LoadFile returns the defaults overlaid with the config file.
func LoadFile() (Config, error) {
	cfg := Default()
	if err := loadFile(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes the config to the config file.
func Save(cfg Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Load builds the effective config by merging: defaults <- file <- env <- overrides.
// The overrides map comes from CLI flags (only non-zero values should be set).
func Load(overrides map[string]string) (Config, error) {
	cfg, err := LoadFile()
	if err != nil {
		return Config{}, err
	}
	if err := mergeEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := mergeOverrides(&cfg, overrides); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKeys maps environment variables onto SetField keys.
var envKeys = []struct {
	env string
	key string
}{
	{"PRSUM_PROVIDER", "provider"},
	{"PRSUM_MODEL", "model"},
	{"PRSUM_BASE", "base_branch"},
	{"PRSUM_FORMAT", "format"},
	{"PRSUM_MAX_FILES", "max_files"},
	{"PRSUM_TIMEOUT", "timeout_seconds"},
	{"PRSUM_RETRY_TIMEOUT", "retry_timeout_seconds"},
	{"PRSUM_CONCURRENCY", "concurrency"},
	{"PRSUM_LOG_LEVEL", "log.level"},
	{"PRSUM_LOG_FORMAT", "log.format"},
	{"PRSUM_STORE_PATH", "store.path"},
}

func mergeEnv(cfg *Config) error {
	for _, e := range envKeys {
		v := os.Getenv(e.env)
		if v == "" {
			continue
		}
		if err := SetField(cfg, e.key, v); err != nil {
			return fmt.Errorf("%s: %w", e.env, err)
		}
	}
	return nil
}

func mergeOverrides(cfg *Config, overrides map[string]string) error {
	for key, v := range overrides {
		if v == "" {
			continue
		}
		if err := SetField(cfg, key, v); err != nil {
			return err
		}
	}
	return nil
}

// SetField sets a single config field by key name. Returns error if key is unknown.
func SetField(cfg *Config, key, value string) error {
	switch key {
	case "provider":
		cfg.Provider = value
	case "model":
		cfg.Model = value
	case "base_branch":
		cfg.BaseBranch = value
	case "format":
		cfg.Format = value
	case "max_files":
		return setInt(&cfg.MaxFiles, key, value)
	case "timeout_seconds":
		return setInt(&cfg.TimeoutSeconds, key, value)
	case "retry_timeout_seconds":
		return setInt(&cfg.RetryTimeoutSeconds, key, value)
	case "concurrency":
		return setInt(&cfg.Concurrency, key, value)
	case "max_tokens":
		return setInt(&cfg.MaxTokens, key, value)
	case "overall_max_tokens":
		return setInt(&cfg.OverallMaxTokens, key, value)
	case "max_diff_lines":
		return setInt(&cfg.MaxDiffLines, key, value)
	case "temperature":
		return setFloat(&cfg.Temperature, key, value)
	case "overall_temperature":
		return setFloat(&cfg.OverallTemperature, key, value)
	case "validate_coverage":
		return setBool(&cfg.ValidateCoverage, key, value)
	case "exclude":
		cfg.Exclude = splitList(value)
	case "exclude_globs":
		cfg.ExcludeGlobs = splitList(value)
	case "store.enabled":
		return setBool(&cfg.Store.Enabled, key, value)
	case "store.path":
		cfg.Store.Path = value
	case "cache.enabled":
		return setBool(&cfg.Cache.Enabled, key, value)
	case "cache.dir":
		cfg.Cache.Dir = value
	case "cache.ttl_seconds":
		return setInt(&cfg.Cache.TTLSeconds, key, value)
	case "privacy.redact_secrets":
		return setBool(&cfg.Privacy.RedactSecrets, key, value)
	case "privacy.redact_paths":
		cfg.Privacy.RedactPaths = splitList(value)
	case "log.level":
		cfg.Log.Level = value
	case "log.format":
		cfg.Log.Format = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

func setInt(dst *int, key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s must be an integer: %w", key, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key, value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("%s must be a number: %w", key, err)
	}
	*dst = f
	return nil
}

func setBool(dst *bool, key, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("%s must be true or false: %w", key, err)
	}
	*dst = b
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
