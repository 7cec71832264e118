// ABOUTME: Configuration loading and parsing for passgate
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MinSecretLength mirrors the token codec's minimum secret length.
const MinSecretLength = 32

// Config represents the complete passgate configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Routes  RoutesConfig  `yaml:"routes"`
	Audit   AuditConfig   `yaml:"audit"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	// BasePath is the URL prefix routes are served under. Must start and end with "/".
	BasePath string `yaml:"base_path"`

	ShutdownTimeout    time.Duration `yaml:"-"`
	ShutdownTimeoutRaw string        `yaml:"shutdown_timeout"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	SecretKey string `yaml:"secret_key"`
	Realm     string `yaml:"realm"`
}

// RoutesConfig holds the content tree location
type RoutesConfig struct {
	Dir string `yaml:"dir"`
	// Watch reloads route auth when files under Dir change.
	Watch bool `yaml:"watch"`

	WatchDebounce    time.Duration `yaml:"-"`
	WatchDebounceRaw string        `yaml:"watch_debounce"`
}

// AuditConfig holds the audit log database location. An empty path disables it.
type AuditConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from raw YAML, applying env expansion, defaults
// and validation.
func Parse(data []byte) (*Config, error) {
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.BasePath == "" {
		c.Server.BasePath = "/"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 5 * time.Second
	}
	if c.Routes.WatchDebounce == 0 {
		c.Routes.WatchDebounce = 500 * time.Millisecond
	}
	if c.Auth.Realm == "" {
		c.Auth.Realm = "passgate"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if !strings.HasPrefix(c.Server.BasePath, "/") || !strings.HasSuffix(c.Server.BasePath, "/") {
		return fmt.Errorf("server.base_path %q must start and end with /", c.Server.BasePath)
	}

	if c.Auth.SecretKey == "" {
		return fmt.Errorf("auth.secret_key is required")
	}
	if len(c.Auth.SecretKey) < MinSecretLength {
		return fmt.Errorf("auth.secret_key must be at least %d bytes", MinSecretLength)
	}
	if strings.ContainsAny(c.Auth.Realm, "\"\\\r\n") {
		return fmt.Errorf("auth.realm must not contain quotes, backslashes or newlines")
	}

	if c.Routes.Dir == "" {
		return fmt.Errorf("routes.dir is required")
	}
	if c.Routes.WatchDebounce < 0 {
		return fmt.Errorf("routes.watch_debounce must not be negative")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Server.ShutdownTimeoutRaw != "" {
		cfg.Server.ShutdownTimeout, err = time.ParseDuration(cfg.Server.ShutdownTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing shutdown_timeout %q: %w", cfg.Server.ShutdownTimeoutRaw, err)
		}
	}

	if cfg.Routes.WatchDebounceRaw != "" {
		cfg.Routes.WatchDebounce, err = time.ParseDuration(cfg.Routes.WatchDebounceRaw)
		if err != nil {
			return fmt.Errorf("parsing watch_debounce %q: %w", cfg.Routes.WatchDebounceRaw, err)
		}
	}

	return nil
}
