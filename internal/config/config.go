// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.chatviz/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Agent: remote agent endpoint and fallback model selection
//   - Extraction: chart extraction thresholds and the LLM fallback switch
//   - Storage: PostgreSQL connection for session history (see storage.go)
//   - Telemetry: OTLP trace export (optional)
//
// Error Handling:
//   - Uses sentinel errors for checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidAgentURL indicates the agent base URL is invalid.
	ErrInvalidAgentURL = errors.New("invalid agent URL")

	// ErrInvalidModelName indicates the fallback model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidConfidenceFloor indicates the extraction confidence floor is
	// out of range.
	ErrInvalidConfidenceFloor = errors.New("invalid confidence floor")

	// ErrInvalidMaxPatterns indicates the per-message pattern cap is out of
	// range.
	ErrInvalidMaxPatterns = errors.New("invalid max patterns")

	// ErrInvalidFallbackTimeout indicates the fallback timeout is out of range.
	ErrInvalidFallbackTimeout = errors.New("invalid fallback timeout")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is
	// invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidServeAddr indicates the serve listen address is invalid.
	ErrInvalidServeAddr = errors.New("invalid serve address")
)

const (
	// DefaultFallbackModel is the model consulted when pattern detection
	// scores low.
	DefaultFallbackModel = "googleai/gemini-2.5-flash"

	// DefaultConfidenceFloor is the minimum detection confidence surfaced to
	// consumers.
	DefaultConfidenceFloor = 0.75

	// DefaultMaxPatterns caps how many chart candidates one message yields.
	DefaultMaxPatterns = 3

	// DefaultFallbackTimeout bounds one LLM fallback extraction.
	DefaultFallbackTimeout = 15 * time.Second
)

// Config stores application configuration.
// Sensitive fields are explicitly masked in MarshalJSON(); when adding new
// ones (passwords, API keys, tokens) update MarshalJSON.
type Config struct {
	// Remote agent configuration
	AgentURL     string `mapstructure:"agent_url" json:"agent_url"`
	SystemPrompt string `mapstructure:"system_prompt" json:"system_prompt"`

	// LLM fallback configuration for chart extraction
	ModelName       string        `mapstructure:"model_name" json:"model_name"`
	EnableFallback  bool          `mapstructure:"enable_fallback" json:"enable_fallback"`
	ConfidenceFloor float64       `mapstructure:"confidence_floor" json:"confidence_floor"`
	MaxPatterns     int           `mapstructure:"max_patterns" json:"max_patterns"`
	FallbackTimeout time.Duration `mapstructure:"fallback_timeout" json:"fallback_timeout"`

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Serve mode configuration
	ServeAddr string `mapstructure:"serve_addr" json:"serve_addr"`

	// Telemetry configuration. Empty endpoint disables trace export.
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	Environment  string `mapstructure:"environment" json:"environment"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".chatviz")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is not an error, defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings when set.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	viper.SetDefault("agent_url", "http://localhost:8787")
	viper.SetDefault("model_name", DefaultFallbackModel)

	viper.SetDefault("enable_fallback", false)
	viper.SetDefault("confidence_floor", DefaultConfidenceFloor)
	viper.SetDefault("max_patterns", DefaultMaxPatterns)
	viper.SetDefault("fallback_timeout", DefaultFallbackTimeout)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "chatviz")
	viper.SetDefault("postgres_password", "chatviz_dev_password")
	viper.SetDefault("postgres_db_name", "chatviz")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("serve_addr", "127.0.0.1:3400")

	viper.SetDefault("otlp_endpoint", "")
	viper.SetDefault("environment", "dev")
}

// bindEnvVariables binds environment variable overrides explicitly.
//
// GEMINI_API_KEY is read directly by Genkit, not via Viper; its presence is
// checked in Validate() only when the fallback is enabled. CHATVIZ_AGENT_TOKEN
// is read by the credentials package.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("agent_url", "CHATVIZ_AGENT_URL")
	mustBind("model_name", "CHATVIZ_MODEL_NAME")
	mustBind("enable_fallback", "CHATVIZ_ENABLE_FALLBACK")
	mustBind("serve_addr", "CHATVIZ_SERVE_ADDR")
	mustBind("otlp_endpoint", "CHATVIZ_OTLP_ENDPOINT")
	mustBind("environment", "CHATVIZ_ENVIRONMENT")
}

// maskedValue is the placeholder for masked sensitive data. Full-width
// blocks avoid substring matching against the real secret.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of 8 chars or
// fewer are fully masked; longer ones keep the first and last 2 characters
// for debug utility. This defends against accidental logging, nothing more.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field
// masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
