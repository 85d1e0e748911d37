// Package config loads service configuration from an optional YAML file,
// defaults and environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. RECEIPTS_SERVER_PORT.
const EnvPrefix = "RECEIPTS"

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Oracle    OracleConfig    `mapstructure:"oracle"`
	Export    ExportConfig    `mapstructure:"export"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	GCP       GCPConfig       `mapstructure:"gcp"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StoreConfig selects the document store backend.
type StoreConfig struct {
	Backend    string `mapstructure:"backend"`
	SQLitePath string `mapstructure:"sqlite_path"`
	Dataset    string `mapstructure:"dataset"`
}

// OracleConfig configures the classification and summary model.
type OracleConfig struct {
	Provider     string        `mapstructure:"provider"`
	Model        string        `mapstructure:"model"`
	GeminiAPIKey string        `mapstructure:"gemini_api_key"`
	OpenAIAPIKey string        `mapstructure:"openai_api_key"`
	Temperature  float32       `mapstructure:"temperature"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// APIKey returns the key of the selected provider.
func (o OracleConfig) APIKey() string {
	if o.Provider == "openai" {
		return o.OpenAIAPIKey
	}
	return o.GeminiAPIKey
}

// ExportConfig configures where exports are written.
type ExportConfig struct {
	Backend string        `mapstructure:"backend"`
	Bucket  string        `mapstructure:"bucket"`
	Prefix  string        `mapstructure:"prefix"`
	Format  string        `mapstructure:"format"`
	URLTTL  time.Duration `mapstructure:"url_ttl"`
}

// AnalyticsConfig holds aggregation settings.
type AnalyticsConfig struct {
	Timezone string `mapstructure:"timezone"`
}

// Location resolves Timezone; an invalid name yields UTC.
func (a AnalyticsConfig) Location() *time.Location {
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GCPConfig holds Google Cloud settings shared by BigQuery and Cloud Storage.
type GCPConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// Load loads configuration from file and environment variables. An empty
// configPath skips the file.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)

	// Store defaults
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.sqlite_path", "./data/receipts.db")
	v.SetDefault("store.dataset", "receipts")

	// Oracle defaults
	v.SetDefault("oracle.provider", "gemini")
	v.SetDefault("oracle.model", "")
	v.SetDefault("oracle.gemini_api_key", "")
	v.SetDefault("oracle.openai_api_key", "")
	v.SetDefault("oracle.temperature", 0.1)
	v.SetDefault("oracle.max_tokens", 2048)
	v.SetDefault("oracle.timeout", 60*time.Second)

	// Export defaults
	v.SetDefault("export.backend", "memory")
	v.SetDefault("export.bucket", "")
	v.SetDefault("export.prefix", "")
	v.SetDefault("export.format", "csv")
	v.SetDefault("export.url_ttl", 10*time.Minute)

	v.SetDefault("analytics.timezone", "UTC")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")

	v.SetDefault("gcp.project_id", "")
	v.SetDefault("gcp.credentials_file", "")
}

// bindEnvVars binds the conventional unprefixed variables for secrets and
// Google Cloud settings. The prefixed form still wins when both are set.
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string][]string{
		"oracle.gemini_api_key": {"RECEIPTS_ORACLE_GEMINI_API_KEY", "GEMINI_API_KEY"},
		"oracle.openai_api_key": {"RECEIPTS_ORACLE_OPENAI_API_KEY", "OPENAI_API_KEY"},
		"gcp.project_id":        {"RECEIPTS_GCP_PROJECT_ID", "GOOGLE_CLOUD_PROJECT"},
		"gcp.credentials_file":  {"RECEIPTS_GCP_CREDENTIALS_FILE", "GOOGLE_APPLICATION_CREDENTIALS"},
		"export.bucket":         {"RECEIPTS_EXPORT_BUCKET", "GCS_BUCKET"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errors []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid server.port %d: must be between 1 and 65535", c.Server.Port))
	}

	switch c.Store.Backend {
	case "memory":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errors = append(errors, "store.sqlite_path cannot be empty when using sqlite backend")
		}
	case "bigquery":
		if c.GCP.ProjectID == "" {
			errors = append(errors, "gcp.project_id is required when using bigquery backend")
		}
		if c.Store.Dataset == "" {
			errors = append(errors, "store.dataset is required when using bigquery backend")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid store.backend '%s': must be one of [memory sqlite bigquery]", c.Store.Backend))
	}

	switch c.Oracle.Provider {
	case "gemini":
	case "openai":
		if c.Oracle.OpenAIAPIKey == "" {
			errors = append(errors, "oracle.openai_api_key (or OPENAI_API_KEY) is required for the openai provider")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid oracle.provider '%s': must be one of [gemini openai]", c.Oracle.Provider))
	}
	if c.Oracle.Temperature < 0 || c.Oracle.Temperature > 2 {
		errors = append(errors, fmt.Sprintf("invalid oracle.temperature %v: must be between 0 and 2", c.Oracle.Temperature))
	}
	if c.Oracle.MaxTokens < 1 {
		errors = append(errors, fmt.Sprintf("invalid oracle.max_tokens %d: must be at least 1", c.Oracle.MaxTokens))
	}
	if c.Oracle.Timeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid oracle.timeout %v: must be positive", c.Oracle.Timeout))
	}

	switch c.Export.Backend {
	case "memory":
	case "gcs":
		if c.Export.Bucket == "" {
			errors = append(errors, "export.bucket (or GCS_BUCKET) is required when using gcs backend")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid export.backend '%s': must be one of [memory gcs]", c.Export.Backend))
	}
	if c.Export.Format != "csv" && c.Export.Format != "xlsx" {
		errors = append(errors, fmt.Sprintf("invalid export.format '%s': must be csv or xlsx", c.Export.Format))
	}
	if c.Export.URLTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid export.url_ttl %v: must be positive", c.Export.URLTTL))
	}

	if _, err := time.LoadLocation(c.Analytics.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid analytics.timezone '%s': %v", c.Analytics.Timezone, err))
	}

	if _, err := zerolog.ParseLevel(c.Logger.Level); err != nil {
		errors = append(errors, fmt.Sprintf("invalid logger.level '%s'", c.Logger.Level))
	}
	if c.Logger.Format != "console" && c.Logger.Format != "json" {
		errors = append(errors, fmt.Sprintf("invalid logger.format '%s': must be console or json", c.Logger.Format))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}
