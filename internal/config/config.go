// Package config handles application configuration loading from environment variables.
package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	contextutils "questionbank/internal/utils"

	"gopkg.in/yaml.v3"
)

// AuthConfig represents authentication-related configuration
type AuthConfig struct {
	SignupsDisabled bool     `json:"signups_disabled" yaml:"signups_disabled"`
	AllowedDomains  []string `json:"allowed_domains,omitempty" yaml:"allowed_domains,omitempty"`
	AllowedEmails   []string `json:"allowed_emails,omitempty" yaml:"allowed_emails,omitempty"`
}

// SystemConfig represents system-wide configuration
type SystemConfig struct {
	Auth AuthConfig `json:"auth" yaml:"auth"`
}

// ModerationConfig represents moderation workflow configuration
type ModerationConfig struct {
	// QueuePageSize is the default number of items returned by the review queue
	QueuePageSize int `json:"queue_page_size" yaml:"queue_page_size"`
	// FlaggedPriorityBoost is added to the priority score of flagged questions
	// so they sort ahead of first-time submissions
	FlaggedPriorityBoost float64 `json:"flagged_priority_boost" yaml:"flagged_priority_boost"`
	// OpenFlagWeight is the per-open-flag contribution to the priority score
	OpenFlagWeight float64 `json:"open_flag_weight" yaml:"open_flag_weight"`
	// MaxBatchSize limits how many questions a single batch operation may touch
	MaxBatchSize int `json:"max_batch_size" yaml:"max_batch_size"`
}

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server" yaml:"server"`

	// Database configuration
	Database DatabaseConfig `json:"database" yaml:"database"`

	// Moderation workflow configuration
	Moderation ModerationConfig `json:"moderation" yaml:"moderation"`

	System *SystemConfig `json:"system,omitempty" yaml:"system,omitempty"`

	// OpenTelemetry Configuration
	OpenTelemetry OpenTelemetryConfig `json:"open_telemetry" yaml:"open_telemetry"`

	// Email Configuration
	Email EmailConfig `json:"email" yaml:"email"`

	// Internal fields
	IsTest bool `json:"is_test" yaml:"is_test"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port          string   `json:"port" yaml:"port"`
	AdminUsername string   `json:"admin_username" yaml:"admin_username"`
	AdminPassword string   `json:"admin_password" yaml:"admin_password"`
	SessionSecret string   `json:"session_secret" yaml:"session_secret"`
	Debug         bool     `json:"debug" yaml:"debug"`
	LogLevel      string   `json:"log_level" yaml:"log_level"`
	AppBaseURL    string   `json:"app_base_url" yaml:"app_base_url"`
	CORSOrigins   []string `json:"cors_origins" yaml:"cors_origins"`
}

// QueuePageSize returns the configured queue page size or the default
func (c *Config) QueuePageSize() int {
	if c.Moderation.QueuePageSize > 0 {
		return c.Moderation.QueuePageSize
	}
	return DefaultQueuePageSize
}

// MaxBatchSize returns the configured batch size limit or the default
func (c *Config) MaxBatchSize() int {
	if c.Moderation.MaxBatchSize > 0 {
		return c.Moderation.MaxBatchSize
	}
	return DefaultMaxBatchSize
}

// IsSignupDisabled returns whether signups are disabled based on configuration
func (c *Config) IsSignupDisabled() bool {
	if c.System == nil {
		return false // Default to enabled if no config
	}
	return c.System.Auth.SignupsDisabled
}

// IsEmailAllowed checks if an email is allowed for signup override
func (c *Config) IsEmailAllowed(email string) bool {
	if c.System == nil || c.System.Auth.AllowedEmails == nil {
		return false
	}

	normalizedEmail := strings.ToLower(strings.TrimSpace(email))
	for _, allowedEmail := range c.System.Auth.AllowedEmails {
		if strings.ToLower(strings.TrimSpace(allowedEmail)) == normalizedEmail {
			return true
		}
	}
	return false
}

// IsDomainAllowed checks if a domain is allowed for signup override
func (c *Config) IsDomainAllowed(domain string) bool {
	if c.System == nil || c.System.Auth.AllowedDomains == nil {
		return false
	}

	normalizedDomain := strings.ToLower(strings.TrimSpace(domain))
	for _, allowedDomain := range c.System.Auth.AllowedDomains {
		if strings.ToLower(strings.TrimSpace(allowedDomain)) == normalizedDomain {
			return true
		}
	}
	return false
}

// IsSignupAllowed checks if signup is allowed for a given email
func (c *Config) IsSignupAllowed(email string) bool {
	if c.System == nil {
		return true
	}

	// If signups are not disabled, signup is always allowed
	if !c.System.Auth.SignupsDisabled {
		return true
	}

	// If signups are disabled, check whitelist
	normalizedEmail := strings.ToLower(strings.TrimSpace(email))

	if !contextutils.IsValidEmail(normalizedEmail) {
		return false
	}

	if c.IsEmailAllowed(normalizedEmail) {
		return true
	}

	parts := strings.Split(normalizedEmail, "@")
	domain := parts[1]
	return c.IsDomainAllowed(domain)
}

// OpenTelemetryConfig holds all OpenTelemetry-related configuration
type OpenTelemetryConfig struct {
	Endpoint       string            `json:"endpoint" yaml:"endpoint"`               // Default: "http://localhost:4317"
	Protocol       string            `json:"protocol" yaml:"protocol"`               // "grpc" or "http", default: "grpc"
	Insecure       bool              `json:"insecure" yaml:"insecure"`               // Default: true (for localhost)
	Headers        map[string]string `json:"headers" yaml:"headers"`                 // For authenticated endpoints
	ServiceName    string            `json:"service_name" yaml:"service_name"`       // Default: "questionbank-backend"
	ServiceVersion string            `json:"service_version" yaml:"service_version"` // From version package
	EnableTracing  bool              `json:"enable_tracing" yaml:"enable_tracing"`   // Default: true
	EnableMetrics  bool              `json:"enable_metrics" yaml:"enable_metrics"`   // Default: true
	EnableLogging  bool              `json:"enable_logging" yaml:"enable_logging"`   // Default: true
	SamplingRate   float64           `json:"sampling_rate" yaml:"sampling_rate"`     // Default: 1.0 (100%)
	UseAutoSDK     bool              `json:"use_auto_sdk" yaml:"use_auto_sdk"`       // Use the zero-code auto SDK tracer provider

}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL             string        `json:"url" yaml:"url"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`       // Maximum number of open connections to the database
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`       // Maximum number of idle connections in the pool
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"` // Maximum amount of time a connection may be reused
}

// EmailConfig represents email/SMTP configuration
type EmailConfig struct {
	SMTP    SMTPConfig `json:"smtp" yaml:"smtp"`
	Enabled bool       `json:"enabled" yaml:"enabled"`
}

// SMTPConfig represents SMTP server configuration
type SMTPConfig struct {
	Host        string `json:"host" yaml:"host"`
	Port        int    `json:"port" yaml:"port"`
	Username    string `json:"username" yaml:"username"`
	Password    string `json:"password" yaml:"password"`
	FromAddress string `json:"from_address" yaml:"from_address"`
	FromName    string `json:"from_name" yaml:"from_name"`
}

// NewConfig loads configuration from YAML file first, then overrides with environment variables
func NewConfig() (result0 *Config, err error) {
	// Load config from YAML file
	config, err := loadConfigWithOverrides()
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load config: %w", err)
	}

	// Override with environment variables
	config.overrideFromEnv()

	return config, nil
}

// overrideFromEnv overrides config values with environment variables using reflection
func (c *Config) overrideFromEnv() {
	overrideStructFromEnv(c)
}

// overrideStructFromEnv recursively overrides struct fields with environment variables
func overrideStructFromEnv(v interface{}) {
	overrideStructFromEnvWithPrefix(v, "")
}

// overrideStructFromEnvWithPrefix recursively overrides struct fields with environment variables
func overrideStructFromEnvWithPrefix(v interface{}, prefix string) {
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return
	}

	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		// Skip unexported fields
		if !field.CanSet() {
			continue
		}

		// Get the yaml tag for the field
		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}

		// Convert yaml tag to environment variable name
		envKey := strings.ToUpper(strings.ReplaceAll(yamlTag, "-", "_"))
		if prefix != "" {
			envKey = prefix + "_" + envKey
		}

		switch field.Kind() {
		case reflect.String:
			if envVal := os.Getenv(envKey); envVal != "" {
				field.SetString(envVal)
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if envVal := os.Getenv(envKey); envVal != "" {
				if intVal, err := strconv.ParseInt(envVal, 10, 64); err == nil {
					field.SetInt(intVal)
				}
			}
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if envVal := os.Getenv(envKey); envVal != "" {
				if uintVal, err := strconv.ParseUint(envVal, 10, 64); err == nil {
					field.SetUint(uintVal)
				}
			}
		case reflect.Float32, reflect.Float64:
			if envVal := os.Getenv(envKey); envVal != "" {
				if floatVal, err := strconv.ParseFloat(envVal, 64); err == nil {
					field.SetFloat(floatVal)
				}
			}
		case reflect.Bool:
			if envVal := os.Getenv(envKey); envVal != "" {
				if boolVal, err := strconv.ParseBool(envVal); err == nil {
					field.SetBool(boolVal)
				}
			}
		case reflect.Slice:
			if envVal := os.Getenv(envKey); envVal != "" {
				// Handle string slices (like CORS_ORIGINS)
				if field.Type().Elem().Kind() == reflect.String {
					slice := strings.Split(envVal, ",")
					field.Set(reflect.ValueOf(slice))
				}
			}
		case reflect.Struct:
			// Recursively process nested structs with the field name as prefix
			if field.CanAddr() {
				fieldPrefix := strings.ToUpper(strings.ReplaceAll(yamlTag, "-", "_"))
				if prefix != "" {
					fieldPrefix = prefix + "_" + fieldPrefix
				}
				overrideStructFromEnvWithPrefix(field.Addr().Interface(), fieldPrefix)
			}
		case reflect.Ptr:
			// Handle pointer to struct
			if !field.IsNil() && field.Elem().Kind() == reflect.Struct {
				fieldPrefix := strings.ToUpper(strings.ReplaceAll(yamlTag, "-", "_"))
				if prefix != "" {
					fieldPrefix = prefix + "_" + fieldPrefix
				}
				overrideStructFromEnvWithPrefix(field.Interface(), fieldPrefix)
			}
		}
	}
}

// loadConfigWithOverrides loads the config file with potential local overrides
func loadConfigWithOverrides() (result0 *Config, err error) {
	// Try to load from environment variable first
	if envPath := os.Getenv("QB_CONFIG_FILE"); envPath != "" {
		config, err := loadConfigFromFile(envPath)
		if err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load config from %s: %w", envPath, err)
		}
		return config, nil
	}

	// If no environment variable is set, try default config.yaml
	return loadConfigFromFile("config.yaml")
}

// loadConfigFromFile loads configuration from a specific file
func loadConfigFromFile(path string) (result0 *Config, err error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(yamlFile, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
