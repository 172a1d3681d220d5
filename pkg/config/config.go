package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for classlens-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3660"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	// Authentication configuration
	Auth AuthConfig `yaml:"auth"`

	// Database configuration (PostgreSQL: roster + credentials)
	Database DatabaseConfig `yaml:"database"`

	// Redis configuration (attendance record store)
	Redis RedisConfig `yaml:"redis"`

	// Recognition pipeline tuning
	Recognition RecognitionConfig `yaml:"recognition"`

	// Fallback vision service
	Vision VisionConfig `yaml:"vision"`

	// Encryption key for stored credentials (the vision API key).
	// Base64-encoded 32-byte key or any passphrase. Generate with:
	// openssl rand -base64 32. Server will fail to start if unset.
	CredentialsKey string `yaml:"-" env:"CREDENTIALS_KEY"` // Secret - not in YAML
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT tokens are validated.
	// Set to false for local development without an auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"false"`

	// JWKSURL is the JSON Web Key Set endpoint used to verify bearer
	// tokens when verification is enabled.
	JWKSURL string `yaml:"jwks_url" env:"AUTH_JWKS_URL" env-default:""`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"classlens"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"classlens_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// RedisConfig holds the attendance record store configuration.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// RecognitionConfig tunes the matching and escalation pipeline.
// Defaults mirror the thresholds the pipeline was calibrated with;
// change them only with representative sheet photos at hand.
type RecognitionConfig struct {
	// ConfidenceThreshold is the minimum similarity for a fuzzy match
	// to mark a student present. Single-threshold: below it a match is
	// treated identically to no match.
	ConfidenceThreshold float64 `yaml:"confidence_threshold" env:"RECOGNITION_CONFIDENCE_THRESHOLD" env-default:"0.75"`

	// EscalationLowBar is the secondary confidence bar for the
	// escalation policy: escalate when zero matches were produced or
	// more than half of them score below this bar.
	EscalationLowBar float64 `yaml:"escalation_low_bar" env:"RECOGNITION_ESCALATION_LOW_BAR" env-default:"0.75"`

	// ShortfallTolerance and ExcessTolerance gate the advisory
	// detected-vs-present mismatch flag. The asymmetry (1 vs 3) is
	// empirical: a shortfall usually means a missed OCR match, while a
	// small excess is routine matcher generosity.
	ShortfallTolerance int `yaml:"shortfall_tolerance" env:"RECOGNITION_SHORTFALL_TOLERANCE" env-default:"1"`
	ExcessTolerance    int `yaml:"excess_tolerance" env:"RECOGNITION_EXCESS_TOLERANCE" env-default:"3"`

	// RetentionDays is the rolling window for persisted records.
	RetentionDays int `yaml:"retention_days" env:"RECOGNITION_RETENTION_DAYS" env-default:"30"`

	// OCRLanguage is the Tesseract language pack for the local pass.
	OCRLanguage string `yaml:"ocr_language" env:"RECOGNITION_OCR_LANGUAGE" env-default:"eng"`
}

// VisionConfig holds the fallback vision service configuration. The
// API key itself lives in the credential store, not here.
type VisionConfig struct {
	// Provider selects the fallback backend: "openai" (any
	// OpenAI-compatible vision endpoint) or "anthropic".
	Provider string `yaml:"provider" env:"VISION_PROVIDER" env-default:"openai"`

	// Endpoint is the base URL for OpenAI-compatible providers.
	Endpoint string `yaml:"endpoint" env:"VISION_ENDPOINT" env-default:"https://api.openai.com/v1"`

	// Model is the vision-capable model name.
	Model string `yaml:"model" env:"VISION_MODEL" env-default:"gpt-4o"`

	// AutoEscalate runs the fallback pass automatically when the
	// escalation policy fires. When false the decision is surfaced to
	// the caller as an offer instead.
	AutoEscalate bool `yaml:"auto_escalate" env:"VISION_AUTO_ESCALATE" env-default:"false"`

	// TimeoutSeconds bounds one fallback network call.
	TimeoutSeconds int `yaml:"timeout_seconds" env:"VISION_TIMEOUT_SECONDS" env-default:"60"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time and set on
// the returned Config. Secrets (PGPASSWORD, REDIS_PASSWORD,
// CREDENTIALS_KEY) must come from environment variables (yaml:"-" fields).
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.validateTLS(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}

	if err := cfg.validateRecognition(); err != nil {
		return nil, fmt.Errorf("invalid recognition configuration: %w", err)
	}

	// Auto-derive BaseURL from Port if not explicitly set
	if cfg.BaseURL == "" {
		scheme := "http"
		if cfg.TLSCertPath != "" {
			scheme = "https"
		}
		cfg.BaseURL = (&url.URL{
			Scheme: scheme,
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

// validateRecognition rejects thresholds outside [0,1] and negative
// tolerances before the pipeline ever sees them.
func (c *Config) validateRecognition() error {
	r := &c.Recognition
	if r.ConfidenceThreshold < 0 || r.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be in [0,1], got %v", r.ConfidenceThreshold)
	}
	if r.EscalationLowBar < 0 || r.EscalationLowBar > 1 {
		return fmt.Errorf("escalation_low_bar must be in [0,1], got %v", r.EscalationLowBar)
	}
	if r.ShortfallTolerance < 0 || r.ExcessTolerance < 0 {
		return fmt.Errorf("mismatch tolerances must be non-negative")
	}
	if r.RetentionDays <= 0 {
		return fmt.Errorf("retention_days must be positive, got %d", r.RetentionDays)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
