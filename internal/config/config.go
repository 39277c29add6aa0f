// Package config loads and validates application configuration.
// Values come from an optional TOML file named by CONFIG_FILE, overridden
// by environment variables, then checked with validator struct tags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Defaults to "8080".
	Port string `toml:"port" validate:"required,numeric"`

	// DatabaseURL is the Postgres connection string. Required.
	DatabaseURL string `toml:"database_url"`

	// LogLevel controls the minimum log level. Defaults to "info".
	LogLevel string `toml:"log_level" validate:"oneof=debug info warn error"`

	// CORSOrigins is the list of allowed cross-origin request origins for the
	// review UI. Set CORS_ORIGINS to a comma-separated list to override.
	CORSOrigins []string `toml:"cors_origins" validate:"dive,url"`

	// PublicBaseURL is the scheme and host providers call us on. Signed
	// webhook URLs are rebuilt from it. Required.
	PublicBaseURL string `toml:"public_base_url" validate:"omitempty,url"`

	// MaxBodyBytes caps every request body. Defaults to 1 MiB.
	MaxBodyBytes int64 `toml:"max_body_bytes" validate:"gt=0"`

	Twilio     TwilioConfig     `toml:"twilio"`
	Email      EmailConfig      `toml:"email"`
	Extraction ExtractionConfig `toml:"extraction"`

	// MediaMaxBytes caps each downloaded media item. Defaults to 10 MiB.
	MediaMaxBytes int64         `toml:"media_max_bytes" validate:"gt=0"`
	MediaTimeout  time.Duration `toml:"media_timeout" validate:"gt=0"`

	// SessionTTL is how long a phone number's last trip stays remembered.
	SessionTTL time.Duration `toml:"session_ttl" validate:"gt=0"`
	// SessionSweepSchedule is the cron spec of the expired-session purge.
	SessionSweepSchedule string `toml:"session_sweep_schedule" validate:"required"`

	// ReplyTimeout bounds each outbound reply.
	ReplyTimeout time.Duration `toml:"reply_timeout" validate:"gt=0"`
}

// TwilioConfig covers the SMS, MMS, WhatsApp and voice provider.
type TwilioConfig struct {
	AccountSID   string `toml:"account_sid"`
	AuthToken    string `toml:"auth_token"`
	SMSFrom      string `toml:"sms_from"`
	WhatsAppFrom string `toml:"whatsapp_from"`
	// Edge and Region pick a non-default REST API host for outbound replies.
	Edge   string `toml:"edge"`
	Region string `toml:"region"`
}

// EmailConfig covers the inbound email webhook and the outbound reply sender.
type EmailConfig struct {
	// WebhookSecret enables signature checks on the email webhook when set.
	WebhookSecret string `toml:"webhook_secret"`
	// Provider selects the reply sender: mailgun, smtp or none.
	Provider      string `toml:"provider" validate:"oneof=mailgun smtp none"`
	From          string `toml:"from" validate:"omitempty,email"`
	InboundDomain string `toml:"inbound_domain" validate:"omitempty,fqdn"`

	MailgunDomain string `toml:"mailgun_domain" validate:"required_if=Provider mailgun"`
	MailgunAPIKey string `toml:"mailgun_api_key" validate:"required_if=Provider mailgun"`
	MailgunRegion string `toml:"mailgun_region" validate:"oneof=us eu"`

	SMTPHost     string `toml:"smtp_host" validate:"required_if=Provider smtp"`
	SMTPPort     int    `toml:"smtp_port" validate:"gt=0,lte=65535"`
	SMTPUsername string `toml:"smtp_username"`
	SMTPPassword string `toml:"smtp_password"`
	SMTPSecurity string `toml:"smtp_security" validate:"oneof=starttls tls none"`
}

// ExtractionConfig covers the structured-extraction service.
type ExtractionConfig struct {
	APIKey    string        `toml:"api_key"`
	BaseURL   string        `toml:"base_url" validate:"url"`
	Model     string        `toml:"model" validate:"required"`
	Timeout   time.Duration `toml:"timeout" validate:"gt=0"`
	MaxTokens int           `toml:"max_tokens" validate:"gt=0"`
}

// defaults returns the configuration before any file or env var is applied.
func defaults() Config {
	return Config{
		Port:         "8080",
		LogLevel:     "info",
		CORSOrigins:  []string{"http://localhost:5173"},
		MaxBodyBytes: 1 << 20,
		Email: EmailConfig{
			Provider:      "none",
			MailgunRegion: "us",
			SMTPPort:      587,
			SMTPSecurity:  "starttls",
		},
		Extraction: ExtractionConfig{
			BaseURL:   "https://api.anthropic.com",
			Model:     "claude-sonnet-4-20250514",
			Timeout:   60 * time.Second,
			MaxTokens: 4096,
		},
		MediaMaxBytes:        10 << 20,
		MediaTimeout:         20 * time.Second,
		SessionTTL:           72 * time.Hour,
		SessionSweepSchedule: "@every 1h",
		ReplyTimeout:         15 * time.Second,
	}
}

// Load reads configuration and returns a Config.
// Returns an error listing any required variables that are not set, or the
// first values that fail validation.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	var errs envErrors
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", cfg.LogLevel))
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitCSV(v)
	}
	cfg.PublicBaseURL = strings.TrimRight(getEnv("PUBLIC_BASE_URL", cfg.PublicBaseURL), "/")
	cfg.MaxBodyBytes = errs.parseInt64("MAX_BODY_BYTES", cfg.MaxBodyBytes)

	cfg.Twilio.AccountSID = getEnv("TWILIO_ACCOUNT_SID", cfg.Twilio.AccountSID)
	cfg.Twilio.AuthToken = getEnv("TWILIO_AUTH_TOKEN", cfg.Twilio.AuthToken)
	cfg.Twilio.SMSFrom = getEnv("TWILIO_SMS_FROM", cfg.Twilio.SMSFrom)
	cfg.Twilio.WhatsAppFrom = getEnv("TWILIO_WHATSAPP_FROM", cfg.Twilio.WhatsAppFrom)
	cfg.Twilio.Edge = getEnv("TWILIO_EDGE", cfg.Twilio.Edge)
	cfg.Twilio.Region = getEnv("TWILIO_REGION", cfg.Twilio.Region)

	cfg.Email.WebhookSecret = getEnv("EMAIL_WEBHOOK_SECRET", cfg.Email.WebhookSecret)
	cfg.Email.Provider = strings.ToLower(getEnv("EMAIL_PROVIDER", cfg.Email.Provider))
	cfg.Email.From = getEnv("EMAIL_FROM", cfg.Email.From)
	cfg.Email.InboundDomain = getEnv("INBOUND_EMAIL_DOMAIN", cfg.Email.InboundDomain)
	cfg.Email.MailgunDomain = getEnv("MAILGUN_DOMAIN", cfg.Email.MailgunDomain)
	cfg.Email.MailgunAPIKey = getEnv("MAILGUN_API_KEY", cfg.Email.MailgunAPIKey)
	cfg.Email.MailgunRegion = strings.ToLower(getEnv("MAILGUN_REGION", cfg.Email.MailgunRegion))
	cfg.Email.SMTPHost = getEnv("SMTP_HOST", cfg.Email.SMTPHost)
	cfg.Email.SMTPPort = errs.parseInt("SMTP_PORT", cfg.Email.SMTPPort)
	cfg.Email.SMTPUsername = getEnv("SMTP_USERNAME", cfg.Email.SMTPUsername)
	cfg.Email.SMTPPassword = getEnv("SMTP_PASSWORD", cfg.Email.SMTPPassword)
	cfg.Email.SMTPSecurity = strings.ToLower(getEnv("SMTP_SECURITY", cfg.Email.SMTPSecurity))

	cfg.Extraction.APIKey = getEnv("EXTRACTION_API_KEY", cfg.Extraction.APIKey)
	cfg.Extraction.BaseURL = getEnv("EXTRACTION_BASE_URL", cfg.Extraction.BaseURL)
	cfg.Extraction.Model = getEnv("EXTRACTION_MODEL", cfg.Extraction.Model)
	cfg.Extraction.Timeout = errs.parseDuration("EXTRACTION_TIMEOUT", cfg.Extraction.Timeout)
	cfg.Extraction.MaxTokens = errs.parseInt("EXTRACTION_MAX_TOKENS", cfg.Extraction.MaxTokens)

	cfg.MediaMaxBytes = errs.parseInt64("MEDIA_MAX_BYTES", cfg.MediaMaxBytes)
	cfg.MediaTimeout = errs.parseDuration("MEDIA_TIMEOUT", cfg.MediaTimeout)
	cfg.SessionTTL = errs.parseDuration("SESSION_TTL", cfg.SessionTTL)
	cfg.SessionSweepSchedule = getEnv("SESSION_SWEEP_SCHEDULE", cfg.SessionSweepSchedule)
	cfg.ReplyTimeout = errs.parseDuration("REPLY_TIMEOUT", cfg.ReplyTimeout)

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}

	var missing []string
	for _, req := range []struct{ key, value string }{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"PUBLIC_BASE_URL", cfg.PublicBaseURL},
		{"TWILIO_AUTH_TOKEN", cfg.Twilio.AuthToken},
		{"EXTRACTION_API_KEY", cfg.Extraction.APIKey},
	} {
		if req.value == "" {
			missing = append(missing, req.key)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// getEnv returns the value of the environment variable named by key,
// or fallback if the variable is not set or is empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envErrors collects parse failures so one run reports all of them.
type envErrors []error

func (e *envErrors) parseInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*e = append(*e, fmt.Errorf("%s: not an integer: %q", key, v))
		return fallback
	}
	return n
}

func (e *envErrors) parseInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		*e = append(*e, fmt.Errorf("%s: not an integer: %q", key, v))
		return fallback
	}
	return n
}

func (e *envErrors) parseDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*e = append(*e, fmt.Errorf("%s: not a duration: %q", key, v))
		return fallback
	}
	return d
}

// splitCSV splits a comma-separated string into a trimmed slice, ignoring empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}
