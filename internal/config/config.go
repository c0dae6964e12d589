package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrEmptyEnvironmentVariable = errors.New("empty environment variable")

// Config holds all application configuration
type Config struct {
	Store     StoreConfig
	Server    ServerConfig
	Admission AdmissionConfig
	Pipeline  PipelineConfig
	Services  ServicesConfig
	Roster    RosterConfig
	Customers CustomersConfig
}

// StoreConfig holds the call store settings
type StoreConfig struct {
	Path string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
}

// AdmissionConfig bounds how many calls are processed at once
type AdmissionConfig struct {
	MaxConcurrent int
	PacingDelay   time.Duration
}

// PipelineConfig holds call processing settings
type PipelineConfig struct {
	MinCallDuration int // seconds; shorter calls skip transcription
	ClaimTimeout    time.Duration
	FailureCooldown time.Duration
	MaxEventAge     time.Duration
	SkipStatuses    []string
}

// ServicesConfig holds external service API keys and configuration
type ServicesConfig struct {
	SlackWebhookURL   string
	OpenAIAPIKey      string
	GoogleAIAPIKey    string
	RecordingAPIKey   string
	RecordingAPIToken string
	ResendAPIKey      string
	EmailSender       string
	WebhookAuthToken  string
}

// RosterConfig holds agent directory settings
type RosterConfig struct {
	MappingPath     string
	SupportNumber   string
	RefreshInterval time.Duration
}

// CustomersConfig holds the customer sheet lookup settings
type CustomersConfig struct {
	SheetID    string
	SheetRange string
	APIKey     string
	CacheTTL   time.Duration
}

// Load reads and validates all required environment variables
func Load() (*Config, error) {
	// Load env.local in non-production environments
	if os.Getenv("GO_ENV") != "production" {
		if err := godotenv.Load("env.local"); err != nil {
			return nil, fmt.Errorf("failed to load env.local: %w", err)
		}
	}

	cfg := &Config{}

	// Store configuration
	cfg.Store.Path = getEnvWithDefault("DATABASE_PATH", "processed_calls.db")

	// Server configuration
	serverPort, err := requireEnv("SERVER_PORT")
	if err != nil {
		return nil, err
	}
	cfg.Server.Port, err = strconv.Atoi(serverPort)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SERVER_PORT: %w", err)
	}

	// Admission configuration
	maxConcurrent := getEnvWithDefault("MAX_CONCURRENT_CALLS", "3")
	cfg.Admission.MaxConcurrent, err = strconv.Atoi(maxConcurrent)
	if err != nil {
		return nil, fmt.Errorf("failed to parse MAX_CONCURRENT_CALLS: %w", err)
	}
	cfg.Admission.PacingDelay, err = durationEnv("PROCESSING_PACING", "2s")
	if err != nil {
		return nil, err
	}

	// Pipeline configuration
	minDuration := getEnvWithDefault("MIN_CALL_DURATION", "5")
	cfg.Pipeline.MinCallDuration, err = strconv.Atoi(minDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to parse MIN_CALL_DURATION: %w", err)
	}
	cfg.Pipeline.ClaimTimeout, err = durationEnv("CLAIM_TIMEOUT", "15m")
	if err != nil {
		return nil, err
	}
	cfg.Pipeline.FailureCooldown, err = durationEnv("FAILURE_COOLDOWN", "1h")
	if err != nil {
		return nil, err
	}
	cfg.Pipeline.MaxEventAge, err = durationEnv("MAX_EVENT_AGE", "24h")
	if err != nil {
		return nil, err
	}
	cfg.Pipeline.SkipStatuses = splitList(getEnvWithDefault("SKIP_CALL_STATUSES", "missed,busy,no-answer"))

	// Services configuration
	if cfg.Services.SlackWebhookURL, err = requireEnv("SLACK_WEBHOOK_URL"); err != nil {
		return nil, err
	}
	if cfg.Services.OpenAIAPIKey, err = requireEnv("OPENAI_API_KEY"); err != nil {
		return nil, err
	}
	if cfg.Services.GoogleAIAPIKey, err = requireEnv("GOOGLE_AI_API_KEY"); err != nil {
		return nil, err
	}
	if cfg.Services.RecordingAPIKey, err = requireEnv("EXOTEL_API_KEY"); err != nil {
		return nil, err
	}
	if cfg.Services.RecordingAPIToken, err = requireEnv("EXOTEL_API_TOKEN"); err != nil {
		return nil, err
	}
	cfg.Services.ResendAPIKey = getEnvWithDefault("RESEND_API_KEY", "")
	cfg.Services.EmailSender = getEnvWithDefault("DEFAULT_EMAIL_SENDER_ADDRESS", "")
	cfg.Services.WebhookAuthToken = getEnvWithDefault("WEBHOOK_AUTH_TOKEN", "")

	// Roster configuration
	cfg.Roster.MappingPath = getEnvWithDefault("AGENT_MAPPING_PATH", "agent_mapping.json")
	cfg.Roster.SupportNumber = getEnvWithDefault("SUPPORT_NUMBER", "09631084471")
	cfg.Roster.RefreshInterval, err = durationEnv("ROSTER_REFRESH_INTERVAL", "5m")
	if err != nil {
		return nil, err
	}

	// Customer sheet configuration (empty sheet ID disables lookup)
	cfg.Customers.SheetID = getEnvWithDefault("CUSTOMER_SHEET_ID", "")
	cfg.Customers.SheetRange = getEnvWithDefault("CUSTOMER_SHEET_RANGE", "Customers!A2:D")
	cfg.Customers.APIKey = getEnvWithDefault("GOOGLE_SHEETS_API_KEY", "")
	cfg.Customers.CacheTTL, err = durationEnv("CUSTOMER_CACHE_TTL", "10m")
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// requireEnv retrieves an environment variable or returns an error if empty
func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is not set: %w", key, ErrEmptyEnvironmentVariable)
	}
	return value, nil
}

// getEnvWithDefault retrieves an environment variable or returns a default value
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// durationEnv parses an environment variable as a time.Duration
func durationEnv(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnvWithDefault(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
