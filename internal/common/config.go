package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Langfuse LangfuseConfig
	Extract  ExtractConfig
	Retry    RetryConfig
	Database DatabaseConfig
	Sheets   SheetsConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr           string
	MaxUploadBytes int64
}

// LangfuseConfig holds extraction API collaborator configuration
type LangfuseConfig struct {
	BaseURL       string
	AuthToken     string
	PublicKey     string
	PromptName    string
	PromptVersion string
	DispatchMode  string // "inline" or "upload"
	Timeout       time.Duration
}

// ExtractConfig holds response-parsing configuration
type ExtractConfig struct {
	KeyPaths     []string // ordered candidate key paths; empty means defaults
	TextFallback bool     // enable the delimited-text fallback parser
}

// RetryConfig holds the dispatch retry policy
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DatabaseConfig holds the optional extraction-history store configuration
type DatabaseConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// SheetsConfig holds the optional Google Sheets write-through configuration
type SheetsConfig struct {
	SpreadsheetID   string
	SheetRange      string
	CredentialsFile string
	AppendTimeout   time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           getEnv("HTTP_ADDR", ":8080"),
			MaxUploadBytes: getEnvAsInt64("MAX_UPLOAD_BYTES", 32<<20),
		},
		Langfuse: LangfuseConfig{
			BaseURL:       getEnv("LANGFUSE_API_URL", ""),
			AuthToken:     getEnv("LANGFUSE_AUTH_TOKEN", ""),
			PublicKey:     getEnv("LANGFUSE_PUBLIC_KEY", ""),
			PromptName:    getEnv("LANGFUSE_PROMPT_NAME", "amortization-table"),
			PromptVersion: getEnv("LANGFUSE_PROMPT_VERSION", "1"),
			DispatchMode:  getEnv("DISPATCH_MODE", "inline"),
			Timeout:       getEnvAsDuration("LANGFUSE_TIMEOUT", 45*time.Second),
		},
		Extract: ExtractConfig{
			KeyPaths:     getEnvAsList("EXTRACT_KEY_PATHS", nil),
			TextFallback: getEnvAsBool("EXTRACT_TEXT_FALLBACK", false),
		},
		Retry: RetryConfig{
			MaxAttempts:    getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
			InitialBackoff: getEnvAsDuration("RETRY_INITIAL_BACKOFF", 500*time.Millisecond),
			MaxBackoff:     getEnvAsDuration("RETRY_MAX_BACKOFF", 10*time.Second),
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DB_URL", ""),
			MaxConns:        getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Sheets: SheetsConfig{
			SpreadsheetID:   getEnv("SHEETS_SPREADSHEET_ID", ""),
			SheetRange:      getEnv("SHEETS_RANGE", "Amortization!A1"),
			CredentialsFile: getEnv("SHEETS_CREDENTIALS_FILE", ""),
			AppendTimeout:   getEnvAsDuration("SHEETS_APPEND_TIMEOUT", 10*time.Second),
		},
	}
}

// Validate validates the loaded configuration. The database and sheets
// sections are optional collaborators and stay unchecked when unset.
func (c *Config) Validate() error {
	if c.Langfuse.BaseURL == "" {
		return NewExtractionError(KindValidation, "config", "LANGFUSE_API_URL is required", nil)
	}
	if c.Langfuse.AuthToken == "" {
		return NewExtractionError(KindValidation, "config", "LANGFUSE_AUTH_TOKEN is required", nil)
	}
	if mode := c.Langfuse.DispatchMode; mode != "inline" && mode != "upload" {
		return NewExtractionError(KindValidation, "config",
			fmt.Sprintf("DISPATCH_MODE must be \"inline\" or \"upload\", got %q", mode), nil)
	}
	if c.Retry.MaxAttempts < 1 {
		return NewExtractionError(KindValidation, "config", "RETRY_MAX_ATTEMPTS must be >= 1", nil)
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
