package langfuse

import (
	"log/slog"
	"net/http"
	"os"
	"time"
)

// DispatchMode selects how file content travels in the extraction request.
type DispatchMode string

const (
	// DispatchInline embeds the file bytes (base64) in the request body.
	DispatchInline DispatchMode = "inline"
	// DispatchUpload uploads the bytes first, then references them by ID.
	DispatchUpload DispatchMode = "upload"
)

// Config for the Langfuse extraction client.
type Config struct {
	BaseURL       string // extraction API root
	AuthToken     string // if empty, falls back to env LANGFUSE_AUTH_TOKEN
	PublicKey     string
	PromptName    string
	PromptVersion string
	Mode          DispatchMode
	Timeout       time.Duration // http client timeout
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("LANGFUSE_AUTH_TOKEN")
	}
	if cfg.PromptName == "" {
		cfg.PromptName = "amortization-table"
	}
	if cfg.PromptVersion == "" {
		cfg.PromptVersion = "1"
	}
	if cfg.Mode == "" {
		cfg.Mode = DispatchInline
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}
