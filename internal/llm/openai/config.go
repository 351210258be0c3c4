// Package openai implements the llm interfaces against any OpenAI-compatible
// chat/completions endpoint (the Llama API compat surface in production).
package openai

import (
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Config for the chat/completions client.
type Config struct {
	APIKey      string        // if empty, falls back to env LLAMA_API_KEY
	BaseURL     string        // default https://api.llama.com/compat/v1
	Model       string        // e.g. "Llama-4-Maverick-17B-128E-Instruct-FP8"
	Temperature float32       // 0..2
	Timeout     time.Duration // http client timeout
	MaxRetries  int           // transport-level retries, never parse retries
}

type Client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("LLAMA_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.llama.com/compat/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "Llama-4-Maverick-17B-128E-Instruct-FP8"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  logger,
	}
}

func (c *Client) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
}
