// Package llm talks to an OpenAI-compatible API for chat completions and
// text-to-image generation.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Defaults target SiliconFlow
const (
	DefaultBaseURL    = "https://api.siliconflow.cn/v1"
	DefaultChatModel  = "THUDM/GLM-4-32B-0414"
	DefaultImageModel = "Kwai-Kolors/Kolors"
	DefaultAPIKeyEnv  = "SILICON_API_KEY"
	DefaultMaxTokens  = 2000
	DefaultImageSize  = "1024x1024"
	DefaultTimeout    = 120 * time.Second
)

var (
	// ErrMissingAPIKey is returned when the configured environment variable is empty
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrEmptyResponse is returned when the API answers without content
	ErrEmptyResponse = errors.New("empty response from API")
)

// APIError is a non-2xx response
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.StatusCode, e.Body)
}

// Config holds the API endpoint and model selection
type Config struct {
	BaseURL    string        `yaml:"base_url"`
	ChatModel  string        `yaml:"chat_model"`
	ImageModel string        `yaml:"image_model"`
	ImageSize  string        `yaml:"image_size"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	MaxTokens  int           `yaml:"max_tokens"`
	Timeout    time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the SiliconFlow defaults
func DefaultConfig() Config {
	return Config{
		BaseURL:    DefaultBaseURL,
		ChatModel:  DefaultChatModel,
		ImageModel: DefaultImageModel,
		ImageSize:  DefaultImageSize,
		APIKeyEnv:  DefaultAPIKeyEnv,
		MaxTokens:  DefaultMaxTokens,
		Timeout:    DefaultTimeout,
	}
}

// Client is safe for concurrent use
type Client struct {
	cfg    Config
	apiKey string
	http   *http.Client
}

// NewClient reads the API key from the environment variable named by cfg.
// Zero fields fall back to the defaults.
func NewClient(cfg Config) (*Client, error) {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = def.ChatModel
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = def.ImageModel
	}
	if cfg.ImageSize == "" {
		cfg.ImageSize = def.ImageSize
	}
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = def.APIKeyEnv
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%w: set %s", ErrMissingAPIKey, cfg.APIKeyEnv)
	}

	return &Client{
		cfg:    cfg,
		apiKey: key,
		http:   &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Config returns the effective configuration
func (c *Client) Config() Config {
	return c.cfg
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

// postJSON sends body to path and decodes the response into out
func (c *Client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// fetch downloads a URL returned by the image endpoint
func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return io.ReadAll(io.LimitReader(resp.Body, 64<<20))
}
