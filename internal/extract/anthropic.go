package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkordes/tripcrew/backend/internal/content"
)

// Client is the extraction service boundary: content blocks in, raw text out.
type Client interface {
	Extract(ctx context.Context, blocks []content.Block) (string, error)
}

const (
	defaultBaseURL   = "https://api.anthropic.com"
	defaultModel     = "claude-sonnet-4-20250514"
	anthropicVersion = "2023-06-01"
)

// AnthropicConfig configures the Messages API client.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Anthropic implements Client against the Messages API.
type Anthropic struct {
	httpClient *http.Client
	cfg        AnthropicConfig
}

// NewAnthropic creates a client. Every call is bounded by cfg.Timeout.
func NewAnthropic(cfg AnthropicConfig) *Anthropic {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Anthropic{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
	}
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicContentBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicResponse struct {
	Content []anthropicContentBlock `json:"content"`
	Error   *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Extract sends one user turn holding the blocks in order and returns the
// concatenated text of the reply.
func (a *Anthropic) Extract(ctx context.Context, blocks []content.Block) (string, error) {
	body, err := json.Marshal(a.buildRequest(blocks))
	if err != nil {
		return "", fmt.Errorf("extract/anthropic: marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("extract/anthropic: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.cfg.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("extract/anthropic: sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", readError(resp)
	}

	var wire anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return "", fmt.Errorf("extract/anthropic: decoding response: %w", err)
	}

	var out strings.Builder
	for _, b := range wire.Content {
		if b.Type == "text" {
			out.WriteString(b.Text)
		}
	}
	return out.String(), nil
}

func (a *Anthropic) buildRequest(blocks []content.Block) anthropicRequest {
	wire := make([]anthropicContentBlock, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case content.BlockImage, content.BlockDocument:
			wire = append(wire, anthropicContentBlock{
				Type: string(b.Type),
				Source: &anthropicSource{
					Type:      "base64",
					MediaType: b.MediaType,
					Data:      base64.StdEncoding.EncodeToString(b.Data),
				},
			})
		case content.BlockText:
			wire = append(wire, anthropicContentBlock{Type: "text", Text: b.Text})
		}
	}
	return anthropicRequest{
		Model:     a.cfg.Model,
		MaxTokens: a.cfg.MaxTokens,
		System:    SystemPrompt,
		Messages:  []anthropicMessage{{Role: "user", Content: wire}},
	}
}

// readError turns an error response into an error value, preferring the
// API's {"error":{"type","message"}} body.
func readError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var wire anthropicResponse
	if err := json.Unmarshal(body, &wire); err == nil && wire.Error != nil {
		return fmt.Errorf("extract/anthropic: HTTP %d: %s: %s", resp.StatusCode, wire.Error.Type, wire.Error.Message)
	}
	return fmt.Errorf("extract/anthropic: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
