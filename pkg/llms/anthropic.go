package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/onemcp/onemcp/pkg/config"
	"github.com/onemcp/onemcp/pkg/httpclient"
)

const (
	defaultAnthropicHost    = "https://api.anthropic.com"
	anthropicAPIVersion     = "2023-06-01"
	anthropicDefaultMaxToks = 8192
)

// AnthropicProvider implements Provider over the Anthropic messages API.
// System messages are lifted into the top-level system field; prompt
// caching is requested on the system block when the call is cacheable.
type AnthropicProvider struct {
	config     *config.LLMProviderConfig
	httpClient *httpclient.Client
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    []anthropicContent `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	// Temperature is a pointer so 0 is expressible.
	Temperature *float64 `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type         string                 `json:"type"`
	Text         string                 `json:"text,omitempty"`
	CacheControl *anthropicCacheControl `json:"cache_control,omitempty"`
}

type anthropicCacheControl struct {
	Type string `json:"type"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewAnthropicProviderFromConfig builds an Anthropic provider from its
// config block.
func NewAnthropicProviderFromConfig(cfg *config.LLMProviderConfig) (*AnthropicProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("anthropic: model is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: api_key is required")
	}
	return &AnthropicProvider{
		config:     cfg,
		httpClient: newHTTPClient(cfg, httpclient.ParseAnthropicHeaders),
	}, nil
}

func (p *AnthropicProvider) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	var system []anthropicContent
	var turns []anthropicMessage

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			block := anthropicContent{Type: "text", Text: m.Content}
			if opts.Cacheable {
				block.CacheControl = &anthropicCacheControl{Type: "ephemeral"}
			}
			system = append(system, block)
		case RoleAssistant:
			turns = append(turns, anthropicMessage{
				Role:    "assistant",
				Content: []anthropicContent{{Type: "text", Text: m.Content}},
			})
		default:
			turns = append(turns, anthropicMessage{
				Role:    "user",
				Content: []anthropicContent{{Type: "text", Text: m.Content}},
			})
		}
	}

	maxTokens := p.config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxToks
	}
	temperature := p.config.Temperature
	payload := anthropicRequest{
		Model:       p.config.Model,
		MaxTokens:   maxTokens,
		System:      system,
		Messages:    turns,
		Temperature: &temperature,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", classify("anthropic", fmt.Errorf("failed to marshal request: %w", err))
	}

	host := p.config.Host
	if host == "" {
		host = defaultAnthropicHost
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(host, "/")+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", classify("anthropic", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.config.APIKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", classify("anthropic", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classify("anthropic", fmt.Errorf("failed to read response: %w", err))
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &ProviderError{Kind: ErrKindMalformed, Provider: "anthropic",
			Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if parsed.Error != nil {
		return "", &ProviderError{Kind: ErrKindProvider, Provider: "anthropic",
			Err: fmt.Errorf("%s: %s", parsed.Error.Type, parsed.Error.Message)}
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", &ProviderError{Kind: ErrKindMalformed, Provider: "anthropic",
			Err: fmt.Errorf("response has no text content")}
	}

	return text.String(), nil
}

func (p *AnthropicProvider) ModelName() string {
	return p.config.Model
}

func (p *AnthropicProvider) Close() error {
	return nil
}
