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

const defaultOpenAIHost = "https://api.openai.com"

// OpenAIProvider implements Provider over the OpenAI chat completions API.
type OpenAIProvider struct {
	config     *config.LLMProviderConfig
	httpClient *httpclient.Client
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewOpenAIProviderFromConfig builds an OpenAI provider from its config
// block.
func NewOpenAIProviderFromConfig(cfg *config.LLMProviderConfig) (*OpenAIProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai: model is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api_key is required")
	}
	return &OpenAIProvider{
		config:     cfg,
		httpClient: newHTTPClient(cfg, httpclient.ParseOpenAIHeaders),
	}, nil
}

func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	reqMessages := make([]openAIMessage, 0, len(messages))
	for _, m := range messages {
		reqMessages = append(reqMessages, openAIMessage{
			Role:    strings.ToLower(string(m.Role)),
			Content: m.Content,
		})
	}

	payload := openAIRequest{
		Model:       p.config.Model,
		Messages:    reqMessages,
		Temperature: p.config.Temperature,
	}
	if p.config.MaxTokens > 0 {
		maxTokens := p.config.MaxTokens
		payload.MaxTokens = &maxTokens
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", classify("openai", fmt.Errorf("failed to marshal request: %w", err))
	}

	host := p.config.Host
	if host == "" {
		host = defaultOpenAIHost
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(host, "/")+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", classify("openai", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", classify("openai", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classify("openai", fmt.Errorf("failed to read response: %w", err))
	}

	var parsed openAIResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &ProviderError{Kind: ErrKindMalformed, Provider: "openai",
			Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if parsed.Error != nil {
		return "", &ProviderError{Kind: ErrKindProvider, Provider: "openai",
			Err: fmt.Errorf("%s: %s", parsed.Error.Type, parsed.Error.Message)}
	}
	if len(parsed.Choices) == 0 {
		return "", &ProviderError{Kind: ErrKindMalformed, Provider: "openai",
			Err: fmt.Errorf("response has no choices")}
	}

	return parsed.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) ModelName() string {
	return p.config.Model
}

func (p *OpenAIProvider) Close() error {
	return nil
}
