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
)

const defaultOllamaHost = "http://localhost:11434"

// OllamaProvider implements Provider over the Ollama chat API. No API key
// is required; the host defaults to the local daemon.
type OllamaProvider struct {
	config     *config.LLMProviderConfig
	httpClient *http.Client
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

// NewOllamaProviderFromConfig builds an Ollama provider from its config
// block.
func NewOllamaProviderFromConfig(cfg *config.LLMProviderConfig) (*OllamaProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama: model is required")
	}
	return &OllamaProvider{
		config:     cfg,
		httpClient: &http.Client{},
	}, nil
}

func (p *OllamaProvider) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	reqMessages := make([]ollamaMessage, 0, len(messages))
	for _, m := range messages {
		reqMessages = append(reqMessages, ollamaMessage{
			Role:    strings.ToLower(string(m.Role)),
			Content: m.Content,
		})
	}

	payload := ollamaRequest{
		Model:    p.config.Model,
		Messages: reqMessages,
		Stream:   false,
		Options: &ollamaOptions{
			Temperature: p.config.Temperature,
			NumPredict:  p.config.MaxTokens,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", classify("ollama", fmt.Errorf("failed to marshal request: %w", err))
	}

	host := p.config.Host
	if host == "" {
		host = defaultOllamaHost
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(host, "/")+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", classify("ollama", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", classify("ollama", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classify("ollama", fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", &ProviderError{Kind: ErrKindProvider, Provider: "ollama",
			Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))}
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &ProviderError{Kind: ErrKindMalformed, Provider: "ollama",
			Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if parsed.Error != "" {
		return "", &ProviderError{Kind: ErrKindProvider, Provider: "ollama",
			Err: fmt.Errorf("%s", parsed.Error)}
	}

	return parsed.Message.Content, nil
}

func (p *OllamaProvider) ModelName() string {
	return p.config.Model
}

func (p *OllamaProvider) Close() error {
	return nil
}
