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

const defaultGeminiHost = "https://generativelanguage.googleapis.com"

// GeminiProvider implements Provider over the Gemini generateContent API.
// System messages map to systemInstruction; assistant turns use the
// "model" role.
type GeminiProvider struct {
	config     *config.LLMProviderConfig
	httpClient *httpclient.Client
}

type geminiRequest struct {
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// NewGeminiProviderFromConfig builds a Gemini provider from its config
// block.
func NewGeminiProviderFromConfig(cfg *config.LLMProviderConfig) (*GeminiProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("gemini: model is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api_key is required")
	}
	return &GeminiProvider{
		config:     cfg,
		httpClient: newHTTPClient(cfg, httpclient.ParseGeminiHeaders),
	}, nil
}

func (p *GeminiProvider) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	payload := geminiRequest{}

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			if payload.SystemInstruction == nil {
				payload.SystemInstruction = &geminiContent{}
			}
			payload.SystemInstruction.Parts = append(payload.SystemInstruction.Parts,
				geminiPart{Text: m.Content})
		case RoleAssistant:
			payload.Contents = append(payload.Contents, geminiContent{
				Role: "model", Parts: []geminiPart{{Text: m.Content}},
			})
		default:
			payload.Contents = append(payload.Contents, geminiContent{
				Role: "user", Parts: []geminiPart{{Text: m.Content}},
			})
		}
	}

	temperature := p.config.Temperature
	payload.GenerationConfig = &geminiGenerationConfig{
		Temperature:     &temperature,
		MaxOutputTokens: p.config.MaxTokens,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", classify("gemini", fmt.Errorf("failed to marshal request: %w", err))
	}

	host := p.config.Host
	if host == "" {
		host = defaultGeminiHost
	}
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		strings.TrimRight(host, "/"), p.config.Model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", classify("gemini", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.config.APIKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", classify("gemini", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classify("gemini", fmt.Errorf("failed to read response: %w", err))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &ProviderError{Kind: ErrKindMalformed, Provider: "gemini",
			Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if parsed.Error != nil {
		return "", &ProviderError{Kind: ErrKindProvider, Provider: "gemini",
			Err: fmt.Errorf("%s: %s", parsed.Error.Status, parsed.Error.Message)}
	}
	if len(parsed.Candidates) == 0 {
		return "", &ProviderError{Kind: ErrKindMalformed, Provider: "gemini",
			Err: fmt.Errorf("response has no candidates")}
	}

	var text strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	return text.String(), nil
}

func (p *GeminiProvider) ModelName() string {
	return p.config.Model
}

func (p *GeminiProvider) Close() error {
	return nil
}
