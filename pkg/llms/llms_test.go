package llms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onemcp/onemcp/pkg/config"
)

func testConfig(typ, host string) *config.LLMProviderConfig {
	return &config.LLMProviderConfig{
		Type:       typ,
		Model:      "test-model",
		APIKey:     "test-key",
		Host:       host,
		Timeout:    5,
		MaxRetries: 1,
		RetryDelay: 1,
		MaxTokens:  1024,
	}
}

func TestOpenAIChat(t *testing.T) {
	var captured openAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": `{"entities":[]}`}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p, err := NewOpenAIProviderFromConfig(testConfig("openai", server.URL))
	require.NoError(t, err)

	text, err := p.Chat(context.Background(), []Message{
		System("extract the graph"),
		User("chunk content"),
	}, ChatOptions{})
	require.NoError(t, err)
	assert.Equal(t, `{"entities":[]}`, text)

	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "user", captured.Messages[1].Role)
}

func TestOpenAIChatProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"type": "invalid_request_error", "message": "bad model"},
		})
	}))
	defer server.Close()

	p, err := NewOpenAIProviderFromConfig(testConfig("openai", server.URL))
	require.NoError(t, err)

	_, err = p.Chat(context.Background(), []Message{User("hi")}, ChatOptions{})
	require.Error(t, err)
	assert.Equal(t, ErrKindProvider, KindOf(err))
}

func TestAnthropicChatLiftsSystemAndCaches(t *testing.T) {
	var captured anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"content":     []map[string]string{{"type": "text", "text": "ok"}},
			"stop_reason": "end_turn",
		})
	}))
	defer server.Close()

	p, err := NewAnthropicProviderFromConfig(testConfig("anthropic", server.URL))
	require.NoError(t, err)

	text, err := p.Chat(context.Background(), []Message{
		System("instructions"),
		User("content"),
	}, ChatOptions{Cacheable: true})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)

	require.Len(t, captured.System, 1)
	require.NotNil(t, captured.System[0].CacheControl)
	assert.Equal(t, "ephemeral", captured.System[0].CacheControl.Type)
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, "user", captured.Messages[0].Role)
}

func TestGeminiChatMapsRoles(t *testing.T) {
	var captured geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, ":generateContent")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{
					"role":  "model",
					"parts": []map[string]string{{"text": "answer"}},
				}},
			},
		})
	}))
	defer server.Close()

	p, err := NewGeminiProviderFromConfig(testConfig("gemini", server.URL))
	require.NoError(t, err)

	text, err := p.Chat(context.Background(), []Message{
		System("sys"),
		User("u"),
		Assistant("a"),
		User("u2"),
	}, ChatOptions{})
	require.NoError(t, err)
	assert.Equal(t, "answer", text)

	require.NotNil(t, captured.SystemInstruction)
	require.Len(t, captured.Contents, 3)
	assert.Equal(t, "user", captured.Contents[0].Role)
	assert.Equal(t, "model", captured.Contents[1].Role)
}

func TestOllamaChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"message": map[string]string{"role": "assistant", "content": "local"},
			"done":    true,
		})
	}))
	defer server.Close()

	cfg := testConfig("ollama", server.URL)
	cfg.APIKey = ""
	p, err := NewOllamaProviderFromConfig(cfg)
	require.NoError(t, err)

	text, err := p.Chat(context.Background(), []Message{User("hi")}, ChatOptions{})
	require.NoError(t, err)
	assert.Equal(t, "local", text)
}

func TestRegistryCreateFromConfig(t *testing.T) {
	r := NewRegistry()

	p, err := r.CreateFromConfig("main", testConfig("openai", ""))
	require.NoError(t, err)
	assert.Equal(t, "test-model", p.ModelName())

	got, err := r.GetProvider("main")
	require.NoError(t, err)
	assert.Same(t, p, got)

	_, err = r.GetProvider("missing")
	assert.Error(t, err)

	_, err = r.CreateFromConfig("bad", &config.LLMProviderConfig{Type: "smalltalk"})
	assert.Error(t, err)
}
