package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, "in-memory", cfg.Indexing.Graph.Driver)
	assert.Equal(t, 500, cfg.Indexing.Graph.Chunking.Markdown.WindowSizeTokens)
	assert.Equal(t, 64, cfg.Indexing.Graph.Chunking.Markdown.OverlapTokens)
	require.NotNil(t, cfg.Indexing.Graph.Chunking.Markdown.Adaptive)
	assert.True(t, *cfg.Indexing.Graph.Chunking.Markdown.Adaptive)
	require.NotNil(t, cfg.Graph.Indexing.ClearOnStartup)
	assert.True(t, *cfg.Graph.Indexing.ClearOnStartup)
	assert.False(t, cfg.Graph.Indexing.Chunking.Enabled)
	assert.Equal(t, 1, cfg.Graph.Indexing.Concurrency)
}

func TestParseNestedKeys(t *testing.T) {
	cfg, err := Parse([]byte(`
indexing:
  graph:
    driver: sqlite
    chunking:
      markdown:
        windowSizeTokens: 350
        adaptive: false
graph:
  indexing:
    clearOnStartup: false
    chunking:
      enabled: true
      openapi:
        enabled: false
llm:
  openai:
    api_key: sk-test
    model: gpt-4o-mini
`))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Indexing.Graph.Driver)
	assert.Equal(t, 350, cfg.Indexing.Graph.Chunking.Markdown.WindowSizeTokens)
	assert.False(t, *cfg.Indexing.Graph.Chunking.Markdown.Adaptive)
	assert.False(t, *cfg.Graph.Indexing.ClearOnStartup)

	assert.False(t, cfg.Graph.Indexing.Chunking.EnabledFor("openapi"))
	assert.True(t, cfg.Graph.Indexing.Chunking.EnabledFor("markdown"))

	name, p, err := cfg.ResolveLLMProvider()
	require.NoError(t, err)
	assert.Equal(t, "openai", name)
	assert.Equal(t, "openai", p.Type)
	assert.Equal(t, "sk-test", p.APIKey)
	assert.Equal(t, 120, p.Timeout)
}

func TestParseRejectsUnknownDriver(t *testing.T) {
	_, err := Parse([]byte(`
indexing:
  graph:
    driver: neo4j
`))
	assert.Error(t, err)
}

func TestResolveLLMProviderAmbiguous(t *testing.T) {
	cfg, err := Parse([]byte(`
llm:
  openai:
    model: gpt-4o
  anthropic:
    model: claude-sonnet-4-20250514
`))
	require.NoError(t, err)

	_, _, err = cfg.ResolveLLMProvider()
	assert.Error(t, err)

	cfg.Indexing.LLMProvider = "anthropic"
	name, _, err := cfg.ResolveLLMProvider()
	require.NoError(t, err)
	assert.Equal(t, "anthropic", name)
}

func TestEnvPlaceholderForm(t *testing.T) {
	t.Setenv("ONEMCP_TEST_KEY", "resolved")

	cfg, err := Parse([]byte(`
llm:
  openai:
    api_key: ${env:ONEMCP_TEST_KEY}
    model: gpt-4o
`))
	require.NoError(t, err)
	assert.Equal(t, "resolved", cfg.LLM["openai"].APIKey)
}

func TestEnvPlaceholderUnresolvedBecomesAbsent(t *testing.T) {
	cfg, err := Parse([]byte(`
llm:
  openai:
    api_key: ${env:ONEMCP_DEFINITELY_NOT_SET}
    model: gpt-4o
`))
	require.NoError(t, err)
	assert.Empty(t, cfg.LLM["openai"].APIKey)
}

func TestEnvDefaultForm(t *testing.T) {
	cfg, err := Parse([]byte(`
server:
  port: ${ONEMCP_UNSET_PORT:-9090}
`))
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
}
