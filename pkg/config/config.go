package config

import (
	"fmt"
	"sort"
	"strings"
)

// Config is the root configuration. Key paths follow the dotted form used
// in the documentation, e.g. `graph.indexing.clearOnStartup` maps to
// Graph.Indexing.ClearOnStartup.
type Config struct {
	Indexing IndexingConfig                `yaml:"indexing" mapstructure:"indexing"`
	Graph    GraphConfig                   `yaml:"graph" mapstructure:"graph"`
	LLM      map[string]*LLMProviderConfig `yaml:"llm" mapstructure:"llm"`
	Logging  LoggingConfig                 `yaml:"logging" mapstructure:"logging"`
	Server   ServerConfig                  `yaml:"server" mapstructure:"server"`
}

// IndexingConfig groups the `indexing.*` keys.
type IndexingConfig struct {
	Graph IndexingGraphConfig `yaml:"graph" mapstructure:"graph"`
	// LLMProvider names the `llm.<provider>` entry the indexer uses. When
	// empty and exactly one provider is configured, that provider is used.
	LLMProvider string `yaml:"llm_provider" mapstructure:"llm_provider"`
}

// IndexingGraphConfig groups the `indexing.graph.*` keys.
type IndexingGraphConfig struct {
	// Driver is the graph driver id to resolve (`in-memory` or `sqlite`).
	Driver string `yaml:"driver" mapstructure:"driver"`
	// Path is the driver-specific storage location (directory for sqlite).
	Path     string                 `yaml:"path" mapstructure:"path"`
	Chunking IndexingChunkingConfig `yaml:"chunking" mapstructure:"chunking"`
}

// IndexingChunkingConfig groups the `indexing.graph.chunking.*` keys.
type IndexingChunkingConfig struct {
	Markdown MarkdownChunkingConfig `yaml:"markdown" mapstructure:"markdown"`
}

// MarkdownChunkingConfig controls markdown window sizing.
type MarkdownChunkingConfig struct {
	WindowSizeTokens int   `yaml:"windowSizeTokens" mapstructure:"windowSizeTokens"`
	OverlapTokens    int   `yaml:"overlapTokens" mapstructure:"overlapTokens"`
	Adaptive         *bool `yaml:"adaptive" mapstructure:"adaptive"`
}

// GraphConfig groups the `graph.*` keys.
type GraphConfig struct {
	Indexing GraphIndexingConfig `yaml:"indexing" mapstructure:"indexing"`
}

// GraphIndexingConfig groups the `graph.indexing.*` keys.
type GraphIndexingConfig struct {
	ClearOnStartup *bool                `yaml:"clearOnStartup" mapstructure:"clearOnStartup"`
	Chunking       ChunkingToggleConfig `yaml:"chunking" mapstructure:"chunking"`
	// Concurrency bounds parallel LLM chunk calls. Default 1.
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ChunkingToggleConfig holds the global chunking default plus per-doc-type
// overrides. Recognized doc types: openapi, markdown.
type ChunkingToggleConfig struct {
	Enabled  bool                   `yaml:"enabled" mapstructure:"enabled"`
	OpenAPI  *DocTypeChunkingConfig `yaml:"openapi" mapstructure:"openapi"`
	Markdown *DocTypeChunkingConfig `yaml:"markdown" mapstructure:"markdown"`
}

// DocTypeChunkingConfig is a per-doc-type chunking override.
type DocTypeChunkingConfig struct {
	Enabled *bool `yaml:"enabled" mapstructure:"enabled"`
}

// EnabledFor resolves the effective chunking toggle for a doc type, falling
// back to the global default when no override is present.
func (c *ChunkingToggleConfig) EnabledFor(docType string) bool {
	var override *DocTypeChunkingConfig
	switch docType {
	case "openapi":
		override = c.OpenAPI
	case "markdown":
		override = c.Markdown
	}
	if override != nil && override.Enabled != nil {
		return *override.Enabled
	}
	return c.Enabled
}

// LLMProviderConfig carries provider credentials and limits. Fields are
// opaque to the core; each provider interprets its own subset.
type LLMProviderConfig struct {
	Type        string  `yaml:"type" mapstructure:"type"`
	Model       string  `yaml:"model" mapstructure:"model"`
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	Host        string  `yaml:"host" mapstructure:"host"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	// Timeout is per-request, in seconds.
	Timeout    int `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelay int `yaml:"retry_delay" mapstructure:"retry_delay"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig controls the retrieval HTTP adapter.
type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

// SetDefaults fills unset fields with their documented defaults.
func (c *Config) SetDefaults() {
	if c.Indexing.Graph.Driver == "" {
		c.Indexing.Graph.Driver = "in-memory"
	}
	if c.Indexing.Graph.Chunking.Markdown.WindowSizeTokens == 0 {
		c.Indexing.Graph.Chunking.Markdown.WindowSizeTokens = 500
	}
	if c.Indexing.Graph.Chunking.Markdown.OverlapTokens == 0 {
		c.Indexing.Graph.Chunking.Markdown.OverlapTokens = 64
	}
	if c.Indexing.Graph.Chunking.Markdown.Adaptive == nil {
		adaptive := true
		c.Indexing.Graph.Chunking.Markdown.Adaptive = &adaptive
	}
	if c.Graph.Indexing.ClearOnStartup == nil {
		clear := true
		c.Graph.Indexing.ClearOnStartup = &clear
	}
	if c.Graph.Indexing.Concurrency <= 0 {
		c.Graph.Indexing.Concurrency = 1
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "simple"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}

	for name, p := range c.LLM {
		if p == nil {
			continue
		}
		if p.Type == "" {
			p.Type = name
		}
		if p.Timeout == 0 {
			p.Timeout = 120
		}
		if p.MaxRetries == 0 {
			p.MaxRetries = 2
		}
		if p.RetryDelay == 0 {
			p.RetryDelay = 2
		}
		if p.MaxTokens == 0 {
			p.MaxTokens = 8192
		}
	}
}

// Validate checks the configuration for fatal mistakes.
func (c *Config) Validate() error {
	switch c.Indexing.Graph.Driver {
	case "in-memory", "sqlite":
	default:
		return fmt.Errorf("indexing.graph.driver: unknown driver %q (supported: in-memory, sqlite)", c.Indexing.Graph.Driver)
	}
	if c.Indexing.LLMProvider != "" {
		if _, ok := c.LLM[c.Indexing.LLMProvider]; !ok {
			return fmt.Errorf("indexing.llm_provider: provider %q is not configured under llm", c.Indexing.LLMProvider)
		}
	}
	for name, p := range c.LLM {
		if p == nil {
			return fmt.Errorf("llm.%s: empty provider block", name)
		}
		switch p.Type {
		case "openai", "anthropic", "gemini", "ollama":
		default:
			return fmt.Errorf("llm.%s: unsupported type %q (supported: openai, anthropic, gemini, ollama)", name, p.Type)
		}
	}
	return nil
}

// ResolveLLMProvider returns the name and config of the provider the
// indexer should use.
func (c *Config) ResolveLLMProvider() (string, *LLMProviderConfig, error) {
	if len(c.LLM) == 0 {
		return "", nil, fmt.Errorf("no llm provider configured")
	}
	name := c.Indexing.LLMProvider
	if name == "" {
		if len(c.LLM) == 1 {
			for only := range c.LLM {
				name = only
			}
		} else {
			names := make([]string, 0, len(c.LLM))
			for n := range c.LLM {
				names = append(names, n)
			}
			sort.Strings(names)
			return "", nil, fmt.Errorf("multiple llm providers configured (%s); set indexing.llm_provider", strings.Join(names, ", "))
		}
	}
	p, ok := c.LLM[name]
	if !ok {
		return "", nil, fmt.Errorf("llm provider %q is not configured", name)
	}
	return name, p, nil
}
