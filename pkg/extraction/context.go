package extraction

import (
	"strings"

	"github.com/onemcp/onemcp/pkg/openapi"
)

// PromptContext carries the variables a prompt template consumes.
type PromptContext struct {
	ServiceName  string
	ServiceSlug  string
	Instructions string
	// OpenAPI is the serialized spec subset for this call (one chunk, or
	// the whole spec when chunking is off).
	OpenAPI string
	// Docs is supplementary documentation text, used by the docs-tagging
	// prompt.
	Docs    string
	Tags    []string
	Summary openapi.SpecSummary
	// ChunkID correlates diagnostics for chunked extraction; empty for
	// whole-spec calls.
	ChunkID string
	// KnownEntities are entity names already harvested, so later calls
	// reuse keys instead of minting duplicates.
	KnownEntities []string
}

// ChunkContext builds the context for one operation chunk.
func ChunkContext(serviceName, serviceSlug, instructions string, doc *openapi.Document, chunk openapi.OperationChunk) PromptContext {
	return PromptContext{
		ServiceName:  serviceName,
		ServiceSlug:  serviceSlug,
		Instructions: instructions,
		OpenAPI:      chunk.Serialize(),
		Tags:         doc.TagNames(),
		Summary:      doc.Summary(),
		ChunkID:      chunk.ID,
	}
}

// SpecContext builds the context for a whole-spec extraction call.
func SpecContext(serviceName, serviceSlug, instructions string, doc *openapi.Document, specData []byte) PromptContext {
	return PromptContext{
		ServiceName:  serviceName,
		ServiceSlug:  serviceSlug,
		Instructions: instructions,
		OpenAPI:      string(specData),
		Tags:         doc.TagNames(),
		Summary:      doc.Summary(),
	}
}

// DocsContext builds the context for tagging one documentation chunk
// against the already-known entities.
func DocsContext(serviceSlug, content string, knownEntities []string) PromptContext {
	return PromptContext{
		ServiceSlug:   serviceSlug,
		Docs:          content,
		KnownEntities: knownEntities,
	}
}

// TagList renders the tags as a comma-separated string for embedding.
func (c PromptContext) TagList() string {
	return strings.Join(c.Tags, ", ")
}
