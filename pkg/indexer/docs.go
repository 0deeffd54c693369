package indexer

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/onemcp/onemcp/pkg/chunking"
	"github.com/onemcp/onemcp/pkg/extraction"
	"github.com/onemcp/onemcp/pkg/graph"
	"github.com/onemcp/onemcp/pkg/handbook"
	"github.com/onemcp/onemcp/pkg/tokenizer"
)

// indexDocs runs the markdown pipeline: chunk every doc file, match chunks
// against the entities harvested from the OpenAPI stage, persist the
// documentation nodes, and write one MENTIONS edge per matched entity.
func (c *Coordinator) indexDocs(ctx context.Context, hb *handbook.Handbook, validKeys, writtenTriples map[string]bool) (docsIndexed, docChunks, edgesWritten, edgesSkipped int) {
	if len(hb.Docs) == 0 {
		return 0, 0, 0, 0
	}

	entities := harvestEntities(validKeys)
	chunker, err := chunking.NewChunker(c.chunkParams(hb, len(entities)))
	if err != nil {
		c.logger.Error("invalid chunking parameters, skipping docs", "error", err)
		return 0, 0, 0, 0
	}

	titleCounts := map[string]int{}
	for _, doc := range hb.Docs {
		if ctx.Err() != nil {
			return docsIndexed, docChunks, edgesWritten, edgesSkipped
		}

		var chunks []chunking.Chunk
		if c.markdownChunkingEnabled() {
			chunks = chunker.ChunkFile(doc.RelPath, doc.Content)
		} else if strings.TrimSpace(doc.Content) != "" {
			chunks = []chunking.Chunk{{
				FileName:      doc.RelPath,
				Content:       doc.Content,
				ContentFormat: chunking.ContentFormatMarkdown,
			}}
		}
		if len(chunks) == 0 {
			continue
		}
		docsIndexed++

		m := &extraction.Mapped{}
		for _, chunk := range chunks {
			c.metrics.ChunkProduced("markdown")
			docChunks++

			matched := matchEntities(chunk.Content, entities)
			chunk.DetectedEntities = matched

			title := chunkTitle(chunk)
			if n := titleCounts[title]; n > 0 {
				title = fmt.Sprintf("%s (%d)", title, n+1)
			}
			titleCounts[chunkTitle(chunk)]++

			related := make([]string, 0, len(matched))
			for _, name := range matched {
				related = append(related, graph.NodeKey(graph.KindEntity, name))
			}

			node := graph.NewDocumentationNode(&graph.DocumentationNode{
				Title:       title,
				Content:     chunk.Content,
				DocType:     classifyDocType(chunk.FileName),
				SourceFile:  chunk.FileName,
				RelatedKeys: related,
				Metadata:    map[string]string{"chunk_id": chunk.ID},
			})
			m.Docs = append(m.Docs, node)

			for _, key := range related {
				m.Edges = append(m.Edges, graph.Edge{
					FromKey:  node.Key,
					ToKey:    key,
					EdgeType: graph.EdgeMentions,
				})
			}
		}

		if c.llm != nil {
			c.refineDocTags(ctx, m, entities)
		}

		sum := ServiceSummary{Nodes: map[string]int{}}
		if err := c.persist(ctx, m, validKeys, writtenTriples, &sum); err != nil {
			c.logger.Error("failed to persist documentation", "file", doc.RelPath, "error", err)
			continue
		}
		edgesWritten += sum.EdgesWritten
		edgesSkipped += sum.EdgesSkipped
	}
	return docsIndexed, docChunks, edgesWritten, edgesSkipped
}

// refineDocTags asks the model to classify each documentation node against
// the known entities, merging any additional related keys and a better
// docType. Failures leave the keyword-matched result untouched.
func (c *Coordinator) refineDocTags(ctx context.Context, m *extraction.Mapped, entities []string) {
	for _, node := range m.Docs {
		pctx := extraction.DocsContext(node.Documentation.ServiceSlug, node.Documentation.Content, entities)
		ext, err := c.callExtraction(ctx, extraction.TemplateDocsTagging, pctx, "docs-"+node.Key)
		if err != nil {
			c.logger.Debug("doc tagging skipped", "doc", node.Key, "error", err)
			continue
		}
		for _, d := range ext.Documentations {
			if d.DocType != "" {
				node.Documentation.DocType = d.DocType
			}
			node.Documentation.RelatedKeys = mergeKeys(node.Documentation.RelatedKeys, d.RelatedKeys)
		}
		for _, rel := range ext.Relationships {
			edge := graph.Edge{FromKey: node.Key, ToKey: rel.ToKey, EdgeType: rel.EdgeType}
			if err := edge.Normalize(); err == nil {
				m.Edges = append(m.Edges, edge)
			}
		}
	}
}

// chunkParams resolves the markdown budgets: adaptive from corpus size and
// entity count by default, the configured fixed window when adaptive is
// disabled, and the legacy profile when adaptive is disabled without
// overriding the window.
func (c *Coordinator) chunkParams(hb *handbook.Handbook, entityCount int) chunking.Params {
	md := c.cfg.Indexing.Graph.Chunking.Markdown
	if md.Adaptive == nil || *md.Adaptive {
		counter := tokenizer.Shared()
		total := 0
		for _, doc := range hb.Docs {
			total += counter.Count(doc.Content)
		}
		return chunking.AdaptiveParams(total, entityCount)
	}

	if md.WindowSizeTokens == 500 && md.OverlapTokens == 64 {
		return chunking.LegacyParams()
	}
	minTokens := int(0.3 * float64(md.WindowSizeTokens))
	if minTokens < 100 {
		minTokens = 100
	}
	if minTokens > md.WindowSizeTokens {
		minTokens = md.WindowSizeTokens
	}
	overlap := md.OverlapTokens
	if overlap >= md.WindowSizeTokens {
		overlap = md.WindowSizeTokens / 4
	}
	return chunking.Params{
		MinTokens:     minTokens,
		MaxTokens:     md.WindowSizeTokens,
		OverlapTokens: overlap,
	}
}

func (c *Coordinator) markdownChunkingEnabled() bool {
	md := c.cfg.Graph.Indexing.Chunking.Markdown
	if md != nil && md.Enabled != nil {
		return *md.Enabled
	}
	// The global chunking toggle governs OpenAPI splitting; markdown
	// chunking stays on unless explicitly disabled.
	return true
}

// harvestEntities recovers entity display names from the persisted key set.
func harvestEntities(validKeys map[string]bool) []string {
	var names []string
	prefix := string(graph.KindEntity) + "|"
	for key := range validKeys {
		if strings.HasPrefix(key, prefix) {
			names = append(names, strings.TrimPrefix(key, prefix))
		}
	}
	return names
}

// matchEntities finds entity slugs whose name (underscores read as spaces)
// appears in the chunk text. Matching is case-insensitive.
func matchEntities(content string, entities []string) []string {
	lowered := strings.ToLower(content)
	var matched []string
	for _, slug := range entities {
		alias := strings.ReplaceAll(slug, "_", " ")
		if strings.Contains(lowered, slug) || strings.Contains(lowered, alias) {
			matched = append(matched, slug)
		}
	}
	return matched
}

func chunkTitle(chunk chunking.Chunk) string {
	if len(chunk.SectionPath) > 0 {
		return chunk.SectionPath[len(chunk.SectionPath)-1]
	}
	base := path.Base(chunk.FileName)
	return strings.TrimSuffix(base, path.Ext(base))
}

func classifyDocType(fileName string) string {
	lowered := strings.ToLower(fileName)
	switch {
	case strings.Contains(lowered, "howto"), strings.Contains(lowered, "how-to"),
		strings.Contains(lowered, "guide"), strings.Contains(lowered, "tutorial"):
		return "howto"
	case strings.Contains(lowered, "reference"), strings.Contains(lowered, "api"):
		return "reference"
	default:
		return "concept"
	}
}

func mergeKeys(dst, src []string) []string {
	seen := make(map[string]bool, len(dst))
	for _, k := range dst {
		seen[k] = true
	}
	for _, k := range src {
		if k != "" && !seen[k] {
			seen[k] = true
			dst = append(dst, k)
		}
	}
	return dst
}
