package indexer

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/onemcp/onemcp/pkg/extraction"
	"github.com/onemcp/onemcp/pkg/handbook"
	"github.com/onemcp/onemcp/pkg/llms"
	"github.com/onemcp/onemcp/pkg/openapi"
)

// indexService runs extraction and persistence for one declared API.
// Extraction failures fall back to rule-based extraction from the spec
// itself; only persistence failures mark the service failed.
func (c *Coordinator) indexService(ctx context.Context, hb *handbook.Handbook, svc handbook.Service, validKeys, writtenTriples map[string]bool) ServiceSummary {
	sum := ServiceSummary{Service: svc.Name, Nodes: map[string]int{}}

	doc, err := openapi.Parse(svc.SpecData)
	if err != nil {
		c.logger.Error("failed to parse OpenAPI spec, skipping service",
			"service", svc.Name, "error", err)
		sum.Failed = true
		return sum
	}

	mapped, usedFallback, chunksTotal, chunksSkipped := c.extractService(ctx, hb, svc, doc)
	sum.Fallback = usedFallback
	sum.ChunksTotal = chunksTotal
	sum.ChunksSkipped = chunksSkipped
	for _, reason := range mapped.Skipped {
		c.logger.Debug("skipped", "service", svc.Name, "reason", reason)
	}

	if err := c.persist(ctx, mapped, validKeys, writtenTriples, &sum); err != nil {
		c.logger.Error("failed to persist service graph", "service", svc.Name, "error", err)
		sum.Failed = true
		return sum
	}

	c.logger.Info("service indexed",
		"service", svc.Name,
		"entities", sum.Nodes["entity"],
		"fields", sum.Nodes["field"],
		"operations", sum.Nodes["op"],
		"examples", sum.Nodes["example"],
		"documentation", sum.Nodes["doc"],
		"edges_written", sum.EdgesWritten,
		"edges_skipped", sum.EdgesSkipped,
		"fallback", sum.Fallback)
	return sum
}

// extractService picks chunked or whole-spec LLM extraction per config and
// falls back to rule-based extraction when the LLM path yields nothing.
func (c *Coordinator) extractService(ctx context.Context, hb *handbook.Handbook, svc handbook.Service, doc *openapi.Document) (m *extraction.Mapped, fallback bool, chunksTotal, chunksSkipped int) {
	if c.llm == nil {
		return c.ruleBased(doc, svc.Slug), true, 0, 0
	}

	chunked := c.cfg.Graph.Indexing.Chunking.EnabledFor("openapi")
	var err error
	if chunked {
		m, chunksTotal, chunksSkipped, err = c.extractChunked(ctx, hb, svc, doc)
	} else {
		m, err = c.extractWholeSpec(ctx, hb, svc, doc)
	}
	if err != nil || m == nil || (len(m.Entities) == 0 && len(m.Operations) == 0) {
		if err != nil {
			c.logger.Warn("extraction failed, using rule-based fallback",
				"service", svc.Name, "error", err)
		} else {
			c.logger.Warn("extraction yielded no entities or operations, using rule-based fallback",
				"service", svc.Name)
		}
		return c.ruleBased(doc, svc.Slug), true, chunksTotal, chunksSkipped
	}
	return m, false, chunksTotal, chunksSkipped
}

func (c *Coordinator) extractWholeSpec(ctx context.Context, hb *handbook.Handbook, svc handbook.Service, doc *openapi.Document) (*extraction.Mapped, error) {
	pctx := extraction.SpecContext(svc.Name, svc.Slug, hb.Instructions, doc, svc.SpecData)
	ext, err := c.callExtraction(ctx, extraction.TemplateOpenAPIExtraction, pctx, svc.Slug)
	if err != nil {
		return nil, err
	}
	return extraction.Map(ext, svc.Slug), nil
}

// extractChunked fans chunk calls out under the configured concurrency
// bound. A failed chunk is skipped; the service fails only when every
// chunk fails.
func (c *Coordinator) extractChunked(ctx context.Context, hb *handbook.Handbook, svc handbook.Service, doc *openapi.Document) (*extraction.Mapped, int, int, error) {
	chunks := doc.Chunks(openapi.DefaultChunkSize)
	if len(chunks) == 0 {
		return &extraction.Mapped{}, 0, 0, nil
	}
	for range chunks {
		c.metrics.ChunkProduced("openapi")
	}

	results := make([]*extraction.Mapped, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Graph.Indexing.Concurrency)

	for i, chunk := range chunks {
		g.Go(func() error {
			pctx := extraction.ChunkContext(svc.Name, svc.Slug, hb.Instructions, doc, chunk)
			ext, err := c.callExtraction(gctx, extraction.TemplateOpenAPIExtraction, pctx, chunk.ID)
			if err != nil {
				// Cancellation aborts the group; anything else skips the
				// chunk.
				if gctx.Err() != nil {
					return gctx.Err()
				}
				c.logger.Warn("chunk extraction failed, skipping",
					"service", svc.Name, "chunk", chunk.ID, "error", err)
				return nil
			}
			results[i] = extraction.Map(ext, svc.Slug)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, len(chunks), 0, err
	}

	merged := &extraction.Mapped{}
	skipped := 0
	for _, r := range results {
		if r == nil {
			skipped++
			continue
		}
		merged.Merge(r)
	}
	if skipped == len(chunks) {
		return nil, len(chunks), skipped, fmt.Errorf("all %d chunks failed for service %s", len(chunks), svc.Name)
	}
	return merged, len(chunks), skipped, nil
}

// callExtraction renders the prompt, invokes the LLM (tools disabled), and
// parses the response. A malformed response earns exactly one corrective
// retry; the retry's response is parsed best-effort.
func (c *Coordinator) callExtraction(ctx context.Context, template string, pctx extraction.PromptContext, label string) (*extraction.Extraction, error) {
	messages, err := extraction.RenderMessages(template, pctx)
	if err != nil {
		return nil, err
	}
	if c.run != nil {
		c.run.Prompt(label, renderTranscript(messages))
	}

	response, err := c.chat(ctx, messages)
	if err != nil {
		// One retry with a clarifying user message for transient failures.
		response, err = c.chat(ctx, append(messages, llms.User("Please respond with the single JSON object now.")))
		if err != nil {
			return nil, err
		}
	}
	if c.run != nil {
		c.run.Response(label, response)
	}

	outcome := extraction.Parse(response)
	if outcome.Status != extraction.StatusFailed {
		return outcome.Extraction, nil
	}

	// Malformed response: one corrective follow-up, then give up on the
	// chunk.
	if c.run != nil {
		c.run.ParseFailure(label, outcome.Raw, outcome.Diagnostics)
	}
	c.metrics.LLMFailure(string(llms.ErrKindMalformed))
	retryMsgs := append(messages, extraction.CorrectiveMessage(response)...)
	response, err = c.chat(ctx, retryMsgs)
	if err != nil {
		return nil, err
	}
	outcome = extraction.Parse(response)
	if outcome.Status == extraction.StatusFailed {
		if c.run != nil {
			c.run.ParseFailure(label, outcome.Raw, outcome.Diagnostics)
		}
		return nil, fmt.Errorf("llm response unparseable after corrective retry")
	}
	return outcome.Extraction, nil
}

func (c *Coordinator) chat(ctx context.Context, messages []llms.Message) (string, error) {
	c.metrics.LLMCall()
	response, err := c.llm.Chat(ctx, messages, llms.ChatOptions{Cacheable: true})
	if err != nil {
		c.metrics.LLMFailure(string(llms.KindOf(err)))
	}
	return response, err
}

func renderTranscript(messages []llms.Message) string {
	out := ""
	for _, m := range messages {
		out += string(m.Role) + ":\n" + m.Content + "\n\n"
	}
	return out
}
