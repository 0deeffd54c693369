package openapi

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultChunkSize is the operation count per chunk when the caller does
// not choose one.
const DefaultChunkSize = 10

// OperationChunk is a self-contained slice of a spec: at most N operations
// plus every component they transitively reference. Shared components are
// duplicated across chunks so each chunk stands alone in a prompt.
type OperationChunk struct {
	// ID correlates the chunk across diagnostics for a run, of the form
	// <title-slug>#<index>/<total>.
	ID         string
	Index      int
	Total      int
	Operations []Operation
	// Components is the referenced subset, section -> name -> raw.
	Components map[string]map[string]any

	doc *Document
}

// Chunks splits the document into operation chunks of at most maxOps
// operations each. maxOps <= 0 selects DefaultChunkSize.
func (d *Document) Chunks(maxOps int) []OperationChunk {
	if maxOps <= 0 {
		maxOps = DefaultChunkSize
	}
	ops := d.Operations()
	if len(ops) == 0 {
		return nil
	}

	total := (len(ops) + maxOps - 1) / maxOps
	slug := titleSlug(d.Info.Title)

	chunks := make([]OperationChunk, 0, total)
	for i := 0; i < total; i++ {
		start := i * maxOps
		end := start + maxOps
		if end > len(ops) {
			end = len(ops)
		}
		part := ops[start:end]
		chunks = append(chunks, OperationChunk{
			ID:         fmt.Sprintf("%s#%d/%d", slug, i+1, total),
			Index:      i + 1,
			Total:      total,
			Operations: part,
			Components: d.componentClosure(part),
			doc:        d,
		})
	}
	return chunks
}

// componentClosure collects every component transitively reachable from the
// given operations via $ref, preserving the section layout.
func (d *Document) componentClosure(ops []Operation) map[string]map[string]any {
	type compKey struct{ section, name string }
	seen := map[compKey]bool{}
	var queue []compKey

	var collect func(v any)
	collect = func(v any) {
		switch val := v.(type) {
		case map[string]any:
			if ref, ok := val["$ref"].(string); ok {
				if section, name, ok := parseRef(ref); ok {
					k := compKey{section, name}
					if !seen[k] {
						seen[k] = true
						queue = append(queue, k)
					}
				}
			}
			for _, sub := range val {
				collect(sub)
			}
		case []any:
			for _, sub := range val {
				collect(sub)
			}
		}
	}

	for _, op := range ops {
		collect(op.Raw)
	}
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		if def, ok := d.Components[k.section][k.name]; ok {
			collect(def)
		}
	}

	out := map[string]map[string]any{}
	for k := range seen {
		def, ok := d.Components[k.section][k.name]
		if !ok {
			// Dangling ref: leave it out rather than fail the chunk.
			continue
		}
		if out[k.section] == nil {
			out[k.section] = map[string]any{}
		}
		out[k.section][k.name] = def
	}
	return out
}

// Serialize renders the chunk as a well-formed OpenAPI subset in YAML,
// falling back to JSON when YAML marshaling fails.
func (c *OperationChunk) Serialize() string {
	paths := map[string]any{}
	for _, op := range c.Operations {
		item, ok := paths[op.Path].(map[string]any)
		if !ok {
			item = map[string]any{}
			if c.doc != nil {
				for k, v := range c.doc.PathExtras[op.Path] {
					item[k] = v
				}
			}
			paths[op.Path] = item
		}
		item[strings.ToLower(op.Method)] = op.Raw
	}

	sub := map[string]any{
		"openapi": "3.0.0",
		"paths":   paths,
	}
	if c.doc != nil {
		if c.doc.OpenAPI != "" {
			sub["openapi"] = c.doc.OpenAPI
		}
		sub["info"] = map[string]any{
			"title":   c.doc.Info.Title,
			"version": c.doc.Info.Version,
		}
	}
	if len(c.Components) > 0 {
		comps := map[string]any{}
		for section, named := range c.Components {
			comps[section] = named
		}
		sub["components"] = comps
	}

	if out, err := yaml.Marshal(sub); err == nil {
		return string(out)
	}
	out, err := json.Marshal(sub)
	if err != nil {
		// Raw maps of scalars always marshal; this is unreachable in
		// practice but the contract is a string either way.
		return ""
	}
	return string(out)
}

func parseRef(ref string) (section, name string, ok bool) {
	const prefix = "#/components/"
	if !strings.HasPrefix(ref, prefix) {
		return "", "", false
	}
	parts := strings.Split(strings.TrimPrefix(ref, prefix), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func titleSlug(title string) string {
	if title == "" {
		return "spec"
	}
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

// SortedComponentNames lists a section's component names in stable order,
// mostly for logging and tests.
func (c *OperationChunk) SortedComponentNames(section string) []string {
	names := make([]string, 0, len(c.Components[section]))
	for name := range c.Components[section] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
