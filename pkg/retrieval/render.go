package retrieval

import (
	"sort"
	"strings"

	"github.com/onemcp/onemcp/pkg/graph"
)

func entityContent(e *graph.EntityNode) string {
	var b strings.Builder
	b.WriteString(e.Name)
	if e.Description != "" {
		b.WriteString(": ")
		b.WriteString(e.Description)
	}
	attrs := cleanMap(e.Attributes)
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("\n")
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(attrs[k])
	}
	return b.String()
}

func fieldContent(f *graph.FieldNode) string {
	var b strings.Builder
	b.WriteString(f.Name)
	if f.FieldType != "" {
		b.WriteString(" (")
		b.WriteString(f.FieldType)
		b.WriteString(")")
	}
	if f.Description != "" {
		b.WriteString(": ")
		b.WriteString(f.Description)
	}
	return b.String()
}

func docItem(d *graph.DocumentationNode) Item {
	return Item{
		Type:    ItemDoc,
		Content: d.Content,
		Ref:     "/docs/" + graph.Slugify(d.Title),
	}
}

// exampleContent renders an example deterministically: name, description,
// request, and response sections, each omitted when its source is blank.
func exampleContent(e *graph.ExampleNode) string {
	var sections []string

	if e.Name != "" {
		sections = append(sections, "**"+e.Name+"**")
	}
	if e.Description != "" {
		sections = append(sections, e.Description)
	}
	if strings.TrimSpace(e.RequestBody) != "" {
		sections = append(sections, "**Request:**\n```json\n"+e.RequestBody+"\n```")
	}
	if strings.TrimSpace(e.ResponseBody) != "" {
		sections = append(sections, "**Response:**\n```json\n"+e.ResponseBody+"\n```")
	}
	return strings.Join(sections, "\n\n")
}

// cleanMap drops backend-internal keys (leading underscore).
func cleanMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		if !strings.HasPrefix(k, "_") {
			out[k] = v
		}
	}
	return out
}
