// Package openapi parses OpenAPI 3.x documents and splits them into
// self-contained operation chunks small enough for one LLM call.
package openapi

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// methodOrder is the canonical HTTP method traversal order, so operation
// enumeration is deterministic across runs.
var methodOrder = []string{"get", "put", "post", "delete", "patch", "head", "options", "trace"}

// Info is the spec's info object.
type Info struct {
	Title       string
	Version     string
	Description string
}

// Tag is one entry of the spec's tags list.
type Tag struct {
	Name        string
	Description string
}

// Operation is one path/method pair with its raw operation object retained
// for serialization and reference walking.
type Operation struct {
	Method      string
	Path        string
	OperationID string
	Summary     string
	Description string
	Tags        []string
	Raw         map[string]any
}

// Document is a parsed OpenAPI 3.x spec. Path items and components stay in
// raw map form; typed projections cover only what indexing needs.
type Document struct {
	OpenAPI string
	Info    Info
	Tags    []Tag
	// Paths maps path -> method -> raw operation object.
	Paths map[string]map[string]any
	// PathExtras holds path-level keys that are not operations (parameters,
	// summary) so chunk serialization can carry them along.
	PathExtras map[string]map[string]any
	// Components maps section (schemas, parameters, ...) -> name -> raw.
	Components map[string]map[string]any
}

// SpecSummary is the compact description embedded in extraction prompts.
type SpecSummary struct {
	Title          string `json:"title"`
	Version        string `json:"version"`
	Description    string `json:"description,omitempty"`
	OperationCount int    `json:"operationCount"`
	SchemaCount    int    `json:"schemaCount"`
	TagCount       int    `json:"tagCount"`
}

// Parse decodes an OpenAPI 3.x document from YAML (JSON is valid YAML, so
// JSON specs parse too).
func Parse(data []byte) (*Document, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse OpenAPI document: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("empty OpenAPI document")
	}

	doc := &Document{
		OpenAPI:    asString(raw["openapi"]),
		Paths:      map[string]map[string]any{},
		PathExtras: map[string]map[string]any{},
		Components: map[string]map[string]any{},
	}
	if doc.OpenAPI == "" {
		return nil, fmt.Errorf("document has no openapi version field")
	}

	if info, ok := raw["info"].(map[string]any); ok {
		doc.Info = Info{
			Title:       asString(info["title"]),
			Version:     asString(info["version"]),
			Description: asString(info["description"]),
		}
	}

	if tags, ok := raw["tags"].([]any); ok {
		for _, t := range tags {
			if tm, ok := t.(map[string]any); ok {
				doc.Tags = append(doc.Tags, Tag{
					Name:        asString(tm["name"]),
					Description: asString(tm["description"]),
				})
			}
		}
	}

	if paths, ok := raw["paths"].(map[string]any); ok {
		for path, item := range paths {
			pm, ok := item.(map[string]any)
			if !ok {
				continue
			}
			ops := map[string]any{}
			extras := map[string]any{}
			for k, v := range pm {
				if isMethod(k) {
					ops[k] = v
				} else {
					extras[k] = v
				}
			}
			doc.Paths[path] = ops
			if len(extras) > 0 {
				doc.PathExtras[path] = extras
			}
		}
	}

	if comps, ok := raw["components"].(map[string]any); ok {
		for section, v := range comps {
			if sm, ok := v.(map[string]any); ok {
				named := map[string]any{}
				for name, def := range sm {
					named[name] = def
				}
				doc.Components[section] = named
			}
		}
	}

	return doc, nil
}

// Operations enumerates every operation in deterministic order: paths
// sorted lexically, methods in canonical HTTP order.
func (d *Document) Operations() []Operation {
	paths := make([]string, 0, len(d.Paths))
	for p := range d.Paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var ops []Operation
	for _, path := range paths {
		for _, method := range methodOrder {
			raw, ok := d.Paths[path][method].(map[string]any)
			if !ok {
				continue
			}
			op := Operation{
				Method:      strings.ToUpper(method),
				Path:        path,
				OperationID: asString(raw["operationId"]),
				Summary:     asString(raw["summary"]),
				Description: asString(raw["description"]),
				Raw:         raw,
			}
			if tags, ok := raw["tags"].([]any); ok {
				for _, t := range tags {
					if s := asString(t); s != "" {
						op.Tags = append(op.Tags, s)
					}
				}
			}
			ops = append(ops, op)
		}
	}
	return ops
}

// Summary builds the prompt-facing spec summary.
func (d *Document) Summary() SpecSummary {
	return SpecSummary{
		Title:          d.Info.Title,
		Version:        d.Info.Version,
		Description:    d.Info.Description,
		OperationCount: len(d.Operations()),
		SchemaCount:    len(d.Components["schemas"]),
		TagCount:       len(d.Tags),
	}
}

// TagNames returns the declared tag names plus any tag referenced by an
// operation but missing from the tags list.
func (d *Document) TagNames() []string {
	seen := map[string]bool{}
	var names []string
	for _, t := range d.Tags {
		if t.Name != "" && !seen[t.Name] {
			seen[t.Name] = true
			names = append(names, t.Name)
		}
	}
	for _, op := range d.Operations() {
		for _, t := range op.Tags {
			if !seen[t] {
				seen[t] = true
				names = append(names, t)
			}
		}
	}
	return names
}

func isMethod(key string) bool {
	for _, m := range methodOrder {
		if key == m {
			return true
		}
	}
	return false
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
