package extraction

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/onemcp/onemcp/pkg/llms"
)

// Template names accepted by RenderMessages.
const (
	TemplateOpenAPIExtraction = "openapi-extraction"
	TemplateDocsTagging       = "docs-tagging"
)

const extractionSystemPrompt = `You are an API knowledge-graph extractor. You read OpenAPI material and emit a single JSON object, nothing else: no prose, no code fences.

The object has exactly these keys:
  "entities":       [{"key","name","description","domain","attributes","associatedOperationKeys"}]
  "fields":         [{"key","name","description","fieldType","owningEntityKey"}]
  "operations":     [{"key","operationId","method","path","summary","description","tags","requestSchema","responseSchema","category","primaryEntity"}]
  "examples":       [{"key","name","description","requestBody","responseBody","responseStatus","owningOperationKey"}]
  "documentations": [{"key","title","content","docType","relatedKeys"}]
  "relationships":  [{"from","to","type","description"}]

Keys follow the form kind|slug, with kind one of entity, field, op, example, doc and slug the lower-cased name with non-alphanumerics replaced by underscores. Relationship types are upper-cased labels such as HAS_OPERATION, HAS_FIELD, HAS_EXAMPLE, DESCRIBES, MENTIONS. Categorize each operation with a coarse verb such as Retrieve, Create, Update, Delete, or Compute. Omit arrays you have nothing for.`

const docsSystemPrompt = `You classify documentation excerpts against a known list of API entities. Emit a single JSON object, no prose, no code fences, with keys:
  "documentations": [{"key","title","content","docType","relatedKeys"}]
  "relationships":  [{"from","to","type"}]

docType is one of concept, howto, reference. relatedKeys lists the entity keys (entity|slug) the excerpt substantively covers; emit one MENTIONS relationship per related entity, from the doc key to the entity key. If the excerpt covers no known entity, return empty arrays.`

var extractionUserTemplate = template.Must(template.New(TemplateOpenAPIExtraction).Parse(
	`Service: {{.ServiceName}} (slug: {{.ServiceSlug}})
{{- if .ChunkID}}
Chunk: {{.ChunkID}}
{{- end}}
{{- if .Summary.Title}}
Spec: {{.Summary.Title}} v{{.Summary.Version}} ({{.Summary.OperationCount}} operations, {{.Summary.SchemaCount}} schemas)
{{- end}}
{{- if .Tags}}
Tags: {{.TagList}}
{{- end}}
{{- if .Instructions}}

Handbook instructions:
{{.Instructions}}
{{- end}}

OpenAPI document:
{{.OpenAPI}}`))

var docsUserTemplate = template.Must(template.New(TemplateDocsTagging).Parse(
	`Known entities: {{range $i, $e := .KnownEntities}}{{if $i}}, {{end}}{{$e}}{{end}}

Documentation excerpt:
{{.Docs}}`))

// RenderMessages renders a named prompt template into the message list for
// one extraction call.
func RenderMessages(name string, ctx PromptContext) ([]llms.Message, error) {
	var system string
	var tmpl *template.Template
	switch name {
	case TemplateOpenAPIExtraction:
		system, tmpl = extractionSystemPrompt, extractionUserTemplate
	case TemplateDocsTagging:
		system, tmpl = docsSystemPrompt, docsUserTemplate
	default:
		return nil, fmt.Errorf("unknown prompt template %q", name)
	}

	var user strings.Builder
	if err := tmpl.Execute(&user, ctx); err != nil {
		return nil, fmt.Errorf("failed to render prompt %q: %w", name, err)
	}
	return []llms.Message{
		llms.System(system),
		llms.User(user.String()),
	}, nil
}

// CorrectiveMessage is appended on the single retry after a malformed
// response: the prior output plus a reminder of the contract.
func CorrectiveMessage(priorResponse string) []llms.Message {
	return []llms.Message{
		llms.Assistant(priorResponse),
		llms.User("The previous response was not a single valid JSON object. Resend the full result as one JSON object with the agreed keys, with no prose and no code fences. Do not truncate."),
	}
}
