package extraction

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValidJSONPassesThroughUnchanged(t *testing.T) {
	raw := `{"entities":[{"key":"entity|sale","name":"Sale"}],"operations":[{"operationId":"listSales","method":"get","path":"/sales"}]}`

	outcome := Parse(raw)
	assert.Equal(t, StatusSuccess, outcome.Status)
	assert.Empty(t, outcome.Diagnostics)
	require.Len(t, outcome.Extraction.Entities, 1)
	assert.Equal(t, "Sale", outcome.Extraction.Entities[0].Name)
	require.Len(t, outcome.Extraction.Operations, 1)
}

func TestParseStripsCodeFencesAndProse(t *testing.T) {
	raw := "Here is the extraction you asked for:\n```json\n" +
		`{"entities":[{"name":"Sale"}]}` + "\n```\nLet me know if you need more."

	outcome := Parse(raw)
	assert.Equal(t, StatusSuccess, outcome.Status)
	require.Len(t, outcome.Extraction.Entities, 1)
}

func TestParseTruncatedResponse(t *testing.T) {
	// Stream cut mid-string with no closing braces.
	raw := `{"entities":[{"key":"entity|sale","name":"Sale"},{"key":"entity|refund","name":"Refund","description":"foo`

	outcome := Parse(raw)
	assert.Equal(t, StatusPartial, outcome.Status)
	assert.NotEmpty(t, outcome.Diagnostics)
	require.Len(t, outcome.Extraction.Entities, 2)
	assert.Equal(t, "Sale", outcome.Extraction.Entities[0].Name)
	assert.Equal(t, "foo", outcome.Extraction.Entities[1].Description,
		"repaired string must end exactly at the cutoff")
}

func TestParseInvalidEscapes(t *testing.T) {
	raw := `{"entities":[{"name":"Sale","description":"a\ b"}]}`

	outcome := Parse(raw)
	require.NotEqual(t, StatusFailed, outcome.Status)
	require.Len(t, outcome.Extraction.Entities, 1)
	assert.Equal(t, "a b", outcome.Extraction.Entities[0].Description)
}

func TestParseTrailingCommaBeforeAppendedCloser(t *testing.T) {
	raw := `{"entities":[{"name":"Sale"},`

	outcome := Parse(raw)
	assert.Equal(t, StatusPartial, outcome.Status)
	require.Len(t, outcome.Extraction.Entities, 1)
}

func TestParseNoJSONAtAll(t *testing.T) {
	outcome := Parse("I could not process this specification, sorry.")
	assert.Equal(t, StatusFailed, outcome.Status)
	require.NotNil(t, outcome.Extraction)
	assert.True(t, outcome.Extraction.Empty())
	assert.NotEmpty(t, outcome.Diagnostics)
}

func TestRepairSafetyOnValidInput(t *testing.T) {
	valid := `{"entities": [{"name": "Sale", "description": "a\nb"}], "fields": []}`
	assert.Equal(t, valid, firstPassRepair(valid),
		"repair must be a no-op on valid JSON")
}

func TestFlexAcceptsStringNumberAndObject(t *testing.T) {
	raw := `{
		"examples": [
			{"name":"ok","owningOperationKey":"op|listsales","responseStatus":200,"responseBody":{"total": 3}},
			{"name":"str","owningOperationKey":"op|listsales","responseStatus":"201","responseBody":"plain"}
		]
	}`
	outcome := Parse(raw)
	require.Equal(t, StatusSuccess, outcome.Status)
	require.Len(t, outcome.Extraction.Examples, 2)

	assert.Equal(t, Flex("200"), outcome.Extraction.Examples[0].ResponseStatus)
	assert.JSONEq(t, `{"total":3}`, string(outcome.Extraction.Examples[0].ResponseBody))
	assert.Equal(t, Flex("201"), outcome.Extraction.Examples[1].ResponseStatus)
	assert.Equal(t, Flex("plain"), outcome.Extraction.Examples[1].ResponseBody)
}

func TestExtractJSONLocatesOutermostObject(t *testing.T) {
	assert.Equal(t, `{"a":{"b":1}}`, ExtractJSON(`noise {"a":{"b":1}} trailer`))
	assert.Equal(t, "", ExtractJSON("no object here"))
	assert.Equal(t, `{"a":1`, ExtractJSON(`prefix {"a":1`))
}

func TestAggressiveRepairForcesBraces(t *testing.T) {
	out := aggressiveRepair(`"entities": [],`)
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &v))
}

func TestParseNestedTruncation(t *testing.T) {
	// Cut inside a nested array of objects.
	raw := `{"entities":[{"name":"Sale"}],"operations":[{"operationId":"listSales","tags":["Sale"`

	outcome := Parse(raw)
	assert.Equal(t, StatusPartial, outcome.Status)
	require.Len(t, outcome.Extraction.Operations, 1)
	assert.Equal(t, []string{"Sale"}, outcome.Extraction.Operations[0].Tags)
}

func TestRenderMessagesOpenAPI(t *testing.T) {
	ctx := PromptContext{
		ServiceName: "Sales API",
		ServiceSlug: "sales",
		OpenAPI:     "openapi: 3.0.0",
		Tags:        []string{"Sale", "Refund"},
		ChunkID:     "sales-api#1/2",
	}
	msgs, err := RenderMessages(TemplateOpenAPIExtraction, ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Contains(t, msgs[0].Content, "single JSON object")
	assert.Contains(t, msgs[1].Content, "Chunk: sales-api#1/2")
	assert.Contains(t, msgs[1].Content, "Tags: Sale, Refund")
	assert.Contains(t, msgs[1].Content, "openapi: 3.0.0")
}

func TestRenderMessagesUnknownTemplate(t *testing.T) {
	_, err := RenderMessages("nope", PromptContext{})
	assert.Error(t, err)
}

func TestCorrectiveMessageCarriesPriorResponse(t *testing.T) {
	msgs := CorrectiveMessage("garbled output")
	require.Len(t, msgs, 2)
	assert.Equal(t, "garbled output", msgs[0].Content)
	assert.True(t, strings.Contains(msgs[1].Content, "valid JSON object"))
}
