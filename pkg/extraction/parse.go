// Package extraction turns raw LLM responses into graph nodes and edges:
// it builds the prompt context, repairs the model's JSON, and maps the
// decoded payload onto the node model.
package extraction

import (
	"encoding/json"
	"fmt"
)

// OutcomeStatus classifies a parse attempt.
type OutcomeStatus string

const (
	// StatusSuccess means the response decoded without repair.
	StatusSuccess OutcomeStatus = "success"
	// StatusPartial means the response decoded after repair; the result is
	// usable but may be missing trailing items.
	StatusPartial OutcomeStatus = "partial"
	// StatusFailed means no repair produced decodable JSON.
	StatusFailed OutcomeStatus = "failed"
)

// ParseOutcome is the sum-typed result of parsing one LLM response.
// Failed outcomes carry an empty extraction so callers never nil-check.
type ParseOutcome struct {
	Status      OutcomeStatus
	Extraction  *Extraction
	Diagnostics []string
	// Raw is the original response text, kept for artifact logging.
	Raw string
}

// Flex is a string that also decodes from numbers, booleans, objects, and
// arrays; structured values are re-serialized as compact JSON. The model
// frequently emits schemas and bodies as objects where a string is wanted.
type Flex string

func (f *Flex) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = Flex(s)
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v == nil {
		*f = ""
		return nil
	}
	out, err := json.Marshal(v)
	if err != nil {
		return err
	}
	*f = Flex(out)
	return nil
}

// Extraction is the payload schema the model is instructed to emit.
type Extraction struct {
	Entities       []ExtractedEntity       `json:"entities"`
	Fields         []ExtractedField        `json:"fields"`
	Operations     []ExtractedOperation    `json:"operations"`
	Examples       []ExtractedExample      `json:"examples"`
	Documentations []ExtractedDoc          `json:"documentations"`
	Relationships  []ExtractedRelationship `json:"relationships"`
}

// Empty reports whether the extraction carries nothing at all.
func (e *Extraction) Empty() bool {
	return len(e.Entities) == 0 && len(e.Fields) == 0 && len(e.Operations) == 0 &&
		len(e.Examples) == 0 && len(e.Documentations) == 0 && len(e.Relationships) == 0
}

type ExtractedEntity struct {
	Key         string            `json:"key"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Domain      string            `json:"domain"`
	Source      string            `json:"source"`
	Attributes  map[string]string `json:"attributes"`
	// AssociatedOperationKeys resolve at edge-write time or are dropped.
	AssociatedOperationKeys []string `json:"associatedOperationKeys"`
}

type ExtractedField struct {
	Key             string `json:"key"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	FieldType       string `json:"fieldType"`
	OwningEntityKey string `json:"owningEntityKey"`
	// OwningEntity is the display-name variant some responses use instead
	// of the key.
	OwningEntity string `json:"owningEntity"`
}

type ExtractedOperation struct {
	Key              string   `json:"key"`
	OperationID      string   `json:"operationId"`
	Method           string   `json:"method"`
	Path             string   `json:"path"`
	Summary          string   `json:"summary"`
	Description      string   `json:"description"`
	Tags             []string `json:"tags"`
	Signature        string   `json:"signature"`
	DocumentationURI string   `json:"documentationUri"`
	RequestSchema    Flex     `json:"requestSchema"`
	ResponseSchema   Flex     `json:"responseSchema"`
	Category         string   `json:"category"`
	PrimaryEntityKey string   `json:"primaryEntity"`
}

type ExtractedExample struct {
	Key                string `json:"key"`
	Name               string `json:"name"`
	Summary            string `json:"summary"`
	Description        string `json:"description"`
	RequestBody        Flex   `json:"requestBody"`
	ResponseBody       Flex   `json:"responseBody"`
	ResponseStatus     Flex   `json:"responseStatus"`
	OwningOperationKey string `json:"owningOperationKey"`
	OwningOperation    string `json:"owningOperation"`
}

type ExtractedDoc struct {
	Key         string            `json:"key"`
	Title       string            `json:"title"`
	Content     string            `json:"content"`
	DocType     string            `json:"docType"`
	SourceFile  string            `json:"sourceFile"`
	RelatedKeys []string          `json:"relatedKeys"`
	Metadata    map[string]string `json:"metadata"`
}

type ExtractedRelationship struct {
	FromKey     string          `json:"from"`
	ToKey       string          `json:"to"`
	EdgeType    string          `json:"type"`
	Description string          `json:"description"`
	Strength    float64         `json:"strength"`
	Properties  map[string]Flex `json:"properties"`
}

// Parse decodes one raw LLM response. Valid JSON passes through untouched;
// otherwise the first-pass character walk and then the aggressive regex
// repair are tried in order. A response that survives neither fails with
// an empty extraction.
func Parse(raw string) ParseOutcome {
	candidate := ExtractJSON(raw)
	if candidate == "" {
		return ParseOutcome{
			Status:      StatusFailed,
			Extraction:  &Extraction{},
			Diagnostics: []string{"no JSON object found in response"},
			Raw:         raw,
		}
	}

	if ext, err := decode(candidate); err == nil {
		return ParseOutcome{Status: StatusSuccess, Extraction: ext, Raw: raw}
	}

	var diags []string

	repaired := firstPassRepair(candidate)
	if ext, err := decode(repaired); err == nil {
		diags = append(diags, "decoded after first-pass repair")
		return ParseOutcome{Status: StatusPartial, Extraction: ext, Diagnostics: diags, Raw: raw}
	} else {
		diags = append(diags, fmt.Sprintf("first-pass repair insufficient: %v", err))
	}

	forced := aggressiveRepair(repaired)
	if ext, err := decode(forced); err == nil {
		diags = append(diags, "decoded after aggressive repair")
		return ParseOutcome{Status: StatusPartial, Extraction: ext, Diagnostics: diags, Raw: raw}
	} else {
		diags = append(diags, fmt.Sprintf("aggressive repair insufficient: %v", err))
	}

	return ParseOutcome{Status: StatusFailed, Extraction: &Extraction{}, Diagnostics: diags, Raw: raw}
}

func decode(s string) (*Extraction, error) {
	var ext Extraction
	if err := json.Unmarshal([]byte(s), &ext); err != nil {
		return nil, err
	}
	return &ext, nil
}
