package graph

import (
	"fmt"
	"strings"
)

// EntityNode is a domain entity extracted from an API or its documentation.
type EntityNode struct {
	Key                     string            `json:"key"`
	Name                    string            `json:"name"`
	Description             string            `json:"description,omitempty"`
	ServiceSlug             string            `json:"service_slug,omitempty"`
	AssociatedOperationKeys []string          `json:"associated_operation_keys,omitempty"`
	Source                  string            `json:"source,omitempty"`
	Attributes              map[string]string `json:"attributes,omitempty"`
	Domain                  string            `json:"domain,omitempty"`
}

// FieldNode is a single attribute of an entity.
type FieldNode struct {
	Key             string `json:"key"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	FieldType       string `json:"field_type,omitempty"`
	OwningEntityKey string `json:"owning_entity_key"`
	ServiceSlug     string `json:"service_slug,omitempty"`
}

// OperationNode is an API operation (one method+path pair).
type OperationNode struct {
	Key              string   `json:"key"`
	OperationID      string   `json:"operation_id"`
	Method           string   `json:"method,omitempty"`
	Path             string   `json:"path,omitempty"`
	Summary          string   `json:"summary,omitempty"`
	Description      string   `json:"description,omitempty"`
	ServiceSlug      string   `json:"service_slug,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	Signature        string   `json:"signature,omitempty"`
	ExampleKeys      []string `json:"example_keys,omitempty"`
	DocumentationURI string   `json:"documentation_uri,omitempty"`
	RequestSchema    string   `json:"request_schema,omitempty"`
	ResponseSchema   string   `json:"response_schema,omitempty"`
	Category         string   `json:"category,omitempty"`
	PrimaryEntityKey string   `json:"primary_entity_key,omitempty"`
}

// ExampleNode is a request/response example attached to an operation.
type ExampleNode struct {
	Key                string `json:"key"`
	Name               string `json:"name"`
	Summary            string `json:"summary,omitempty"`
	Description        string `json:"description,omitempty"`
	RequestBody        string `json:"request_body,omitempty"`
	ResponseBody       string `json:"response_body,omitempty"`
	ResponseStatus     string `json:"response_status,omitempty"`
	OwningOperationKey string `json:"owning_operation_key"`
	ServiceSlug        string `json:"service_slug,omitempty"`
}

// DocumentationNode is a chunk of prose documentation tied into the graph.
type DocumentationNode struct {
	Key         string            `json:"key"`
	Title       string            `json:"title"`
	Content     string            `json:"content"`
	DocType     string            `json:"doc_type,omitempty"`
	SourceFile  string            `json:"source_file,omitempty"`
	RelatedKeys []string          `json:"related_keys,omitempty"`
	ServiceSlug string            `json:"service_slug,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Node is the tagged variant holding exactly one payload. The Kind
// discriminator tells which pointer is set; storage stays homogeneous per
// collection without virtual dispatch.
type Node struct {
	Key  string   `json:"key"`
	Kind NodeKind `json:"kind"`

	Entity        *EntityNode        `json:"entity,omitempty"`
	Field         *FieldNode         `json:"field,omitempty"`
	Operation     *OperationNode     `json:"operation,omitempty"`
	Example       *ExampleNode       `json:"example,omitempty"`
	Documentation *DocumentationNode `json:"documentation,omitempty"`
}

// NewEntityNode wraps an entity payload, synthesizing its key when absent.
func NewEntityNode(e *EntityNode) Node {
	if e.Key == "" {
		e.Key = NodeKey(KindEntity, e.Name)
	}
	return Node{Key: e.Key, Kind: KindEntity, Entity: e}
}

// NewFieldNode wraps a field payload. Field keys are unique per
// (entity, name): absent keys are synthesized as `field|<entity>_<name>`.
func NewFieldNode(f *FieldNode) Node {
	if f.Key == "" {
		f.Key = ChildKey(KindField, f.OwningEntityKey, f.Name)
	}
	return Node{Key: f.Key, Kind: KindField, Field: f}
}

// NewOperationNode wraps an operation payload, defaulting the signature to
// `METHOD path — summary` when the extractor did not provide one.
func NewOperationNode(o *OperationNode) Node {
	if o.Key == "" {
		o.Key = NodeKey(KindOperation, o.OperationID)
	}
	if o.Signature == "" {
		o.Signature = DefaultSignature(o.Method, o.Path, o.Summary)
	}
	return Node{Key: o.Key, Kind: KindOperation, Operation: o}
}

// NewExampleNode wraps an example payload; keys default to
// `example|<operation>_<name>`.
func NewExampleNode(e *ExampleNode) Node {
	if e.Key == "" {
		e.Key = ChildKey(KindExample, e.OwningOperationKey, e.Name)
	}
	return Node{Key: e.Key, Kind: KindExample, Example: e}
}

// NewDocumentationNode wraps a documentation payload, synthesizing the key
// from the title when absent.
func NewDocumentationNode(d *DocumentationNode) Node {
	if d.Key == "" {
		d.Key = NodeKey(KindDocumentation, d.Title)
	}
	return Node{Key: d.Key, Kind: KindDocumentation, Documentation: d}
}

// DefaultSignature renders the canonical operation signature.
func DefaultSignature(method, path, summary string) string {
	sig := strings.TrimSpace(strings.ToUpper(method) + " " + path)
	if summary != "" {
		sig += " — " + summary
	}
	return sig
}

// Name returns the display name of the wrapped payload.
func (n Node) Name() string {
	switch n.Kind {
	case KindEntity:
		return n.Entity.Name
	case KindField:
		return n.Field.Name
	case KindOperation:
		return n.Operation.OperationID
	case KindExample:
		return n.Example.Name
	case KindDocumentation:
		return n.Documentation.Title
	}
	return ""
}

// ServiceSlug returns the owning service of the wrapped payload.
func (n Node) ServiceSlug() string {
	switch n.Kind {
	case KindEntity:
		return n.Entity.ServiceSlug
	case KindField:
		return n.Field.ServiceSlug
	case KindOperation:
		return n.Operation.ServiceSlug
	case KindExample:
		return n.Example.ServiceSlug
	case KindDocumentation:
		return n.Documentation.ServiceSlug
	}
	return ""
}

// Validate checks the variant invariants from the data model: exactly one
// payload set, matching kind, non-empty key, and per-kind required fields.
func (n Node) Validate() error {
	if n.Key == "" {
		return fmt.Errorf("node has empty key")
	}
	switch n.Kind {
	case KindEntity:
		if n.Entity == nil {
			return fmt.Errorf("node %s: kind entity without entity payload", n.Key)
		}
		if n.Entity.Name == "" {
			return fmt.Errorf("node %s: entity name is required", n.Key)
		}
	case KindField:
		if n.Field == nil {
			return fmt.Errorf("node %s: kind field without field payload", n.Key)
		}
		if n.Field.OwningEntityKey == "" {
			return fmt.Errorf("node %s: field owning entity key is required", n.Key)
		}
	case KindOperation:
		if n.Operation == nil {
			return fmt.Errorf("node %s: kind op without operation payload", n.Key)
		}
		if n.Operation.OperationID == "" {
			return fmt.Errorf("node %s: operation id is required", n.Key)
		}
	case KindExample:
		if n.Example == nil {
			return fmt.Errorf("node %s: kind example without example payload", n.Key)
		}
		if n.Example.OwningOperationKey == "" {
			return fmt.Errorf("node %s: example owning operation key is required", n.Key)
		}
	case KindDocumentation:
		if n.Documentation == nil {
			return fmt.Errorf("node %s: kind doc without documentation payload", n.Key)
		}
		if strings.TrimSpace(n.Documentation.Content) == "" {
			return fmt.Errorf("node %s: documentation content is blank", n.Key)
		}
	default:
		return fmt.Errorf("node %s: unknown kind %q", n.Key, n.Kind)
	}
	return nil
}
