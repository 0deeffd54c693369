package graph

import (
	"strings"
)

// NodeKind discriminates the node variants stored in the graph.
type NodeKind string

const (
	KindEntity        NodeKind = "entity"
	KindField         NodeKind = "field"
	KindOperation     NodeKind = "op"
	KindExample       NodeKind = "example"
	KindDocumentation NodeKind = "doc"
)

// AllKinds lists node kinds in persistence order: entities first, then
// fields, operations, examples, and documentation.
func AllKinds() []NodeKind {
	return []NodeKind{KindEntity, KindField, KindOperation, KindExample, KindDocumentation}
}

// Slugify lowercases the input and replaces any character outside
// [a-z0-9_-] with an underscore. Slugs are stable: the same input always
// produces the same slug.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// NodeKey builds the logical key `<kind>|<slug>` for a display name.
func NodeKey(kind NodeKind, name string) string {
	return string(kind) + "|" + Slugify(name)
}

// ChildKey builds the logical key for nodes addressed through a parent,
// i.e. fields and examples: `<kind>|<parent-slug>_<name-slug>`.
func ChildKey(kind NodeKind, parentKey, name string) string {
	parent := parentKey
	if i := strings.IndexByte(parent, '|'); i >= 0 {
		parent = parent[i+1:]
	}
	return string(kind) + "|" + Slugify(parent) + "_" + Slugify(name)
}

// KindOf extracts the kind prefix from a logical key. Returns an empty
// kind when the key carries no recognizable prefix.
func KindOf(key string) NodeKind {
	i := strings.IndexByte(key, '|')
	if i < 0 {
		return ""
	}
	switch k := NodeKind(key[:i]); k {
	case KindEntity, KindField, KindOperation, KindExample, KindDocumentation:
		return k
	default:
		return ""
	}
}

// CanonicalID converts a logical key into the form accepted by backends
// whose identifier grammar disallows `|`: `<>` (edge key separator)
// becomes `_to_` and `|` becomes `_`. The function is idempotent and the
// result is deterministic in the logical key. The logical form is the only
// form used inside the system; drivers canonicalize on write.
func CanonicalID(key string) string {
	key = strings.ReplaceAll(key, "<>", "_to_")
	return strings.ReplaceAll(key, "|", "_")
}
