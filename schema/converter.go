// Package schema holds the JSON-schema plumbing shared by the exporters and
// importers: enum coercion, conversion to and from genai.Schema, and the
// per-tool fixups applied to declared parameters.
package schema

import (
	"strings"

	"google.golang.org/genai"
)

// SchemaConverter turns a Gemini parameter schema into the JSON Schema map
// carried by ir.ToolDeclaration.Parameters. Two implementations are provided:
//   - ManualSchemaConverter: walks genai.Schema field by field (the default)
//   - JSONSchemaConverter: goes through the genai JSON encoding, so fields
//     added to genai.Schema later are carried without code changes
//
// Both write JSON Schema vocabulary: lower-case type names, and Nullable
// folded into a ["type", "null"] list. This is the inverse of ToGenai.
type SchemaConverter interface {
	Convert(schema *genai.Schema) (map[string]any, error)
}

// jsonSchemaType returns the "type" value for a genai type. ok is false when
// the schema has no usable type.
func jsonSchemaType(t genai.Type, nullable bool) (value any, ok bool) {
	if t == "" || t == genai.TypeUnspecified {
		return nil, false
	}
	name := strings.ToLower(string(t))
	if nullable && t != genai.TypeNULL {
		return []any{name, "null"}, true
	}
	return name, true
}
