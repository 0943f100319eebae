package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

// JSONSchemaConverter implements SchemaConverter through the genai JSON
// encoding. Numbers come back as json.Number, the same as parameters decoded
// from a Claude or OpenAI document.
type JSONSchemaConverter struct{}

// NewJSONSchemaConverter creates a JSON round-trip converter.
func NewJSONSchemaConverter() SchemaConverter {
	return &JSONSchemaConverter{}
}

// Convert transforms a genai.Schema into a parameter map.
func (c *JSONSchemaConverter) Convert(schema *genai.Schema) (map[string]any, error) {
	if schema == nil {
		return nil, nil
	}
	slog.Default().Debug("json schema conversion", "schema_type", schema.Type)

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema: %w", err)
	}
	normalizeTypes(out)
	return out, nil
}

// normalizeTypes rewrites the genai "type" and "nullable" keys of node and
// every subschema under properties, items and anyOf into JSON Schema form.
func normalizeTypes(node map[string]any) {
	name, _ := node["type"].(string)
	nullable, hasNullable := node["nullable"].(bool)
	if typ, ok := jsonSchemaType(genai.Type(name), nullable); ok {
		node["type"] = typ
		delete(node, "nullable")
	} else {
		delete(node, "type")
		if hasNullable {
			node["nullable"] = nullable
		}
	}

	if props, ok := node["properties"].(map[string]any); ok {
		for _, p := range props {
			if sub, ok := p.(map[string]any); ok {
				normalizeTypes(sub)
			}
		}
	}
	if items, ok := node["items"].(map[string]any); ok {
		normalizeTypes(items)
	}
	if anyOf, ok := node["anyOf"].([]any); ok {
		for _, a := range anyOf {
			if sub, ok := a.(map[string]any); ok {
				normalizeTypes(sub)
			}
		}
	}
}
