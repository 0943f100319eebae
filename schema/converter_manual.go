package schema

import (
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

// ManualSchemaConverter implements SchemaConverter by copying each genai.Schema
// field. It has to be updated by hand when genai.Schema grows fields.
type ManualSchemaConverter struct{}

// NewManualSchemaConverter creates the default converter.
func NewManualSchemaConverter() SchemaConverter {
	return &ManualSchemaConverter{}
}

// Convert transforms a genai.Schema into a parameter map. Enum values and
// string lists come back as []any so the result reads like decoded JSON.
//
// Returns an error naming the path of any nil subschema.
func (c *ManualSchemaConverter) Convert(schema *genai.Schema) (map[string]any, error) {
	if schema == nil {
		return nil, nil
	}
	slog.Default().Debug("manual schema conversion", "schema_type", schema.Type)
	return c.convert(schema, "")
}

func (c *ManualSchemaConverter) convert(s *genai.Schema, path string) (map[string]any, error) {
	if s == nil {
		return nil, fmt.Errorf("%s: schema is nil", path)
	}
	out := make(map[string]any)

	nullable := s.Nullable != nil && *s.Nullable
	if typ, ok := jsonSchemaType(s.Type, nullable); ok {
		out["type"] = typ
	} else if s.Nullable != nil {
		out["nullable"] = *s.Nullable
	}

	setString(out, "title", s.Title)
	setString(out, "description", s.Description)
	setString(out, "format", s.Format)
	setString(out, "pattern", s.Pattern)
	setList(out, "required", s.Required)
	setList(out, "enum", s.Enum)
	setList(out, "propertyOrdering", s.PropertyOrdering)

	setPtr(out, "minimum", s.Minimum)
	setPtr(out, "maximum", s.Maximum)
	setPtr(out, "minLength", s.MinLength)
	setPtr(out, "maxLength", s.MaxLength)
	setPtr(out, "minItems", s.MinItems)
	setPtr(out, "maxItems", s.MaxItems)
	setPtr(out, "minProperties", s.MinProperties)
	setPtr(out, "maxProperties", s.MaxProperties)

	if s.Default != nil {
		out["default"] = s.Default
	}
	if s.Example != nil {
		out["example"] = s.Example
	}

	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, sub := range s.Properties {
			conv, err := c.convert(sub, joinPath(path, "properties."+name))
			if err != nil {
				return nil, err
			}
			props[name] = conv
		}
		out["properties"] = props
	}
	if s.Items != nil {
		items, err := c.convert(s.Items, joinPath(path, "items"))
		if err != nil {
			return nil, err
		}
		out["items"] = items
	}
	if len(s.AnyOf) > 0 {
		anyOf := make([]any, len(s.AnyOf))
		for i, sub := range s.AnyOf {
			conv, err := c.convert(sub, fmt.Sprintf("%s[%d]", joinPath(path, "anyOf"), i))
			if err != nil {
				return nil, err
			}
			anyOf[i] = conv
		}
		out["anyOf"] = anyOf
	}
	return out, nil
}

func setString(out map[string]any, key, v string) {
	if v != "" {
		out[key] = v
	}
}

func setList(out map[string]any, key string, v []string) {
	if len(v) > 0 {
		out[key] = stringsToAny(v)
	}
}

func setPtr[T any](out map[string]any, key string, v *T) {
	if v != nil {
		out[key] = *v
	}
}
