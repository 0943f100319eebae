package schema

import (
	"encoding/json"
	"strconv"
)

// Keywords whose value is a single subschema.
var schemaValued = []string{
	"items", "additionalProperties", "additionalItems", "not", "if", "then", "else",
	"contains", "propertyNames", "unevaluatedItems", "unevaluatedProperties",
}

// Keywords whose value is a list of subschemas.
var schemaListValued = []string{"anyOf", "oneOf", "allOf", "prefixItems", "items"}

// Keywords whose value maps names to subschemas.
var schemaMapValued = []string{"properties", "patternProperties", "$defs", "definitions", "dependentSchemas"}

// CoerceEnums returns a deep copy of params in which every "enum" list, at any
// depth, holds strings only. Each entry becomes EnumString(entry); the number
// of entries never changes. params itself is not modified.
func CoerceEnums(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := Clone(params)
	coerceEnums(out)
	return out
}

func coerceEnums(node map[string]any) {
	if values, ok := node["enum"].([]any); ok {
		for i, v := range values {
			values[i] = EnumString(v)
		}
	}
	walkSubschemas(node, coerceEnums)
}

// walkSubschemas calls fn for each direct subschema of node.
func walkSubschemas(node map[string]any, fn func(map[string]any)) {
	for _, key := range schemaValued {
		if sub, ok := node[key].(map[string]any); ok {
			fn(sub)
		}
	}
	for _, key := range schemaListValued {
		if list, ok := node[key].([]any); ok {
			for _, item := range list {
				if sub, ok := item.(map[string]any); ok {
					fn(sub)
				}
			}
		}
	}
	for _, key := range schemaMapValued {
		if m, ok := node[key].(map[string]any); ok {
			for _, item := range m {
				if sub, ok := item.(map[string]any); ok {
					fn(sub)
				}
			}
		}
	}
}

// EnumString renders an enum value as the string a string-only enum carries:
// strings are unchanged, numbers keep their JSON literal, booleans and null
// become "true", "false" and "null", and objects or arrays become compact JSON.
func EnumString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return "null"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Clone deep-copies a decoded JSON value tree.
func Clone(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return Clone(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return val
	}
}
