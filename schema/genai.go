package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"google.golang.org/genai"
)

// ToGenai converts a JSON-Schema-like parameter map into a genai.Schema.
//
// Converts:
//   - "type" string -> upper-case genai.Type
//   - "type" list -> the single non-null entry plus Nullable, or AnyOf when
//     several non-null types are listed
//   - properties, items (object form), anyOf, required, enum, format, pattern,
//     numeric bounds, nullable, default, example, propertyOrdering
//
// Enum values are rendered with EnumString, so the result always carries
// string enums. Keywords genai.Schema has no field for are dropped; their
// paths are returned sorted so callers can report them.
func ToGenai(params map[string]any) (*genai.Schema, []string, error) {
	if params == nil {
		return nil, nil, nil
	}
	var dropped []string
	s, err := toGenai(params, "", &dropped)
	if err != nil {
		return nil, nil, err
	}
	sort.Strings(dropped)
	return s, dropped, nil
}

func toGenai(node map[string]any, path string, dropped *[]string) (*genai.Schema, error) {
	s := &genai.Schema{}
	keys := make([]string, 0, len(node))
	for k := range node {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		val := node[key]
		at := joinPath(path, key)
		switch key {
		case "type":
			if err := applyType(s, val, at); err != nil {
				return nil, err
			}
		case "description":
			s.Description = stringValue(val)
		case "title":
			s.Title = stringValue(val)
		case "format":
			s.Format = stringValue(val)
		case "pattern":
			s.Pattern = stringValue(val)
		case "properties":
			props, ok := val.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s: properties must be an object", at)
			}
			s.Properties = make(map[string]*genai.Schema, len(props))
			for name, raw := range props {
				sub, ok := raw.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("%s.%s: property schema must be an object", at, name)
				}
				conv, err := toGenai(sub, at+"."+name, dropped)
				if err != nil {
					return nil, err
				}
				s.Properties[name] = conv
			}
		case "items":
			sub, ok := val.(map[string]any)
			if !ok {
				*dropped = append(*dropped, at)
				continue
			}
			conv, err := toGenai(sub, at, dropped)
			if err != nil {
				return nil, err
			}
			s.Items = conv
		case "anyOf":
			list, ok := val.([]any)
			if !ok {
				return nil, fmt.Errorf("%s: anyOf must be an array", at)
			}
			for i, raw := range list {
				sub, ok := raw.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("%s[%d]: schema must be an object", at, i)
				}
				conv, err := toGenai(sub, fmt.Sprintf("%s[%d]", at, i), dropped)
				if err != nil {
					return nil, err
				}
				s.AnyOf = append(s.AnyOf, conv)
			}
		case "required":
			s.Required = stringList(val)
		case "propertyOrdering":
			s.PropertyOrdering = stringList(val)
		case "enum":
			list, ok := val.([]any)
			if !ok {
				return nil, fmt.Errorf("%s: enum must be an array", at)
			}
			s.Enum = make([]string, len(list))
			for i, v := range list {
				s.Enum[i] = EnumString(v)
			}
		case "minimum":
			s.Minimum = floatPtr(val)
		case "maximum":
			s.Maximum = floatPtr(val)
		case "minLength":
			s.MinLength = intPtr(val)
		case "maxLength":
			s.MaxLength = intPtr(val)
		case "minItems":
			s.MinItems = intPtr(val)
		case "maxItems":
			s.MaxItems = intPtr(val)
		case "minProperties":
			s.MinProperties = intPtr(val)
		case "maxProperties":
			s.MaxProperties = intPtr(val)
		case "nullable":
			if b, ok := val.(bool); ok {
				s.Nullable = &b
			}
		case "default":
			s.Default = val
		case "example":
			s.Example = val
		default:
			*dropped = append(*dropped, at)
		}
	}
	return s, nil
}

func applyType(s *genai.Schema, val any, at string) error {
	switch t := val.(type) {
	case string:
		s.Type = genai.Type(strings.ToUpper(t))
		return nil
	case []any:
		var types []string
		nullable := false
		for _, entry := range t {
			name, ok := entry.(string)
			if !ok {
				return fmt.Errorf("%s: type list entries must be strings", at)
			}
			if name == "null" {
				nullable = true
				continue
			}
			types = append(types, name)
		}
		switch len(types) {
		case 0:
			s.Type = genai.TypeNULL
		case 1:
			s.Type = genai.Type(strings.ToUpper(types[0]))
		default:
			for _, name := range types {
				s.AnyOf = append(s.AnyOf, &genai.Schema{Type: genai.Type(strings.ToUpper(name))})
			}
		}
		if nullable && len(types) > 0 {
			s.Nullable = genai.Ptr(true)
		}
		return nil
	default:
		return fmt.Errorf("%s: type must be a string or a list of strings", at)
	}
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...)
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func floatPtr(v any) *float64 {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil
		}
		return &f
	case float64:
		return &n
	case int:
		f := float64(n)
		return &f
	case int64:
		f := float64(n)
		return &f
	default:
		return nil
	}
}

func intPtr(v any) *int64 {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return &i
		}
		f, err := n.Float64()
		if err != nil {
			return nil
		}
		i := int64(f)
		return &i
	case float64:
		i := int64(n)
		return &i
	case int:
		i := int64(n)
		return &i
	case int64:
		return &n
	default:
		return nil
	}
}
