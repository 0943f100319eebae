package schema

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/robbyt/fantasy-adapters/reqconv/ir"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var m map[string]any
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&m))
	return m
}

func TestEnumString(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"string", "celsius", "celsius"},
		{"json number", json.Number("42"), "42"},
		{"json float", json.Number("2.50"), "2.50"},
		{"float", 1.5, "1.5"},
		{"whole float", 3.0, "3"},
		{"int", 7, "7"},
		{"bool", true, "true"},
		{"null", nil, "null"},
		{"object", map[string]any{"a": 1}, `{"a":1}`},
		{"array", []any{"x", 1}, `["x",1]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EnumString(tt.in))
		})
	}
}

func TestCoerceEnums_AllDepths(t *testing.T) {
	params := decode(t, `{
		"type": "object",
		"properties": {
			"level": {"type": "integer", "enum": [1, 2, 3]},
			"mode": {"type": "string", "enum": ["fast", "slow"]},
			"tags": {"type": "array", "items": {"enum": [true, false, null]}},
			"extra": {"type": "object", "additionalProperties": {"enum": [1.5, "x"]}},
			"choice": {"anyOf": [{"enum": [10]}, {"type": "string"}]}
		},
		"$defs": {"size": {"enum": [0]}}
	}`)

	out := CoerceEnums(params)

	props := out["properties"].(map[string]any)
	assert.Equal(t, []any{"1", "2", "3"}, props["level"].(map[string]any)["enum"])
	assert.Equal(t, []any{"fast", "slow"}, props["mode"].(map[string]any)["enum"])
	assert.Equal(t, []any{"true", "false", "null"}, props["tags"].(map[string]any)["items"].(map[string]any)["enum"])
	assert.Equal(t, []any{"1.5", "x"}, props["extra"].(map[string]any)["additionalProperties"].(map[string]any)["enum"])
	assert.Equal(t, []any{"10"}, props["choice"].(map[string]any)["anyOf"].([]any)[0].(map[string]any)["enum"])
	assert.Equal(t, []any{"0"}, out["$defs"].(map[string]any)["size"].(map[string]any)["enum"])

	original := params["properties"].(map[string]any)["level"].(map[string]any)["enum"].([]any)
	assert.Equal(t, json.Number("1"), original[0], "input must not be modified")
}

func TestCoerceEnums_CountAndValuePreserved(t *testing.T) {
	values := []any{json.Number("1"), json.Number("-2"), json.Number("3.25"), "a", false, nil}
	params := map[string]any{"type": "string", "enum": values}

	out := CoerceEnums(params)
	got := out["enum"].([]any)

	require.Len(t, got, len(values))
	for i, v := range values {
		assert.Equal(t, EnumString(v), got[i])
		assert.IsType(t, "", got[i])
	}
	assert.Nil(t, CoerceEnums(nil))
}

func TestToGenai(t *testing.T) {
	params := decode(t, `{
		"type": "object",
		"description": "weather lookup",
		"properties": {
			"city": {"type": "string", "minLength": 1},
			"days": {"type": "integer", "enum": [1, 3, 7], "minimum": 1, "maximum": 7},
			"images": {"type": ["array", "null"], "items": {"type": "string"}},
			"id": {"type": ["string", "integer"]},
			"meta": {"type": "object", "additionalProperties": true}
		},
		"required": ["city"],
		"$schema": "http://json-schema.org/draft-07/schema#"
	}`)

	s, dropped, err := ToGenai(params)
	require.NoError(t, err)

	assert.Equal(t, genai.TypeObject, s.Type)
	assert.Equal(t, "weather lookup", s.Description)
	assert.Equal(t, []string{"city"}, s.Required)

	city := s.Properties["city"]
	assert.Equal(t, genai.TypeString, city.Type)
	require.NotNil(t, city.MinLength)
	assert.Equal(t, int64(1), *city.MinLength)

	days := s.Properties["days"]
	assert.Equal(t, genai.TypeInteger, days.Type)
	assert.Equal(t, []string{"1", "3", "7"}, days.Enum)
	require.NotNil(t, days.Maximum)
	assert.InDelta(t, 7.0, *days.Maximum, 0.0001)

	images := s.Properties["images"]
	assert.Equal(t, genai.TypeArray, images.Type)
	require.NotNil(t, images.Nullable)
	assert.True(t, *images.Nullable)
	assert.Equal(t, genai.TypeString, images.Items.Type)

	id := s.Properties["id"]
	require.Len(t, id.AnyOf, 2)
	assert.Equal(t, genai.TypeString, id.AnyOf[0].Type)

	assert.Equal(t, []string{"$schema", "properties.meta.additionalProperties"}, dropped)
}

func TestToGenai_Errors(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		errMsg string
	}{
		{"bad type", map[string]any{"type": 3}, "type must be a string"},
		{"bad type entry", map[string]any{"type": []any{"string", 1}}, "type list entries must be strings"},
		{"bad properties", map[string]any{"properties": []any{}}, "properties must be an object"},
		{"bad property", map[string]any{"properties": map[string]any{"a": "x"}}, "property schema must be an object"},
		{"bad enum", map[string]any{"enum": "x"}, "enum must be an array"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ToGenai(tt.params)
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestToGenai_RoundTripThroughConverter(t *testing.T) {
	params := decode(t, `{"type":"object","properties":{"q":{"type":"string","enum":["a","b"]}},"required":["q"]}`)

	s, dropped, err := ToGenai(params)
	require.NoError(t, err)
	assert.Empty(t, dropped)

	back, err := NewManualSchemaConverter().Convert(s)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"type":       "object",
		"properties": map[string]any{"q": map[string]any{"type": "string", "enum": []any{"a", "b"}}},
		"required":   []any{"q"},
	}, back)
}

func TestApplyFixups(t *testing.T) {
	newConversation := func() *ir.Conversation {
		c := ir.NewConversation()
		require.NoError(t, c.AddTool(ir.ToolDeclaration{
			Name: "segment_anything",
			Parameters: decode(t, `{"type":"object","properties":{"object_english_name":{"type":"string"}},"required":["object"]}`),
		}))
		require.NoError(t, c.AddTool(ir.ToolDeclaration{
			Name: "gemini_edit",
			Parameters: decode(t, `{"type":"object","properties":{"images":{"type":["array","null"]},"prompt":{"type":"string"}},"required":["image","prompt","cfg"]}`),
		}))
		return c
	}

	t.Run("rename drop collapse", func(t *testing.T) {
		c := newConversation()
		original := c.Tools[1].Parameters

		warnings := ApplyFixups(c, []Fixup{
			{Tool: "segment_anything", RenameRequired: map[string]string{"object": "object_english_name"}},
			{Tool: "gemini_edit", RenameRequired: map[string]string{"image": "images"}, DropRequired: []string{"cfg"}, CollapseNullable: []string{"images"}},
		})

		assert.Equal(t, []any{"object_english_name"}, c.Tools[0].Parameters["required"])
		assert.Equal(t, []any{"images", "prompt"}, c.Tools[1].Parameters["required"])
		images := c.Tools[1].Parameters["properties"].(map[string]any)["images"].(map[string]any)
		assert.Equal(t, "array", images["type"])
		assert.Len(t, warnings, 4)
		assert.Equal(t, "tools[1]", warnings[1].Path)

		assert.Equal(t, []any{"image", "prompt", "cfg"}, original["required"], "source map must not change")
	})

	t.Run("prune on every tool", func(t *testing.T) {
		c := newConversation()

		warnings := ApplyFixups(c, []Fixup{{Tool: "*", PruneRequired: true}})

		assert.Equal(t, []any{}, c.Tools[0].Parameters["required"])
		assert.Equal(t, []any{"prompt"}, c.Tools[1].Parameters["required"])
		assert.Len(t, warnings, 3)
	})

	t.Run("no match leaves tools alone", func(t *testing.T) {
		c := newConversation()
		before := c.Tools[0].Parameters

		warnings := ApplyFixups(c, []Fixup{{Tool: "outpaint", DropRequired: []string{"prompt"}}})

		assert.Empty(t, warnings)
		assert.Equal(t, before, c.Tools[0].Parameters)
	})
}
