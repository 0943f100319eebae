package claude

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robbyt/fantasy-adapters/reqconv/format"
	"github.com/robbyt/fantasy-adapters/reqconv/ir"
)

const pngHeader = "iVBORw0KGgo="

const weatherRequest = `{
  "model": "claude-3-5-sonnet-20241022",
  "max_tokens": 1024,
  "system": "You are a weather bot.",
  "tools": [
    {
      "name": "get_weather",
      "description": "Current weather for a city",
      "input_schema": {
        "type": "object",
        "properties": {
          "city": {"type": "string"},
          "unit": {"type": "string", "enum": ["c", "f"]}
        },
        "required": ["city"]
      }
    }
  ],
  "messages": [
    {"role": "user", "content": [
      {"type": "text", "text": "Weather in Paris? Here is a map."},
      {"type": "image", "source": {"type": "base64", "media_type": "image/png", "data": "iVBORw0KGgo="}}
    ]},
    {"role": "assistant", "content": [
      {"type": "text", "text": "Let me check."},
      {"type": "tool_use", "id": "call_1", "name": "get_weather", "input": {"city": "Paris", "days": 3}}
    ]},
    {"role": "user", "content": [
      {"type": "tool_result", "tool_use_id": "call_1", "content": "18C and sunny"}
    ]},
    {"role": "assistant", "content": "It is 18C and sunny in Paris."}
  ]
}`

func importDoc(t *testing.T, doc string) *ir.Conversation {
	t.Helper()
	c, _, err := NewImporter().Import([]byte(doc))
	require.NoError(t, err)
	return c
}

func TestImporter_WeatherConversation(t *testing.T) {
	c := importDoc(t, weatherRequest)

	assert.Equal(t, "You are a weather bot.", c.SystemInstruction)
	require.Len(t, c.Tools, 1)
	assert.Equal(t, "get_weather", c.Tools[0].Name)
	assert.Equal(t, []any{"c", "f"}, c.Tools[0].Parameters["properties"].(map[string]any)["unit"].(map[string]any)["enum"])

	require.Len(t, c.Messages, 4)

	user := c.Messages[0]
	assert.Equal(t, ir.RoleUser, user.Role)
	require.Len(t, user.Blocks, 2)
	img, ok := user.Blocks[1].(ir.Image)
	require.True(t, ok)
	assert.Equal(t, "image/png", img.MIMEType)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, img.Data)

	assistant := c.Messages[1]
	assert.Equal(t, ir.RoleAssistant, assistant.Role)
	assert.Equal(t, ir.Text{Value: "Let me check."}, assistant.Blocks[0])
	call, ok := assistant.Blocks[1].(ir.ToolInvocation)
	require.True(t, ok)
	assert.Equal(t, "call_1", call.CallID)
	assert.Equal(t, "get_weather", call.ToolName)
	assert.Equal(t, map[string]any{"city": "Paris", "days": json.Number("3")}, call.Arguments)

	carrier := c.Messages[2]
	assert.Equal(t, ir.RoleToolResultCarrier, carrier.Role)
	assert.Equal(t, ir.ToolResult{
		CallID:   "call_1",
		ToolName: "get_weather",
		Content:  []ir.Block{ir.Text{Value: "18C and sunny"}},
	}, carrier.Blocks[0])

	assert.Equal(t, []ir.Block{ir.Text{Value: "It is 18C and sunny in Paris."}}, c.Messages[3].Blocks)
}

func TestImporter_SystemForms(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "text blocks",
			doc:  `{"system":[{"type":"text","text":"a"},{"type":"text","text":"b"}],"messages":[]}`,
			want: "a\nb",
		},
		{
			name: "system message",
			doc:  `{"messages":[{"role":"system","content":"be brief"},{"role":"user","content":"hi"}]}`,
			want: "be brief",
		},
		{
			name: "absent",
			doc:  `{"messages":[{"role":"user","content":"hi"}]}`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := importDoc(t, tt.doc)
			assert.Equal(t, tt.want, c.SystemInstruction)
			for _, m := range c.Messages {
				assert.NotEqual(t, ir.RoleSystem, m.Role)
			}
		})
	}
}

func TestImporter_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		target  error
		path    string
		message string
	}{
		{
			name:    "invalid json",
			doc:     `{"messages": [`,
			target:  ir.ErrMalformedInput,
			message: "invalid request document",
		},
		{
			name:    "missing messages",
			doc:     `{"system": "x"}`,
			target:  ir.ErrMalformedInput,
			path:    "messages",
			message: "missing message list",
		},
		{
			name:    "unknown role",
			doc:     `{"messages":[{"role":"tool","content":"x"}]}`,
			target:  ir.ErrMalformedInput,
			path:    "messages[0].role",
			message: `unknown role "tool"`,
		},
		{
			name:    "system field and system message",
			doc:     `{"system":"a","messages":[{"role":"system","content":"b"}]}`,
			target:  ir.ErrMalformedInput,
			path:    "messages[0]",
			message: "ambiguous system instruction",
		},
		{
			name:    "two system messages",
			doc:     `{"messages":[{"role":"system","content":"a"},{"role":"user","content":"x"},{"role":"system","content":"b"}]}`,
			target:  ir.ErrMalformedInput,
			path:    "messages[2]",
			message: "ambiguous system instruction",
		},
		{
			name:    "url image",
			doc:     `{"messages":[{"role":"user","content":[{"type":"image","source":{"type":"url","url":"https://example.com/a.png"}}]}]}`,
			target:  ir.ErrMalformedInput,
			path:    "messages[0].content[0].source.type",
			message: `unsupported image source type "url"`,
		},
		{
			name:    "thinking block",
			doc:     `{"messages":[{"role":"assistant","content":[{"type":"thinking","thinking":"hmm"}]}]}`,
			target:  ir.ErrMalformedInput,
			path:    "messages[0].content[0]",
			message: `unsupported content block type "thinking"`,
		},
		{
			name:    "tool input not an object",
			doc:     `{"messages":[{"role":"assistant","content":[{"type":"tool_use","id":"x","name":"f","input":[1]}]}]}`,
			target:  ir.ErrMalformedInput,
			path:    "messages[0].content[0].input",
			message: "tool input must be an object",
		},
		{
			name:   "unresolved tool result",
			doc:    `{"messages":[{"role":"user","content":[{"type":"tool_result","tool_use_id":"nope","content":"x"}]}]}`,
			target: ir.ErrUnresolvedToolCall,
		},
		{
			name:   "duplicate tool",
			doc:    `{"tools":[{"name":"f","input_schema":{}},{"name":"f","input_schema":{}}],"messages":[]}`,
			target: ir.ErrDuplicateToolName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, warnings, err := NewImporter().Import([]byte(tt.doc))
			require.Error(t, err)
			assert.Nil(t, c)
			assert.Nil(t, warnings)
			assert.ErrorIs(t, err, tt.target)

			var malformed *ir.MalformedInputError
			if tt.message != "" {
				require.ErrorAs(t, err, &malformed)
				assert.Equal(t, "claude", malformed.Format)
				assert.Equal(t, tt.path, malformed.Path)
				assert.Contains(t, malformed.Reason, tt.message)
			}
		})
	}
}

func TestImporter_ResultBeforeCallFails(t *testing.T) {
	doc := `{"messages":[
		{"role":"user","content":[{"type":"tool_result","tool_use_id":"call_1","content":"x"}]},
		{"role":"assistant","content":[{"type":"tool_use","id":"call_1","name":"f","input":{}}]}
	]}`

	_, _, err := NewImporter().Import([]byte(doc))

	var unresolved *ir.UnresolvedToolCallError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, "call_1", unresolved.CallID)
	assert.Equal(t, "messages[0].content[0]", unresolved.Path)
}

func TestRoundTrip(t *testing.T) {
	original := importDoc(t, weatherRequest)

	out, warnings, err := NewExporter().Export(original)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	again := importDoc(t, string(out))
	assert.Equal(t, original, again)
}

func TestExporter_Shape(t *testing.T) {
	c := importDoc(t, weatherRequest)

	out, _, err := NewExporter().Export(c)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, format.Decode(out, &doc))

	assert.Equal(t, "You are a weather bot.", doc["system"])
	assert.NotContains(t, doc, "model")

	messages := doc["messages"].([]any)
	require.Len(t, messages, 4)

	last := messages[3].(map[string]any)
	assert.Equal(t, "assistant", last["role"])
	assert.Equal(t, "It is 18C and sunny in Paris.", last["content"])

	result := messages[2].(map[string]any)["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "tool_result", result["type"])
	assert.Equal(t, "call_1", result["tool_use_id"])
	assert.Equal(t, "18C and sunny", result["content"])
	assert.NotContains(t, result, "is_error")

	tools := doc["tools"].([]any)
	assert.Equal(t, "get_weather", tools[0].(map[string]any)["name"])
	assert.Contains(t, tools[0].(map[string]any), "input_schema")
}

func TestExporter_MergesConsecutiveCarriers(t *testing.T) {
	c := ir.NewConversation()
	c.AddMessage(ir.Message{Role: ir.RoleAssistant, Blocks: []ir.Block{
		ir.ToolInvocation{CallID: "a", ToolName: "f", Arguments: map[string]any{}},
		ir.ToolInvocation{CallID: "b", ToolName: "g", Arguments: map[string]any{}},
	}})
	c.AddMessage(ir.Message{Role: ir.RoleToolResultCarrier, Blocks: []ir.Block{
		ir.ToolResult{CallID: "a", ToolName: "f", Content: []ir.Block{ir.Text{Value: "1"}}},
	}})
	c.AddMessage(ir.Message{Role: ir.RoleToolResultCarrier, Blocks: []ir.Block{
		ir.ToolResult{CallID: "b", ToolName: "g", Content: []ir.Block{ir.Text{Value: "boom"}}, IsError: true},
	}})

	out, _, err := NewExporter().Export(c)
	require.NoError(t, err)

	var req Request
	require.NoError(t, json.Unmarshal(out, &req))
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "user", req.Messages[1].Role)

	var blocks []ContentBlock
	require.NoError(t, json.Unmarshal(req.Messages[1].Content, &blocks))
	require.Len(t, blocks, 2)
	assert.Equal(t, "a", blocks[0].ToolUseID)
	assert.Equal(t, "b", blocks[1].ToolUseID)
	assert.True(t, blocks[1].IsError)

	again := importDoc(t, string(out))
	require.Len(t, again.Messages, 2)
	assert.Equal(t, ir.RoleToolResultCarrier, again.Messages[1].Role)
}

func TestExporter_ImageInToolResult(t *testing.T) {
	data := []byte{1, 2, 3, 254, 255}
	c := ir.NewConversation()
	c.AddMessage(ir.Message{Role: ir.RoleAssistant, Blocks: []ir.Block{
		ir.ToolInvocation{CallID: "snap", ToolName: "screenshot", Arguments: map[string]any{}},
	}})
	c.AddMessage(ir.Message{Role: ir.RoleToolResultCarrier, Blocks: []ir.Block{
		ir.ToolResult{CallID: "snap", ToolName: "screenshot", Content: []ir.Block{
			ir.Text{Value: "done"},
			ir.Image{MIMEType: "image/jpeg", Data: data},
		}},
	}})

	out, _, err := NewExporter().Export(c)
	require.NoError(t, err)

	again := importDoc(t, string(out))
	result := again.Messages[1].Blocks[0].(ir.ToolResult)
	assert.Equal(t, ir.Image{MIMEType: "image/jpeg", Data: data}, result.Content[1])
}

func TestExporter_NestedToolResultUnsupported(t *testing.T) {
	c := ir.NewConversation()
	c.AddMessage(ir.Message{Role: ir.RoleToolResultCarrier, Blocks: []ir.Block{
		ir.ToolResult{CallID: "a", Content: []ir.Block{ir.ToolResult{CallID: "b"}}},
	}})

	out, _, err := NewExporter().Export(c)
	assert.Nil(t, out)

	var unsupported *ir.UnsupportedContentBlockError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, ir.KindToolResult, unsupported.Kind)
	assert.Equal(t, 0, unsupported.Message)
	assert.ErrorIs(t, err, ir.ErrUnsupportedContentBlock)
}
