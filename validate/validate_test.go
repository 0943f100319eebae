package validate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robbyt/fantasy-adapters/reqconv/ir"
)

func weatherConversation() *ir.Conversation {
	return &ir.Conversation{
		SystemInstruction: "You are a weather assistant.",
		Tools: []ir.ToolDeclaration{{
			Name: "get_weather",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"city": map[string]any{"type": "string"},
					"days": map[string]any{"type": "integer"},
				},
				"required": []any{"city"},
			},
		}},
		Messages: []ir.Message{
			{Role: ir.RoleUser, Blocks: []ir.Block{ir.Text{Value: "Weather in Paris?"}}},
			{Role: ir.RoleAssistant, Blocks: []ir.Block{ir.ToolInvocation{
				CallID:    "call_1",
				ToolName:  "get_weather",
				Arguments: map[string]any{"city": "Paris", "days": json.Number("3")},
			}}},
			{Role: ir.RoleToolResultCarrier, Blocks: []ir.Block{ir.ToolResult{
				CallID:   "call_1",
				ToolName: "get_weather",
				Content:  []ir.Block{ir.Text{Value: "sunny"}},
			}}},
		},
	}
}

func invariants(r *Report) []Invariant {
	out := make([]Invariant, len(r.Violations))
	for i, v := range r.Violations {
		out[i] = v.Invariant
	}
	return out
}

func TestConversation_Valid(t *testing.T) {
	r := Conversation(weatherConversation())

	assert.True(t, r.OK())
	assert.Empty(t, r.Violations)
	assert.Empty(t, r.Warnings)
	assert.NoError(t, r.Err())
}

func TestConversation_DoesNotModify(t *testing.T) {
	c := weatherConversation()
	before := weatherConversation()

	Conversation(c)
	assert.Equal(t, before, c)
}

func TestConversation_Violations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *ir.Conversation)
		want   Invariant
		path   string
	}{
		{
			name: "result before call",
			mutate: func(c *ir.Conversation) {
				c.Messages[1], c.Messages[2] = c.Messages[2], c.Messages[1]
			},
			want: CallCorrelation,
			path: "messages[1].blocks[0]",
		},
		{
			name: "result with wrong tool name",
			mutate: func(c *ir.Conversation) {
				res := c.Messages[2].Blocks[0].(ir.ToolResult)
				res.ToolName = "get_time"
				c.Messages[2].Blocks[0] = res
			},
			want: CallCorrelation,
			path: "messages[2].blocks[0]",
		},
		{
			name: "result without tool name",
			mutate: func(c *ir.Conversation) {
				res := c.Messages[2].Blocks[0].(ir.ToolResult)
				res.ToolName = ""
				c.Messages[2].Blocks[0] = res
			},
			want: CallCorrelation,
			path: "messages[2].blocks[0]",
		},
		{
			name: "duplicate tool",
			mutate: func(c *ir.Conversation) {
				c.Tools = append(c.Tools, ir.ToolDeclaration{Name: "get_weather"})
			},
			want: UniqueToolNames,
			path: "tools[1]",
		},
		{
			name: "unnamed tool",
			mutate: func(c *ir.Conversation) {
				c.Tools = append(c.Tools, ir.ToolDeclaration{})
			},
			want: UniqueToolNames,
			path: "tools[1]",
		},
		{
			name: "invocation in user message",
			mutate: func(c *ir.Conversation) {
				c.Messages[1].Role = ir.RoleUser
			},
			want: BlockPlacement,
			path: "messages[1].blocks[0]",
		},
		{
			name: "result in assistant message",
			mutate: func(c *ir.Conversation) {
				c.Messages[2].Role = ir.RoleAssistant
			},
			want: BlockPlacement,
			path: "messages[2].blocks[0]",
		},
		{
			name: "nested tool result",
			mutate: func(c *ir.Conversation) {
				res := c.Messages[2].Blocks[0].(ir.ToolResult)
				res.Content = append(res.Content, ir.ToolResult{CallID: "call_1"})
				c.Messages[2].Blocks[0] = res
			},
			want: BlockPlacement,
			path: "messages[2].blocks[0]",
		},
		{
			name: "unknown role",
			mutate: func(c *ir.Conversation) {
				c.Messages[0].Role = "tool"
			},
			want: BlockPlacement,
			path: "messages[0]",
		},
		{
			name: "nil block",
			mutate: func(c *ir.Conversation) {
				c.Messages[0].Blocks = append(c.Messages[0].Blocks, nil)
			},
			want: BlockPlacement,
			path: "messages[0].blocks[1]",
		},
		{
			name: "system message left in messages",
			mutate: func(c *ir.Conversation) {
				c.Messages = append([]ir.Message{{
					Role:   ir.RoleSystem,
					Blocks: []ir.Block{ir.Text{Value: "be brief"}},
				}}, c.Messages...)
			},
			want: SingleSystemInstruction,
			path: "messages[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := weatherConversation()
			tt.mutate(c)

			r := Conversation(c, WithSchemaChecks(false))
			require.False(t, r.OK())
			require.Len(t, r.Violations, 1, "violations: %v", r.Violations)
			assert.Equal(t, tt.want, r.Violations[0].Invariant)
			assert.Equal(t, tt.path, r.Violations[0].Path)

			err := r.Err()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, r.Violations, verr.Violations)
		})
	}
}

func TestConversation_CollectsEveryViolation(t *testing.T) {
	c := weatherConversation()
	c.Tools = append(c.Tools, ir.ToolDeclaration{Name: "get_weather"})
	c.Messages[1].Role = ir.RoleUser
	c.Messages = append(c.Messages, ir.Message{
		Role:   ir.RoleToolResultCarrier,
		Blocks: []ir.Block{ir.ToolResult{CallID: "call_404", ToolName: "get_weather"}},
	})

	r := Conversation(c, WithSchemaChecks(false))
	assert.Equal(t, []Invariant{UniqueToolNames, BlockPlacement, CallCorrelation}, invariants(r))
	assert.Contains(t, r.Err().Error(), "3 invariants violated")
	assert.Contains(t, r.Err().Error(), `unknown call id "call_404"`)
}

func TestConversation_ReusedCallIDWarns(t *testing.T) {
	c := weatherConversation()
	c.Messages = append(c.Messages, ir.Message{
		Role: ir.RoleAssistant,
		Blocks: []ir.Block{ir.ToolInvocation{
			CallID:    "call_1",
			ToolName:  "get_weather",
			Arguments: map[string]any{"city": "Lyon"},
		}},
	})

	r := Conversation(c)
	assert.True(t, r.OK())
	require.Len(t, r.Warnings, 1)
	assert.Equal(t, "messages[3].blocks[0]", r.Warnings[0].Path)
	assert.Contains(t, r.Warnings[0].Message, "reused")
}

func TestConversation_SchemaWarnings(t *testing.T) {
	t.Run("arguments violate schema", func(t *testing.T) {
		c := weatherConversation()
		c.Messages[1].Blocks[0] = ir.ToolInvocation{
			CallID:    "call_1",
			ToolName:  "get_weather",
			Arguments: map[string]any{"days": json.Number("3")},
		}

		r := Conversation(c)
		assert.True(t, r.OK())
		require.Len(t, r.Warnings, 1)
		assert.Equal(t, "messages[1].blocks[0]", r.Warnings[0].Path)
		assert.Contains(t, r.Warnings[0].Message, "do not satisfy")
	})

	t.Run("wrong argument type", func(t *testing.T) {
		c := weatherConversation()
		c.Messages[1].Blocks[0] = ir.ToolInvocation{
			CallID:    "call_1",
			ToolName:  "get_weather",
			Arguments: map[string]any{"city": "Paris", "days": "three"},
		}

		r := Conversation(c)
		require.Len(t, r.Warnings, 1)
		assert.Contains(t, r.Warnings[0].Message, `"get_weather"`)
	})

	t.Run("undeclared tool", func(t *testing.T) {
		c := weatherConversation()
		c.Messages[1].Blocks[0] = ir.ToolInvocation{CallID: "call_1", ToolName: "get_time"}
		c.Messages[2].Blocks[0] = ir.ToolResult{CallID: "call_1", ToolName: "get_time"}

		r := Conversation(c)
		assert.True(t, r.OK())
		require.Len(t, r.Warnings, 1)
		assert.Contains(t, r.Warnings[0].Message, `tool "get_time" is not declared`)
	})

	t.Run("no tools declared", func(t *testing.T) {
		c := weatherConversation()
		c.Tools = nil

		r := Conversation(c)
		assert.Empty(t, r.Warnings)
	})

	t.Run("schema does not compile", func(t *testing.T) {
		c := weatherConversation()
		c.Tools[0].Parameters = map[string]any{"type": "object", "properties": "nope"}

		r := Conversation(c)
		assert.True(t, r.OK())
		require.NotEmpty(t, r.Warnings)
		assert.Equal(t, "tools[0].parameters", r.Warnings[0].Path)
	})

	t.Run("disabled", func(t *testing.T) {
		c := weatherConversation()
		c.Messages[1].Blocks[0] = ir.ToolInvocation{CallID: "call_1", ToolName: "get_weather"}

		r := Conversation(c, WithSchemaChecks(false))
		assert.Empty(t, r.Warnings)
	})
}
