package ir

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversation_AddTool(t *testing.T) {
	c := NewConversation()

	require.NoError(t, c.AddTool(ToolDeclaration{Name: "get_weather"}))
	require.NoError(t, c.AddTool(ToolDeclaration{Name: "get_time"}))

	err := c.AddTool(ToolDeclaration{Name: "get_weather", Description: "again"})
	require.Error(t, err)

	var dup *DuplicateToolNameError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "get_weather", dup.Name)
	assert.Equal(t, 0, dup.First)
	assert.Equal(t, 2, dup.Index)
	assert.ErrorIs(t, err, ErrDuplicateToolName)

	assert.Len(t, c.Tools, 2)
	tool, ok := c.Tool("get_time")
	assert.True(t, ok)
	assert.Equal(t, "get_time", tool.Name)
}

func TestConversation_AddTool_ZeroValue(t *testing.T) {
	c := &Conversation{Tools: []ToolDeclaration{{Name: "a"}}}

	err := c.AddTool(ToolDeclaration{Name: "a"})
	assert.ErrorIs(t, err, ErrDuplicateToolName)
	require.NoError(t, c.AddTool(ToolDeclaration{Name: "b"}))
}

func TestConversation_AddMessageKeepsOrder(t *testing.T) {
	c := NewConversation()
	c.AddMessage(Message{Role: RoleUser, Blocks: []Block{Text{Value: "1"}}})
	c.AddMessage(Message{Role: RoleAssistant, Blocks: []Block{Text{Value: "2"}}})
	c.AddMessage(Message{Role: RoleUser, Blocks: []Block{Text{Value: "3"}}})

	require.Len(t, c.Messages, 3)
	for i, want := range []string{"1", "2", "3"} {
		assert.Equal(t, want, c.Messages[i].Blocks[0].(Text).Value)
	}
}

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleToolResultCarrier.Valid())
	assert.False(t, Role("tool").Valid())
	assert.False(t, Role("").Valid())
}

func TestBlockKind(t *testing.T) {
	tests := []struct {
		block Block
		want  string
	}{
		{Text{Value: "hi"}, KindText},
		{Image{MIMEType: "image/png"}, KindImage},
		{ToolInvocation{CallID: "1"}, KindToolInvocation},
		{ToolResult{CallID: "1"}, KindToolResult},
		{nil, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, BlockKind(tt.block))
		})
	}
}

func TestTextOf(t *testing.T) {
	blocks := []Block{Text{Value: "a"}, Image{}, Text{Value: "b"}}

	assert.Equal(t, "a\nb", TextOf(blocks, "\n"))
	assert.False(t, OnlyText(blocks))
	assert.True(t, OnlyText([]Block{Text{Value: "x"}}))
	assert.Equal(t, "", TextOf(nil, " "))
	assert.Equal(t, ",b,c", TextOf([]Block{Text{}, Text{Value: "b"}, Image{}, Text{Value: "c"}}, ","))
}

func TestWarnings_Add(t *testing.T) {
	var ws Warnings
	ws.Add("messages[0]", "dropped %d keywords", 2)
	ws.Add("", "plain")

	require.Len(t, ws, 2)
	assert.Equal(t, "messages[0]: dropped 2 keywords", ws[0].String())
	assert.Equal(t, "plain", ws[1].String())
}

func TestErrors_Taxonomy(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		contains string
	}{
		{
			name:     "malformed",
			err:      Malformed("claude", "messages[1].role", "unknown role %q", "robot"),
			sentinel: ErrMalformedInput,
			contains: `claude [path=messages[1].role]: unknown role "robot"`,
		},
		{
			name:     "unresolved",
			err:      &UnresolvedToolCallError{CallID: "call_9", Path: "messages[3]"},
			sentinel: ErrUnresolvedToolCall,
			contains: `unknown call id "call_9"`,
		},
		{
			name:     "unsupported",
			err:      &UnsupportedContentBlockError{Format: "openai", Message: 1, Block: 2, Kind: KindImage},
			sentinel: ErrUnsupportedContentBlock,
			contains: "openai cannot represent image block [message=1 block=2]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.sentinel)
			assert.ErrorContains(t, tt.err, tt.contains)
		})
	}

	wrapped := &MalformedInputError{Format: "gemini", Reason: "invalid JSON", Err: errors.New("unexpected EOF")}
	assert.Equal(t, "gemini: invalid JSON: unexpected EOF", wrapped.Error())
	assert.ErrorIs(t, wrapped, ErrMalformedInput)
}

func TestToolCallIndex(t *testing.T) {
	t.Run("record and resolve", func(t *testing.T) {
		x := NewToolCallIndex()
		x.Record("call_1", "get_weather")

		name, err := x.Resolve("call_1")
		require.NoError(t, err)
		assert.Equal(t, "get_weather", name)
	})

	t.Run("unknown id", func(t *testing.T) {
		x := NewToolCallIndex()

		_, err := x.Resolve("missing")
		var unresolved *UnresolvedToolCallError
		require.ErrorAs(t, err, &unresolved)
		assert.Equal(t, "missing", unresolved.CallID)
	})

	t.Run("last writer wins", func(t *testing.T) {
		x := NewToolCallIndex()
		x.Record("dup", "first")
		x.Record("dup", "second")

		name, err := x.Resolve("dup")
		require.NoError(t, err)
		assert.Equal(t, "second", name)
		assert.Equal(t, 1, x.Len())

		_, ok := x.Claim("first")
		assert.False(t, ok)
	})

	t.Run("claim oldest unanswered", func(t *testing.T) {
		x := NewToolCallIndex()
		x.Record("a", "search")
		x.Record("b", "search")
		x.Record("c", "search")

		_, err := x.Resolve("a")
		require.NoError(t, err)

		id, ok := x.Claim("search")
		require.True(t, ok)
		assert.Equal(t, "b", id)

		id, ok = x.Claim("search")
		require.True(t, ok)
		assert.Equal(t, "c", id)

		_, ok = x.Claim("search")
		assert.False(t, ok)
	})

	t.Run("synthesized ids skip recorded ones", func(t *testing.T) {
		x := NewToolCallIndex()
		x.Record("call_1", "a")

		assert.Equal(t, "call_2", x.NextCallID())
		assert.Equal(t, "call_3", x.NextCallID())
	})

	t.Run("synthesized ids skip reserved ones", func(t *testing.T) {
		x := NewToolCallIndex()
		x.Reserve("call_1", "", "call_3")

		first := x.NextCallID()
		assert.Equal(t, "call_2", first)
		x.Record(first, "search")
		x.Record("call_1", "search")

		id, ok := x.Claim("search")
		require.True(t, ok)
		assert.Equal(t, "call_2", id)
		assert.Equal(t, "call_4", x.NextCallID())
	})
}
