// Package ir is the format-agnostic model of one chat/tool-calling request.
//
// Every importer builds a Conversation and every exporter consumes one, so the
// three wire formats never talk to each other directly.
//
// # Shape
//
//   - Conversation: optional system instruction, ordered messages, tool declarations
//   - Message: a Role plus an ordered list of Blocks
//   - Block: exactly one of Text, Image, ToolInvocation, ToolResult
//   - ToolDeclaration: name, description and a JSON-Schema-like parameter object
//
// Numbers inside ToolInvocation.Arguments and ToolDeclaration.Parameters are kept
// as json.Number so exporters re-emit the literal they were given.
package ir

import "fmt"

// Role identifies who produced a Message.
type Role string

const (
	RoleUser              Role = "user"
	RoleAssistant         Role = "assistant"
	RoleSystem            Role = "system"
	RoleToolResultCarrier Role = "tool_result_carrier"
)

// Valid reports whether r is one of the four canonical roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleToolResultCarrier:
		return true
	default:
		return false
	}
}

// Conversation is the canonical representation of one input document.
// An empty SystemInstruction means the document had none.
type Conversation struct {
	SystemInstruction string
	Messages          []Message
	Tools             []ToolDeclaration

	toolNames map[string]int
}

// Message is one conversational turn.
type Message struct {
	Role   Role
	Blocks []Block
}

// ToolDeclaration describes a callable tool as declared to a model.
type ToolDeclaration struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// NewConversation returns an empty Conversation.
func NewConversation() *Conversation {
	return &Conversation{toolNames: make(map[string]int)}
}

// AddMessage appends m, keeping conversation order.
func (c *Conversation) AddMessage(m Message) {
	c.Messages = append(c.Messages, m)
}

// AddTool appends a tool declaration. A name that was already declared is
// rejected with a *DuplicateToolNameError and the conversation is left as is.
func (c *Conversation) AddTool(t ToolDeclaration) error {
	if c.toolNames == nil {
		c.toolNames = make(map[string]int, len(c.Tools))
		for i, existing := range c.Tools {
			c.toolNames[existing.Name] = i
		}
	}
	if first, ok := c.toolNames[t.Name]; ok {
		return &DuplicateToolNameError{Name: t.Name, Index: len(c.Tools), First: first}
	}
	c.toolNames[t.Name] = len(c.Tools)
	c.Tools = append(c.Tools, t)
	return nil
}

// Tool returns the declaration named name.
func (c *Conversation) Tool(name string) (ToolDeclaration, bool) {
	for _, t := range c.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return ToolDeclaration{}, false
}

// Warning is a non-fatal note produced while importing or exporting.
type Warning struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	if w.Path == "" {
		return w.Message
	}
	return w.Path + ": " + w.Message
}

// Warnings is an ordered list of Warning.
type Warnings []Warning

// Add appends a warning for path.
func (ws *Warnings) Add(path, format string, args ...any) {
	*ws = append(*ws, Warning{Path: path, Message: fmt.Sprintf(format, args...)})
}
