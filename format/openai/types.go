// Package openai reads and writes OpenAI Chat Completions request documents.
//
// Tool calls live in assistant "tool_calls" with JSON-string arguments, and
// each tool result is its own message with role "tool" that carries only the
// call id. The importer recovers tool names from the id; the exporter always
// writes the name back so downstream readers do not have to.
package openai

import "encoding/json"

const formatName = "openai"

// Request is the subset of a Chat Completions request body the converter
// reads and writes.
type Request struct {
	Messages []Message `json:"messages"`
	Tools    []Tool    `json:"tools,omitempty"`
}

// Message is one chat message. Content is a string, null or a list of
// ContentPart.
type Message struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

// ContentPart is one element of array content.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL references an image. Only data URLs carry inline bytes.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// ToolCall is a function call issued by the assistant.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the function and carries its arguments as a JSON string.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool declares a callable function.
type Tool struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

// Function is the declaration inside a Tool.
type Function struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

const (
	partText     = "text"
	partImageURL = "image_url"
	typeFunction = "function"
)
