package ir

import "strings"

// Block is one unit of message content. The set of implementations is closed:
// Text, Image, ToolInvocation and ToolResult. Code that switches over blocks
// should handle all four and treat anything else as a bug.
type Block interface {
	isBlock()
}

// Text is plain text content.
type Text struct {
	Value string
}

// Image is inline image data. Data holds the decoded bytes; no importer or
// exporter re-encodes the image itself.
type Image struct {
	MIMEType string
	Data     []byte
}

// ToolInvocation is a model-issued request to run a tool.
type ToolInvocation struct {
	CallID    string
	ToolName  string
	Arguments map[string]any
}

// ToolResult answers an earlier ToolInvocation with the same CallID.
// Content holds Text and Image blocks only.
type ToolResult struct {
	CallID   string
	ToolName string
	Content  []Block
	IsError  bool
}

func (Text) isBlock()           {}
func (Image) isBlock()          {}
func (ToolInvocation) isBlock() {}
func (ToolResult) isBlock()     {}

// Block kind names, used in error messages and validation reports.
const (
	KindText           = "text"
	KindImage          = "image"
	KindToolInvocation = "tool_invocation"
	KindToolResult     = "tool_result"
)

// BlockKind returns the kind name of b, or "unknown".
func BlockKind(b Block) string {
	switch b.(type) {
	case Text:
		return KindText
	case Image:
		return KindImage
	case ToolInvocation:
		return KindToolInvocation
	case ToolResult:
		return KindToolResult
	default:
		return "unknown"
	}
}

// TextOf concatenates the Text blocks in blocks with sep, skipping every other kind.
func TextOf(blocks []Block, sep string) string {
	var sb strings.Builder
	first := true
	for _, b := range blocks {
		t, ok := b.(Text)
		if !ok {
			continue
		}
		if !first {
			sb.WriteString(sep)
		}
		sb.WriteString(t.Value)
		first = false
	}
	return sb.String()
}

// OnlyText reports whether every block in blocks is Text.
func OnlyText(blocks []Block) bool {
	for _, b := range blocks {
		if _, ok := b.(Text); !ok {
			return false
		}
	}
	return true
}
