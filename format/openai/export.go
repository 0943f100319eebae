package openai

import (
	"encoding/json"
	"fmt"

	"github.com/robbyt/fantasy-adapters/reqconv/format"
	"github.com/robbyt/fantasy-adapters/reqconv/ir"
)

// Exporter renders a Conversation as a Chat Completions request.
type Exporter struct{}

// NewExporter returns an OpenAI exporter.
func NewExporter() *Exporter {
	return &Exporter{}
}

// Format implements format.Exporter.
func (*Exporter) Format() format.Format {
	return format.OpenAI
}

// Export implements format.Exporter.
//
// The system instruction becomes a leading "system" message. Every ToolResult
// becomes its own "tool" message carrying both tool_call_id and name. An
// assistant message whose text follows a tool call is split in two so the
// block order survives.
func (*Exporter) Export(c *ir.Conversation) ([]byte, ir.Warnings, error) {
	e := &exporter{req: Request{Messages: make([]Message, 0, len(c.Messages)+1)}}

	if c.SystemInstruction != "" {
		if err := e.append("system", []ContentPart{{Type: partText, Text: c.SystemInstruction}}); err != nil {
			return nil, nil, err
		}
	}
	for _, t := range c.Tools {
		e.req.Tools = append(e.req.Tools, Tool{
			Type: typeFunction,
			Function: Function{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	for i, m := range c.Messages {
		var err error
		switch m.Role {
		case ir.RoleUser, ir.RoleToolResultCarrier:
			err = e.userTurn(i, m.Blocks)
		case ir.RoleAssistant:
			err = e.assistantTurn(i, m.Blocks)
		default:
			err = fmt.Errorf("messages[%d]: role %q has no OpenAI message form", i, m.Role)
		}
		if err != nil {
			return nil, nil, err
		}
	}

	out, err := format.Encode(e.req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return out, e.warnings, nil
}

type exporter struct {
	req      Request
	warnings ir.Warnings
}

func (e *exporter) append(role string, parts []ContentPart) error {
	raw, err := renderContent(parts)
	if err != nil {
		return err
	}
	e.req.Messages = append(e.req.Messages, Message{Role: role, Content: raw})
	return nil
}

// userTurn emits user content and re-homes each ToolResult into its own tool
// message, in block order.
func (e *exporter) userTurn(i int, blocks []ir.Block) error {
	if len(blocks) == 0 {
		return e.append("user", []ContentPart{{Type: partText}})
	}
	var parts []ContentPart
	flush := func() error {
		if parts == nil {
			return nil
		}
		err := e.append("user", parts)
		parts = nil
		return err
	}

	for j, b := range blocks {
		switch v := b.(type) {
		case ir.Text:
			parts = append(parts, ContentPart{Type: partText, Text: v.Value})
		case ir.Image:
			parts = append(parts, imagePart(v))
		case ir.ToolResult:
			if err := flush(); err != nil {
				return err
			}
			if err := e.toolMessage(i, j, v); err != nil {
				return err
			}
		default:
			return &ir.UnsupportedContentBlockError{Format: formatName, Message: i, Block: j, Kind: ir.BlockKind(b), Reason: "user messages cannot carry this block"}
		}
	}
	return flush()
}

func (e *exporter) toolMessage(i, j int, r ir.ToolResult) error {
	parts := make([]ContentPart, 0, len(r.Content))
	for _, b := range r.Content {
		t, ok := b.(ir.Text)
		if !ok {
			return &ir.UnsupportedContentBlockError{
				Format:  formatName,
				Message: i,
				Block:   j,
				Kind:    ir.BlockKind(b),
				Reason:  "tool messages carry text only",
			}
		}
		parts = append(parts, ContentPart{Type: partText, Text: t.Value})
	}
	if r.IsError {
		e.warnings.Add(fmt.Sprintf("messages[%d].blocks[%d]", i, j), "error flag of tool result %q dropped", r.CallID)
	}

	var content json.RawMessage
	var err error
	if len(parts) == 0 {
		content, err = format.Raw("")
	} else {
		content, err = renderContent(parts)
	}
	if err != nil {
		return err
	}
	e.req.Messages = append(e.req.Messages, Message{
		Role:       "tool",
		Content:    content,
		Name:       r.ToolName,
		ToolCallID: r.CallID,
	})
	return nil
}

// assistantTurn groups text followed by tool calls into one message and
// starts a new message whenever text follows a tool call.
func (e *exporter) assistantTurn(i int, blocks []ir.Block) error {
	var parts []ContentPart
	var calls []ToolCall
	started := false
	flush := func() error {
		if !started {
			return nil
		}
		raw, err := renderContent(parts)
		if err != nil {
			return err
		}
		e.req.Messages = append(e.req.Messages, Message{Role: "assistant", Content: raw, ToolCalls: calls})
		parts, calls, started = nil, nil, false
		return nil
	}

	for j, b := range blocks {
		switch v := b.(type) {
		case ir.Text:
			if len(calls) > 0 {
				if err := flush(); err != nil {
					return err
				}
			}
			parts = append(parts, ContentPart{Type: partText, Text: v.Value})
		case ir.ToolInvocation:
			args := v.Arguments
			if args == nil {
				args = map[string]any{}
			}
			text, err := format.JSONText(args)
			if err != nil {
				return fmt.Errorf("messages[%d].blocks[%d]: failed to encode arguments: %w", i, j, err)
			}
			calls = append(calls, ToolCall{
				ID:       v.CallID,
				Type:     typeFunction,
				Function: FunctionCall{Name: v.ToolName, Arguments: text},
			})
		default:
			return &ir.UnsupportedContentBlockError{Format: formatName, Message: i, Block: j, Kind: ir.BlockKind(b), Reason: "assistant messages carry text and tool calls only"}
		}
		started = true
	}
	if len(blocks) == 0 {
		started = true
	}
	return flush()
}

// renderContent returns null for no parts, a string for one text part and
// the part list otherwise.
func renderContent(parts []ContentPart) (json.RawMessage, error) {
	switch {
	case len(parts) == 0:
		return nil, nil
	case len(parts) == 1 && parts[0].Type == partText:
		return format.Raw(parts[0].Text)
	default:
		return format.Raw(parts)
	}
}

func imagePart(img ir.Image) ContentPart {
	return ContentPart{Type: partImageURL, ImageURL: &ImageURL{URL: format.DataURL(img.MIMEType, img.Data)}}
}
