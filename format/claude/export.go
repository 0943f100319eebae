package claude

import (
	"encoding/json"
	"fmt"

	"github.com/robbyt/fantasy-adapters/reqconv/format"
	"github.com/robbyt/fantasy-adapters/reqconv/ir"
)

// Exporter renders a Conversation as an Anthropic Messages request.
type Exporter struct{}

// NewExporter returns a Claude exporter.
func NewExporter() *Exporter {
	return &Exporter{}
}

// Format implements format.Exporter.
func (*Exporter) Format() format.Format {
	return format.Claude
}

// Export implements format.Exporter.
//
// The system instruction goes to the top-level "system" string. Consecutive
// tool result carriers are merged into one user turn, since the API expects
// all results of one assistant turn together.
func (*Exporter) Export(c *ir.Conversation) ([]byte, ir.Warnings, error) {
	req := Request{Messages: make([]Message, 0, len(c.Messages))}

	if c.SystemInstruction != "" {
		raw, err := format.Raw(c.SystemInstruction)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode system instruction: %w", err)
		}
		req.System = raw
	}

	for _, t := range c.Tools {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object"}
		}
		req.Tools = append(req.Tools, Tool{Name: t.Name, Description: t.Description, InputSchema: params})
	}

	var pending []ContentBlock
	pendingCarrier := false
	flush := func() error {
		if pending == nil {
			return nil
		}
		raw, err := renderContent(pending)
		if err != nil {
			return err
		}
		req.Messages = append(req.Messages, Message{Role: "user", Content: raw})
		pending = nil
		return nil
	}

	for i, m := range c.Messages {
		blocks, err := exportBlocks(i, m.Blocks)
		if err != nil {
			return nil, nil, err
		}

		if m.Role == ir.RoleToolResultCarrier {
			if !pendingCarrier {
				if err := flush(); err != nil {
					return nil, nil, err
				}
				pending = []ContentBlock{}
			}
			pending = append(pending, blocks...)
			pendingCarrier = true
			continue
		}
		if err := flush(); err != nil {
			return nil, nil, err
		}
		pendingCarrier = false

		var role string
		switch m.Role {
		case ir.RoleUser:
			role = "user"
		case ir.RoleAssistant:
			role = "assistant"
		default:
			return nil, nil, fmt.Errorf("messages[%d]: role %q has no Claude message form", i, m.Role)
		}
		raw, err := renderContent(blocks)
		if err != nil {
			return nil, nil, err
		}
		req.Messages = append(req.Messages, Message{Role: role, Content: raw})
	}
	if err := flush(); err != nil {
		return nil, nil, err
	}

	out, err := format.Encode(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return out, nil, nil
}

// renderContent uses the string shorthand for a lone text block.
func renderContent(blocks []ContentBlock) (json.RawMessage, error) {
	if len(blocks) == 1 && blocks[0].Type == blockText {
		return format.Raw(blocks[0].Text)
	}
	if blocks == nil {
		blocks = []ContentBlock{}
	}
	return format.Raw(blocks)
}

func exportBlocks(msg int, blocks []ir.Block) ([]ContentBlock, error) {
	out := make([]ContentBlock, 0, len(blocks))
	for j, b := range blocks {
		switch v := b.(type) {
		case ir.Text:
			out = append(out, ContentBlock{Type: blockText, Text: v.Value})
		case ir.Image:
			out = append(out, imageBlock(v))
		case ir.ToolInvocation:
			args := v.Arguments
			if args == nil {
				args = map[string]any{}
			}
			input, err := format.Raw(args)
			if err != nil {
				return nil, fmt.Errorf("messages[%d].blocks[%d]: failed to encode tool input: %w", msg, j, err)
			}
			out = append(out, ContentBlock{Type: blockToolUse, ID: v.CallID, Name: v.ToolName, Input: input})
		case ir.ToolResult:
			block, err := resultBlock(msg, j, v)
			if err != nil {
				return nil, err
			}
			out = append(out, block)
		default:
			return nil, &ir.UnsupportedContentBlockError{Format: formatName, Message: msg, Block: j, Kind: ir.BlockKind(b)}
		}
	}
	return out, nil
}

func resultBlock(msg, j int, r ir.ToolResult) (ContentBlock, error) {
	block := ContentBlock{Type: blockToolResult, ToolUseID: r.CallID, IsError: r.IsError}
	if len(r.Content) == 0 {
		return block, nil
	}
	inner := make([]ContentBlock, 0, len(r.Content))
	for _, b := range r.Content {
		switch v := b.(type) {
		case ir.Text:
			inner = append(inner, ContentBlock{Type: blockText, Text: v.Value})
		case ir.Image:
			inner = append(inner, imageBlock(v))
		default:
			return ContentBlock{}, &ir.UnsupportedContentBlockError{
				Format:  formatName,
				Message: msg,
				Block:   j,
				Kind:    ir.BlockKind(b),
				Reason:  "tool results may only hold text and images",
			}
		}
	}
	raw, err := renderContent(inner)
	if err != nil {
		return ContentBlock{}, fmt.Errorf("messages[%d].blocks[%d]: failed to encode tool result: %w", msg, j, err)
	}
	block.Content = raw
	return block, nil
}

func imageBlock(img ir.Image) ContentBlock {
	return ContentBlock{
		Type: blockImage,
		Source: &ImageSource{
			Type:      "base64",
			MediaType: img.MIMEType,
			Data:      format.EncodeBase64(img.Data),
		},
	}
}
