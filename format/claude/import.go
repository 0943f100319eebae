package claude

import (
	"encoding/json"
	"fmt"

	"github.com/robbyt/fantasy-adapters/reqconv/format"
	"github.com/robbyt/fantasy-adapters/reqconv/ir"
)

// Importer parses Anthropic Messages requests into a Conversation.
type Importer struct{}

// NewImporter returns a Claude importer.
func NewImporter() *Importer {
	return &Importer{}
}

// Format implements format.Importer.
func (*Importer) Format() format.Format {
	return format.Claude
}

// Import implements format.Importer.
//
// The system prompt may come from the top-level "system" field or from one
// message with role "system", not both. A user message made only of
// tool_result blocks becomes a tool result carrier.
func (*Importer) Import(doc []byte) (*ir.Conversation, ir.Warnings, error) {
	var req Request
	if err := format.Decode(doc, &req); err != nil {
		return nil, nil, &ir.MalformedInputError{Format: formatName, Reason: "invalid request document", Err: err}
	}
	if req.Messages == nil {
		return nil, nil, ir.Malformed(formatName, "messages", "missing message list")
	}

	imp := &importer{
		conv:  ir.NewConversation(),
		index: ir.NewToolCallIndex(),
	}
	if err := imp.system(req.System); err != nil {
		return nil, nil, err
	}
	for i, t := range req.Tools {
		if err := imp.tool(i, t); err != nil {
			return nil, nil, err
		}
	}
	for i, m := range req.Messages {
		if err := imp.message(i, m); err != nil {
			return nil, nil, err
		}
	}
	return imp.conv, imp.warnings, nil
}

type importer struct {
	conv       *ir.Conversation
	index      *ir.ToolCallIndex
	warnings   ir.Warnings
	haveSystem bool
}

func (imp *importer) system(raw json.RawMessage) error {
	if format.IsNull(raw) {
		return nil
	}
	text, err := systemText("system", raw)
	if err != nil {
		return err
	}
	imp.conv.SystemInstruction = text
	imp.haveSystem = true
	return nil
}

// systemText flattens a system prompt given as a string or as text blocks.
func systemText(path string, raw json.RawMessage) (string, error) {
	if format.IsString(raw) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", &ir.MalformedInputError{Format: formatName, Path: path, Reason: "invalid system text", Err: err}
		}
		return s, nil
	}
	var blocks []ContentBlock
	if err := format.Decode(raw, &blocks); err != nil {
		return "", &ir.MalformedInputError{Format: formatName, Path: path, Reason: "system must be a string or a list of text blocks", Err: err}
	}
	parts := make([]ir.Block, 0, len(blocks))
	for i, b := range blocks {
		if b.Type != blockText {
			return "", ir.Malformed(formatName, fmt.Sprintf("%s[%d]", path, i), "unsupported system block type %q", b.Type)
		}
		parts = append(parts, ir.Text{Value: b.Text})
	}
	return ir.TextOf(parts, "\n"), nil
}

func (imp *importer) tool(i int, t Tool) error {
	if t.Name == "" {
		return ir.Malformed(formatName, fmt.Sprintf("tools[%d].name", i), "tool has no name")
	}
	return imp.conv.AddTool(ir.ToolDeclaration{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  t.InputSchema,
	})
}

func (imp *importer) message(i int, m Message) error {
	path := fmt.Sprintf("messages[%d]", i)

	switch m.Role {
	case "system":
		if imp.haveSystem {
			return ir.Malformed(formatName, path, "ambiguous system instruction")
		}
		if format.IsNull(m.Content) {
			return ir.Malformed(formatName, path+".content", "missing content")
		}
		text, err := systemText(path+".content", m.Content)
		if err != nil {
			return err
		}
		imp.conv.SystemInstruction = text
		imp.haveSystem = true
		return nil
	case "user", "assistant":
	default:
		return ir.Malformed(formatName, path+".role", "unknown role %q", m.Role)
	}

	blocks, err := decodeContent(path+".content", m.Content)
	if err != nil {
		return err
	}

	msg := ir.Message{Role: ir.RoleAssistant, Blocks: make([]ir.Block, 0, len(blocks))}
	if m.Role == "user" {
		msg.Role = ir.RoleUser
	}
	results := 0
	for j, b := range blocks {
		block, err := imp.block(fmt.Sprintf("%s.content[%d]", path, j), b)
		if err != nil {
			return err
		}
		if _, ok := block.(ir.ToolResult); ok {
			results++
		}
		msg.Blocks = append(msg.Blocks, block)
	}
	if msg.Role == ir.RoleUser && results > 0 && results == len(msg.Blocks) {
		msg.Role = ir.RoleToolResultCarrier
	}
	imp.conv.AddMessage(msg)
	return nil
}

// decodeContent accepts string content or a list of blocks.
func decodeContent(path string, raw json.RawMessage) ([]ContentBlock, error) {
	if format.IsNull(raw) {
		return nil, ir.Malformed(formatName, path, "missing content")
	}
	if format.IsString(raw) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, &ir.MalformedInputError{Format: formatName, Path: path, Reason: "invalid text content", Err: err}
		}
		return []ContentBlock{{Type: blockText, Text: s}}, nil
	}
	var blocks []ContentBlock
	if err := format.Decode(raw, &blocks); err != nil {
		return nil, &ir.MalformedInputError{Format: formatName, Path: path, Reason: "content must be a string or a list of blocks", Err: err}
	}
	return blocks, nil
}

func (imp *importer) block(path string, b ContentBlock) (ir.Block, error) {
	switch b.Type {
	case blockText:
		return ir.Text{Value: b.Text}, nil
	case blockImage:
		return decodeImage(path, b)
	case blockToolUse:
		if b.ID == "" {
			return nil, ir.Malformed(formatName, path+".id", "tool_use has no id")
		}
		if b.Name == "" {
			return nil, ir.Malformed(formatName, path+".name", "tool_use has no name")
		}
		args, err := format.DecodeObject(b.Input)
		if err != nil {
			return nil, &ir.MalformedInputError{Format: formatName, Path: path + ".input", Reason: "tool input must be an object", Err: err}
		}
		imp.index.Record(b.ID, b.Name)
		return ir.ToolInvocation{CallID: b.ID, ToolName: b.Name, Arguments: args}, nil
	case blockToolResult:
		if b.ToolUseID == "" {
			return nil, ir.Malformed(formatName, path+".tool_use_id", "tool_result has no tool_use_id")
		}
		name, err := imp.index.Resolve(b.ToolUseID)
		if err != nil {
			return nil, &ir.UnresolvedToolCallError{CallID: b.ToolUseID, Path: path}
		}
		content, err := resultContent(path+".content", b.Content)
		if err != nil {
			return nil, err
		}
		return ir.ToolResult{CallID: b.ToolUseID, ToolName: name, Content: content, IsError: b.IsError}, nil
	default:
		return nil, ir.Malformed(formatName, path, "unsupported content block type %q", b.Type)
	}
}

func resultContent(path string, raw json.RawMessage) ([]ir.Block, error) {
	if format.IsNull(raw) {
		return nil, nil
	}
	blocks, err := decodeContent(path, raw)
	if err != nil {
		return nil, err
	}
	out := make([]ir.Block, 0, len(blocks))
	for i, b := range blocks {
		at := fmt.Sprintf("%s[%d]", path, i)
		switch b.Type {
		case blockText:
			out = append(out, ir.Text{Value: b.Text})
		case blockImage:
			img, err := decodeImage(at, b)
			if err != nil {
				return nil, err
			}
			out = append(out, img)
		default:
			return nil, ir.Malformed(formatName, at, "unsupported tool_result block type %q", b.Type)
		}
	}
	return out, nil
}

func decodeImage(path string, b ContentBlock) (ir.Block, error) {
	src := b.Source
	if src == nil {
		return nil, ir.Malformed(formatName, path+".source", "image has no source")
	}
	if src.Type != "base64" {
		return nil, ir.Malformed(formatName, path+".source.type", "unsupported image source type %q", src.Type)
	}
	if src.MediaType == "" {
		return nil, ir.Malformed(formatName, path+".source.media_type", "image has no media type")
	}
	data, err := format.DecodeBase64(src.Data)
	if err != nil {
		return nil, &ir.MalformedInputError{Format: formatName, Path: path + ".source.data", Reason: "invalid base64 image data", Err: err}
	}
	return ir.Image{MIMEType: src.MediaType, Data: data}, nil
}
