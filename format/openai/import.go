package openai

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"

	"github.com/robbyt/fantasy-adapters/reqconv/format"
	"github.com/robbyt/fantasy-adapters/reqconv/ir"
)

// Importer parses Chat Completions requests into a Conversation.
type Importer struct {
	repair bool
}

// ImporterOption configures an Importer.
type ImporterOption func(*Importer)

// WithArgumentRepair controls whether malformed tool call arguments are
// repaired (with a warning) instead of failing the import. Enabled by default.
func WithArgumentRepair(enabled bool) ImporterOption {
	return func(i *Importer) {
		i.repair = enabled
	}
}

// NewImporter returns an OpenAI importer.
func NewImporter(opts ...ImporterOption) *Importer {
	i := &Importer{repair: true}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Format implements format.Importer.
func (*Importer) Format() format.Format {
	return format.OpenAI
}

// Import implements format.Importer.
//
// Roles map as follows:
//   - system, developer -> system instruction (at most one such message)
//   - user -> user
//   - assistant -> assistant; tool_calls become ToolInvocation blocks after the text
//   - tool -> tool result carrier holding one ToolResult
func (i *Importer) Import(doc []byte) (*ir.Conversation, ir.Warnings, error) {
	var req Request
	if err := format.Decode(doc, &req); err != nil {
		return nil, nil, &ir.MalformedInputError{Format: formatName, Reason: "invalid request document", Err: err}
	}
	if req.Messages == nil {
		return nil, nil, ir.Malformed(formatName, "messages", "missing message list")
	}

	imp := &importer{
		repair: i.repair,
		conv:   ir.NewConversation(),
		index:  ir.NewToolCallIndex(),
	}
	for n, t := range req.Tools {
		if err := imp.tool(n, t); err != nil {
			return nil, nil, err
		}
	}
	for n, m := range req.Messages {
		if err := imp.message(n, m); err != nil {
			return nil, nil, err
		}
	}
	return imp.conv, imp.warnings, nil
}

type importer struct {
	repair     bool
	conv       *ir.Conversation
	index      *ir.ToolCallIndex
	warnings   ir.Warnings
	haveSystem bool
}

func (imp *importer) tool(n int, t Tool) error {
	path := fmt.Sprintf("tools[%d]", n)
	if t.Type != "" && t.Type != typeFunction {
		return ir.Malformed(formatName, path+".type", "unsupported tool type %q", t.Type)
	}
	if t.Function.Name == "" {
		return ir.Malformed(formatName, path+".function.name", "tool has no name")
	}
	return imp.conv.AddTool(ir.ToolDeclaration{
		Name:        t.Function.Name,
		Description: t.Function.Description,
		Parameters:  t.Function.Parameters,
	})
}

func (imp *importer) message(n int, m Message) error {
	path := fmt.Sprintf("messages[%d]", n)

	switch m.Role {
	case "system", "developer":
		if imp.haveSystem {
			return ir.Malformed(formatName, path, "ambiguous system instruction")
		}
		blocks, err := imp.content(path+".content", m.Content, false)
		if err != nil {
			return err
		}
		imp.conv.SystemInstruction = ir.TextOf(blocks, "\n")
		imp.haveSystem = true
		return nil

	case "user":
		if format.IsNull(m.Content) {
			return ir.Malformed(formatName, path+".content", "missing content")
		}
		blocks, err := imp.content(path+".content", m.Content, true)
		if err != nil {
			return err
		}
		imp.conv.AddMessage(ir.Message{Role: ir.RoleUser, Blocks: blocks})
		return nil

	case "assistant":
		blocks, err := imp.content(path+".content", m.Content, false)
		if err != nil {
			return err
		}
		for k, call := range m.ToolCalls {
			inv, err := imp.toolCall(fmt.Sprintf("%s.tool_calls[%d]", path, k), call)
			if err != nil {
				return err
			}
			blocks = append(blocks, inv)
		}
		imp.conv.AddMessage(ir.Message{Role: ir.RoleAssistant, Blocks: blocks})
		return nil

	case "tool":
		if m.ToolCallID == "" {
			return ir.Malformed(formatName, path+".tool_call_id", "tool message has no tool_call_id")
		}
		name, err := imp.index.Resolve(m.ToolCallID)
		if err != nil {
			return &ir.UnresolvedToolCallError{CallID: m.ToolCallID, Path: path}
		}
		if m.Name != "" && m.Name != name {
			imp.warnings.Add(path+".name", "tool message names %q but call %q invoked %q", m.Name, m.ToolCallID, name)
		}
		content, err := imp.content(path+".content", m.Content, false)
		if err != nil {
			return err
		}
		imp.conv.AddMessage(ir.Message{
			Role:   ir.RoleToolResultCarrier,
			Blocks: []ir.Block{ir.ToolResult{CallID: m.ToolCallID, ToolName: name, Content: content}},
		})
		return nil

	default:
		return ir.Malformed(formatName, path+".role", "unknown role %q", m.Role)
	}
}

// content decodes string, null or array content. Images are only accepted
// where allowImages is set.
func (imp *importer) content(path string, raw json.RawMessage, allowImages bool) ([]ir.Block, error) {
	if format.IsNull(raw) {
		return []ir.Block{}, nil
	}
	if format.IsString(raw) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, &ir.MalformedInputError{Format: formatName, Path: path, Reason: "invalid text content", Err: err}
		}
		return []ir.Block{ir.Text{Value: s}}, nil
	}

	var parts []ContentPart
	if err := format.Decode(raw, &parts); err != nil {
		return nil, &ir.MalformedInputError{Format: formatName, Path: path, Reason: "content must be a string, null or a list of parts", Err: err}
	}
	blocks := make([]ir.Block, 0, len(parts))
	for k, p := range parts {
		at := fmt.Sprintf("%s[%d]", path, k)
		switch {
		case p.Type == partText:
			blocks = append(blocks, ir.Text{Value: p.Text})
		case p.Type == partImageURL && allowImages:
			img, err := decodeImage(at, p.ImageURL)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, img)
		default:
			return nil, ir.Malformed(formatName, at, "unsupported content part type %q", p.Type)
		}
	}
	return blocks, nil
}

func decodeImage(path string, u *ImageURL) (ir.Block, error) {
	if u == nil || u.URL == "" {
		return nil, ir.Malformed(formatName, path+".image_url", "image part has no url")
	}
	if !strings.HasPrefix(u.URL, "data:") {
		return nil, ir.Malformed(formatName, path+".image_url.url", "remote image urls are not supported")
	}
	mediaType, data, err := format.ParseDataURL(u.URL)
	if err != nil {
		return nil, &ir.MalformedInputError{Format: formatName, Path: path + ".image_url.url", Reason: "invalid data url", Err: err}
	}
	return ir.Image{MIMEType: mediaType, Data: data}, nil
}

func (imp *importer) toolCall(path string, call ToolCall) (ir.Block, error) {
	if call.Type != "" && call.Type != typeFunction {
		return nil, ir.Malformed(formatName, path+".type", "unsupported tool call type %q", call.Type)
	}
	if call.ID == "" {
		return nil, ir.Malformed(formatName, path+".id", "tool call has no id")
	}
	if call.Function.Name == "" {
		return nil, ir.Malformed(formatName, path+".function.name", "tool call has no function name")
	}
	args, err := imp.arguments(path+".function.arguments", call.Function.Arguments)
	if err != nil {
		return nil, err
	}
	imp.index.Record(call.ID, call.Function.Name)
	return ir.ToolInvocation{CallID: call.ID, ToolName: call.Function.Name, Arguments: args}, nil
}

// arguments parses the JSON-string arguments of a tool call. Broken JSON is
// run through json-repair when repair is enabled.
func (imp *importer) arguments(path, raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	args, err := format.DecodeObject([]byte(raw))
	if err == nil {
		return args, nil
	}
	if !imp.repair {
		return nil, &ir.MalformedInputError{Format: formatName, Path: path, Reason: "arguments are not a JSON object", Err: err}
	}

	repaired, rerr := jsonrepair.RepairJSON(raw)
	if rerr != nil {
		return nil, &ir.MalformedInputError{Format: formatName, Path: path, Reason: "arguments are not valid JSON", Err: rerr}
	}
	args, rerr = format.DecodeObject([]byte(repaired))
	if rerr != nil {
		return nil, &ir.MalformedInputError{Format: formatName, Path: path, Reason: "arguments are not a JSON object", Err: err}
	}
	imp.warnings.Add(path, "repaired malformed tool call arguments")
	return args, nil
}
