package dispatch

import (
	"errors"

	"charm.land/fantasy"

	"github.com/robbyt/fantasy-adapters/reqconv/format"
	"github.com/robbyt/fantasy-adapters/reqconv/ir"
)

const formatName = "fantasy"

// FantasyCall converts a Conversation into the prompt and tools of a fantasy.Call.
//
// Converts:
//   - SystemInstruction -> leading MessageRoleSystem message
//   - user -> MessageRoleUser with TextPart and FilePart
//   - assistant -> MessageRoleAssistant with TextPart and ToolCallPart
//   - tool result carrier -> MessageRoleTool with ToolResultPart; text and
//     images in the same carrier follow in a MessageRoleUser message
//   - ToolResult.IsError -> ToolResultOutputContentError
//   - ToolDeclaration -> FunctionTool
//
// Returns *ir.UnsupportedContentBlockError for images inside tool results and
// for blocks a role cannot carry.
func FantasyCall(c *ir.Conversation) (fantasy.Call, error) {
	var call fantasy.Call

	if c.SystemInstruction != "" {
		call.Prompt = append(call.Prompt, fantasy.Message{
			Role:    fantasy.MessageRoleSystem,
			Content: []fantasy.MessagePart{fantasy.TextPart{Text: c.SystemInstruction}},
		})
	}

	for _, t := range c.Tools {
		params := t.Parameters
		if params == nil {
			params = map[string]any{}
		}
		call.Tools = append(call.Tools, fantasy.FunctionTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: params,
		})
	}

	for i, m := range c.Messages {
		msgs, err := fantasyMessages(i, m)
		if err != nil {
			return fantasy.Call{}, err
		}
		call.Prompt = append(call.Prompt, msgs...)
	}
	return call, nil
}

func fantasyMessages(i int, m ir.Message) ([]fantasy.Message, error) {
	switch m.Role {
	case ir.RoleUser:
		parts, err := userParts(i, m.Blocks)
		if err != nil {
			return nil, err
		}
		return []fantasy.Message{{Role: fantasy.MessageRoleUser, Content: parts}}, nil

	case ir.RoleAssistant:
		parts := make([]fantasy.MessagePart, 0, len(m.Blocks))
		for j, b := range m.Blocks {
			switch v := b.(type) {
			case ir.Text:
				parts = append(parts, fantasy.TextPart{Text: v.Value})
			case ir.ToolInvocation:
				input, err := format.JSONText(argumentsOrEmpty(v.Arguments))
				if err != nil {
					return nil, err
				}
				parts = append(parts, fantasy.ToolCallPart{
					ToolCallID: v.CallID,
					ToolName:   v.ToolName,
					Input:      input,
				})
			default:
				return nil, unsupported(i, j, b, "assistant messages carry text and tool calls only")
			}
		}
		return []fantasy.Message{{Role: fantasy.MessageRoleAssistant, Content: parts}}, nil

	case ir.RoleToolResultCarrier:
		var results []fantasy.MessagePart
		var rest []ir.Block
		for j, b := range m.Blocks {
			r, ok := b.(ir.ToolResult)
			if !ok {
				rest = append(rest, b)
				continue
			}
			part, err := toolResultPart(i, j, r)
			if err != nil {
				return nil, err
			}
			results = append(results, part)
		}
		msgs := []fantasy.Message{{Role: fantasy.MessageRoleTool, Content: results}}
		if len(rest) > 0 {
			parts, err := userParts(i, rest)
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, fantasy.Message{Role: fantasy.MessageRoleUser, Content: parts})
		}
		return msgs, nil

	default:
		return nil, &ir.MalformedInputError{Format: formatName, Reason: "role " + string(m.Role) + " has no fantasy message form"}
	}
}

func userParts(i int, blocks []ir.Block) ([]fantasy.MessagePart, error) {
	parts := make([]fantasy.MessagePart, 0, len(blocks))
	for j, b := range blocks {
		switch v := b.(type) {
		case ir.Text:
			parts = append(parts, fantasy.TextPart{Text: v.Value})
		case ir.Image:
			parts = append(parts, fantasy.FilePart{Data: v.Data, MediaType: v.MIMEType})
		default:
			return nil, unsupported(i, j, b, "user messages carry text and images only")
		}
	}
	return parts, nil
}

func toolResultPart(i, j int, r ir.ToolResult) (fantasy.MessagePart, error) {
	for _, b := range r.Content {
		if _, ok := b.(ir.Text); !ok {
			return nil, unsupported(i, j, b, "tool results carry text only")
		}
	}
	text := ir.TextOf(r.Content, "\n")

	var output fantasy.ToolResultOutputContent = fantasy.ToolResultOutputContentText{Text: text}
	if r.IsError {
		output = fantasy.ToolResultOutputContentError{Error: errors.New(text)}
	}
	return fantasy.ToolResultPart{ToolCallID: r.CallID, Output: output}, nil
}

func argumentsOrEmpty(args map[string]any) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	return args
}

func unsupported(i, j int, b ir.Block, reason string) error {
	return &ir.UnsupportedContentBlockError{
		Format:  formatName,
		Message: i,
		Block:   j,
		Kind:    ir.BlockKind(b),
		Reason:  reason,
	}
}
