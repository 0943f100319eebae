package gemini

import (
	"fmt"

	"google.golang.org/genai"

	"github.com/robbyt/fantasy-adapters/reqconv/format"
	"github.com/robbyt/fantasy-adapters/reqconv/ir"
	"github.com/robbyt/fantasy-adapters/reqconv/schema"
)

// Exporter renders a Conversation as a generateContent request.
type Exporter struct {
	jsonSchema bool
}

// ExporterOption configures an Exporter.
type ExporterOption func(*Exporter)

// WithParametersJSONSchema makes the exporter write tool parameters to
// parametersJsonSchema instead of converting them to a genai.Schema. Enum
// values are still coerced to strings.
func WithParametersJSONSchema() ExporterOption {
	return func(e *Exporter) {
		e.jsonSchema = true
	}
}

// NewExporter returns a Gemini exporter.
func NewExporter(opts ...ExporterOption) *Exporter {
	e := &Exporter{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Format implements format.Exporter.
func (*Exporter) Format() format.Format {
	return format.Gemini
}

// Export implements format.Exporter.
func (e *Exporter) Export(c *ir.Conversation) ([]byte, ir.Warnings, error) {
	req, warnings, err := e.ToGenai(c)
	if err != nil {
		return nil, nil, err
	}
	out, err := format.Encode(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return out, warnings, nil
}

// ToGenai renders c as genai values without encoding them.
//
// Converts:
//   - SystemInstruction -> systemInstruction with a single text part
//   - user -> "user", assistant -> "model", tool result carrier -> "user"
//   - ToolInvocation -> functionCall{id, name, args}
//   - ToolResult -> functionResponse{id, name, response: {"result"|"error": text}},
//     with image content in functionResponse.parts
//   - Image -> inlineData
//
// Consecutive carriers are merged into one content so every response of a
// model turn arrives together. Empty text blocks are skipped, and a message
// left without parts is dropped with a warning.
func (e *Exporter) ToGenai(c *ir.Conversation) (*Request, ir.Warnings, error) {
	var warnings ir.Warnings
	req := &Request{Contents: make([]*genai.Content, 0, len(c.Messages))}

	if c.SystemInstruction != "" {
		req.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: c.SystemInstruction}}}
	}

	if len(c.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(c.Tools))
		for i, t := range c.Tools {
			decl, dropped, err := e.declaration(i, t)
			if err != nil {
				return nil, nil, err
			}
			for _, kw := range dropped {
				warnings.Add(fmt.Sprintf("tools[%d].parameters.%s", i, kw), "keyword not supported by Gemini schemas, dropped")
			}
			decls = append(decls, decl)
		}
		req.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	var last ir.Role
	for i, m := range c.Messages {
		parts, err := exportParts(i, m.Blocks)
		if err != nil {
			return nil, nil, err
		}

		if len(parts) == 0 {
			warnings.Add(fmt.Sprintf("messages[%d]", i), "message has no content Gemini can carry, dropped")
			continue
		}

		if m.Role == ir.RoleToolResultCarrier && last == ir.RoleToolResultCarrier {
			prev := req.Contents[len(req.Contents)-1]
			prev.Parts = append(prev.Parts, parts...)
			continue
		}
		last = m.Role

		var role string
		switch m.Role {
		case ir.RoleUser, ir.RoleToolResultCarrier:
			role = genai.RoleUser
		case ir.RoleAssistant:
			role = genai.RoleModel
		default:
			return nil, nil, fmt.Errorf("messages[%d]: role %q has no Gemini content form", i, m.Role)
		}
		req.Contents = append(req.Contents, &genai.Content{Role: role, Parts: parts})
	}
	return req, warnings, nil
}

func (e *Exporter) declaration(i int, t ir.ToolDeclaration) (*genai.FunctionDeclaration, []string, error) {
	decl := &genai.FunctionDeclaration{Name: t.Name, Description: t.Description}
	if t.Parameters == nil {
		return decl, nil, nil
	}

	params := schema.CoerceEnums(t.Parameters)
	if e.jsonSchema {
		decl.ParametersJsonSchema = params
		return decl, nil, nil
	}

	s, dropped, err := schema.ToGenai(params)
	if err != nil {
		return nil, nil, &ir.MalformedInputError{
			Format: formatName,
			Path:   fmt.Sprintf("tools[%d].parameters", i),
			Reason: "cannot convert parameter schema",
			Err:    err,
		}
	}
	decl.Parameters = s
	return decl, dropped, nil
}

func exportParts(msg int, blocks []ir.Block) ([]*genai.Part, error) {
	parts := make([]*genai.Part, 0, len(blocks))
	for j, b := range blocks {
		switch v := b.(type) {
		case ir.Text:
			if v.Value == "" {
				continue
			}
			parts = append(parts, &genai.Part{Text: v.Value})
		case ir.Image:
			parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: v.MIMEType, Data: v.Data}})
		case ir.ToolInvocation:
			parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
				ID:   v.CallID,
				Name: v.ToolName,
				Args: v.Arguments,
			}})
		case ir.ToolResult:
			resp, err := functionResponse(msg, j, v)
			if err != nil {
				return nil, err
			}
			parts = append(parts, &genai.Part{FunctionResponse: resp})
		default:
			return nil, &ir.UnsupportedContentBlockError{Format: formatName, Message: msg, Block: j, Kind: ir.BlockKind(b)}
		}
	}
	return parts, nil
}

func functionResponse(msg, j int, r ir.ToolResult) (*genai.FunctionResponse, error) {
	resp := &genai.FunctionResponse{ID: r.CallID, Name: r.ToolName}
	var texts []ir.Block
	for _, b := range r.Content {
		switch v := b.(type) {
		case ir.Text:
			texts = append(texts, v)
		case ir.Image:
			resp.Parts = append(resp.Parts, genai.NewFunctionResponsePartFromBytes(v.Data, v.MIMEType))
		default:
			return nil, &ir.UnsupportedContentBlockError{
				Format:  formatName,
				Message: msg,
				Block:   j,
				Kind:    ir.BlockKind(b),
				Reason:  "function responses carry text and images only",
			}
		}
	}
	key := responseResult
	if r.IsError {
		key = responseError
	}
	resp.Response = map[string]any{key: ir.TextOf(texts, "\n")}
	return resp, nil
}
