package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/robbyt/fantasy-adapters/reqconv/format"
	"github.com/robbyt/fantasy-adapters/reqconv/ir"
	"github.com/robbyt/fantasy-adapters/reqconv/schema"
)

// Importer parses generateContent requests into a Conversation.
type Importer struct {
	converter schema.SchemaConverter
}

// ImporterOption configures an Importer.
type ImporterOption func(*Importer)

// WithSchemaConverter sets the converter used for genai.Schema parameters.
// The default is schema.NewManualSchemaConverter.
func WithSchemaConverter(c schema.SchemaConverter) ImporterOption {
	return func(i *Importer) {
		i.converter = c
	}
}

// NewImporter returns a Gemini importer.
func NewImporter(opts ...ImporterOption) *Importer {
	i := &Importer{converter: schema.NewManualSchemaConverter()}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Format implements format.Importer.
func (*Importer) Format() format.Format {
	return format.Gemini
}

// Import implements format.Importer.
func (i *Importer) Import(doc []byte) (*ir.Conversation, ir.Warnings, error) {
	req, err := decodeRequest(doc)
	if err != nil {
		return nil, nil, &ir.MalformedInputError{Format: formatName, Reason: "invalid request document", Err: err}
	}
	if req.Contents == nil {
		return nil, nil, ir.Malformed(formatName, "contents", "missing contents")
	}
	return i.FromGenai(req.SystemInstruction, req.Contents, req.Tools)
}

// FromGenai builds a Conversation from in-memory genai values, applying the
// same rules as Import.
//
// Roles map as follows:
//   - "user" or "" -> user, or tool result carrier when only functionResponse parts are present
//   - "model" -> assistant
//   - "function", "tool" -> tool result carrier
func (i *Importer) FromGenai(system *genai.Content, contents []*genai.Content, tools []*genai.Tool) (*ir.Conversation, ir.Warnings, error) {
	imp := &importer{
		converter: i.converter,
		conv:      ir.NewConversation(),
		index:     ir.NewToolCallIndex(),
	}
	if err := imp.system(system); err != nil {
		return nil, nil, err
	}
	for n, t := range tools {
		if err := imp.tool(n, t); err != nil {
			return nil, nil, err
		}
	}
	imp.index.Reserve(explicitCallIDs(contents)...)
	for n, c := range contents {
		if err := imp.content(n, c); err != nil {
			return nil, nil, err
		}
	}
	return imp.conv, imp.warnings, nil
}

// explicitCallIDs lists the functionCall ids written in contents, so ids
// synthesized for id-less calls cannot collide with a later explicit one.
func explicitCallIDs(contents []*genai.Content) []string {
	var ids []string
	for _, c := range contents {
		if c == nil {
			continue
		}
		for _, p := range c.Parts {
			if p != nil && p.FunctionCall != nil && p.FunctionCall.ID != "" {
				ids = append(ids, p.FunctionCall.ID)
			}
		}
	}
	return ids
}

type importer struct {
	converter schema.SchemaConverter
	conv      *ir.Conversation
	index     *ir.ToolCallIndex
	warnings  ir.Warnings
}

func (imp *importer) system(c *genai.Content) error {
	if c == nil {
		return nil
	}
	texts := make([]string, 0, len(c.Parts))
	for n, p := range c.Parts {
		if p == nil {
			continue
		}
		if kind := partKind(p); kind != "text" {
			return ir.Malformed(formatName, fmt.Sprintf("systemInstruction.parts[%d]", n), "unsupported system instruction part %q", kind)
		}
		texts = append(texts, p.Text)
	}
	imp.conv.SystemInstruction = strings.Join(texts, "\n")
	return nil
}

func (imp *importer) tool(n int, t *genai.Tool) error {
	if t == nil {
		return nil
	}
	for k, decl := range t.FunctionDeclarations {
		path := fmt.Sprintf("tools[%d].functionDeclarations[%d]", n, k)
		if decl == nil || decl.Name == "" {
			return ir.Malformed(formatName, path+".name", "function declaration has no name")
		}
		params, err := imp.parameters(path, decl)
		if err != nil {
			return err
		}
		if err := imp.conv.AddTool(ir.ToolDeclaration{
			Name:        decl.Name,
			Description: decl.Description,
			Parameters:  params,
		}); err != nil {
			return err
		}
	}

	rest := *t
	rest.FunctionDeclarations = nil
	if raw, err := format.JSONText(rest); err == nil && raw != "{}" {
		imp.warnings.Add(fmt.Sprintf("tools[%d]", n), "built-in tool %s dropped", raw)
	}
	return nil
}

func (imp *importer) parameters(path string, decl *genai.FunctionDeclaration) (map[string]any, error) {
	if decl.ParametersJsonSchema != nil {
		params, ok := decl.ParametersJsonSchema.(map[string]any)
		if !ok {
			return nil, ir.Malformed(formatName, path+".parametersJsonSchema", "parameter schema must be an object")
		}
		return params, nil
	}
	if decl.Parameters == nil {
		return nil, nil
	}
	params, err := imp.converter.Convert(decl.Parameters)
	if err != nil {
		return nil, &ir.MalformedInputError{Format: formatName, Path: path + ".parameters", Reason: "cannot convert parameter schema", Err: err}
	}
	return params, nil
}

func (imp *importer) content(n int, c *genai.Content) error {
	path := fmt.Sprintf("contents[%d]", n)
	if c == nil {
		return ir.Malformed(formatName, path, "content is null")
	}

	var role ir.Role
	switch c.Role {
	case genai.RoleUser, "":
		role = ir.RoleUser
	case genai.RoleModel:
		role = ir.RoleAssistant
	case "function", "tool":
		role = ir.RoleToolResultCarrier
	default:
		return ir.Malformed(formatName, path+".role", "unknown role %q", c.Role)
	}

	blocks := make([]ir.Block, 0, len(c.Parts))
	responses := 0
	for k, p := range c.Parts {
		block, err := imp.part(fmt.Sprintf("%s.parts[%d]", path, k), p)
		if err != nil {
			return err
		}
		if _, ok := block.(ir.ToolResult); ok {
			responses++
		}
		blocks = append(blocks, block)
	}
	if role == ir.RoleUser && responses > 0 && responses == len(blocks) {
		role = ir.RoleToolResultCarrier
	}
	imp.conv.AddMessage(ir.Message{Role: role, Blocks: blocks})
	return nil
}

func (imp *importer) part(path string, p *genai.Part) (ir.Block, error) {
	if p == nil {
		return nil, ir.Malformed(formatName, path, "part is null")
	}
	switch kind := partKind(p); kind {
	case "text":
		return ir.Text{Value: p.Text}, nil
	case "inlineData":
		return inlineImage(path+".inlineData", p.InlineData.MIMEType, p.InlineData.Data)
	case "functionCall":
		return imp.functionCall(path+".functionCall", p.FunctionCall)
	case "functionResponse":
		return imp.functionResponse(path+".functionResponse", p.FunctionResponse)
	default:
		return nil, ir.Malformed(formatName, path, "unsupported part kind %q", kind)
	}
}

// partKind names the payload a part carries. A part with no payload at all
// is an empty text part.
func partKind(p *genai.Part) string {
	switch {
	case p.Thought:
		return "thought"
	case p.FunctionCall != nil:
		return "functionCall"
	case p.FunctionResponse != nil:
		return "functionResponse"
	case p.InlineData != nil:
		return "inlineData"
	case p.FileData != nil:
		return "fileData"
	case p.ExecutableCode != nil:
		return "executableCode"
	case p.CodeExecutionResult != nil:
		return "codeExecutionResult"
	case p.VideoMetadata != nil:
		return "videoMetadata"
	default:
		return "text"
	}
}

func inlineImage(path, mimeType string, data []byte) (ir.Block, error) {
	if mimeType == "" {
		return nil, ir.Malformed(formatName, path+".mimeType", "inline data has no mime type")
	}
	return ir.Image{MIMEType: mimeType, Data: data}, nil
}

func (imp *importer) functionCall(path string, fc *genai.FunctionCall) (ir.Block, error) {
	if fc.Name == "" {
		return nil, ir.Malformed(formatName, path+".name", "function call has no name")
	}
	id := fc.ID
	if id == "" {
		id = imp.index.NextCallID()
	}
	args := fc.Args
	if args == nil {
		args = map[string]any{}
	}
	imp.index.Record(id, fc.Name)
	return ir.ToolInvocation{CallID: id, ToolName: fc.Name, Arguments: args}, nil
}

func (imp *importer) functionResponse(path string, fr *genai.FunctionResponse) (ir.Block, error) {
	id := fr.ID
	var name string
	if id != "" {
		resolved, err := imp.index.Resolve(id)
		if err != nil {
			return nil, &ir.UnresolvedToolCallError{CallID: id, Path: path}
		}
		name = resolved
		if fr.Name != "" && fr.Name != name {
			imp.warnings.Add(path+".name", "function response names %q but call %q invoked %q", fr.Name, id, name)
		}
	} else {
		if fr.Name == "" {
			return nil, ir.Malformed(formatName, path, "function response has neither id nor name")
		}
		claimed, ok := imp.index.Claim(fr.Name)
		if !ok {
			return nil, &ir.UnresolvedToolCallError{ToolName: fr.Name, Path: path}
		}
		if _, err := imp.index.Resolve(claimed); err != nil {
			return nil, err
		}
		id, name = claimed, fr.Name
	}

	content, isError, err := responseContent(path+".response", fr.Response)
	if err != nil {
		return nil, err
	}
	for k, rp := range fr.Parts {
		at := fmt.Sprintf("%s.parts[%d]", path, k)
		if rp == nil || rp.InlineData == nil {
			return nil, ir.Malformed(formatName, at, "only inline data is supported in function response parts")
		}
		img, err := inlineImage(at+".inlineData", rp.InlineData.MIMEType, rp.InlineData.Data)
		if err != nil {
			return nil, err
		}
		content = append(content, img)
	}
	return ir.ToolResult{CallID: id, ToolName: name, Content: content, IsError: isError}, nil
}

// responseContent unwraps the {"result": x}, {"output": x} and {"error": x}
// envelopes; an empty string result yields no content. Any other response
// object becomes its JSON text.
func responseContent(path string, resp map[string]any) ([]ir.Block, bool, error) {
	if len(resp) == 0 {
		return []ir.Block{}, false, nil
	}
	if len(resp) == 1 {
		for key, val := range resp {
			switch key {
			case responseResult, responseOutput, responseError:
				text, err := valueText(val)
				if err != nil {
					return nil, false, &ir.MalformedInputError{Format: formatName, Path: path + "." + key, Reason: "cannot render response", Err: err}
				}
				if text == "" {
					return []ir.Block{}, key == responseError, nil
				}
				return []ir.Block{ir.Text{Value: text}}, key == responseError, nil
			}
		}
	}
	text, err := format.JSONText(resp)
	if err != nil {
		return nil, false, &ir.MalformedInputError{Format: formatName, Path: path, Reason: "cannot render response", Err: err}
	}
	return []ir.Block{ir.Text{Value: text}}, false, nil
}

func valueText(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	default:
		return format.JSONText(val)
	}
}
