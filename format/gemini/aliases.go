package gemini

import (
	"fmt"

	"github.com/robbyt/fantasy-adapters/reqconv/format"
)

// snake_case spellings accepted by the REST API and written by older tools.
var (
	requestAliases = map[string]string{
		"system_instruction": "systemInstruction",
	}
	partAliases = map[string]string{
		"inline_data":           "inlineData",
		"file_data":             "fileData",
		"function_call":         "functionCall",
		"function_response":     "functionResponse",
		"executable_code":       "executableCode",
		"code_execution_result": "codeExecutionResult",
		"video_metadata":        "videoMetadata",
	}
	blobAliases = map[string]string{
		"mime_type":    "mimeType",
		"display_name": "displayName",
		"file_uri":     "fileUri",
	}
	toolAliases = map[string]string{
		"function_declarations": "functionDeclarations",
	}
	declarationAliases = map[string]string{
		"parameters_json_schema": "parametersJsonSchema",
	}
)

// decodeRequest parses doc, rewriting snake_case keys to their camelCase
// form at the structural positions genai knows. Keys inside function
// arguments, responses and schemas are user data and are left alone.
func decodeRequest(doc []byte) (*Request, error) {
	var root map[string]any
	if err := format.Decode(doc, &root); err != nil {
		return nil, err
	}
	if root == nil {
		return nil, fmt.Errorf("request must be a JSON object")
	}

	rename(root, requestAliases)
	if sys, ok := root["systemInstruction"].(map[string]any); ok {
		normalizeContent(sys)
	}
	if contents, ok := root["contents"].([]any); ok {
		for _, c := range contents {
			if m, ok := c.(map[string]any); ok {
				normalizeContent(m)
			}
		}
	}
	if tools, ok := root["tools"].([]any); ok {
		for _, t := range tools {
			tool, ok := t.(map[string]any)
			if !ok {
				continue
			}
			rename(tool, toolAliases)
			for _, d := range asList(tool["functionDeclarations"]) {
				rename(d, declarationAliases)
			}
		}
	}

	raw, err := format.Raw(root)
	if err != nil {
		return nil, err
	}
	var req Request
	if err := format.Decode(raw, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func normalizeContent(content map[string]any) {
	for _, part := range asList(content["parts"]) {
		rename(part, partAliases)
		normalizeBlobs(part)
		resp, ok := part["functionResponse"].(map[string]any)
		if !ok {
			continue
		}
		for _, rp := range asList(resp["parts"]) {
			rename(rp, partAliases)
			normalizeBlobs(rp)
		}
	}
}

// normalizeBlobs renames blob keys and re-pads unpadded base64 payloads,
// which encoding/json would otherwise reject.
func normalizeBlobs(part map[string]any) {
	for _, key := range []string{"inlineData", "fileData"} {
		blob, ok := part[key].(map[string]any)
		if !ok {
			continue
		}
		rename(blob, blobAliases)
		if data, ok := blob["data"].(string); ok {
			if decoded, err := format.DecodeBase64(data); err == nil {
				blob["data"] = format.EncodeBase64(decoded)
			}
		}
	}
}

// rename moves each alias key to its canonical name unless the canonical key
// is already present.
func rename(m map[string]any, aliases map[string]string) {
	for from, to := range aliases {
		v, ok := m[from]
		if !ok {
			continue
		}
		if _, exists := m[to]; !exists {
			m[to] = v
		}
		delete(m, from)
	}
}

func asList(v any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
