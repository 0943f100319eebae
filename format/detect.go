package format

import (
	"errors"

	"github.com/tidwall/gjson"
)

// ErrUndetectable is returned by Detect when a document matches no format.
var ErrUndetectable = errors.New("cannot detect request format")

// Detect guesses the format of a request document from its structure.
//
// Rules, first match wins:
//   - a "contents" array -> Gemini
//   - OpenAI markers (role "tool" or "system", "tool_calls", "image_url"
//     parts, tools with "type":"function") -> OpenAI
//   - any other "messages" array -> Claude, since plain text chats read the
//     same in both message formats
func Detect(doc []byte) (Format, error) {
	if !gjson.ValidBytes(doc) {
		return "", errors.New("document is not valid JSON")
	}
	root := gjson.ParseBytes(doc)
	if !root.IsObject() {
		return "", ErrUndetectable
	}

	if root.Get("contents").IsArray() {
		return Gemini, nil
	}

	messages := root.Get("messages")
	if !messages.IsArray() {
		return "", ErrUndetectable
	}

	if hasOpenAIMarkers(root) {
		return OpenAI, nil
	}
	return Claude, nil
}

func hasOpenAIMarkers(root gjson.Result) bool {
	found := false
	root.Get("messages").ForEach(func(_, msg gjson.Result) bool {
		role := msg.Get("role").String()
		if role == "tool" || role == "system" || msg.Get("tool_calls").Exists() || msg.Get("tool_call_id").Exists() {
			found = true
			return false
		}
		msg.Get("content").ForEach(func(_, part gjson.Result) bool {
			if part.Get("type").String() == "image_url" {
				found = true
			}
			return !found
		})
		return !found
	})
	if found {
		return true
	}

	root.Get("tools").ForEach(func(_, tool gjson.Result) bool {
		if tool.Get("type").String() == "function" || tool.Get("function").IsObject() {
			found = true
		}
		return !found
	})
	return found
}
