// Package format names the supported wire formats and defines the contracts
// their importers and exporters satisfy.
//
// Implementations live in the sub-packages:
//   - format/claude: Anthropic Messages requests (Format A)
//   - format/openai: OpenAI Chat Completions requests (Format B)
//   - format/gemini: Gemini generateContent requests (Format C)
package format

import (
	"fmt"
	"strings"

	"github.com/robbyt/fantasy-adapters/reqconv/ir"
)

// Format identifies a request schema.
type Format string

const (
	Claude Format = "claude"
	OpenAI Format = "openai"
	Gemini Format = "gemini"

	// Auto asks Detect to pick the source format from the document.
	Auto Format = "auto"
)

// All lists the concrete formats in a stable order.
var All = []Format{Claude, OpenAI, Gemini}

var aliases = map[string]Format{
	"claude":    Claude,
	"anthropic": Claude,
	"a":         Claude,
	"openai":    OpenAI,
	"b":         OpenAI,
	"gemini":    Gemini,
	"google":    Gemini,
	"c":         Gemini,
	"auto":      Auto,
}

// Parse resolves a user supplied format name, accepting a few aliases.
func Parse(name string) (Format, error) {
	f, ok := aliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("unknown format %q (want claude, openai, gemini or auto)", name)
	}
	return f, nil
}

func (f Format) String() string {
	return string(f)
}

// Importer parses one source document into a Conversation.
//
// Import returns either a Conversation plus non-fatal warnings, or one of the
// ir taxonomy errors (*ir.MalformedInputError, *ir.UnresolvedToolCallError,
// *ir.DuplicateToolNameError).
type Importer interface {
	Format() Format
	Import(doc []byte) (*ir.Conversation, ir.Warnings, error)
}

// Exporter renders a Conversation as a destination document.
//
// Export returns the complete document or an error; it never returns a
// partial document. Constructs without a destination representation fail
// with *ir.UnsupportedContentBlockError.
type Exporter interface {
	Format() Format
	Export(c *ir.Conversation) ([]byte, ir.Warnings, error)
}
