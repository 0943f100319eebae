package pipeline

import (
	"errors"
	"fmt"

	"github.com/robbyt/fantasy-adapters/reqconv/ir"
	"github.com/robbyt/fantasy-adapters/reqconv/validate"
)

// Failure kinds reported by Classify.
const (
	KindMalformedInput          = "malformed_input"
	KindUnresolvedToolCall      = "unresolved_tool_call"
	KindDuplicateToolName       = "duplicate_tool_name"
	KindUnsupportedContentBlock = "unsupported_content_block"
	KindValidation              = "validation"
	KindInternal                = "internal"
)

// Failure is the stable, serializable description of a failed conversion.
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

// Classify maps err to a Failure. Errors outside the taxonomy are internal.
func Classify(err error) Failure {
	f := Failure{Kind: KindInternal, Message: err.Error()}

	var (
		malformed   *ir.MalformedInputError
		unresolved  *ir.UnresolvedToolCallError
		duplicate   *ir.DuplicateToolNameError
		unsupported *ir.UnsupportedContentBlockError
		invalid     *validate.ValidationError
		strict      *StrictError
	)
	switch {
	case errors.As(err, &malformed):
		f.Kind, f.Path = KindMalformedInput, malformed.Path
	case errors.As(err, &unresolved):
		f.Kind, f.Path = KindUnresolvedToolCall, unresolved.Path
	case errors.As(err, &duplicate):
		f.Kind, f.Path = KindDuplicateToolName, fmt.Sprintf("tools[%d]", duplicate.Index)
	case errors.As(err, &unsupported):
		f.Kind, f.Path = KindUnsupportedContentBlock, unsupported.Path()
	case errors.As(err, &invalid):
		f.Kind = KindValidation
		if len(invalid.Violations) > 0 {
			f.Path = invalid.Violations[0].Path
		}
	case errors.As(err, &strict):
		f.Kind = KindValidation
		if len(strict.Warnings) > 0 {
			f.Path = strict.Warnings[0].Path
		}
	}
	return f
}
