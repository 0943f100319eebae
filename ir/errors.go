package ir

import (
	"errors"
	"fmt"
)

// Sentinel errors for the conversion taxonomy. Every typed error below matches
// exactly one of them with errors.Is.
var (
	ErrMalformedInput          = errors.New("malformed input")
	ErrUnresolvedToolCall      = errors.New("unresolved tool call")
	ErrDuplicateToolName       = errors.New("duplicate tool name")
	ErrUnsupportedContentBlock = errors.New("unsupported content block")
)

// MalformedInputError reports a source document that violates its own format.
// Path is the offending field path, e.g. "messages[2].content[0]".
type MalformedInputError struct {
	Format string
	Path   string
	Reason string
	Err    error
}

func (e *MalformedInputError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Format, e.Reason)
	if e.Path != "" {
		msg = fmt.Sprintf("%s [path=%s]: %s", e.Format, e.Path, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedInputError) Is(target error) bool { return target == ErrMalformedInput }

func (e *MalformedInputError) Unwrap() error { return e.Err }

// Malformed builds a *MalformedInputError.
func Malformed(format, path, reason string, args ...any) *MalformedInputError {
	return &MalformedInputError{Format: format, Path: path, Reason: fmt.Sprintf(reason, args...)}
}

// UnresolvedToolCallError reports a tool result whose call id was never issued
// by an earlier tool invocation of the same conversation.
// A result that carries only a tool name sets ToolName and leaves CallID empty.
type UnresolvedToolCallError struct {
	CallID   string
	ToolName string
	Path     string
}

func (e *UnresolvedToolCallError) Error() string {
	where := "tool result"
	if e.Path != "" {
		where = fmt.Sprintf("tool result [path=%s]", e.Path)
	}
	if e.CallID == "" && e.ToolName != "" {
		return fmt.Sprintf("%s for %q matches no pending call", where, e.ToolName)
	}
	return fmt.Sprintf("%s references unknown call id %q", where, e.CallID)
}

func (e *UnresolvedToolCallError) Is(target error) bool { return target == ErrUnresolvedToolCall }

// DuplicateToolNameError reports a second declaration of an existing tool name.
type DuplicateToolNameError struct {
	Name  string
	Index int
	First int
}

func (e *DuplicateToolNameError) Error() string {
	return fmt.Sprintf("tool %q declared twice (tools[%d] and tools[%d])", e.Name, e.First, e.Index)
}

func (e *DuplicateToolNameError) Is(target error) bool { return target == ErrDuplicateToolName }

// UnsupportedContentBlockError reports a canonical construct that the
// destination format cannot represent.
type UnsupportedContentBlockError struct {
	Format  string
	Message int
	Block   int
	Kind    string
	Reason  string
}

func (e *UnsupportedContentBlockError) Error() string {
	msg := fmt.Sprintf("%s cannot represent %s block [message=%d block=%d]", e.Format, e.Kind, e.Message, e.Block)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *UnsupportedContentBlockError) Is(target error) bool {
	return target == ErrUnsupportedContentBlock
}

// Path renders the block location in the same style as MalformedInputError.
func (e *UnsupportedContentBlockError) Path() string {
	return fmt.Sprintf("messages[%d].blocks[%d]", e.Message, e.Block)
}
