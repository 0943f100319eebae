// Package validate checks a Conversation against the invariants every
// exporter relies on.
//
// Violations are fatal for the document; warnings are advisory and only fail
// a conversion when the caller asks for strict mode.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robbyt/fantasy-adapters/reqconv/ir"
)

// ErrValidation matches every *ValidationError.
var ErrValidation = errors.New("validation failed")

// Invariant names a checked property of a Conversation.
type Invariant string

const (
	CallCorrelation         Invariant = "call-correlation"
	UniqueToolNames         Invariant = "unique-tool-names"
	BlockPlacement          Invariant = "block-placement"
	SingleSystemInstruction Invariant = "single-system-instruction"
)

// Violation is one broken invariant. Message and Block are -1 when the
// violation is not tied to a message or block; Path always locates it.
type Violation struct {
	Invariant Invariant `json:"invariant"`
	Message   int       `json:"message"`
	Block     int       `json:"block"`
	Path      string    `json:"path"`
	Detail    string    `json:"detail"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s [%s]: %s", v.Invariant, v.Path, v.Detail)
}

// Report is the outcome of validating one Conversation.
type Report struct {
	Violations []Violation  `json:"violations,omitempty"`
	Warnings   ir.Warnings `json:"warnings,omitempty"`
}

// OK reports whether no invariant is violated.
func (r *Report) OK() bool {
	return len(r.Violations) == 0
}

// Err returns a *ValidationError when the report holds violations, nil otherwise.
func (r *Report) Err() error {
	if r.OK() {
		return nil
	}
	return &ValidationError{Violations: r.Violations}
}

func (r *Report) violate(inv Invariant, msg, block int, detail string, args ...any) {
	path := ""
	switch {
	case msg >= 0 && block >= 0:
		path = fmt.Sprintf("messages[%d].blocks[%d]", msg, block)
	case msg >= 0:
		path = fmt.Sprintf("messages[%d]", msg)
	}
	r.Violations = append(r.Violations, Violation{
		Invariant: inv,
		Message:   msg,
		Block:     block,
		Path:      path,
		Detail:    fmt.Sprintf(detail, args...),
	})
}

func (r *Report) violateTool(tool int, detail string, args ...any) {
	r.Violations = append(r.Violations, Violation{
		Invariant: UniqueToolNames,
		Message:   -1,
		Block:     -1,
		Path:      fmt.Sprintf("tools[%d]", tool),
		Detail:    fmt.Sprintf(detail, args...),
	})
}

// ValidationError carries the violations of a failed validation.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 1 {
		return "invariant violated: " + e.Violations[0].String()
	}
	details := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		details[i] = v.String()
	}
	return fmt.Sprintf("%d invariants violated: %s", len(e.Violations), strings.Join(details, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
