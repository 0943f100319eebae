// Package pipeline runs one document through import, optional transforms,
// validation and export.
//
// A Pipeline holds no per-document state: every Convert call builds a fresh
// Conversation and Tool-Call Index, so documents never observe each other.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/robbyt/fantasy-adapters/reqconv/format"
	"github.com/robbyt/fantasy-adapters/reqconv/ir"
	"github.com/robbyt/fantasy-adapters/reqconv/validate"
)

// ErrStrict matches every *StrictError.
var ErrStrict = errors.New("warnings in strict mode")

// StrictError fails a conversion that produced validator warnings while
// strict mode was on.
type StrictError struct {
	Warnings ir.Warnings
}

func (e *StrictError) Error() string {
	if len(e.Warnings) == 0 {
		return ErrStrict.Error()
	}
	return fmt.Sprintf("%s: %d warning(s), first: %s", ErrStrict, len(e.Warnings), e.Warnings[0])
}

func (e *StrictError) Is(target error) bool { return target == ErrStrict }

// Transform rewrites a Conversation after import and before validation.
type Transform func(*ir.Conversation) ir.Warnings

// Result is the outcome of one successful conversion.
type Result struct {
	Document     []byte
	Warnings     ir.Warnings
	Conversation *ir.Conversation
}

// Pipeline converts documents from one format to another.
type Pipeline struct {
	importer   format.Importer
	exporter   format.Exporter
	transforms []Transform
	strict     bool
	validation []validate.Option
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithTransform appends a transform. Transforms run in the order added.
func WithTransform(t Transform) Option {
	return func(p *Pipeline) {
		p.transforms = append(p.transforms, t)
	}
}

// WithStrict makes validator warnings fail the conversion with a *StrictError.
func WithStrict(strict bool) Option {
	return func(p *Pipeline) {
		p.strict = strict
	}
}

// WithValidateOptions passes options to validate.Conversation.
func WithValidateOptions(opts ...validate.Option) Option {
	return func(p *Pipeline) {
		p.validation = append(p.validation, opts...)
	}
}

// New returns a pipeline from importer to exporter.
func New(importer format.Importer, exporter format.Exporter, opts ...Option) *Pipeline {
	p := &Pipeline{
		importer: importer,
		exporter: exporter,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// From returns the source format.
func (p *Pipeline) From() format.Format {
	return p.importer.Format()
}

// To returns the destination format.
func (p *Pipeline) To() format.Format {
	return p.exporter.Format()
}

// Convert turns doc into a destination document. It returns either the whole
// document or an error, never both. Errors are the ir taxonomy errors,
// *validate.ValidationError or *StrictError; see Classify.
func (p *Pipeline) Convert(doc []byte) (*Result, error) {
	conv, warnings, err := p.importer.Import(doc)
	if err != nil {
		return nil, err
	}

	for _, t := range p.transforms {
		warnings = append(warnings, t(conv)...)
	}

	report := validate.Conversation(conv, p.validation...)
	if err := report.Err(); err != nil {
		return nil, err
	}
	if p.strict && len(report.Warnings) > 0 {
		return nil, &StrictError{Warnings: report.Warnings}
	}
	warnings = append(warnings, report.Warnings...)

	out, exported, err := p.exporter.Export(conv)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, exported...)

	for _, w := range warnings {
		p.logger.Debug("conversion warning", "from", p.From(), "to", p.To(), "path", w.Path, "message", w.Message)
	}
	return &Result{Document: out, Warnings: warnings, Conversation: conv}, nil
}
