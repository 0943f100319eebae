package pipeline

import (
	"fmt"

	"github.com/robbyt/fantasy-adapters/reqconv/format"
	"github.com/robbyt/fantasy-adapters/reqconv/format/claude"
	"github.com/robbyt/fantasy-adapters/reqconv/format/gemini"
	"github.com/robbyt/fantasy-adapters/reqconv/format/openai"
	"github.com/robbyt/fantasy-adapters/reqconv/ir"
)

// Pair is a source and destination format.
type Pair struct {
	From format.Format
	To   format.Format
}

func (p Pair) String() string {
	return fmt.Sprintf("%s->%s", p.From, p.To)
}

// Shipped lists the conversions the tool is released for. Every other pair
// of the registry works the same way but is not part of the release surface.
func Shipped() []Pair {
	return []Pair{
		{From: format.Claude, To: format.OpenAI},
		{From: format.OpenAI, To: format.Gemini},
		{From: format.Claude, To: format.Gemini},
	}
}

// Registry maps formats to their importer and exporter.
type Registry struct {
	importers map[format.Format]format.Importer
	exporters map[format.Format]format.Exporter
}

// NewRegistry returns a registry holding the default importer and exporter
// of every format.
func NewRegistry() *Registry {
	r := &Registry{
		importers: make(map[format.Format]format.Importer, len(format.All)),
		exporters: make(map[format.Format]format.Exporter, len(format.All)),
	}
	r.RegisterImporter(claude.NewImporter())
	r.RegisterImporter(openai.NewImporter())
	r.RegisterImporter(gemini.NewImporter())
	r.RegisterExporter(claude.NewExporter())
	r.RegisterExporter(openai.NewExporter())
	r.RegisterExporter(gemini.NewExporter())
	return r
}

// RegisterImporter replaces the importer for imp.Format().
func (r *Registry) RegisterImporter(imp format.Importer) {
	r.importers[imp.Format()] = imp
}

// RegisterExporter replaces the exporter for exp.Format().
func (r *Registry) RegisterExporter(exp format.Exporter) {
	r.exporters[exp.Format()] = exp
}

// Pair builds the pipeline from -> to. A from of format.Auto detects the
// source format of each document.
func (r *Registry) Pair(from, to format.Format, opts ...Option) (*Pipeline, error) {
	exp, ok := r.exporters[to]
	if !ok {
		return nil, fmt.Errorf("no exporter for format %q", to)
	}
	if from == format.Auto {
		return New(&detectingImporter{registry: r}, exp, opts...), nil
	}
	imp, ok := r.importers[from]
	if !ok {
		return nil, fmt.Errorf("no importer for format %q", from)
	}
	return New(imp, exp, opts...), nil
}

// ForPair builds the pipeline from -> to with the default registry.
func ForPair(from, to format.Format, opts ...Option) (*Pipeline, error) {
	return NewRegistry().Pair(from, to, opts...)
}

type detectingImporter struct {
	registry *Registry
}

func (*detectingImporter) Format() format.Format {
	return format.Auto
}

func (d *detectingImporter) Import(doc []byte) (*ir.Conversation, ir.Warnings, error) {
	f, err := format.Detect(doc)
	if err != nil {
		return nil, nil, &ir.MalformedInputError{Format: string(format.Auto), Reason: "cannot detect source format", Err: err}
	}
	imp, ok := d.registry.importers[f]
	if !ok {
		return nil, nil, fmt.Errorf("no importer for detected format %q", f)
	}
	return imp.Import(doc)
}
