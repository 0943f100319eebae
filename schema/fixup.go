package schema

import (
	"fmt"
	"slices"

	"github.com/robbyt/fantasy-adapters/reqconv/ir"
)

// Fixup repairs known defects in one tool's declared parameters. Tool "*"
// matches every tool.
type Fixup struct {
	Tool string `yaml:"tool" json:"tool"`

	// RenameRequired replaces entries of "required" (old name -> new name).
	RenameRequired map[string]string `yaml:"rename_required,omitempty" json:"rename_required,omitempty"`

	// DropRequired removes entries from "required".
	DropRequired []string `yaml:"drop_required,omitempty" json:"drop_required,omitempty"`

	// CollapseNullable rewrites a ["x","null"] type list on the named
	// top-level properties to plain "x".
	CollapseNullable []string `yaml:"collapse_nullable,omitempty" json:"collapse_nullable,omitempty"`

	// PruneRequired drops "required" entries that name no declared property.
	PruneRequired bool `yaml:"prune_required,omitempty" json:"prune_required,omitempty"`
}

// Matches reports whether f applies to the tool called name.
func (f Fixup) Matches(name string) bool {
	return f.Tool == "*" || f.Tool == name
}

// ApplyFixups rewrites the parameters of every matching tool declaration in c.
// Parameters are copied before they are changed, so maps shared with the
// source document are never modified. Every change is reported as a warning.
func ApplyFixups(c *ir.Conversation, fixups []Fixup) ir.Warnings {
	var warnings ir.Warnings
	for i := range c.Tools {
		tool := &c.Tools[i]
		path := fmt.Sprintf("tools[%d]", i)
		var params map[string]any
		for _, f := range fixups {
			if !f.Matches(tool.Name) || tool.Parameters == nil {
				continue
			}
			if params == nil {
				params = Clone(tool.Parameters)
			}
			applyFixup(params, f, tool.Name, path, &warnings)
		}
		if params != nil {
			tool.Parameters = params
		}
	}
	return warnings
}

func applyFixup(params map[string]any, f Fixup, tool, path string, warnings *ir.Warnings) {
	required := stringList(params["required"])
	changed := false

	for i, name := range required {
		if to, ok := f.RenameRequired[name]; ok && to != name {
			warnings.Add(path, "%s: renamed required %q to %q", tool, name, to)
			required[i] = to
			changed = true
		}
	}

	if len(f.DropRequired) > 0 {
		kept := required[:0]
		for _, name := range required {
			if slices.Contains(f.DropRequired, name) {
				warnings.Add(path, "%s: dropped required %q", tool, name)
				changed = true
				continue
			}
			kept = append(kept, name)
		}
		required = kept
	}

	props, _ := params["properties"].(map[string]any)

	if f.PruneRequired {
		kept := required[:0]
		for _, name := range required {
			if _, declared := props[name]; !declared {
				warnings.Add(path, "%s: dropped required %q with no matching property", tool, name)
				changed = true
				continue
			}
			kept = append(kept, name)
		}
		required = kept
	}

	if changed {
		params["required"] = stringsToAny(required)
	}

	for _, name := range f.CollapseNullable {
		prop, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		types, ok := prop["type"].([]any)
		if !ok {
			continue
		}
		var kept []string
		for _, t := range types {
			if s, ok := t.(string); ok && s != "null" {
				kept = append(kept, s)
			}
		}
		if len(kept) == 1 {
			prop["type"] = kept[0]
			warnings.Add(path, "%s: collapsed type of property %q to %q", tool, name, kept[0])
		}
	}
}
