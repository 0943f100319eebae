package validate

import (
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonschema"

	"github.com/robbyt/fantasy-adapters/reqconv/ir"
)

// checkSchemas compiles every tool parameter schema and checks each tool
// invocation's arguments against the schema of the tool it names. Findings
// are warnings only: a schema the compiler rejects may still be accepted by
// the target API.
func checkSchemas(r *Report, c *ir.Conversation) {
	compiler := jsonschema.NewCompiler()
	schemas := make(map[string]*jsonschema.Schema, len(c.Tools))
	declared := make(map[string]bool, len(c.Tools))

	for i, t := range c.Tools {
		declared[t.Name] = true
		if t.Parameters == nil {
			continue
		}
		raw, err := json.Marshal(t.Parameters)
		if err != nil {
			r.Warnings.Add(fmt.Sprintf("tools[%d].parameters", i), "parameter schema cannot be encoded: %v", err)
			continue
		}
		s, err := compiler.Compile(raw)
		if err != nil {
			r.Warnings.Add(fmt.Sprintf("tools[%d].parameters", i), "parameter schema does not compile: %v", err)
			continue
		}
		schemas[t.Name] = s
	}

	for i, m := range c.Messages {
		for j, b := range m.Blocks {
			call, ok := b.(ir.ToolInvocation)
			if !ok || call.ToolName == "" {
				continue
			}
			if len(c.Tools) > 0 && !declared[call.ToolName] {
				r.Warnings.Add(pathOf(i, j), "tool %q is not declared", call.ToolName)
				continue
			}
			s, ok := schemas[call.ToolName]
			if !ok {
				continue
			}
			instance, err := plain(call.Arguments)
			if err != nil {
				r.Warnings.Add(pathOf(i, j), "arguments cannot be encoded: %v", err)
				continue
			}
			if !s.Validate(instance).IsValid() {
				r.Warnings.Add(pathOf(i, j), "arguments of %q do not satisfy its parameter schema", call.ToolName)
			}
		}
	}
}

// plain re-decodes args so numbers are float64 rather than json.Number.
func plain(args map[string]any) (map[string]any, error) {
	if args == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func pathOf(msg, block int) string {
	return fmt.Sprintf("messages[%d].blocks[%d]", msg, block)
}
