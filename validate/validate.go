package validate

import (
	"github.com/robbyt/fantasy-adapters/reqconv/ir"
)

type options struct {
	schemaChecks bool
}

// Option configures Conversation.
type Option func(*options)

// WithSchemaChecks enables or disables the JSON Schema warnings on tool
// parameters and invocation arguments. Enabled by default.
func WithSchemaChecks(enabled bool) Option {
	return func(o *options) {
		o.schemaChecks = enabled
	}
}

// Conversation checks c and returns a report. c is never modified.
//
// Invariants:
//   - call-correlation: every ToolResult answers an earlier ToolInvocation
//     with the same id and tool name
//   - unique-tool-names: tool names are non-empty and unique
//   - block-placement: tool invocations only in assistant messages, tool
//     results never in assistant or system messages, results hold only text
//     and images, roles are known
//   - single-system-instruction: no system message remains in Messages
func Conversation(c *ir.Conversation, opts ...Option) *Report {
	o := options{schemaChecks: true}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Report{}
	checkToolNames(r, c)
	checkMessages(r, c)
	if o.schemaChecks {
		checkSchemas(r, c)
	}
	return r
}

func checkToolNames(r *Report, c *ir.Conversation) {
	seen := make(map[string]int, len(c.Tools))
	for i, t := range c.Tools {
		if t.Name == "" {
			r.violateTool(i, "tool has no name")
			continue
		}
		if first, ok := seen[t.Name]; ok {
			r.violateTool(i, "tool %q already declared at tools[%d]", t.Name, first)
			continue
		}
		seen[t.Name] = i
	}
}

func checkMessages(r *Report, c *ir.Conversation) {
	calls := make(map[string]string)
	for i, m := range c.Messages {
		if !m.Role.Valid() {
			r.violate(BlockPlacement, i, -1, "unknown role %q", m.Role)
			continue
		}
		if m.Role == ir.RoleSystem {
			r.violate(SingleSystemInstruction, i, -1, "system message outside the system instruction")
		}

		for j, b := range m.Blocks {
			switch v := b.(type) {
			case ir.Text, ir.Image:
			case ir.ToolInvocation:
				if m.Role != ir.RoleAssistant {
					r.violate(BlockPlacement, i, j, "tool invocation in %s message", m.Role)
				}
				if v.CallID == "" || v.ToolName == "" {
					r.violate(CallCorrelation, i, j, "tool invocation needs both a call id and a tool name")
					continue
				}
				if prev, ok := calls[v.CallID]; ok {
					r.Warnings.Add(pathOf(i, j), "call id %q reused (first used by %q)", v.CallID, prev)
				}
				calls[v.CallID] = v.ToolName
			case ir.ToolResult:
				if m.Role == ir.RoleAssistant || m.Role == ir.RoleSystem {
					r.violate(BlockPlacement, i, j, "tool result in %s message", m.Role)
				}
				for k, inner := range v.Content {
					switch inner.(type) {
					case ir.Text, ir.Image:
					default:
						r.violate(BlockPlacement, i, j, "tool result content[%d] is a %s block", k, ir.BlockKind(inner))
					}
				}
				name, ok := calls[v.CallID]
				switch {
				case !ok:
					r.violate(CallCorrelation, i, j, "tool result answers unknown call id %q", v.CallID)
				case v.ToolName == "":
					r.violate(CallCorrelation, i, j, "tool result for call %q has no tool name", v.CallID)
				case v.ToolName != name:
					r.violate(CallCorrelation, i, j, "tool result names %q but call %q invoked %q", v.ToolName, v.CallID, name)
				}
			default:
				r.violate(BlockPlacement, i, j, "%s block", ir.BlockKind(b))
			}
		}
	}
}
