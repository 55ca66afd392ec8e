package messages

import (
	"fmt"
	"sort"
	"strings"

	"redswarm/internal/agents"
)

const transferPrefix = "transfer_to_"

// IsHandoff reports whether a tool name transfers control to another agent.
func IsHandoff(toolName string) bool {
	return strings.HasPrefix(toolName, transferPrefix)
}

// HandoffTarget returns the title-cased agent a hand-off tool transfers to.
func HandoffTarget(toolName string) string {
	target := strings.TrimPrefix(toolName, transferPrefix)
	return agents.TitleWords(strings.ReplaceAll(target, "_", " "))
}

// DisplayToolName turns a raw tool name into a label: "transfer_to_x_y"
// becomes "Transfer to X Y", anything else snake_case to Title Case.
func DisplayToolName(toolName string) string {
	if IsHandoff(toolName) {
		return "Transfer to " + HandoffTarget(toolName)
	}
	return agents.TitleWords(strings.ReplaceAll(toolName, "_", " "))
}

// orderedArgs are rendered first, in this order.
var orderedArgs = []string{"options", "target"}

// RenderToolCall renders a tool call as a shell-like command line. Hand-offs
// render as "Transfer to X...". Remaining args follow in key order.
func RenderToolCall(call ToolCall) string {
	name := call.Name
	if name == "" {
		name = "Unknown Tool"
	}
	if IsHandoff(name) {
		return fmt.Sprintf("Transfer to %s...", HandoffTarget(name))
	}

	parts := []string{name}
	for _, key := range orderedArgs {
		if value := formatArg(call.Args[key]); value != "" {
			parts = append(parts, value)
		}
	}

	rest := make([]string, 0, len(call.Args))
	for key := range call.Args {
		if key != "options" && key != "target" {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		if value := formatArg(call.Args[key]); value != "" {
			parts = append(parts, value)
		}
	}

	if len(parts) == 1 {
		return name + "..."
	}
	return strings.Join(parts, " ")
}

// ToolCallStatus is the progress line shown while a tool call runs.
func ToolCallStatus(call ToolCall) string {
	if call.Name == "" {
		return "Processing..."
	}
	if IsHandoff(call.Name) {
		return fmt.Sprintf("Transferring to %s...", HandoffTarget(call.Name))
	}
	return fmt.Sprintf("Executing %s...", DisplayToolName(call.Name))
}

func formatArg(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case bool:
		if !v {
			return ""
		}
		return "true"
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			if s := formatArg(item); s != "" {
				items = append(items, s)
			}
		}
		return strings.Join(items, " ")
	case []string:
		items := make([]string, 0, len(v))
		for _, item := range v {
			if item != "" {
				items = append(items, item)
			}
		}
		return strings.Join(items, " ")
	case float64:
		if v == 0 {
			return ""
		}
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}
