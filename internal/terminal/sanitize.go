package terminal

import (
	"regexp"
	"strings"
)

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\n", "<br>")

// Sanitize escapes HTML special characters and turns newlines into <br>.
// Tool output is untrusted and must pass through here before rendering.
func Sanitize(output string) string {
	return htmlEscaper.Replace(output)
}

// commandPrefixes are stripped from a command in this order.
var commandPrefixes = []string{
	"Running command:",
	"Executing:",
	"Command:",
	"Execute:",
	"$",
	"# ",
}

// CleanCommand keeps the first line of command and strips shell prompts and
// execution labels.
func CleanCommand(command string) string {
	command = strings.TrimSpace(command)
	if idx := strings.Index(command, "\n"); idx >= 0 {
		command = strings.TrimSpace(command[:idx])
	}
	for _, prefix := range commandPrefixes {
		if strings.HasPrefix(command, prefix) {
			command = strings.TrimSpace(command[len(prefix):])
		}
	}
	return command
}

var commandPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:command|executing|running):\s*(.+)`),
	regexp.MustCompile(`\$\s*(.+)`),
	regexp.MustCompile(`#\s*(.+)`),
}

// ExtractCommand pulls the command text out of a marked line.
func ExtractCommand(line string) string {
	line = strings.TrimSpace(line)
	for _, pattern := range commandPatterns {
		if match := pattern.FindStringSubmatch(line); match != nil {
			if command := strings.TrimSpace(match[1]); command != "" {
				return command
			}
		}
	}
	return line
}

var commandMarkers = []string{"command:", "executing:", "running:"}

// isCommandLine reports whether a trimmed line introduces a command.
func isCommandLine(line string) bool {
	if strings.HasPrefix(line, "$") || strings.HasPrefix(line, "#") {
		return true
	}
	lower := strings.ToLower(line)
	for _, marker := range commandMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

var terminalKeywords = []string{"terminal", "command", "exec", "shell"}

// IsTerminalTool reports whether a tool display name denotes an interactive
// shell-like tool.
func IsTerminalTool(displayName string) bool {
	lower := strings.ToLower(displayName)
	for _, keyword := range terminalKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
