package messages

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractContent renders raw graph content as text. Strings are trimmed and
// lists of content parts are joined by newlines. Content that cannot be
// rendered produces a placeholder instead of failing.
func ExtractContent(content any) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = fmt.Sprintf("Content extraction error: %v", r)
		}
	}()

	switch v := content.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []string:
		return strings.TrimSpace(strings.Join(v, "\n"))
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			switch part := item.(type) {
			case string:
				parts = append(parts, part)
			case map[string]any:
				if t, ok := part["text"].(string); ok {
					parts = append(parts, t)
				}
			}
		}
		if len(parts) == 0 {
			return encodeFallback(v)
		}
		return strings.TrimSpace(strings.Join(parts, "\n"))
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return encodeFallback(v)
	}
}

func encodeFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("Content extraction error: %v", err)
	}
	return strings.TrimSpace(string(data))
}
