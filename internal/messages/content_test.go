package messages

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractContent(t *testing.T) {
	assert.Equal(t, "hello", ExtractContent("  hello \n"))
	assert.Equal(t, "", ExtractContent(nil))
	assert.Equal(t, "a\nb", ExtractContent([]any{
		map[string]any{"type": "text", "text": "a"},
		map[string]any{"type": "image_url", "image_url": "x"},
		"b",
	}))
	assert.Equal(t, `[{"type":"image"}]`, ExtractContent([]any{map[string]any{"type": "image"}}))
	assert.Equal(t, "42", ExtractContent(42))
}

func TestExtractContentDegradesToPlaceholder(t *testing.T) {
	got := ExtractContent(make(chan int))
	assert.Contains(t, got, "Content extraction error:")
}
