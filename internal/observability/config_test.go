package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "text", config.Logging.Format)
	assert.True(t, config.Metrics.Enabled)
	assert.False(t, config.Tracing.Enabled)
	assert.Equal(t, "otlp", config.Tracing.Exporter)
	assert.Equal(t, 1.0, config.Tracing.SampleRate)
	assert.NoError(t, config.Validate())
}

func TestValidate(t *testing.T) {
	config := DefaultConfig()
	config.Logging.Level = "verbose"
	assert.Error(t, config.Validate())

	config = DefaultConfig()
	config.Logging.Format = "xml"
	assert.Error(t, config.Validate())

	config = DefaultConfig()
	config.Tracing.Enabled = true
	config.Tracing.Exporter = "jaeger"
	assert.Error(t, config.Validate())

	config.Tracing.Exporter = "zipkin"
	config.Tracing.SampleRate = 2
	assert.Error(t, config.Validate())

	config.Tracing.SampleRate = 0.5
	assert.NoError(t, config.Validate())
}
