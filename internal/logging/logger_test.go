package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerLevels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWithWriter(&buf, false)

	logger.Info("hello %s", "world")
	logger.Warn("careful")
	logger.Error("broken")
	logger.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "✓ hello world")
	assert.Contains(t, out, "⚠ careful")
	assert.Contains(t, out, "✗ broken")
	assert.NotContains(t, out, "hidden")
}

func TestLoggerDebugEnabled(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWithWriter(&buf, true)

	logger.Debug("visible now")
	assert.Contains(t, buf.String(), "[DEBUG] visible now")
}

func TestSecretAlwaysRedacted(t *testing.T) {
	t.Parallel()

	s := Secret("super-sensitive-token")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", s.GoString())
}

func TestRedact(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		secrets  []string
		expected string
	}{
		{
			name:     "single secret",
			input:    "token is abc123xyz here",
			secrets:  []string{"abc123xyz"},
			expected: "token is [REDACTED] here",
		},
		{
			name:     "multiple occurrences",
			input:    "s3cret and s3cret again",
			secrets:  []string{"s3cret"},
			expected: "[REDACTED] and [REDACTED] again",
		},
		{
			name:     "trivial secrets are not redacted",
			input:    "ab appears here",
			secrets:  []string{"ab"},
			expected: "ab appears here",
		},
		{
			name:     "empty secret ignored",
			input:    "nothing changes",
			secrets:  []string{""},
			expected: "nothing changes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, Redact(tt.input, tt.secrets))
		})
	}
}

func TestRedactValue(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "********", RedactValue("12345678"))
	assert.Equal(t, "abcd********", RedactValue("abcdefghijkl"))
	assert.Equal(t, "", RedactValue(""))
}
