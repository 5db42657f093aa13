package provider

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glint/conversation"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want conversation.ErrorKind
	}{
		{"guardrail", errors.New("request was flagged by content policy"), conversation.ErrGuardrailViolation},
		{"context window", errors.New("maximum context length exceeded"), conversation.ErrContextWindowExceeded},
		{"prompt too long", errors.New("prompt is too long: 250000 tokens"), conversation.ErrContextWindowExceeded},
		{"unsupported", errors.New("model does not support tool use"), conversation.ErrUnsupportedFeature},
		{"decoding", errors.New("invalid character '<' looking for beginning of value"), conversation.ErrResponseDecodingFailed},
		{"connection refused", errors.New("dial tcp 127.0.0.1:11434: connection refused"), conversation.ErrProviderUnavailable},
		{"overloaded", errors.New("overloaded_error: the service is busy"), conversation.ErrProviderUnavailable},
		{"unknown", errors.New("something odd happened"), conversation.ErrUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestWrapError(t *testing.T) {
	assert.NoError(t, WrapError("op", nil))

	wrapped := WrapError("ollama stream", errors.New("connection refused"))
	var pe *Error
	require.ErrorAs(t, wrapped, &pe)
	assert.Equal(t, conversation.ErrProviderUnavailable, pe.Kind)
	assert.Contains(t, wrapped.Error(), "ollama stream")

	// Double wrapping keeps the original classification.
	again := WrapError("outer", wrapped)
	require.ErrorAs(t, again, &pe)
	assert.Equal(t, conversation.ErrProviderUnavailable, pe.Kind)
}
