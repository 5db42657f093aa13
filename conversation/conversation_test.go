package conversation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackTitle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", "New Conversation"},
		{"whitespace only", "   \t\n", "New Conversation"},
		{"one word", "Hi", "Hi"},
		{"four words unchanged", "What is Go good", "What is Go good"},
		{"five words truncated", "Hello there, how are you?", "Hello there, how are"},
		{"leading and trailing space", "  tell me a joke  ", "tell me a joke"},
		{"collapses inner runs", "a  b\tc", "a b c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FallbackTitle(tt.input)
			if tt.name == "five words truncated" {
				assert.Equal(t, tt.want+"…", got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConversationDecodeDefaults(t *testing.T) {
	blob := `{
		"id": "7b0e3a6e-9a1d-4a44-9f57-0c6a2d6c2f10",
		"title": "old format",
		"createdAt": "2024-01-02T03:04:05Z",
		"systemPrompt": "be brief",
		"messages": [
			{"id": "f3b1d9a0-1111-4222-8333-444455556666", "content": "hi", "isUser": true, "timestamp": "2024-01-02T03:04:06Z"}
		]
	}`

	var c Conversation
	require.NoError(t, json.Unmarshal([]byte(blob), &c))

	assert.True(t, c.ToolsEnabled, "absent toolsEnabled defaults to true")
	assert.Equal(t, DefaultTemperature, c.Temperature, "absent temperature defaults")
	assert.Equal(t, "be brief", c.Instructions)
	require.Len(t, c.Messages, 1)
	assert.Empty(t, c.Messages[0].ToolCalls, "absent toolCalls decodes to empty")
	assert.Nil(t, c.Messages[0].Error)
}

func TestConversationDecodeExplicitFalse(t *testing.T) {
	blob := `{"id":"7b0e3a6e-9a1d-4a44-9f57-0c6a2d6c2f10","title":"x","createdAt":"2024-01-02T03:04:05Z","temperature":0.2,"toolsEnabled":false,"messages":[]}`

	var c Conversation
	require.NoError(t, json.Unmarshal([]byte(blob), &c))
	assert.False(t, c.ToolsEnabled)
	assert.Equal(t, 0.2, c.Temperature)
}

func TestConversationRoundTrip(t *testing.T) {
	c := New("round trip", Settings{
		Instructions: "sys",
		Temperature:  0.3,
		ToolsEnabled: false,
	})
	c.Messages = append(c.Messages, NewUserMessage("hello", time.Now().UTC()))
	failed := NewAssistantPlaceholder(time.Now().UTC())
	failed.Error = &MessageError{Kind: ErrProviderUnavailable, Detail: "down"}
	failed.ToolCalls = []ToolCall{{Name: "search", Status: ToolCallFailed, Error: "cancelled"}}
	c.Messages = append(c.Messages, failed)

	data, err := json.Marshal(c)
	require.NoError(t, err)

	var back Conversation
	require.NoError(t, json.Unmarshal(data, &back))

	assert.Equal(t, c.ID, back.ID)
	assert.Equal(t, c.Settings, back.Settings)
	require.Len(t, back.Messages, 2)
	assert.Equal(t, c.Messages[0], back.Messages[0])
	require.NotNil(t, back.Messages[1].Error)
	assert.Equal(t, ErrProviderUnavailable, back.Messages[1].Error.Kind)
	assert.Equal(t, ToolCallFailed, back.Messages[1].ToolCalls[0].Status)
}

func TestToolCallStatusTerminal(t *testing.T) {
	assert.False(t, ToolCallQueued.Terminal())
	assert.False(t, ToolCallRunning.Terminal())
	assert.True(t, ToolCallDone.Terminal())
	assert.True(t, ToolCallFailed.Terminal())
}

func TestErrorKindRecoverable(t *testing.T) {
	recoverable := []ErrorKind{ErrResponseDecodingFailed, ErrProviderUnavailable, ErrUnknown}
	fatal := []ErrorKind{ErrGuardrailViolation, ErrContextWindowExceeded, ErrUnsupportedFeature}
	for _, k := range recoverable {
		assert.True(t, k.Recoverable(), string(k))
	}
	for _, k := range fatal {
		assert.False(t, k.Recoverable(), string(k))
	}
}

func TestConversationHelpers(t *testing.T) {
	c := New("helpers", Settings{ToolsEnabled: true})
	u1 := NewUserMessage("one", time.Now())
	a1 := NewAssistantPlaceholder(time.Now().Add(time.Millisecond))
	u2 := NewUserMessage("two", time.Now().Add(2*time.Millisecond))
	c.Messages = append(c.Messages, u1, a1, u2)

	assert.Equal(t, 0, c.IndexOf(u1.ID))
	assert.Equal(t, 2, c.IndexOf(u2.ID))
	assert.Equal(t, -1, c.IndexOf(uuid.New()))
	assert.Equal(t, 1, c.LastAssistantIndex())
	assert.Equal(t, 2, c.UserMessageCount())

	empty := New("empty", Settings{})
	assert.Equal(t, -1, empty.LastAssistantIndex())
}

func TestToolAllowed(t *testing.T) {
	s := Settings{ToolsEnabled: true}
	assert.True(t, s.ToolAllowed("anything"))

	s.EnabledTools = map[string]bool{"search": true, "calc": false}
	assert.True(t, s.ToolAllowed("search"))
	assert.False(t, s.ToolAllowed("calc"))
	assert.False(t, s.ToolAllowed("missing"))

	s.ToolsEnabled = false
	assert.False(t, s.ToolAllowed("search"))
}
