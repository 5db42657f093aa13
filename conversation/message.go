package conversation

import (
	"time"

	"github.com/google/uuid"
)

// ToolCallStatus tracks one tool invocation through its lifetime within a turn.
type ToolCallStatus string

const (
	ToolCallQueued  ToolCallStatus = "queued"
	ToolCallRunning ToolCallStatus = "running"
	ToolCallDone    ToolCallStatus = "done"
	ToolCallFailed  ToolCallStatus = "failed"
)

// Terminal reports whether the status may no longer change within its turn.
func (s ToolCallStatus) Terminal() bool {
	return s == ToolCallDone || s == ToolCallFailed
}

// ToolCall records one invocation of an external tool during a response turn.
type ToolCall struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Arguments   string         `json:"arguments,omitempty"`
	Status      ToolCallStatus `json:"status"`
	Result      string         `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Message is a single chat message. Content and ToolCalls are mutated in
// place while a streaming turn is active; identity and timestamp are fixed
// at creation.
type Message struct {
	ID        uuid.UUID     `json:"id"`
	Content   string        `json:"content"`
	IsUser    bool          `json:"isUser"`
	Timestamp time.Time     `json:"timestamp"`
	Error     *MessageError `json:"error,omitempty"`
	ToolCalls []ToolCall    `json:"toolCalls,omitempty"`
}

// NewUserMessage creates a user message with the given content and timestamp.
func NewUserMessage(content string, ts time.Time) Message {
	return Message{
		ID:        uuid.New(),
		Content:   content,
		IsUser:    true,
		Timestamp: ts,
	}
}

// NewAssistantPlaceholder creates the empty assistant message a streaming
// turn fills in.
func NewAssistantPlaceholder(ts time.Time) Message {
	return Message{
		ID:        uuid.New(),
		IsUser:    false,
		Timestamp: ts,
	}
}

// Failed reports whether the message carries an error descriptor.
func (m Message) Failed() bool {
	return m.Error != nil
}
