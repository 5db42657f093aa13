// Package provider abstracts the model runtime behind a narrow session
// interface. The chat core stays provider-agnostic; each implementation
// (Ollama, OpenAI, Anthropic) handles its own wire types, streaming and
// tool invocation.
package provider

import (
	"context"

	"glint/conversation"
	"glint/tools"
)

// Role labels one entry of a session transcript.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// HistoryMessage is one provider-agnostic transcript entry.
type HistoryMessage struct {
	Role    Role
	Content string
}

// SessionConfig is everything baked into a session at creation: the system
// instructions, prior history to rehydrate, and the tools the model may
// call. A session never picks up config changes; callers create a fresh
// session instead.
type SessionConfig struct {
	Instructions string
	History      []HistoryMessage
	Tools        []tools.Handle
}

// StreamEvent is one update from a streaming turn. Text is the complete
// response so far, not a delta; ToolCalls is the authoritative snapshot of
// every tool invocation in the turn. Either may be unchanged from the
// previous event.
type StreamEvent struct {
	Text      string
	ToolCalls []conversation.ToolCall
}

// StreamCallback receives stream events in order. Returning an error
// aborts the turn.
type StreamCallback func(StreamEvent) error

// Session is a live handle onto the model runtime with config baked in.
// Each Respond or Stream call is one turn; the session appends the
// exchange to its internal transcript so following turns see it.
type Session interface {
	Respond(ctx context.Context, prompt string, temperature float64) (string, error)
	Stream(ctx context.Context, prompt string, temperature float64, cb StreamCallback) error
}

// AvailabilityReason explains why a provider cannot serve requests.
type AvailabilityReason string

const (
	ReasonDeviceIncapable  AvailabilityReason = "device_incapable"
	ReasonNotEnabled       AvailabilityReason = "not_enabled"
	ReasonModelDownloading AvailabilityReason = "model_downloading"
	ReasonOther            AvailabilityReason = "other"
)

// Availability reports whether the runtime can serve requests right now.
type Availability struct {
	Available bool
	Reason    AvailabilityReason
	Detail    string
}

// Provider creates sessions against one model runtime. NewSession is pure
// construction and never contacts the runtime.
type Provider interface {
	Name() string
	Availability(ctx context.Context) Availability
	NewSession(cfg SessionConfig) Session
}
