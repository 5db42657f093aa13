package conversation

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultTemperature is applied when a persisted conversation predates
	// the temperature field.
	DefaultTemperature = 0.7

	// DefaultInstructions seeds new drafts when no defaults are stored.
	DefaultInstructions = "You are a helpful assistant. Answer concisely and accurately."
)

// Settings is the per-conversation snapshot baked into a model session.
// EnabledTools narrows the tool set when ToolsEnabled is true; a nil map
// means every available tool.
type Settings struct {
	Instructions string          `json:"systemPrompt"`
	Temperature  float64         `json:"temperature"`
	ToolsEnabled bool            `json:"toolsEnabled"`
	EnabledTools map[string]bool `json:"enabledTools,omitempty"`
}

// ToolAllowed reports whether the named tool may be offered to the model.
func (s Settings) ToolAllowed(name string) bool {
	if !s.ToolsEnabled {
		return false
	}
	if s.EnabledTools == nil {
		return true
	}
	return s.EnabledTools[name]
}

// Conversation is an ordered message list plus its settings snapshot.
// Message order is creation order and timestamps are strictly increasing,
// which edit and retry rely on to locate boundaries.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	Settings
}

// New creates an empty conversation with the given settings.
func New(title string, settings Settings) *Conversation {
	return &Conversation{
		ID:        uuid.New(),
		Title:     title,
		Messages:  []Message{},
		CreatedAt: time.Now(),
		Settings:  settings,
	}
}

// conversationJSON mirrors Conversation with optional fields as pointers so
// old persisted blobs decode with defaults instead of zero values.
type conversationJSON struct {
	ID           uuid.UUID       `json:"id"`
	Title        string          `json:"title"`
	Messages     []Message       `json:"messages"`
	CreatedAt    time.Time       `json:"createdAt"`
	Instructions string          `json:"systemPrompt"`
	Temperature  *float64        `json:"temperature"`
	ToolsEnabled *bool           `json:"toolsEnabled"`
	EnabledTools map[string]bool `json:"enabledTools"`
}

func (c *Conversation) UnmarshalJSON(data []byte) error {
	var raw conversationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.ID = raw.ID
	c.Title = raw.Title
	c.Messages = raw.Messages
	if c.Messages == nil {
		c.Messages = []Message{}
	}
	c.CreatedAt = raw.CreatedAt
	c.Instructions = raw.Instructions
	c.Temperature = DefaultTemperature
	if raw.Temperature != nil {
		c.Temperature = *raw.Temperature
	}
	c.ToolsEnabled = true
	if raw.ToolsEnabled != nil {
		c.ToolsEnabled = *raw.ToolsEnabled
	}
	c.EnabledTools = raw.EnabledTools
	return nil
}

// IndexOf returns the position of the message with the given id, or -1.
func (c *Conversation) IndexOf(id uuid.UUID) int {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// LastAssistantIndex returns the position of the most recent assistant
// message, or -1. Streaming turns resolve their mutation target through
// this on every event, so edits and retries cannot strand a stale index.
func (c *Conversation) LastAssistantIndex() int {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if !c.Messages[i].IsUser {
			return i
		}
	}
	return -1
}

// UserMessageCount returns the number of user-authored messages.
func (c *Conversation) UserMessageCount() int {
	n := 0
	for i := range c.Messages {
		if c.Messages[i].IsUser {
			n++
		}
	}
	return n
}

// FallbackTitle derives a deterministic title from the first user message:
// the whole trimmed text when it has at most four words, otherwise the
// first four joined by spaces with an ellipsis appended.
func FallbackTitle(firstUserMessage string) string {
	words := strings.Fields(firstUserMessage)
	if len(words) == 0 {
		return "New Conversation"
	}
	if len(words) <= 4 {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:4], " ") + "…"
}
