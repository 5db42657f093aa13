package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sahilm/fuzzy"

	"glint/conversation"
)

const previewLength = 100

// MessageMatch is one hit from a cross-conversation message search.
type MessageMatch struct {
	ConversationID uuid.UUID
	Title          string
	MessageIndex   int
	Preview        string
	Timestamp      time.Time
}

// SearchConversations fuzzy-matches the query against conversation titles
// and returns matching conversations best-first. An empty query returns
// the full list.
func (m *Manager) SearchConversations(query string) []*conversation.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()

	if strings.TrimSpace(query) == "" {
		out := make([]*conversation.Conversation, len(m.conversations))
		copy(out, m.conversations)
		return out
	}

	titles := make([]string, len(m.conversations))
	for i, c := range m.conversations {
		titles[i] = c.Title
	}

	matches := fuzzy.Find(query, titles)
	out := make([]*conversation.Conversation, 0, len(matches))
	for _, match := range matches {
		out = append(out, m.conversations[match.Index])
	}
	return out
}

// SearchMessages scans every persisted conversation for messages
// containing the query, case-insensitively.
func (m *Manager) SearchMessages(query string) []MessageMatch {
	m.mu.Lock()
	defer m.mu.Unlock()

	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	var matches []MessageMatch
	for _, conv := range m.conversations {
		for i, msg := range conv.Messages {
			if !strings.Contains(strings.ToLower(msg.Content), query) {
				continue
			}
			preview := msg.Content
			if runes := []rune(preview); len(runes) > previewLength {
				preview = string(runes[:previewLength]) + "..."
			}
			matches = append(matches, MessageMatch{
				ConversationID: conv.ID,
				Title:          conv.Title,
				MessageIndex:   i,
				Preview:        preview,
				Timestamp:      msg.Timestamp,
			})
		}
	}
	return matches
}

// ExportConversation writes one persisted conversation to a JSON file.
func (m *Manager) ExportConversation(id uuid.UUID, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv := m.findLocked(id)
	if conv == nil {
		return ErrUnknownConversation
	}
	return m.store.ExportToJSON(conv, path)
}

// ImportConversation loads an exported conversation, inserts it at the
// front of the persisted list and persists.
func (m *Manager) ImportConversation(path string) (uuid.UUID, error) {
	conv, err := m.store.ImportFromJSON(path)
	if err != nil {
		return uuid.Nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations = append([]*conversation.Conversation{conv}, m.conversations...)
	m.persistLocked()
	return conv.ID, nil
}
