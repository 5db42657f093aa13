package chat

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"glint/conversation"
	"glint/provider"
)

const turnTopic = "chat.turn.events"

// turnEvent is the single mutation currency between background tasks and
// conversation state. Every started turn publishes any number of update
// events followed by exactly one terminal event (done or error); every
// title task publishes exactly one title event.
type turnEvent struct {
	Conversation uuid.UUID                  `json:"conversation"`
	Turn         uuid.UUID                  `json:"turn"`
	Kind         string                     `json:"kind"`
	Text         string                     `json:"text,omitempty"`
	ToolCalls    []conversation.ToolCall    `json:"toolCalls,omitempty"`
	ErrKind      conversation.ErrorKind     `json:"errKind,omitempty"`
	ErrDetail    string                     `json:"errDetail,omitempty"`
	Title        string                     `json:"title,omitempty"`
}

const (
	eventUpdate = "update"
	eventDone   = "done"
	eventError  = "error"
	eventTitle  = "title"
)

// startTurnLocked launches a streaming turn. A still-running turn on the
// same conversation is superseded: its context is cancelled and its
// remaining events are ignored by turn id.
func (m *Manager) startTurnLocked(conv *conversation.Conversation, prompt string) {
	if old := m.turns[conv.ID]; old != nil {
		old.cancel()
	}

	turnID := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	m.turns[conv.ID] = &turnHandle{id: turnID, cancel: cancel}

	session := m.ensureBindingLocked(conv)
	temperature := conv.Temperature
	m.beginTaskLocked()

	go m.runTurn(ctx, session, conv.ID, turnID, prompt, temperature)
}

func (m *Manager) runTurn(ctx context.Context, session provider.Session, convID, turnID uuid.UUID, prompt string, temperature float64) {
	err := session.Stream(ctx, prompt, temperature, func(ev provider.StreamEvent) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.publish(turnEvent{
			Conversation: convID,
			Turn:         turnID,
			Kind:         eventUpdate,
			Text:         ev.Text,
			ToolCalls:    ev.ToolCalls,
		})
		return nil
	})

	if err != nil {
		m.publish(turnEvent{
			Conversation: convID,
			Turn:         turnID,
			Kind:         eventError,
			ErrKind:      provider.Classify(err),
			ErrDetail:    err.Error(),
		})
		return
	}
	m.publish(turnEvent{
		Conversation: convID,
		Turn:         turnID,
		Kind:         eventDone,
	})
}

// spawnTitleLocked fires the background title generation for a
// conversation's first user message.
func (m *Manager) spawnTitleLocked(convID uuid.UUID, firstUserMessage string) {
	m.beginTaskLocked()
	go func() {
		title, _ := m.titles.Generate(context.Background(), firstUserMessage)
		// An empty title means generation failed or validation rejected
		// the result; the event still flows so the task settles.
		m.publish(turnEvent{
			Conversation: convID,
			Kind:         eventTitle,
			Title:        title,
		})
	}()
}

func (m *Manager) publish(ev turnEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		m.log.Error().Err(err).Msg("encoding turn event")
		payload = nil
	}
	if payload != nil {
		if err := m.bus.Publish(turnTopic, message.NewMessage(watermill.NewUUID(), payload)); err == nil {
			return
		} else {
			m.log.Error().Err(err).Str("kind", ev.Kind).Msg("publishing turn event")
		}
	}
	// The bus is closed or the event is unencodable; apply terminal
	// events directly so task accounting cannot leak.
	if ev.Kind != eventUpdate {
		m.apply(ev)
	}
}

// consume is the single goroutine that serializes all mutation from
// background tasks.
func (m *Manager) consume(messages <-chan *message.Message) {
	defer close(m.consumerDone)
	for msg := range messages {
		var ev turnEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			m.log.Error().Err(err).Msg("decoding turn event")
			msg.Ack()
			continue
		}
		m.apply(ev)
		msg.Ack()
	}
}

func (m *Manager) apply(ev turnEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Kind {
	case eventUpdate:
		m.applyUpdateLocked(ev)
	case eventDone:
		if m.currentTurnLocked(ev) {
			delete(m.turns, ev.Conversation)
			delete(m.busy, ev.Conversation)
			m.persistLocked()
		}
		m.endTaskLocked()
	case eventError:
		if m.currentTurnLocked(ev) {
			m.applyErrorLocked(ev)
			delete(m.turns, ev.Conversation)
			delete(m.busy, ev.Conversation)
			m.persistLocked()
		}
		m.endTaskLocked()
	case eventTitle:
		m.applyTitleLocked(ev)
		m.endTaskLocked()
	}
}

// currentTurnLocked reports whether the event belongs to the turn that
// currently owns its conversation. Superseded turns fail this check and
// their events are dropped.
func (m *Manager) currentTurnLocked(ev turnEvent) bool {
	t := m.turns[ev.Conversation]
	return t != nil && t.id == ev.Turn
}

func (m *Manager) applyUpdateLocked(ev turnEvent) {
	if !m.currentTurnLocked(ev) {
		return
	}
	conv := m.findLocked(ev.Conversation)
	if conv == nil {
		return
	}
	// The target is resolved by author flag on every event, never by a
	// captured index; edits and retries may have moved it.
	idx := conv.LastAssistantIndex()
	if idx == -1 {
		return
	}
	msg := &conv.Messages[idx]

	// Longest text wins, guarding against transient truncation in
	// provider output.
	if len(ev.Text) > len(msg.Content) {
		msg.Content = ev.Text
	}
	msg.ToolCalls = reconcileToolCalls(msg.ToolCalls, ev.ToolCalls)
}

func (m *Manager) applyErrorLocked(ev turnEvent) {
	conv := m.findLocked(ev.Conversation)
	if conv == nil {
		return
	}
	idx := conv.LastAssistantIndex()
	if idx == -1 {
		return
	}
	msg := &conv.Messages[idx]
	msg.Error = &conversation.MessageError{Kind: ev.ErrKind, Detail: ev.ErrDetail}
	for i := range msg.ToolCalls {
		if !msg.ToolCalls[i].Status.Terminal() {
			msg.ToolCalls[i].Status = conversation.ToolCallFailed
			msg.ToolCalls[i].Error = "turn failed before the tool finished"
		}
	}
}

func (m *Manager) applyTitleLocked(ev turnEvent) {
	if ev.Title == "" {
		return
	}
	conv := m.findLocked(ev.Conversation)
	if conv == nil {
		return
	}
	conv.Title = ev.Title
	m.persistLocked()
}

// reconcileToolCalls merges an authoritative snapshot into the existing
// records. Matching is positional; a record that already reached a
// terminal state keeps it even if the snapshot disagrees.
func reconcileToolCalls(existing, incoming []conversation.ToolCall) []conversation.ToolCall {
	if len(incoming) == 0 {
		return existing
	}
	out := make([]conversation.ToolCall, len(incoming))
	copy(out, incoming)
	for i := range out {
		if i < len(existing) && existing[i].Status.Terminal() && !out[i].Status.Terminal() {
			out[i] = existing[i]
		}
	}
	return out
}
