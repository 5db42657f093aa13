// Package chat implements the conversation session manager: the single
// owner of conversation state, the send/edit/retry/cancel protocol, and
// the reconciliation of streamed responses into message state.
package chat

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"glint/conversation"
	"glint/provider"
	"glint/storage"
	"glint/tools"
)

var (
	ErrNoActiveConversation = errors.New("no active conversation")
	ErrEmptyInput           = errors.New("input is empty")
	ErrNotUserMessage       = errors.New("message is not a user message")
	ErrNotFailedMessage     = errors.New("message is not a failed assistant message")
	ErrUnknownMessage       = errors.New("message not found in active conversation")
	ErrUnknownConversation  = errors.New("conversation not found")
	ErrInvalidTemperature   = errors.New("temperature must be between 0 and 2")
)

// Config wires a Manager's collaborators.
type Config struct {
	Provider provider.Provider
	Store    *storage.ConversationStore
	Tools    []tools.Handle
	Logger   zerolog.Logger
}

type turnHandle struct {
	id     uuid.UUID
	cancel context.CancelFunc
}

// Manager multiplexes conversations over one provider. All state lives
// behind its mutex; background turns and title generation never touch it
// directly, they publish events that the single consumer goroutine applies.
type Manager struct {
	log      zerolog.Logger
	provider provider.Provider
	store    *storage.ConversationStore
	titles   *TitleGenerator
	allTools []tools.Handle

	bus            *gochannel.GoChannel
	consumerCancel context.CancelFunc
	consumerDone   chan struct{}

	mu sync.Mutex

	// conversations is most-recent-first; promotion inserts at the front.
	conversations []*conversation.Conversation
	draft         *conversation.Conversation
	activeID      uuid.UUID
	input         string
	editingID     uuid.UUID
	editingConv   uuid.UUID
	editStash     []conversation.Message
	busy          map[uuid.UUID]bool

	bindings map[uuid.UUID]provider.Session
	turns    map[uuid.UUID]*turnHandle

	defaults  conversation.Settings
	lastStamp time.Time

	inflight int
	idleCh   chan struct{}
}

// NewManager loads persisted state and starts the event consumer.
func NewManager(cfg Config) (*Manager, error) {
	convs, err := cfg.Store.Load()
	if err != nil {
		return nil, err
	}

	defaults, ok, err := cfg.Store.Defaults()
	if err != nil {
		return nil, err
	}
	if !ok {
		defaults = conversation.Settings{
			Instructions: conversation.DefaultInstructions,
			Temperature:  conversation.DefaultTemperature,
			ToolsEnabled: true,
		}
	}

	m := &Manager{
		log:           cfg.Logger,
		provider:      cfg.Provider,
		store:         cfg.Store,
		titles:        NewTitleGenerator(cfg.Provider, cfg.Logger),
		allTools:      cfg.Tools,
		conversations: convs,
		busy:          make(map[uuid.UUID]bool),
		bindings:      make(map[uuid.UUID]provider.Session),
		turns:         make(map[uuid.UUID]*turnHandle),
		defaults:      defaults,
	}

	// Timestamps must keep increasing across restarts.
	for _, c := range convs {
		for i := range c.Messages {
			if c.Messages[i].Timestamp.After(m.lastStamp) {
				m.lastStamp = c.Messages[i].Timestamp
			}
		}
	}

	if lastActive, ok, _ := cfg.Store.LastActive(); ok {
		for _, c := range convs {
			if c.ID == lastActive {
				m.activeID = lastActive
				break
			}
		}
	}

	// Events must reach the consumer in publish order; without ack
	// blocking the gochannel hands each message to its own goroutine and
	// a turn's terminal event can overtake its updates.
	m.bus = gochannel.NewGoChannel(
		gochannel.Config{BlockPublishUntilSubscriberAck: true},
		watermill.NopLogger{},
	)
	ctx, cancel := context.WithCancel(context.Background())
	m.consumerCancel = cancel
	messages, err := m.bus.Subscribe(ctx, turnTopic)
	if err != nil {
		cancel()
		m.bus.Close()
		return nil, errors.Wrap(err, "subscribing to turn events")
	}
	m.consumerDone = make(chan struct{})
	go m.consume(messages)

	return m, nil
}

// Close stops the consumer and cancels in-flight turns.
func (m *Manager) Close() error {
	m.mu.Lock()
	for _, t := range m.turns {
		t.cancel()
	}
	m.turns = make(map[uuid.UUID]*turnHandle)
	m.mu.Unlock()

	m.consumerCancel()
	err := m.bus.Close()
	<-m.consumerDone
	return err
}

// ActiveID returns the active conversation id, or uuid.Nil.
func (m *Manager) ActiveID() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// Active returns the active conversation (persisted or draft), or nil.
func (m *Manager) Active() *conversation.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findLocked(m.activeID)
}

// Conversations returns the persisted list, most recent first. The draft
// is never in it.
func (m *Manager) Conversations() []*conversation.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*conversation.Conversation, len(m.conversations))
	copy(out, m.conversations)
	return out
}

// Draft returns the current draft conversation, or nil.
func (m *Manager) Draft() *conversation.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.draft
}

func (m *Manager) Input() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.input
}

func (m *Manager) SetInput(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.input = text
}

// EditingID returns the id of the message being edited, or uuid.Nil.
func (m *Manager) EditingID() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.editingID
}

// Busy reports whether a turn is in flight for the conversation.
func (m *Manager) Busy(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy[id]
}

// SelectConversation makes a persisted conversation active and clears any
// draft. An unknown id is a no-op by contract.
func (m *Manager) SelectConversation(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.conversations {
		if c.ID != id {
			continue
		}
		if m.editingID != uuid.Nil && m.editingConv != id {
			m.cancelEditingLocked()
		}
		m.draft = nil
		m.activeID = id
		m.ensureBindingLocked(c)
		if err := m.store.SaveLastActive(id); err != nil {
			m.log.Warn().Err(err).Msg("persisting last active conversation")
		}
		return
	}
}

// NewDraft creates a draft conversation from the current defaults and
// makes it active. It replaces any prior draft and stays out of the
// persisted list until its first message is sent.
func (m *Manager) NewDraft() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.editingID != uuid.Nil {
		m.cancelEditingLocked()
	}
	if m.draft != nil {
		delete(m.bindings, m.draft.ID)
	}
	conv := conversation.New("New Conversation", m.defaults)
	m.draft = conv
	m.activeID = conv.ID
	m.ensureBindingLocked(conv)
	return conv.ID
}

// DeleteConversation removes a conversation. Deleting the draft discards
// it; deleting the last persisted conversation is a no-op so the list
// never goes empty once populated.
func (m *Manager) DeleteConversation(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.draft != nil && m.draft.ID == id {
		if m.editingConv == id {
			m.discardEditLocked()
		}
		m.draft = nil
		m.dropConversationLocked(id)
		if m.activeID == id {
			m.activeID = uuid.Nil
		}
		return
	}

	idx := -1
	for i, c := range m.conversations {
		if c.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}
	if len(m.conversations) == 1 {
		return
	}

	// A pending edit either dies with its conversation or is restored
	// before the deletion persists the list.
	if m.editingID != uuid.Nil {
		if m.editingConv == id {
			m.discardEditLocked()
		} else {
			m.cancelEditingLocked()
		}
	}

	m.conversations = append(m.conversations[:idx], m.conversations[idx+1:]...)
	m.dropConversationLocked(id)

	if m.activeID == id {
		m.activeID = m.conversations[0].ID
		if err := m.store.SaveLastActive(m.activeID); err != nil {
			m.log.Warn().Err(err).Msg("persisting last active conversation")
		}
	}
	m.persistLocked()
}

// dropConversationLocked releases per-conversation resources.
func (m *Manager) dropConversationLocked(id uuid.UUID) {
	delete(m.bindings, id)
	delete(m.busy, id)
	if t := m.turns[id]; t != nil {
		t.cancel()
		delete(m.turns, id)
	}
}

// UpdateSettings writes new settings onto the active conversation,
// rebuilds its binding and stores the values as defaults for future
// drafts. An in-flight turn keeps its old binding; only future turns see
// the change.
func (m *Manager) UpdateSettings(instructions string, temperature float64, toolsEnabled bool, enabledTools map[string]bool) error {
	if math.IsNaN(temperature) || temperature < 0 || temperature > 2 {
		return ErrInvalidTemperature
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	conv := m.findLocked(m.activeID)
	if conv == nil {
		return ErrNoActiveConversation
	}

	conv.Settings = conversation.Settings{
		Instructions: instructions,
		Temperature:  temperature,
		ToolsEnabled: toolsEnabled,
		EnabledTools: enabledTools,
	}
	m.rebuildBindingLocked(conv, len(conv.Messages))

	m.defaults = conv.Settings
	if err := m.store.SaveDefaults(m.defaults); err != nil {
		m.log.Warn().Err(err).Msg("persisting default settings")
	}
	m.persistLocked()
	return nil
}

// SendMessage sends the input buffer as a user message on the active
// conversation and starts a streaming turn. Returns before the turn
// completes.
func (m *Manager) SendMessage() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	text := strings.TrimSpace(m.input)
	if text == "" {
		return ErrEmptyInput
	}
	conv := m.findLocked(m.activeID)
	if conv == nil {
		return ErrNoActiveConversation
	}

	conv.Messages = append(conv.Messages, conversation.NewUserMessage(text, m.nextStampLocked()))

	if conv.UserMessageCount() == 1 {
		conv.Title = conversation.FallbackTitle(text)
		m.spawnTitleLocked(conv.ID, text)
	}

	if m.draft != nil && m.draft.ID == conv.ID {
		m.conversations = append([]*conversation.Conversation{conv}, m.conversations...)
		m.draft = nil
		if err := m.store.SaveLastActive(conv.ID); err != nil {
			m.log.Warn().Err(err).Msg("persisting last active conversation")
		}
	}

	conv.Messages = append(conv.Messages, conversation.NewAssistantPlaceholder(m.nextStampLocked()))

	if m.editingID != uuid.Nil && m.editingConv == conv.ID {
		// Edit confirmed: the hidden snapshot is gone for good and the
		// binding context must reflect the truncated history.
		m.editStash = nil
		m.editingID = uuid.Nil
		m.editingConv = uuid.Nil
		m.rebuildBindingLocked(conv, len(conv.Messages)-2)
	}

	m.input = ""
	m.busy[conv.ID] = true
	m.startTurnLocked(conv, text)
	m.persistLocked()
	return nil
}

// EditMessage copies a user message into the input buffer and truncates
// the conversation at that point. The removed tail is stashed so
// CancelEditing can restore it; nothing persists until the edit is
// confirmed by SendMessage or aborted.
func (m *Manager) EditMessage(messageID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv := m.findLocked(m.activeID)
	if conv == nil {
		return ErrNoActiveConversation
	}
	idx := conv.IndexOf(messageID)
	if idx == -1 {
		return ErrUnknownMessage
	}
	if !conv.Messages[idx].IsUser {
		return ErrNotUserMessage
	}

	m.input = conv.Messages[idx].Content
	m.editingID = messageID
	m.editingConv = conv.ID
	m.editStash = append([]conversation.Message(nil), conv.Messages[idx:]...)
	conv.Messages = conv.Messages[:idx:idx]
	m.rebuildBindingLocked(conv, idx)
	return nil
}

// CancelEditing restores the stashed messages and full-history binding.
func (m *Manager) CancelEditing() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelEditingLocked()
}

// cancelEditingLocked restores the stashed tail onto the conversation the
// edit came from, never whichever one happens to be active.
func (m *Manager) cancelEditingLocked() {
	if m.editingID == uuid.Nil {
		return
	}
	if conv := m.findLocked(m.editingConv); conv != nil {
		conv.Messages = append(conv.Messages, m.editStash...)
		m.rebuildBindingLocked(conv, len(conv.Messages))
	}
	m.discardEditLocked()
	m.persistLocked()
}

// discardEditLocked clears edit state without restoring the stash.
func (m *Manager) discardEditLocked() {
	m.editStash = nil
	m.editingID = uuid.Nil
	m.editingConv = uuid.Nil
	m.input = ""
}

// RetryMessage replaces a failed assistant message with a fresh
// placeholder and re-runs the turn using the preceding user message. The
// user message is reused, not re-added.
func (m *Manager) RetryMessage(messageID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv := m.findLocked(m.activeID)
	if conv == nil {
		return ErrNoActiveConversation
	}
	idx := conv.IndexOf(messageID)
	if idx == -1 {
		return ErrUnknownMessage
	}
	msg := conv.Messages[idx]
	if msg.IsUser || !msg.Failed() {
		return ErrNotFailedMessage
	}

	userIdx := -1
	for i := idx - 1; i >= 0; i-- {
		if conv.Messages[i].IsUser {
			userIdx = i
			break
		}
	}
	if userIdx == -1 {
		return ErrUnknownMessage
	}
	prompt := conv.Messages[userIdx].Content

	conv.Messages = append(conv.Messages[:idx], conv.Messages[idx+1:]...)
	conv.Messages = append(conv.Messages, conversation.NewAssistantPlaceholder(m.nextStampLocked()))

	// The reused user turn travels as the prompt, so the binding context
	// stops strictly before it.
	m.rebuildBindingLocked(conv, userIdx)

	m.busy[conv.ID] = true
	m.startTurnLocked(conv, prompt)
	m.persistLocked()
	return nil
}

// WaitIdle blocks until every in-flight background task has settled and
// its mutations are applied.
func (m *Manager) WaitIdle(ctx context.Context) error {
	m.mu.Lock()
	if m.inflight == 0 {
		m.mu.Unlock()
		return nil
	}
	ch := m.idleCh
	m.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}

// findLocked resolves an id against the persisted list and the draft.
func (m *Manager) findLocked(id uuid.UUID) *conversation.Conversation {
	if id == uuid.Nil {
		return nil
	}
	if m.draft != nil && m.draft.ID == id {
		return m.draft
	}
	for _, c := range m.conversations {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// nextStampLocked returns a timestamp strictly after every one handed out
// before, even when the clock does not move between calls.
func (m *Manager) nextStampLocked() time.Time {
	now := time.Now()
	if !now.After(m.lastStamp) {
		now = m.lastStamp.Add(time.Nanosecond)
	}
	m.lastStamp = now
	return now
}

// ensureBindingLocked creates the conversation's session binding if it is
// missing, baking in the full current history.
func (m *Manager) ensureBindingLocked(conv *conversation.Conversation) provider.Session {
	if s, ok := m.bindings[conv.ID]; ok {
		return s
	}
	return m.rebuildBindingLocked(conv, len(conv.Messages))
}

// rebuildBindingLocked discards any existing binding and creates a fresh
// one whose context is the messages before upTo.
func (m *Manager) rebuildBindingLocked(conv *conversation.Conversation, upTo int) provider.Session {
	if upTo > len(conv.Messages) {
		upTo = len(conv.Messages)
	}
	enabled := tools.Filter(m.allTools, conv.Settings.ToolAllowed)
	session := m.provider.NewSession(provider.SessionConfig{
		Instructions: conv.Instructions,
		History:      historyMessages(conv.Messages[:upTo]),
		Tools:        enabled,
	})
	m.bindings[conv.ID] = session
	return session
}

// historyMessages converts settled messages into provider history. Failed
// and still-empty messages carry no model-visible content.
func historyMessages(msgs []conversation.Message) []provider.HistoryMessage {
	var out []provider.HistoryMessage
	for _, msg := range msgs {
		if msg.Failed() || strings.TrimSpace(msg.Content) == "" {
			continue
		}
		role := provider.RoleAssistant
		if msg.IsUser {
			role = provider.RoleUser
		}
		out = append(out, provider.HistoryMessage{Role: role, Content: msg.Content})
	}
	return out
}

func (m *Manager) persistLocked() {
	if err := m.store.Save(m.conversations); err != nil {
		m.log.Error().Err(err).Msg("persisting conversations")
	}
}

func (m *Manager) beginTaskLocked() {
	m.inflight++
	if m.idleCh == nil {
		m.idleCh = make(chan struct{})
	}
}

func (m *Manager) endTaskLocked() {
	m.inflight--
	if m.inflight == 0 && m.idleCh != nil {
		close(m.idleCh)
		m.idleCh = nil
	}
}
