package provider

import (
	"context"
	"sync"
)

// transcript is the exchange history a session accumulates across turns.
// Guarded because turns run on background goroutines.
type transcript struct {
	mu      sync.Mutex
	entries []HistoryMessage
}

func (t *transcript) snapshot() []HistoryMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]HistoryMessage, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *transcript) append(msgs ...HistoryMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, msgs...)
}

// baseMessages assembles the model-facing context for a turn: instructions,
// rehydrated history from config, then the session's own exchanges.
func baseMessages(cfg SessionConfig, hist *transcript) []HistoryMessage {
	var out []HistoryMessage
	if cfg.Instructions != "" {
		out = append(out, HistoryMessage{Role: RoleSystem, Content: cfg.Instructions})
	}
	out = append(out, cfg.History...)
	out = append(out, hist.snapshot()...)
	return out
}

// respondViaStream implements the single-shot call on top of streaming,
// keeping the longest text seen in case the final event is truncated.
func respondViaStream(ctx context.Context, s Session, prompt string, temperature float64) (string, error) {
	var final string
	err := s.Stream(ctx, prompt, temperature, func(ev StreamEvent) error {
		if len(ev.Text) > len(final) {
			final = ev.Text
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return final, nil
}
