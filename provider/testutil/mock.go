// Package testutil provides a scriptable in-memory provider for tests.
package testutil

import (
	"context"
	"sync"

	"glint/provider"
)

// MockProvider implements provider.Provider with swappable function fields.
// Created session configs are recorded so tests can assert what context a
// session was built with.
type MockProvider struct {
	ProviderName       string
	AvailabilityResult provider.Availability

	// StreamFunc drives Stream on every session; nil streams a single
	// event with canned text. RespondFunc drives Respond; nil falls back
	// to collecting StreamFunc output.
	StreamFunc  func(ctx context.Context, cfg provider.SessionConfig, prompt string, temperature float64, cb provider.StreamCallback) error
	RespondFunc func(ctx context.Context, cfg provider.SessionConfig, prompt string, temperature float64) (string, error)

	mu       sync.Mutex
	sessions []provider.SessionConfig
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		ProviderName:       "mock",
		AvailabilityResult: provider.Availability{Available: true},
	}
}

func (m *MockProvider) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

func (m *MockProvider) Availability(context.Context) provider.Availability {
	return m.AvailabilityResult
}

func (m *MockProvider) NewSession(cfg provider.SessionConfig) provider.Session {
	m.mu.Lock()
	m.sessions = append(m.sessions, cfg)
	m.mu.Unlock()
	return &mockSession{provider: m, cfg: cfg}
}

// Sessions returns the configs of every session created so far.
func (m *MockProvider) Sessions() []provider.SessionConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]provider.SessionConfig, len(m.sessions))
	copy(out, m.sessions)
	return out
}

// LastSession returns the most recently created session config.
func (m *MockProvider) LastSession() (provider.SessionConfig, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sessions) == 0 {
		return provider.SessionConfig{}, false
	}
	return m.sessions[len(m.sessions)-1], true
}

type mockSession struct {
	provider *MockProvider
	cfg      provider.SessionConfig
}

func (s *mockSession) Respond(ctx context.Context, prompt string, temperature float64) (string, error) {
	if s.provider.RespondFunc != nil {
		return s.provider.RespondFunc(ctx, s.cfg, prompt, temperature)
	}
	var final string
	err := s.Stream(ctx, prompt, temperature, func(ev provider.StreamEvent) error {
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

func (s *mockSession) Stream(ctx context.Context, prompt string, temperature float64, cb provider.StreamCallback) error {
	if s.provider.StreamFunc != nil {
		return s.provider.StreamFunc(ctx, s.cfg, prompt, temperature, cb)
	}
	return cb(provider.StreamEvent{Text: "mock response to: " + prompt})
}
