package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/pkg/errors"

	"glint/tools"
)

// Ollama serves sessions against a local Ollama server.
type Ollama struct {
	client *api.Client
	model  string
}

func NewOllama(baseURL, model string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.1:latest"
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid Ollama URL")
	}

	return &Ollama{
		client: api.NewClient(parsedURL, http.DefaultClient),
		model:  model,
	}, nil
}

func (p *Ollama) Name() string {
	return "ollama"
}

// Availability pings the server and checks the configured model is pulled.
func (p *Ollama) Availability(ctx context.Context) Availability {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := p.client.List(ctx)
	if err != nil {
		return Availability{
			Available: false,
			Reason:    ReasonNotEnabled,
			Detail:    "Ollama server unreachable: " + err.Error(),
		}
	}
	for _, m := range resp.Models {
		if m.Name == p.model || strings.TrimSuffix(m.Name, ":latest") == p.model {
			return Availability{Available: true}
		}
	}
	return Availability{
		Available: false,
		Reason:    ReasonModelDownloading,
		Detail:    "model " + p.model + " is not pulled",
	}
}

func (p *Ollama) NewSession(cfg SessionConfig) Session {
	return &ollamaSession{provider: p, cfg: cfg}
}

type ollamaSession struct {
	provider *Ollama
	cfg      SessionConfig
	hist     transcript
}

func (s *ollamaSession) Respond(ctx context.Context, prompt string, temperature float64) (string, error) {
	return respondViaStream(ctx, s, prompt, temperature)
}

func (s *ollamaSession) Stream(ctx context.Context, prompt string, temperature float64, cb StreamCallback) error {
	acc := newTurnAccumulator(cb, s.cfg.Tools)
	working := baseMessages(s.cfg, &s.hist)
	working = append(working, HistoryMessage{Role: RoleUser, Content: prompt})
	turn := []HistoryMessage{{Role: RoleUser, Content: prompt}}

	for round := 0; round < maxToolRounds; round++ {
		requests, err := s.chatRound(ctx, working, temperature, acc)
		if err != nil {
			return WrapError("ollama stream", err)
		}
		if len(requests) == 0 {
			break
		}
		results, err := acc.runTools(ctx, requests)
		if err != nil {
			return err
		}
		working = append(working, results...)
		turn = append(turn, results...)
	}

	turn = append(turn, HistoryMessage{Role: RoleAssistant, Content: acc.text})
	s.hist.append(turn...)
	return nil
}

// chatRound streams one model response, feeding text deltas into the
// accumulator and collecting any tool invocations the model requested.
func (s *ollamaSession) chatRound(ctx context.Context, messages []HistoryMessage, temperature float64, acc *turnAccumulator) ([]toolRequest, error) {
	req := &api.ChatRequest{
		Model:    s.provider.model,
		Messages: toOllamaMessages(messages),
		Tools:    toOllamaTools(s.cfg.Tools),
		Stream:   func(b bool) *bool { return &b }(true),
		Options: map[string]any{
			"temperature": temperature,
		},
	}

	var requests []toolRequest
	respFunc := func(resp api.ChatResponse) error {
		if err := acc.appendText(resp.Message.Content); err != nil {
			return err
		}
		for _, call := range resp.Message.ToolCalls {
			requests = append(requests, toolRequest{
				Name: call.Function.Name,
				Args: map[string]any(call.Function.Arguments),
			})
		}
		return nil
	}

	if err := s.provider.client.Chat(ctx, req, respFunc); err != nil {
		return nil, err
	}
	return requests, nil
}

func toOllamaMessages(messages []HistoryMessage) []api.Message {
	result := make([]api.Message, len(messages))
	for i, msg := range messages {
		role := string(msg.Role)
		if msg.Role == RoleTool {
			role = "tool"
		}
		result[i] = api.Message{Role: role, Content: msg.Content}
	}
	return result
}

// toOllamaTools converts handle schemas into Ollama tool definitions. The
// schemas are already JSON Schema objects, so they decode straight into the
// parameter struct.
func toOllamaTools(handles []tools.Handle) []api.Tool {
	if len(handles) == 0 {
		return nil
	}
	out := make([]api.Tool, 0, len(handles))
	for _, h := range handles {
		var params api.ToolFunctionParameters
		if len(h.Schema) > 0 {
			if err := json.Unmarshal(h.Schema, &params); err != nil {
				params = api.ToolFunctionParameters{Type: "object"}
			}
		}
		out = append(out, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        h.Name,
				Description: h.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
