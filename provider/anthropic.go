package provider

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/pkg/errors"

	"glint/tools"
)

const anthropicMaxTokens = 4096

// Anthropic serves sessions against the Anthropic messages API.
type Anthropic struct {
	client *anthropic.Client
	model  anthropic.Model
}

func NewAnthropic(baseURL, apiKey, model string) (*Anthropic, error) {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	anthropicModel := anthropic.ModelClaudeSonnet4_5_20250929
	if model != "" {
		anthropicModel = anthropic.Model(model)
	}

	client := anthropic.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)
	return &Anthropic{client: &client, model: anthropicModel}, nil
}

func (p *Anthropic) Name() string {
	return "anthropic"
}

// Availability makes a minimal one-token request; there is no dedicated
// health endpoint.
func (p *Anthropic) Availability(ctx context.Context) Availability {
	_, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err != nil {
		return Availability{
			Available: false,
			Reason:    ReasonOther,
			Detail:    "Anthropic API unreachable: " + err.Error(),
		}
	}
	return Availability{Available: true}
}

func (p *Anthropic) NewSession(cfg SessionConfig) Session {
	return &anthropicSession{provider: p, cfg: cfg}
}

type anthropicSession struct {
	provider *Anthropic
	cfg      SessionConfig
	hist     transcript
}

func (s *anthropicSession) Respond(ctx context.Context, prompt string, temperature float64) (string, error) {
	return respondViaStream(ctx, s, prompt, temperature)
}

func (s *anthropicSession) Stream(ctx context.Context, prompt string, temperature float64, cb StreamCallback) error {
	acc := newTurnAccumulator(cb, s.cfg.Tools)
	working := baseMessages(s.cfg, &s.hist)
	working = append(working, HistoryMessage{Role: RoleUser, Content: prompt})
	turn := []HistoryMessage{{Role: RoleUser, Content: prompt}}

	for round := 0; round < maxToolRounds; round++ {
		requests, err := s.chatRound(ctx, working, temperature, acc)
		if err != nil {
			return WrapError("anthropic stream", err)
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

func (s *anthropicSession) chatRound(ctx context.Context, messages []HistoryMessage, temperature float64, acc *turnAccumulator) ([]toolRequest, error) {
	anthropicMessages, systemBlocks := toAnthropicMessages(messages)

	params := anthropic.MessageNewParams{
		Model:       s.provider.model,
		Messages:    anthropicMessages,
		MaxTokens:   anthropicMaxTokens,
		Temperature: anthropic.Float(temperature),
	}
	if len(systemBlocks) > 0 {
		params.System = systemBlocks
	}
	if anthropicTools := toAnthropicTools(s.cfg.Tools); len(anthropicTools) > 0 {
		params.Tools = anthropicTools
	}

	stream := s.provider.client.Messages.NewStreaming(ctx, params)
	msg := anthropic.Message{}

	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			return nil, err
		}

		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch deltaVariant := eventVariant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if err := acc.appendText(deltaVariant.Text); err != nil {
					return nil, err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}

	// Tool use blocks arrive as content, not as stream deltas; pick them
	// out of the accumulated message once the round settles.
	var requests []toolRequest
	for _, block := range msg.Content {
		if toolUse, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
			var args map[string]any
			if err := json.Unmarshal(toolUse.Input, &args); err != nil {
				continue
			}
			requests = append(requests, toolRequest{Name: toolUse.Name, Args: args})
		}
	}
	return requests, nil
}

// toAnthropicMessages splits the transcript into the messages array and the
// system blocks the API wants separately.
func toAnthropicMessages(messages []HistoryMessage) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var systemBlocks []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: msg.Content})
		case RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return out, systemBlocks
}

func toAnthropicTools(handles []tools.Handle) []anthropic.ToolUnionParam {
	if len(handles) == 0 {
		return nil
	}
	result := make([]anthropic.ToolUnionParam, len(handles))
	for i, h := range handles {
		inputSchema := anthropic.ToolInputSchemaParam{}
		if len(h.Schema) > 0 {
			var schema struct {
				Properties any      `json:"properties"`
				Required   []string `json:"required"`
			}
			if err := json.Unmarshal(h.Schema, &schema); err == nil {
				inputSchema.Properties = schema.Properties
				inputSchema.Required = schema.Required
			}
		}
		result[i] = anthropic.ToolUnionParamOfTool(inputSchema, h.Name)
		if h.Description != "" {
			result[i].OfTool.Description = anthropic.String(h.Description)
		}
	}
	return result
}
