package provider

import (
	"context"
	"encoding/json"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/pkg/errors"

	"glint/tools"
)

// OpenAI serves sessions against the OpenAI chat completions API.
type OpenAI struct {
	client openai.Client
	model  string
}

func NewOpenAI(baseURL, apiKey, model string) (*OpenAI, error) {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}

	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)
	return &OpenAI{client: client, model: model}, nil
}

func (p *OpenAI) Name() string {
	return "openai"
}

func (p *OpenAI) Availability(ctx context.Context) Availability {
	if _, err := p.client.Models.List(ctx); err != nil {
		return Availability{
			Available: false,
			Reason:    ReasonOther,
			Detail:    "OpenAI API unreachable: " + err.Error(),
		}
	}
	return Availability{Available: true}
}

func (p *OpenAI) NewSession(cfg SessionConfig) Session {
	return &openaiSession{provider: p, cfg: cfg}
}

type openaiSession struct {
	provider *OpenAI
	cfg      SessionConfig
	hist     transcript
}

func (s *openaiSession) Respond(ctx context.Context, prompt string, temperature float64) (string, error) {
	return respondViaStream(ctx, s, prompt, temperature)
}

func (s *openaiSession) Stream(ctx context.Context, prompt string, temperature float64, cb StreamCallback) error {
	acc := newTurnAccumulator(cb, s.cfg.Tools)
	working := baseMessages(s.cfg, &s.hist)
	working = append(working, HistoryMessage{Role: RoleUser, Content: prompt})
	turn := []HistoryMessage{{Role: RoleUser, Content: prompt}}

	for round := 0; round < maxToolRounds; round++ {
		requests, err := s.chatRound(ctx, working, temperature, acc)
		if err != nil {
			return WrapError("openai stream", err)
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

func (s *openaiSession) chatRound(ctx context.Context, messages []HistoryMessage, temperature float64, acc *turnAccumulator) ([]toolRequest, error) {
	params := openai.ChatCompletionNewParams{
		Messages:    toOpenAIMessages(messages),
		Model:       openai.ChatModel(s.provider.model),
		Temperature: openai.Float(temperature),
	}
	if openaiTools := toOpenAITools(s.cfg.Tools); len(openaiTools) > 0 {
		params.Tools = openaiTools
	}

	stream := s.provider.client.Chat.Completions.NewStreaming(ctx, params)
	completion := openai.ChatCompletionAccumulator{}

	var requests []toolRequest
	for stream.Next() {
		chunk := stream.Current()
		completion.AddChunk(chunk)

		if tool, ok := completion.JustFinishedToolCall(); ok {
			requests = append(requests, toolRequest{
				Name: tool.Name,
				Args: parseToolArguments(tool.Arguments),
			})
		}

		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			if err := acc.appendText(chunk.Choices[0].Delta.Content); err != nil {
				return nil, err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return requests, nil
}

func toOpenAIMessages(messages []HistoryMessage) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			result[i] = openai.SystemMessage(msg.Content)
		case RoleAssistant:
			result[i] = openai.AssistantMessage(msg.Content)
		default:
			// Tool results ride along as user messages; the transcript
			// labels them so the model can attribute them.
			result[i] = openai.UserMessage(msg.Content)
		}
	}
	return result
}

func toOpenAITools(handles []tools.Handle) []openai.ChatCompletionToolUnionParam {
	if len(handles) == 0 {
		return nil
	}
	result := make([]openai.ChatCompletionToolUnionParam, len(handles))
	for i, h := range handles {
		params := openai.FunctionParameters{"type": "object"}
		if len(h.Schema) > 0 {
			var schema map[string]any
			if err := json.Unmarshal(h.Schema, &schema); err == nil {
				params = openai.FunctionParameters(schema)
			}
		}
		result[i] = openai.ChatCompletionFunctionTool(
			openai.FunctionDefinitionParam{
				Name:        h.Name,
				Description: openai.String(h.Description),
				Parameters:  params,
			},
		)
	}
	return result
}

func parseToolArguments(argsJSON string) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return map[string]any{}
	}
	return args
}
