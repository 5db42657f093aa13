package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"glint/conversation"
	"glint/tools"
)

// maxToolRounds bounds the request/tool-result loop within one turn so a
// model stuck requesting tools cannot spin forever.
const maxToolRounds = 5

// toolRequest is one tool invocation the model asked for during a round.
type toolRequest struct {
	Name string
	Args map[string]any
}

// turnAccumulator collects the cumulative state of one streaming turn and
// pushes snapshot events through the callback. All three provider
// implementations share it so turn semantics stay identical.
type turnAccumulator struct {
	cb      StreamCallback
	text    string
	calls   []conversation.ToolCall
	handles map[string]tools.Handle
}

func newTurnAccumulator(cb StreamCallback, handles []tools.Handle) *turnAccumulator {
	byName := make(map[string]tools.Handle, len(handles))
	for _, h := range handles {
		byName[h.Name] = h
	}
	return &turnAccumulator{cb: cb, handles: byName}
}

func (a *turnAccumulator) emit() error {
	if a.cb == nil {
		return nil
	}
	snapshot := make([]conversation.ToolCall, len(a.calls))
	copy(snapshot, a.calls)
	return a.cb(StreamEvent{Text: a.text, ToolCalls: snapshot})
}

// appendText grows the cumulative text and emits a snapshot. Empty deltas
// are dropped without an event.
func (a *turnAccumulator) appendText(delta string) error {
	if delta == "" {
		return nil
	}
	a.text += delta
	return a.emit()
}

// runTools executes the round's requested tools in order, updating records
// through queued, running and a terminal state with an event at each step.
// The returned transcript entries carry the results back to the model.
func (a *turnAccumulator) runTools(ctx context.Context, requests []toolRequest) ([]HistoryMessage, error) {
	var results []HistoryMessage
	for _, req := range requests {
		idx := len(a.calls)
		record := conversation.ToolCall{
			Name:      req.Name,
			Arguments: encodeArgs(req.Args),
			Status:    conversation.ToolCallQueued,
		}
		handle, known := a.handles[req.Name]
		record.Description = handle.Description
		a.calls = append(a.calls, record)
		if err := a.emit(); err != nil {
			return nil, err
		}

		if !known || handle.Invoke == nil {
			a.calls[idx].Status = conversation.ToolCallFailed
			a.calls[idx].Error = fmt.Sprintf("unknown tool %q", req.Name)
			if err := a.emit(); err != nil {
				return nil, err
			}
			results = append(results, toolResultMessage(req.Name, a.calls[idx].Error))
			continue
		}

		a.calls[idx].Status = conversation.ToolCallRunning
		if err := a.emit(); err != nil {
			return nil, err
		}

		out, err := handle.Invoke(ctx, req.Args)
		if err != nil {
			a.calls[idx].Status = conversation.ToolCallFailed
			a.calls[idx].Error = err.Error()
			results = append(results, toolResultMessage(req.Name, "error: "+err.Error()))
		} else {
			a.calls[idx].Status = conversation.ToolCallDone
			a.calls[idx].Result = out
			results = append(results, toolResultMessage(req.Name, out))
		}
		if err := a.emit(); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func toolResultMessage(name, content string) HistoryMessage {
	return HistoryMessage{
		Role:    RoleTool,
		Content: fmt.Sprintf("Result of tool %s:\n%s", name, content),
	}
}

func encodeArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}
