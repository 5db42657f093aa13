// Package tools defines the handle contract between the chat core and
// external tool providers. The core never calls tools directly; it passes
// enabled handles into provider sessions and the provider invokes them
// mid-generation.
package tools

import (
	"context"
	"encoding/json"
)

// Handle describes one named callable the model may invoke during a turn.
// Schema is a JSON Schema object for the arguments; Invoke receives the
// decoded arguments and returns the result text fed back to the model.
type Handle struct {
	Name        string
	Description string
	Schema      json.RawMessage
	Invoke      func(ctx context.Context, args map[string]any) (string, error)
}

// Filter returns the handles whose names pass the allow function.
func Filter(handles []Handle, allow func(name string) bool) []Handle {
	var out []Handle
	for _, h := range handles {
		if allow(h.Name) {
			out = append(out, h)
		}
	}
	return out
}

// Names returns the handle names in order.
func Names(handles []Handle) []string {
	names := make([]string, len(handles))
	for i, h := range handles {
		names[i] = h.Name
	}
	return names
}
