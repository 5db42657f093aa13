package provider

import (
	"context"
	"fmt"
	"strings"

	"glint/conversation"
)

// Error wraps a runtime fault with its classified kind so the chat layer
// can surface it without inspecting provider internals.
type Error struct {
	Kind conversation.ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WrapError classifies and wraps a raw provider fault. Nil stays nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if pe, ok := err.(*Error); ok {
		return pe
	}
	return &Error{Kind: Classify(err), Op: op, Err: err}
}

// Classify maps a raw provider error onto the user-facing taxonomy. The
// SDKs expose faults as opaque strings, so this matches on the phrases the
// runtimes actually emit.
func Classify(err error) conversation.ErrorKind {
	if err == nil {
		return conversation.ErrUnknown
	}
	if pe, ok := err.(*Error); ok {
		return pe.Kind
	}

	msg := strings.ToLower(err.Error())
	switch {
	case contains(msg, "guardrail", "content policy", "content_policy", "safety", "flagged"):
		return conversation.ErrGuardrailViolation
	case contains(msg, "context window", "context length", "context_length", "too many tokens", "maximum context", "prompt is too long"):
		return conversation.ErrContextWindowExceeded
	case contains(msg, "not supported", "unsupported", "does not support"):
		return conversation.ErrUnsupportedFeature
	case contains(msg, "decode", "unmarshal", "invalid character", "unexpected end of json", "malformed"):
		return conversation.ErrResponseDecodingFailed
	case err == context.DeadlineExceeded ||
		contains(msg, "connection refused", "no such host", "unavailable", "overloaded", "timeout", "deadline exceeded", "temporarily", "service is busy", "eof", "broken pipe"):
		return conversation.ErrProviderUnavailable
	default:
		return conversation.ErrUnknown
	}
}

func contains(msg string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(msg, n) {
			return true
		}
	}
	return false
}
