package conversation

// ErrorKind classifies a failed response turn for display and retry policy.
type ErrorKind string

const (
	ErrGuardrailViolation     ErrorKind = "guardrail_violation"
	ErrContextWindowExceeded  ErrorKind = "context_window_exceeded"
	ErrUnsupportedFeature     ErrorKind = "unsupported_feature"
	ErrResponseDecodingFailed ErrorKind = "response_decoding_failure"
	ErrProviderUnavailable    ErrorKind = "provider_unavailable"
	ErrUnknown                ErrorKind = "unknown"
)

// Recoverable reports whether a retry is worth offering for this kind.
// Policy rejections, context overflow and missing capabilities will fail
// the same way again; transport and decoding faults may not.
func (k ErrorKind) Recoverable() bool {
	switch k {
	case ErrResponseDecodingFailed, ErrProviderUnavailable, ErrUnknown:
		return true
	}
	return false
}

// MessageError is the structured error written onto a failed assistant
// message. It is user-facing state, not a Go error value.
type MessageError struct {
	Kind   ErrorKind `json:"kind"`
	Detail string    `json:"detail,omitempty"`
}

func (e MessageError) Recoverable() bool {
	return e.Kind.Recoverable()
}
