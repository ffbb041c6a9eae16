package oracle

import "fmt"

// ErrorKind classifies oracle failures so callers can decide whether a
// retry or a credential fix is warranted.
type ErrorKind string

const (
	KindAuth      ErrorKind = "auth"
	KindRateLimit ErrorKind = "rate_limit"
	KindNetwork   ErrorKind = "network"
	KindMalformed ErrorKind = "malformed"
	KindUnknown   ErrorKind = "unknown"
)

// Error is the categorized failure type returned by oracle backends.
type Error struct {
	Kind       ErrorKind
	Message    string
	RetryAfter int // seconds; 0 when the backend gave no hint
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("oracle: %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("oracle: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code from a backend to an ErrorKind.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 429:
		return KindRateLimit
	case status >= 500:
		return KindNetwork
	default:
		return KindUnknown
	}
}
