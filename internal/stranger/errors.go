package stranger

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrAlreadyActive        = errors.New("session already active")
	ErrNotConnected         = errors.New("not connected to a stranger")
	ErrChallengeNotRequired = errors.New("no challenge pending")
	ErrSendFailed           = errors.New("could not send message")

	// ErrSkipped is returned for a queued command whose session ended
	// before the command was let through.
	ErrSkipped = errors.New("command skipped: session no longer active")
)

// TransportError is any failure of a request to the remote service,
// including cancellation by Disconnect.
type TransportError struct {
	Method     string
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Cancelled reports whether the request was aborted rather than failed.
func (e *TransportError) Cancelled() bool {
	return errors.Is(e.Err, context.Canceled)
}

// IsCancelled reports whether err stems from a cancelled request.
func IsCancelled(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Cancelled()
	}
	return errors.Is(err, context.Canceled)
}

// CallbackError wraps a panic recovered from a Handlers callback.
type CallbackError struct {
	Callback string
	Value    any
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("%s callback panicked: %v", e.Callback, e.Value)
}
