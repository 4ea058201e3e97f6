package stranger

import (
	"net/http"
	"sync"
)

// Status is the lifecycle state of the single session a Client manages.
type Status int

const (
	Disconnected Status = iota
	Connecting
	Waiting
	Connected
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Waiting:
		return "waiting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// active reports whether the remote service knows about the session.
func (s Status) active() bool {
	return s == Waiting || s == Connected
}

// SessionInfo is returned by a successful Connect.
type SessionInfo struct {
	ID     string
	Server string
}

// Event is one decoded entry of a long-poll response.
type Event struct {
	Tag    string
	Params []any
}

// Handlers is the set of callbacks the client invokes as the session
// progresses. Every field is optional.
type Handlers struct {
	Waiting           func(c *Client)
	Connected         func(c *Client)
	Message           func(c *Client, text string)
	Typing            func(c *Client)
	StoppedTyping     func(c *Client)
	Disconnected      func(c *Client)
	ChallengeRequired func(c *Client, token string, image *ImageLookup)
	ChallengeRejected func(c *Client, token string, image *ImageLookup)

	// Event, when set, sees every decoded event before it is dispatched.
	Event func(c *Client, ev Event)
}

// Options configures a Client.
type Options struct {
	// Server is the base URL every relative request path is resolved against.
	Server string

	// HTTPClient defaults to a client without a timeout; long polls are
	// released by Disconnect rather than by a deadline.
	HTTPClient *http.Client

	// UserAgents is the pool a fresh client identity is drawn from on every
	// Connect. Defaults to DefaultUserAgents.
	UserAgents []string

	// Resolver looks up challenge images. Defaults to a RecaptchaResolver
	// sharing the session transport.
	Resolver ImageResolver

	// ErrorSink receives failures nobody is waiting on: poll errors,
	// challenge lookup errors and callback panics. Defaults to logging.
	ErrorSink func(err error)
}

// ImageLookup is the in-flight resolution of a challenge image reference.
type ImageLookup struct {
	Token string

	done chan struct{}
	once sync.Once
	ref  string
	err  error
}
