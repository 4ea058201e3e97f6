// Package stranger is a client for the anonymous chat service's HTTP
// long-poll protocol. A Client owns exactly one session at a time: it starts
// the session, keeps an event poll running for as long as the session is
// alive, serializes outbound commands and tears everything down on
// Disconnect.
package stranger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/bowerhall/chatbridge/internal/logger"
)

// DefaultServer is used when Options.Server is empty.
const DefaultServer = "http://front2.omegle.com/"

// sendOK is the body the service answers a successful send with.
const sendOK = "win"

const disconnectNoticeTimeout = 10 * time.Second

type Client struct {
	handlers   Handlers
	transport  *Transport
	resolver   ImageResolver
	errorSink  func(err error)
	server     string
	userAgents []string

	ledger     *Ledger
	serializer Serializer

	mu        sync.Mutex
	status    Status
	gen       uint64 // bumped on every Connect and Disconnect
	id        string
	base      string
	userAgent string
	challenge string
	image     string
}

func New(opts Options, handlers Handlers) *Client {
	server := opts.Server
	if server == "" {
		server = DefaultServer
	}

	c := &Client{
		handlers:   handlers,
		transport:  NewTransport(opts.HTTPClient),
		resolver:   opts.Resolver,
		errorSink:  opts.ErrorSink,
		server:     server,
		userAgents: opts.UserAgents,
		ledger:     NewLedger(),
	}

	if c.resolver == nil {
		c.resolver = NewRecaptchaResolver(c.transport)
	}

	return c
}

func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SessionID returns the id assigned by the service, or "" when no session
// has been acknowledged.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// PendingChallenge returns the unresolved challenge token and, once looked
// up, its image reference.
func (c *Client) PendingChallenge() (token, image string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.challenge, c.image
}

// InFlight returns the number of requests Disconnect would cancel.
func (c *Client) InFlight() int {
	return c.ledger.Len()
}

// Connect starts a new session and the event poll that keeps it alive. If the
// start request fails the client stays in Connecting until Disconnect.
func (c *Client) Connect(ctx context.Context) (SessionInfo, error) {
	c.mu.Lock()
	if c.status != Disconnected {
		c.mu.Unlock()
		return SessionInfo{}, ErrAlreadyActive
	}

	c.gen++
	gen := c.gen
	c.userAgent = pickUserAgent(c.userAgents)
	c.base = c.server
	c.status = Connecting
	base := c.base
	c.mu.Unlock()

	logger.Debug("starting session", "server", base)

	body, err := c.fetch(ctx, gen, "start?rcs=1&spid=&randid="+randomID(), nil)
	if err != nil {
		return SessionInfo{}, err
	}

	var id string
	if err := json.Unmarshal(body, &id); err != nil {
		return SessionInfo{}, fmt.Errorf("decode session id: %w", err)
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return SessionInfo{}, &TransportError{Method: http.MethodGet, URL: base + "start", Err: context.Canceled}
	}
	c.id = id
	c.status = Waiting
	c.mu.Unlock()

	logger.Info("session started", "session", id, "server", base)

	go c.poll(gen)

	return SessionInfo{ID: id, Server: base}, nil
}

// Disconnect ends the current session, if any. In-flight requests are
// cancelled and the Disconnected callback runs exactly once per session.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.teardown(c.gen)
}

// Say sends a message to the stranger and waits for the service to accept it.
func (c *Client) Say(ctx context.Context, message string) error {
	c.mu.Lock()
	if c.status != Connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	gen, id := c.gen, c.id
	c.mu.Unlock()

	cmd := c.command(gen, connectedOnly, "send", url.Values{"id": {id}, "msg": {message}})

	body, err := cmd.Wait(ctx)
	if err != nil {
		return err
	}
	if body != sendOK {
		return fmt.Errorf("%w: %q", ErrSendFailed, body)
	}
	return nil
}

// Typing tells the stranger we are typing. The command is queued behind any
// earlier command; its outcome is only logged.
func (c *Client) Typing() error {
	return c.notify("typing")
}

// StoppedTyping tells the stranger we stopped typing.
func (c *Client) StoppedTyping() error {
	return c.notify("stoppedtyping")
}

// SolveChallenge submits a solution for the pending challenge. The pending
// challenge is cleared whether or not the submission succeeds.
func (c *Client) SolveChallenge(ctx context.Context, solution string) error {
	c.mu.Lock()
	if c.challenge == "" {
		c.mu.Unlock()
		return ErrChallengeNotRequired
	}
	gen, id, token := c.gen, c.id, c.challenge
	c.challenge, c.image = "", ""
	c.mu.Unlock()

	cmd := c.command(gen, Status.active, "recaptcha", url.Values{
		"id":        {id},
		"response":  {solution},
		"challenge": {token},
	})

	_, err := cmd.Wait(ctx)
	return err
}

func (c *Client) notify(path string) error {
	c.mu.Lock()
	if c.status != Connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	gen, id := c.gen, c.id
	c.mu.Unlock()

	cmd := c.command(gen, connectedOnly, path, url.Values{"id": {id}})

	go func() {
		if _, err := cmd.Wait(context.Background()); err != nil && !IsCancelled(err) {
			logger.Debug("command failed", "command", path, "error", err)
		}
	}()

	return nil
}

func connectedOnly(s Status) bool {
	return s == Connected
}

// command queues a POST on the serializer. It only runs if the session that
// queued it is still current and its status satisfies allowed.
func (c *Client) command(gen uint64, allowed func(Status) bool, path string, form url.Values) *Command {
	gate := func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return gen == c.gen && allowed(c.status)
	}

	return c.serializer.Submit(gate, func() (string, error) {
		body, err := c.fetch(context.Background(), gen, path, form)
		return string(body), err
	})
}

// fetch issues a request for session gen, tracked in the ledger. It fails as
// cancelled if that session is no longer current.
func (c *Client) fetch(parent context.Context, gen uint64, path string, form url.Values) ([]byte, error) {
	ctx, done, req, ok := c.track(parent, gen)
	if !ok {
		return nil, &TransportError{Method: http.MethodGet, URL: path, Err: context.Canceled}
	}
	defer done()

	req.Path = path
	req.Form = form
	return c.transport.Fetch(ctx, req)
}

func (c *Client) track(parent context.Context, gen uint64) (context.Context, func(), Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return nil, nil, Request{}, false
	}

	ctx, done := c.ledger.Track(parent)
	return ctx, done, Request{Base: c.base, UserAgent: c.userAgent}, true
}

func (c *Client) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen
}

// end tears down session gen if it is still the current one.
func (c *Client) end(gen uint64) {
	c.mu.Lock()
	c.teardown(gen)
}

// teardown must be called with c.mu held; it releases the lock before any
// callback runs.
func (c *Client) teardown(gen uint64) {
	if gen != c.gen || c.status == Disconnected {
		c.mu.Unlock()
		return
	}

	var notice *Request
	if c.status.active() {
		notice = &Request{
			Base:      c.base,
			Path:      "disconnect",
			Form:      url.Values{"id": {c.id}},
			UserAgent: c.userAgent,
		}
	}

	id := c.id
	c.status = Disconnected
	c.gen++
	c.id, c.base, c.challenge, c.image = "", "", "", ""
	c.ledger.CancelAll()
	c.mu.Unlock()

	if notice != nil {
		go c.sendDisconnectNotice(*notice)
	}

	logger.Info("session ended", "session", id)

	c.invoke("disconnected", func() {
		if h := c.handlers.Disconnected; h != nil {
			h(c)
		}
	})
}

func (c *Client) sendDisconnectNotice(req Request) {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectNoticeTimeout)
	defer cancel()

	if _, err := c.transport.Fetch(ctx, req); err != nil {
		logger.Debug("disconnect notice failed", "error", err)
	}
}

// invoke runs an external callback, turning a panic into a reported
// CallbackError so it cannot break the poll loop.
func (c *Client) invoke(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.report(&CallbackError{Callback: name, Value: r})
		}
	}()
	fn()
}

func (c *Client) report(err error) {
	if c.errorSink == nil {
		logger.Error("session error", "error", err)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("error sink panicked", "error", err, "panic", r)
		}
	}()
	c.errorSink(err)
}
