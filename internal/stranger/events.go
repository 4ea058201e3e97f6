package stranger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/bowerhall/chatbridge/internal/logger"
)

// eventHandlers maps wire tags to their handlers. Tags not listed are
// ignored.
var eventHandlers = map[string]func(c *Client, gen uint64, ev Event){
	"waiting":              (*Client).onWaiting,
	"connected":            (*Client).onConnected,
	"gotMessage":           (*Client).onMessage,
	"typing":               (*Client).onTyping,
	"stoppedTyping":        (*Client).onStoppedTyping,
	"strangerDisconnected": (*Client).onStrangerDisconnected,
	"recaptchaRequired":    (*Client).onChallengeRequired,
	"recaptchaRejected":    (*Client).onChallengeRejected,
}

// DecodeEvents parses a long-poll response body. A JSON null or an empty
// body means the service closed the session and is reported as closed.
func DecodeEvents(body []byte) (events []Event, closed bool, err error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, true, nil
	}

	var raw [][]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, false, fmt.Errorf("decode events: %w", err)
	}

	events = make([]Event, 0, len(raw))
	for _, entry := range raw {
		if len(entry) == 0 {
			continue
		}
		tag, ok := entry[0].(string)
		if !ok {
			continue
		}
		events = append(events, Event{Tag: tag, Params: entry[1:]})
	}

	return events, false, nil
}

// poll runs the event loop for session gen. Each response is fully
// dispatched before the next poll is issued.
func (c *Client) poll(gen uint64) {
	for {
		c.mu.Lock()
		if gen != c.gen || !c.status.active() {
			c.mu.Unlock()
			return
		}
		id := c.id
		c.mu.Unlock()

		body, err := c.fetch(context.Background(), gen, "events?id="+url.QueryEscape(id), nil)
		if err != nil {
			if IsCancelled(err) || !c.current(gen) {
				logger.Debug("event poll stopped", "session", id)
				return
			}
			c.end(gen)
			c.report(fmt.Errorf("poll events: %w", err))
			return
		}

		events, closed, err := DecodeEvents(body)
		if err != nil {
			c.end(gen)
			c.report(err)
			return
		}
		if closed {
			logger.Debug("session closed by server", "session", id)
			c.end(gen)
			return
		}

		for _, ev := range events {
			if !c.current(gen) {
				return
			}
			c.dispatch(gen, ev)
		}
	}
}

func (c *Client) dispatch(gen uint64, ev Event) {
	if h := c.handlers.Event; h != nil {
		c.invoke("event", func() { h(c, ev) })
	}

	handle, ok := eventHandlers[ev.Tag]
	if !ok {
		logger.Debug("ignoring unknown event", "tag", ev.Tag)
		return
	}
	handle(c, gen, ev)
}

// setStatus moves session gen to status; it returns false if gen has ended.
func (c *Client) setStatus(gen uint64, status Status) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || !c.status.active() {
		return false
	}
	c.status = status
	return true
}

func (c *Client) onWaiting(gen uint64, _ Event) {
	if !c.setStatus(gen, Waiting) {
		return
	}
	c.invoke("waiting", func() {
		if h := c.handlers.Waiting; h != nil {
			h(c)
		}
	})
}

func (c *Client) onConnected(gen uint64, _ Event) {
	if !c.setStatus(gen, Connected) {
		return
	}
	logger.Info("stranger connected", "session", c.SessionID())
	c.invoke("connected", func() {
		if h := c.handlers.Connected; h != nil {
			h(c)
		}
	})
}

func (c *Client) onMessage(_ uint64, ev Event) {
	text := stringParam(ev.Params, 0)
	c.invoke("message", func() {
		if h := c.handlers.Message; h != nil {
			h(c, text)
		}
	})
}

func (c *Client) onTyping(_ uint64, _ Event) {
	c.invoke("typing", func() {
		if h := c.handlers.Typing; h != nil {
			h(c)
		}
	})
}

func (c *Client) onStoppedTyping(_ uint64, _ Event) {
	c.invoke("stoppedTyping", func() {
		if h := c.handlers.StoppedTyping; h != nil {
			h(c)
		}
	})
}

func (c *Client) onStrangerDisconnected(gen uint64, _ Event) {
	c.end(gen)
}

func (c *Client) onChallengeRequired(gen uint64, ev Event) {
	token, lookup, ok := c.startChallenge(gen, ev)
	if !ok {
		return
	}
	c.invoke("challengeRequired", func() {
		if h := c.handlers.ChallengeRequired; h != nil {
			h(c, token, lookup)
		}
	})
}

func (c *Client) onChallengeRejected(gen uint64, ev Event) {
	token, lookup, ok := c.startChallenge(gen, ev)
	if !ok {
		return
	}
	c.invoke("challengeRejected", func() {
		if h := c.handlers.ChallengeRejected; h != nil {
			h(c, token, lookup)
		}
	})
}

func stringParam(params []any, i int) string {
	if i >= len(params) {
		return ""
	}
	switch v := params[i].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
