package feed

import (
	"github.com/bowerhall/chatbridge/internal/stranger"
)

// Observe returns handlers that publish every session event and the final
// disconnect to b before delegating to next.
func Observe(b *Broadcaster, next stranger.Handlers) stranger.Handlers {
	h := next

	h.Event = func(c *stranger.Client, ev stranger.Event) {
		e := Entry{Type: ev.Tag, Session: c.SessionID()}
		if ev.Tag == "gotMessage" && len(ev.Params) > 0 {
			e.Text, _ = ev.Params[0].(string)
		}
		b.Publish(e)

		if next.Event != nil {
			next.Event(c, ev)
		}
	}

	h.Disconnected = func(c *stranger.Client) {
		b.Publish(Entry{Type: "disconnected"})

		if next.Disconnected != nil {
			next.Disconnected(c)
		}
	}

	return h
}
