package feed

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bowerhall/chatbridge/internal/logger"
)

// Entry is one line of the feed as seen by observers.
type Entry struct {
	Type    string    `json:"type"`
	Session string    `json:"session,omitempty"`
	Text    string    `json:"text,omitempty"`
	At      time.Time `json:"at"`
}

const sendBuffer = 64

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// Broadcaster fans entries out to every connected observer. Observers that
// cannot keep up are dropped.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*client]bool
	now     func() time.Time
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[*client]bool),
		now:     time.Now,
	}
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) *client {
	c := newClient(conn)

	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	return c
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// Publish stamps e if needed and sends it to every observer.
func (b *Broadcaster) Publish(e Entry) {
	if e.At.IsZero() {
		e.At = b.now()
	}

	data, err := json.Marshal(e)
	if err != nil {
		logger.Error("feed marshal failed", "error", err)
		return
	}

	// sends happen under the read lock; channels are only closed under the
	// write lock, so a concurrent RemoveClient cannot close one mid-send
	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		logger.Warn("feed client too slow, disconnecting")
		b.RemoveClient(c)
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Close drops every observer.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	for c := range b.clients {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}
