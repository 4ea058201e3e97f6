package bridge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/bowerhall/chatbridge/internal/stranger"
	"github.com/bowerhall/chatbridge/internal/transcript"
)

// fakeSession mimics the client's state machine and calls the bridge's
// Disconnected handler synchronously, as the real client does.
type fakeSession struct {
	mu         sync.Mutex
	status     stranger.Status
	id         string
	connects   int
	said       []string
	solved     []string
	connectErr error
	sayErr     error
	solveErr   error
	handlers   stranger.Handlers
}

func (s *fakeSession) Connect(context.Context) (stranger.SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != stranger.Disconnected {
		return stranger.SessionInfo{}, stranger.ErrAlreadyActive
	}
	s.connects++
	s.status = stranger.Connecting
	if s.connectErr != nil {
		return stranger.SessionInfo{}, s.connectErr
	}
	s.status = stranger.Waiting
	s.id = fmt.Sprintf("S%d", s.connects)
	return stranger.SessionInfo{ID: s.id, Server: "http://fake/"}, nil
}

func (s *fakeSession) Disconnect() {
	s.mu.Lock()
	if s.status == stranger.Disconnected {
		s.mu.Unlock()
		return
	}
	s.status = stranger.Disconnected
	s.id = ""
	cb := s.handlers.Disconnected
	s.mu.Unlock()

	if cb != nil {
		cb(nil)
	}
}

// pair moves the session to connected and fires the callback.
func (s *fakeSession) pair() {
	s.mu.Lock()
	s.status = stranger.Connected
	cb := s.handlers.Connected
	s.mu.Unlock()
	cb(nil)
}

// leave simulates the stranger disconnecting.
func (s *fakeSession) leave() {
	s.Disconnect()
}

func (s *fakeSession) Say(_ context.Context, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != stranger.Connected {
		return stranger.ErrNotConnected
	}
	if s.sayErr != nil {
		return s.sayErr
	}
	s.said = append(s.said, msg)
	return nil
}

func (s *fakeSession) SolveChallenge(_ context.Context, solution string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.solveErr != nil {
		return s.solveErr
	}
	s.solved = append(s.solved, solution)
	return nil
}

func (s *fakeSession) Status() stranger.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *fakeSession) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *fakeSession) saidLines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.said...)
}

func (s *fakeSession) connectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

type fakeChat struct {
	mu     sync.Mutex
	posts  []string
	typing int
}

func (c *fakeChat) Send(msg string) error {
	c.mu.Lock()
	c.posts = append(c.posts, msg)
	c.mu.Unlock()
	return nil
}

func (c *fakeChat) SendTyping() error {
	c.mu.Lock()
	c.typing++
	c.mu.Unlock()
	return nil
}

func (c *fakeChat) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.posts...)
}

func (c *fakeChat) last() string {
	posts := c.all()
	if len(posts) == 0 {
		return ""
	}
	return posts[len(posts)-1]
}

func (c *fakeChat) saw(msg string) bool {
	for _, p := range c.all() {
		if p == msg {
			return true
		}
	}
	return false
}

type memTranscripts struct {
	mu    sync.Mutex
	lines map[string][]transcript.Line
}

func (m *memTranscripts) Add(conv, session, speaker, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lines == nil {
		m.lines = make(map[string][]transcript.Line)
	}
	m.lines[conv] = append(m.lines[conv], transcript.Line{
		ConversationID: conv, SessionID: session, Speaker: speaker, Content: content, CreatedAt: time.Now(),
	})
	return nil
}

func (m *memTranscripts) Lines(conv string) ([]transcript.Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]transcript.Line(nil), m.lines[conv]...), nil
}

func (m *memTranscripts) Conversations(since time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id, lines := range m.lines {
		for _, l := range lines {
			if !l.CreatedAt.Before(since) {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memTranscripts) conversations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id := range m.lines {
		ids = append(ids, id)
	}
	return ids
}

type memArchive struct {
	mu       sync.Mutex
	archived map[string][]transcript.Line
	err      error
}

func (a *memArchive) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.archived)
}

func (a *memArchive) ArchiveTranscript(_ context.Context, conv string, lines []transcript.Line) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	if a.archived == nil {
		a.archived = make(map[string][]transcript.Line)
	}
	a.archived[conv] = lines
	return nil
}

type harness struct {
	bridge  *Bridge
	session *fakeSession
	chat    *fakeChat
	store   *memTranscripts
	archive *memArchive
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	h := &harness{
		session: &fakeSession{},
		chat:    &fakeChat{},
		store:   &memTranscripts{},
		archive: &memArchive{},
	}
	cfg.Transcripts = h.store
	cfg.Archiver = h.archive

	h.bridge = New(h.chat, cfg)
	h.session.handlers = h.bridge.Handlers()
	h.bridge.Attach(h.session)

	t.Cleanup(h.bridge.Close)
	return h
}

func (h *harness) say(from, text string) {
	h.bridge.HandleMessage(context.Background(), messageFrom(from, text))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

var errBoom = errors.New("boom")
