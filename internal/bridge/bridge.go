// Package bridge relays a chat channel to a single anonymous-chat session.
//
// Lines addressed to the bridge's nickname are either commands or text for
// the stranger; the stranger's messages are posted back into the channel.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bowerhall/chatbridge/internal/bot"
	"github.com/bowerhall/chatbridge/internal/logger"
	"github.com/bowerhall/chatbridge/internal/stranger"
	"github.com/bowerhall/chatbridge/internal/transcript"
)

const (
	DefaultNickname = "dev_omgb"

	archiveTimeout = 30 * time.Second
	lookupTimeout  = 30 * time.Second
	imageURL       = "https://www.google.com/recaptcha/api/image?c="
)

// Session is the part of *stranger.Client the bridge drives.
type Session interface {
	Connect(ctx context.Context) (stranger.SessionInfo, error)
	Disconnect()
	Say(ctx context.Context, message string) error
	SolveChallenge(ctx context.Context, solution string) error
	Status() stranger.Status
	SessionID() string
}

// Chat is the channel the bridge posts into.
type Chat interface {
	Send(message string) error
	SendTyping() error
}

type Transcripts interface {
	Add(conversationID, sessionID, speaker, content string) error
	Lines(conversationID string) ([]transcript.Line, error)
	Conversations(since time.Time) ([]string, error)
}

type Archiver interface {
	ArchiveTranscript(ctx context.Context, conversationID string, lines []transcript.Line) error
}

type Config struct {
	Nickname    string
	AutoConnect bool
	Transcripts Transcripts // optional
	Archiver    Archiver    // optional
}

type Bridge struct {
	chat        Chat
	session     Session
	nickname    string
	transcripts Transcripts
	archiver    Archiver
	commands    map[string]command

	mu           sync.Mutex
	idle         bool
	piping       string
	autoconnect  bool
	hungUp       string // conversation ended on purpose; no reconnect
	conversation string

	wg sync.WaitGroup
}

func New(chat Chat, cfg Config) *Bridge {
	nick := cfg.Nickname
	if nick == "" {
		nick = DefaultNickname
	}

	return &Bridge{
		chat:        chat,
		nickname:    nick,
		transcripts: cfg.Transcripts,
		archiver:    cfg.Archiver,
		commands:    commandTable(),
		idle:        true,
		autoconnect: cfg.AutoConnect,
	}
}

// Attach binds the session the bridge drives. It must be called before
// any message is handled.
func (b *Bridge) Attach(s Session) {
	b.session = s
}

// Nickname is the name chat lines must be addressed to.
func (b *Bridge) Nickname() string {
	return b.nickname
}

// Idle reports whether the bridge currently has no session to relay to.
func (b *Bridge) Idle() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.idle
}

// Wait blocks until background work (reconnects, archiving, challenge
// notices) has finished.
func (b *Bridge) Wait() {
	b.wg.Wait()
}

// Connect starts a session as if /connect had been issued.
func (b *Bridge) Connect(ctx context.Context) {
	b.cmdConnect(ctx, "", nil)
}

// Close ends the session without reconnecting and waits for background work.
func (b *Bridge) Close() {
	b.hangUp()
	b.wg.Wait()
}

// HandleMessage processes one line from the chat channel.
func (b *Bridge) HandleMessage(ctx context.Context, msg bot.Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" || msg.From == b.nickname {
		return
	}

	body, addressed := b.addressed(text)
	if addressed {
		fields := strings.Fields(body)
		if len(fields) == 0 {
			return
		}
		if cmd, ok := b.lookup(fields[0]); ok {
			logger.Info("command", "from", msg.From, "command", fields[0])
			cmd.run(b, ctx, msg.From, fields[1:])
			return
		}
	}

	b.mu.Lock()
	idle, piped := b.idle, b.piping != "" && b.piping == msg.From
	b.mu.Unlock()

	if idle {
		return
	}

	switch {
	case piped:
		b.relay(ctx, text)
	case addressed:
		b.relay(ctx, body)
	}
}

// addressed strips a "nickname:" prefix. A bare "/command" also counts as
// addressed so slash-command front ends work without the prefix.
func (b *Bridge) addressed(text string) (string, bool) {
	if to, rest, ok := strings.Cut(text, ":"); ok && strings.TrimSpace(to) == b.nickname {
		return strings.TrimSpace(rest), true
	}
	if strings.HasPrefix(text, "/") {
		name := strings.Fields(text)[0]
		if _, ok := b.lookup(name); ok {
			return text, true
		}
	}
	return "", false
}

// lookup resolves "connect", "/connect" and "/connect@botname".
func (b *Bridge) lookup(word string) (command, bool) {
	name := strings.TrimPrefix(word, "/")
	name, _, _ = strings.Cut(name, "@")
	cmd, ok := b.commands[strings.ToLower(name)]
	return cmd, ok
}

func (b *Bridge) relay(ctx context.Context, text string) {
	if err := b.session.Say(ctx, text); err != nil {
		logger.Warn("relay failed", "error", err)
		if errors.Is(err, stranger.ErrNotConnected) {
			b.post("<no stranger yet>")
			return
		}
		b.post(fmt.Sprintf("<message not delivered: %v>", err))
		return
	}
	b.record(transcript.SpeakerYou, text)
}

func (b *Bridge) connect(ctx context.Context) {
	b.mu.Lock()
	prevConv, prevIdle := b.conversation, b.idle
	b.conversation = uuid.NewString()
	b.idle = false
	b.mu.Unlock()

	info, err := b.session.Connect(ctx)
	if errors.Is(err, stranger.ErrAlreadyActive) {
		b.mu.Lock()
		b.conversation, b.idle = prevConv, prevIdle
		b.mu.Unlock()
		b.post("<already connected>")
		return
	}
	if err != nil {
		logger.Warn("connect failed", "error", err)
		b.mu.Lock()
		b.conversation = ""
		b.idle = true
		b.mu.Unlock()

		// a failed connect leaves the client connecting; release it
		// without triggering popcorn mode
		b.hangUp()
		b.post(fmt.Sprintf("<could not connect: %v>", err))
		return
	}

	logger.Info("relay connected", "session", info.ID, "server", info.Server)
	b.record(transcript.SpeakerSystem, "session "+info.ID+" started")
}

// hangUp disconnects the current conversation without auto-reconnecting.
// Only that conversation is exempt from popcorn mode.
func (b *Bridge) hangUp() {
	if b.session == nil {
		return
	}

	b.mu.Lock()
	b.hungUp = b.conversation
	b.mu.Unlock()

	b.session.Disconnect()
}

func (b *Bridge) post(text string) {
	if err := b.chat.Send(text); err != nil {
		logger.Warn("post failed", "error", err)
	}
}

func (b *Bridge) record(speaker, text string) {
	if b.transcripts == nil {
		return
	}

	b.mu.Lock()
	conv := b.conversation
	b.mu.Unlock()
	if conv == "" {
		return
	}

	if err := b.transcripts.Add(conv, b.session.SessionID(), speaker, text); err != nil {
		logger.Warn("transcript write failed", "conversation", conv, "error", err)
	}
}

func (b *Bridge) archive(conv string) {
	if conv == "" || b.transcripts == nil || b.archiver == nil {
		return
	}

	b.background(func() {
		lines, err := b.transcripts.Lines(conv)
		if err != nil {
			logger.Warn("transcript read failed", "conversation", conv, "error", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()

		if err := b.archiver.ArchiveTranscript(ctx, conv, lines); err != nil {
			logger.Warn("transcript archive failed", "conversation", conv, "error", err)
		}
	})
}

// ArchiveRecent archives every conversation with lines newer than since,
// except the one in progress. It recovers transcripts whose archive upload
// was lost when the process stopped.
func (b *Bridge) ArchiveRecent(ctx context.Context, since time.Time) (int, error) {
	if b.transcripts == nil || b.archiver == nil {
		return 0, nil
	}

	ids, err := b.transcripts.Conversations(since)
	if err != nil {
		return 0, fmt.Errorf("list conversations: %w", err)
	}

	b.mu.Lock()
	current := b.conversation
	b.mu.Unlock()

	archived := 0
	for _, id := range ids {
		if id == current {
			continue
		}

		lines, err := b.transcripts.Lines(id)
		if err != nil {
			return archived, fmt.Errorf("read conversation %s: %w", id, err)
		}
		if err := b.archiver.ArchiveTranscript(ctx, id, lines); err != nil {
			return archived, fmt.Errorf("archive conversation %s: %w", id, err)
		}
		archived++
	}

	return archived, nil
}

func (b *Bridge) background(fn func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn()
	}()
}
