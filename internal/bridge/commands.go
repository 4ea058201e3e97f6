package bridge

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/bowerhall/chatbridge/internal/logger"
	"github.com/bowerhall/chatbridge/internal/stranger"
)

type command struct {
	usage string
	help  string
	run   func(b *Bridge, ctx context.Context, from string, args []string)
}

// commandTable is built once per bridge; cmdHelp reads it back through b.
func commandTable() map[string]command {
	return map[string]command{
		"connect":    {usage: "/connect", help: "find a stranger to talk to", run: (*Bridge).cmdConnect},
		"disconnect": {usage: "/disconnect", help: "leave the current conversation", run: (*Bridge).cmdDisconnect},
		"help":       {usage: "/help", help: "list commands", run: (*Bridge).cmdHelp},
		"captcha":    {usage: "/captcha <text>", help: "answer a pending captcha", run: (*Bridge).cmdCaptcha},
		"pipe":       {usage: "/pipe [nick]", help: "relay everything nick says and address replies to them", run: (*Bridge).cmdPipe},
		"unpipe":     {usage: "/unpipe", help: "stop piping", run: (*Bridge).cmdUnpipe},
		"popcorn":    {usage: "/popcorn", help: "reconnect automatically when a stranger leaves", run: (*Bridge).cmdPopcorn},
		"unpopcorn":  {usage: "/unpopcorn", help: "stop reconnecting automatically", run: (*Bridge).cmdUnpopcorn},
	}
}

func (b *Bridge) cmdConnect(ctx context.Context, _ string, _ []string) {
	if b.session.Status() != stranger.Disconnected {
		b.post("<already connected>")
		return
	}
	b.connect(ctx)
}

func (b *Bridge) cmdDisconnect(_ context.Context, _ string, _ []string) {
	if b.session.Status() == stranger.Disconnected {
		b.post("<not connected>")
		return
	}
	b.hangUp()
}

func (b *Bridge) cmdHelp(_ context.Context, _ string, _ []string) {
	names := make([]string, 0, len(b.commands))
	for name := range b.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("Possible commands (prefix with \"" + b.nickname + ": \" or use the slash form):")
	for _, name := range names {
		cmd := b.commands[name]
		sb.WriteString("\n" + cmd.usage + " - " + cmd.help)
	}
	b.post(sb.String())
}

func (b *Bridge) cmdCaptcha(ctx context.Context, _ string, args []string) {
	if len(args) == 0 {
		b.post("<usage: /captcha <text>>")
		return
	}

	err := b.session.SolveChallenge(ctx, strings.Join(args, " "))
	switch {
	case err == nil:
	case errors.Is(err, stranger.ErrChallengeNotRequired):
		b.post("<no captcha pending>")
	case errors.Is(err, stranger.ErrSkipped):
		logger.Debug("captcha answer dropped", "error", err)
	default:
		logger.Warn("captcha submit failed", "error", err)
		b.post("<captcha could not be submitted>")
	}
}

func (b *Bridge) cmdPipe(_ context.Context, from string, args []string) {
	nick := from
	if len(args) > 0 {
		nick = args[0]
	}

	b.mu.Lock()
	b.piping = nick
	b.mu.Unlock()

	b.post("<piping " + nick + ">")
}

func (b *Bridge) cmdUnpipe(_ context.Context, _ string, _ []string) {
	b.mu.Lock()
	b.piping = ""
	b.mu.Unlock()

	b.post("<piping off>")
}

func (b *Bridge) cmdPopcorn(_ context.Context, _ string, _ []string) {
	b.mu.Lock()
	b.autoconnect = true
	b.mu.Unlock()

	b.post("<popcorn mode on>")
}

func (b *Bridge) cmdUnpopcorn(_ context.Context, _ string, _ []string) {
	b.mu.Lock()
	b.autoconnect = false
	b.mu.Unlock()

	b.post("<popcorn mode off>")
}
