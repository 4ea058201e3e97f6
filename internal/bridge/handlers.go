package bridge

import (
	"context"

	"github.com/bowerhall/chatbridge/internal/logger"
	"github.com/bowerhall/chatbridge/internal/stranger"
	"github.com/bowerhall/chatbridge/internal/transcript"
)

// Handlers returns the callbacks the stranger client should invoke.
func (b *Bridge) Handlers() stranger.Handlers {
	return stranger.Handlers{
		Waiting:           b.onWaiting,
		Connected:         b.onConnected,
		Message:           b.onMessage,
		Typing:            b.onTyping,
		Disconnected:      b.onDisconnected,
		ChallengeRequired: b.onChallengeRequired,
		ChallengeRejected: b.onChallengeRejected,
	}
}

func (b *Bridge) onWaiting(_ *stranger.Client) {
	logger.Debug("waiting for a stranger")
}

func (b *Bridge) onConnected(_ *stranger.Client) {
	b.mu.Lock()
	b.idle = false
	b.mu.Unlock()

	b.post("<stranger connected>")
	b.record(transcript.SpeakerSystem, "stranger connected")
}

func (b *Bridge) onMessage(_ *stranger.Client, text string) {
	b.record(transcript.SpeakerStranger, text)

	b.mu.Lock()
	pipe := b.piping
	b.mu.Unlock()

	if pipe != "" {
		text = pipe + ": " + text
	}
	b.post(text)
}

func (b *Bridge) onTyping(_ *stranger.Client) {
	if b.Idle() {
		return
	}
	if err := b.chat.SendTyping(); err != nil {
		logger.Debug("typing indicator failed", "error", err)
	}
}

func (b *Bridge) onDisconnected(_ *stranger.Client) {
	b.mu.Lock()
	conv := b.conversation
	b.conversation = ""
	reconnect := b.autoconnect && conv != "" && conv != b.hungUp
	b.idle = true
	b.mu.Unlock()

	if conv != "" {
		b.post("<stranger disconnected>")
		if b.transcripts != nil {
			if err := b.transcripts.Add(conv, "", transcript.SpeakerSystem, "disconnected"); err != nil {
				logger.Warn("transcript write failed", "conversation", conv, "error", err)
			}
		}
		b.archive(conv)
	}

	if reconnect {
		logger.Info("reconnecting")
		b.background(func() { b.connect(context.Background()) })
	}
}

func (b *Bridge) onChallengeRequired(_ *stranger.Client, token string, image *stranger.ImageLookup) {
	logger.Info("challenge required", "token", token)
	b.announceChallenge(image, "")
}

func (b *Bridge) onChallengeRejected(_ *stranger.Client, token string, image *stranger.ImageLookup) {
	logger.Info("challenge rejected", "token", token)
	b.post("<captcha was incorrect>")
	b.announceChallenge(image, "new ")
}

// announceChallenge posts the image URL once the lookup resolves. A failed
// lookup has already ended the session, so there is nothing to post.
func (b *Bridge) announceChallenge(image *stranger.ImageLookup, prefix string) {
	if image == nil {
		return
	}
	b.background(func() {
		ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
		defer cancel()

		ref, err := image.Wait(ctx)
		if err != nil {
			logger.Debug("challenge image unavailable", "error", err)
			return
		}

		b.post("<" + prefix + "captcha required, solve it with /captcha <text>: " + imageURL + ref + ">")
	})
}
