package bot

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/bowerhall/chatbridge/internal/logger"
)

func newDiscord(token, channelID string) (Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

	d := &discord{
		session:   session,
		channelID: channelID,
		ctx:       context.Background(),
	}

	session.AddHandler(d.handleMessage)

	return d, nil
}

func (d *discord) SetHandler(h Handler) {
	d.mu.Lock()
	d.handler = h
	d.mu.Unlock()
}

func (d *discord) Start(ctx context.Context) error {
	d.mu.Lock()
	d.ctx = ctx
	d.mu.Unlock()

	if err := d.session.Open(); err != nil {
		return err
	}

	<-ctx.Done()
	return d.session.Close()
}

func (d *discord) Send(message string) error {
	for _, chunk := range splitMessage(message, discordMaxMessage) {
		if _, err := d.session.ChannelMessageSend(d.channelID, chunk); err != nil {
			logger.Error("discord send failed", "error", err, "channelID", d.channelID)
			return err
		}
	}

	logger.Debug("discord message sent", "channelID", d.channelID, "chars", len(message))
	return nil
}

func (d *discord) SendTyping() error {
	return d.session.ChannelTyping(d.channelID)
}

func (d *discord) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.ChannelID != d.channelID {
		return
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}

	logger.Debug("message received", "from", m.Author.Username, "text", truncate(m.Content, 50))

	d.mu.Lock()
	h, ctx := d.handler, d.ctx
	d.mu.Unlock()

	if h != nil {
		h(ctx, Message{From: m.Author.Username, Text: m.Content})
	}
}
