package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/bowerhall/chatbridge/internal/logger"
)

func newTelegram(token string, chatID int64) (Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	logger.Info("telegram authorized", "bot", api.Self.UserName)
	return &telegram{api: api, chatID: chatID}, nil
}

func (t *telegram) SetHandler(h Handler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

func (t *telegram) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.api.GetUpdatesChan(u)
	defer t.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update := <-updates:
			if update.Message == nil {
				continue
			}

			// handled inline so chat lines reach the stranger in order
			t.handleMessage(ctx, update.Message)
		}
	}
}

func (t *telegram) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat.ID != t.chatID || msg.From == nil || msg.Text == "" {
		return
	}

	from := msg.From.UserName
	if from == "" {
		from = msg.From.FirstName
	}
	logger.Debug("message received", "from", from, "text", truncate(msg.Text, 50))

	t.mu.Lock()
	h := t.handler
	t.mu.Unlock()

	if h != nil {
		h(ctx, Message{From: from, Text: msg.Text})
	}
}

func (t *telegram) Send(message string) error {
	for _, chunk := range splitMessage(message, telegramMaxMessage) {
		if _, err := t.api.Send(tgbotapi.NewMessage(t.chatID, chunk)); err != nil {
			logger.Error("telegram send failed", "error", err, "chatID", t.chatID)
			return err
		}
	}

	logger.Debug("telegram message sent", "chatID", t.chatID, "chars", len(message))
	return nil
}

func (t *telegram) SendTyping() error {
	_, err := t.api.Request(tgbotapi.NewChatAction(t.chatID, tgbotapi.ChatTyping))
	return err
}
