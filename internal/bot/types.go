package bot

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Bot is the chat room the bridge lives in
type Bot interface {
	Start(ctx context.Context) error
	Send(message string) error
	SendTyping() error
	SetHandler(h Handler)
}

// Message is an inbound chat line
type Message struct {
	From string
	Text string
}

type Handler func(ctx context.Context, msg Message)

type Config struct {
	Provider  string
	Token     string
	ChatID    int64  // Telegram: the group the bridge serves
	ChannelID string // Discord: the channel the bridge serves
}

type telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64

	mu      sync.Mutex
	handler Handler
}

type discord struct {
	session   *discordgo.Session
	channelID string
	ctx       context.Context

	mu      sync.Mutex
	handler Handler
}
