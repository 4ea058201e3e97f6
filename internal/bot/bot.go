package bot

import (
	"fmt"
)

func New(cfg Config) (Bot, error) {
	switch cfg.Provider {
	case "telegram":
		if cfg.ChatID == 0 {
			return nil, fmt.Errorf("telegram provider requires a chat id")
		}
		return NewTelegram(cfg.Token, cfg.ChatID)
	case "discord":
		if cfg.ChannelID == "" {
			return nil, fmt.Errorf("discord provider requires a channel id")
		}
		return NewDiscord(cfg.Token, cfg.ChannelID)
	default:
		return nil, fmt.Errorf("unknown bot provider: %s", cfg.Provider)
	}
}

func NewTelegram(token string, chatID int64) (Bot, error) {
	return newTelegram(token, chatID)
}

func NewDiscord(token, channelID string) (Bot, error) {
	return newDiscord(token, channelID)
}
