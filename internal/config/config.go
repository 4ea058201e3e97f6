package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bowerhall/chatbridge/internal/cron"
)

const (
	defaultServer        = "http://front2.omegle.com/"
	defaultNickname      = "dev_omgb"
	defaultTranscriptDB  = "chatbridge.db"
	defaultRetentionDays = 30
	defaultPruneSchedule = "0 4 * * *"
	defaultAlertCooldown = 10 * time.Minute
)

func Load() (*Config, error) {
	file, err := loadFile(os.Getenv("CHATBRIDGE_CONFIG"))
	if err != nil {
		return nil, err
	}

	strangerConfig, err := loadStrangerConfig(file)
	if err != nil {
		return nil, err
	}

	botConfig, err := loadBotConfig()
	if err != nil {
		return nil, err
	}

	transcriptConfig, err := loadTranscriptConfig(file)
	if err != nil {
		return nil, err
	}

	cooldown := defaultAlertCooldown
	if v := os.Getenv("ALERT_COOLDOWN"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid ALERT_COOLDOWN: %w", err)
		}
		cooldown = d
	}

	return &Config{
		Stranger:      strangerConfig,
		Bot:           botConfig,
		Bridge:        loadBridgeConfig(file),
		Transcript:    transcriptConfig,
		Storage:       loadStorageConfig(),
		FeedAddr:      os.Getenv("FEED_ADDR"),
		AlertCooldown: cooldown,
	}, nil
}

func loadFile(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config %s: %w", path, err)
	}

	return fc, nil
}

func loadStrangerConfig(file fileConfig) (StrangerConfig, error) {
	server := os.Getenv("STRANGER_SERVER")
	if server == "" {
		server = file.Stranger.Server
	}
	if server == "" {
		server = defaultServer
	}

	var timeout time.Duration
	if v := os.Getenv("STRANGER_POLL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return StrangerConfig{}, fmt.Errorf("invalid STRANGER_POLL_TIMEOUT: %w", err)
		}
		timeout = d
	}

	return StrangerConfig{
		Server:      server,
		PollTimeout: timeout,
		UserAgents:  file.Stranger.UserAgents,
	}, nil
}

func loadBotConfig() (BotConfig, error) {
	provider := os.Getenv("BOT_PROVIDER")
	if provider == "" {
		provider = "telegram"
	}

	switch provider {
	case "telegram":
		token := os.Getenv("TELEGRAM_TOKEN")
		if token == "" {
			return BotConfig{}, fmt.Errorf("TELEGRAM_TOKEN not set")
		}
		chatID, err := strconv.ParseInt(os.Getenv("TELEGRAM_CHAT_ID"), 10, 64)
		if err != nil {
			return BotConfig{}, fmt.Errorf("TELEGRAM_CHAT_ID not set or invalid")
		}
		return BotConfig{Provider: provider, Token: token, ChatID: chatID}, nil

	case "discord":
		token := os.Getenv("DISCORD_TOKEN")
		if token == "" {
			return BotConfig{}, fmt.Errorf("DISCORD_TOKEN not set")
		}
		channelID := os.Getenv("DISCORD_CHANNEL_ID")
		if channelID == "" {
			return BotConfig{}, fmt.Errorf("DISCORD_CHANNEL_ID not set")
		}
		return BotConfig{Provider: provider, Token: token, ChannelID: channelID}, nil

	default:
		return BotConfig{}, fmt.Errorf("unknown BOT_PROVIDER: %s", provider)
	}
}

func loadBridgeConfig(file fileConfig) BridgeConfig {
	nickname := os.Getenv("BRIDGE_NICKNAME")
	if nickname == "" {
		nickname = file.Bridge.Nickname
	}
	if nickname == "" {
		nickname = defaultNickname
	}

	autoconnect := file.Bridge.AutoConnect != nil && *file.Bridge.AutoConnect
	if v := os.Getenv("BRIDGE_AUTOCONNECT"); v != "" {
		autoconnect = v == "true"
	}

	return BridgeConfig{
		Nickname:    nickname,
		AutoConnect: autoconnect,
	}
}

func loadTranscriptConfig(file fileConfig) (TranscriptConfig, error) {
	path := os.Getenv("TRANSCRIPT_DB")
	if path == "" {
		path = defaultTranscriptDB
	}

	days := defaultRetentionDays
	if file.Transcript.RetentionDays > 0 {
		days = file.Transcript.RetentionDays
	}
	if v := os.Getenv("TRANSCRIPT_RETENTION"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return TranscriptConfig{}, fmt.Errorf("invalid TRANSCRIPT_RETENTION: %q", v)
		}
		days = n
	}

	schedule := os.Getenv("TRANSCRIPT_PRUNE_SCHEDULE")
	if schedule == "" {
		schedule = file.Transcript.PruneSchedule
	}
	if schedule == "" {
		schedule = defaultPruneSchedule
	}
	if _, err := cron.ComputeNextRun(schedule, time.Now()); err != nil {
		return TranscriptConfig{}, fmt.Errorf("invalid TRANSCRIPT_PRUNE_SCHEDULE %q: %w", schedule, err)
	}

	return TranscriptConfig{
		Path:          path,
		Retention:     time.Duration(days) * 24 * time.Hour,
		PruneSchedule: schedule,
	}, nil
}

func loadStorageConfig() StorageConfig {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "minio:9000"
	}

	accessKey := os.Getenv("MINIO_ACCESS_KEY")
	secretKey := os.Getenv("MINIO_SECRET_KEY")

	return StorageConfig{
		Enabled:   accessKey != "" && secretKey != "",
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		UseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
		Bucket:    os.Getenv("MINIO_BUCKET"),
	}
}
