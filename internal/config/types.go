package config

import "time"

type Config struct {
	Stranger      StrangerConfig
	Bot           BotConfig
	Bridge        BridgeConfig
	Transcript    TranscriptConfig
	Storage       StorageConfig
	FeedAddr      string
	AlertCooldown time.Duration
}

type StrangerConfig struct {
	Server      string
	PollTimeout time.Duration
	UserAgents  []string
}

type BotConfig struct {
	Provider  string
	Token     string
	ChatID    int64
	ChannelID string
}

type BridgeConfig struct {
	Nickname    string
	AutoConnect bool
}

type TranscriptConfig struct {
	Path          string
	Retention     time.Duration
	PruneSchedule string
}

type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// fileConfig is the optional YAML overlay. Environment variables win over
// anything set here.
type fileConfig struct {
	Stranger struct {
		Server     string   `yaml:"server"`
		UserAgents []string `yaml:"user_agents"`
	} `yaml:"stranger"`
	Bridge struct {
		Nickname    string `yaml:"nickname"`
		AutoConnect *bool  `yaml:"autoconnect"`
	} `yaml:"bridge"`
	Transcript struct {
		RetentionDays int    `yaml:"retention_days"`
		PruneSchedule string `yaml:"prune_schedule"`
	} `yaml:"transcript"`
}
