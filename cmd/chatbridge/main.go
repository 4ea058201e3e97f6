package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bowerhall/chatbridge/internal/alerts"
	"github.com/bowerhall/chatbridge/internal/bot"
	"github.com/bowerhall/chatbridge/internal/bridge"
	"github.com/bowerhall/chatbridge/internal/config"
	"github.com/bowerhall/chatbridge/internal/cron"
	"github.com/bowerhall/chatbridge/internal/feed"
	"github.com/bowerhall/chatbridge/internal/logger"
	"github.com/bowerhall/chatbridge/internal/storage"
	"github.com/bowerhall/chatbridge/internal/stranger"
	"github.com/bowerhall/chatbridge/internal/transcript"
)

func init() {
	godotenv.Load()
}

// recoveryWindow bounds the startup sweep for transcripts whose archive
// upload was lost when the process stopped.
const recoveryWindow = 24 * time.Hour

func archiveLeftovers(ctx context.Context, relay *bridge.Bridge, archive *storage.Client) {
	if !archive.Healthy(ctx) {
		logger.Warn("storage unhealthy, skipping transcript recovery")
		return
	}

	n, err := relay.ArchiveRecent(ctx, time.Now().Add(-recoveryWindow))
	if err != nil {
		logger.Warn("transcript recovery failed", "archived", n, "error", err)
		return
	}
	logger.Info("transcript recovery finished", "archived", n)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := transcript.Open(cfg.Transcript.Path)
	if err != nil {
		logger.Fatal("failed to open transcript db", "error", err)
	}
	defer db.Close()

	transcripts, err := transcript.NewStore(db)
	if err != nil {
		logger.Fatal("failed to create transcript store", "error", err)
	}

	bridgeConfig := bridge.Config{
		Nickname:    cfg.Bridge.Nickname,
		AutoConnect: cfg.Bridge.AutoConnect,
		Transcripts: transcripts,
	}

	var archive *storage.Client
	if cfg.Storage.Enabled {
		archive, err = storage.NewClient(storage.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
		})
		if err != nil {
			logger.Fatal("failed to create storage client", "error", err)
		}
		if err := archive.Init(ctx); err != nil {
			logger.Warn("storage unavailable, transcripts will not be archived", "error", err)
			archive = nil
		} else {
			bridgeConfig.Archiver = archive
			logger.Info("transcript archive enabled", "bucket", archive.Bucket())
		}
	}

	chat, err := bot.New(bot.Config{
		Provider:  cfg.Bot.Provider,
		Token:     cfg.Bot.Token,
		ChatID:    cfg.Bot.ChatID,
		ChannelID: cfg.Bot.ChannelID,
	})
	if err != nil {
		logger.Fatal("failed to create bot", "error", err)
	}

	relay := bridge.New(chat, bridgeConfig)
	alerter := alerts.New(func(message string) { chat.Send(message) }, cfg.AlertCooldown)

	handlers := relay.Handlers()
	if cfg.FeedAddr != "" {
		events := feed.NewBroadcaster()
		handlers = feed.Observe(events, handlers)
		go func() {
			if err := events.Serve(ctx, cfg.FeedAddr); err != nil {
				logger.Error("feed server failed", "error", err)
			}
		}()
	}

	client := stranger.New(stranger.Options{
		Server:     cfg.Stranger.Server,
		HTTPClient: &http.Client{Timeout: cfg.Stranger.PollTimeout},
		UserAgents: cfg.Stranger.UserAgents,
		ErrorSink:  alerter.Sink("stranger"),
	}, handlers)
	relay.Attach(client)

	if archive != nil {
		go archiveLeftovers(ctx, relay, archive)
	}

	scheduler := cron.NewScheduler()
	err = scheduler.Add(cron.Job{
		Name:     "transcript-prune",
		Schedule: cfg.Transcript.PruneSchedule,
		Run: func(context.Context) error {
			n, err := transcripts.Prune(cfg.Transcript.Retention)
			if err != nil {
				return err
			}
			logger.Info("transcripts pruned", "lines", n, "retention", cfg.Transcript.Retention)
			return nil
		},
	})
	if err != nil {
		logger.Fatal("failed to schedule pruning", "error", err)
	}
	scheduler.Start(ctx)

	chat.SetHandler(relay.HandleMessage)
	go func() {
		if err := chat.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("bot stopped", "error", err)
			alerter.Critical("bot", "front end stopped", err)
		}
	}()

	logger.Info("chatbridge started", "provider", cfg.Bot.Provider, "nickname", relay.Nickname(), "server", cfg.Stranger.Server)

	if cfg.Bridge.AutoConnect {
		relay.Connect(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	relay.Close()
	cancel()
}
