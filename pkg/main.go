package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	pkg "git.solsynth.dev/hypernet/chatsync/pkg/internal"
	"git.solsynth.dev/hypernet/chatsync/pkg/internal/blob"
	"git.solsynth.dev/hypernet/chatsync/pkg/internal/cache"
	"git.solsynth.dev/hypernet/chatsync/pkg/internal/database"
	"git.solsynth.dev/hypernet/chatsync/pkg/internal/pubsub"
	"git.solsynth.dev/hypernet/chatsync/pkg/internal/server"
	"git.solsynth.dev/hypernet/chatsync/pkg/internal/services"
	"git.solsynth.dev/hypernet/chatsync/pkg/internal/translate"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
}

type transport interface {
	services.Transport
	services.Publisher
}

func main() {
	// Configure settings
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.SetConfigName("settings")
	viper.SetConfigType("toml")

	viper.SetDefault("realtime.topic_prefix", "chatsync:")
	viper.SetDefault("realtime.reconnect_interval", services.DefaultReconnectInterval)
	viper.SetDefault("messages.window", services.DefaultViewWindow)
	viper.SetDefault("messages.history", services.DefaultHistorySize)
	viper.SetDefault("messages.attachment_placeholder", services.DefaultAttachmentPlaceholder)
	viper.SetDefault("notifier.cooldown", services.DefaultNotifierCooldown)
	viper.SetDefault("translate.timeout", translate.DefaultTimeout)
	viper.SetDefault("translate.cache_ttl", translate.DefaultCacheTTL)
	viper.SetDefault("cleanup.retention", services.DefaultCleanupRetention)

	// Load settings
	if err := viper.ReadInConfig(); err != nil {
		log.Panic().Err(err).Msg("An error occurred when loading settings.")
	}
	if viper.GetBool("debug.logging") {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// Connect to database
	if err := database.NewSource(); err != nil {
		log.Fatal().Err(err).Msg("An error occurred when connect to database.")
	} else if err := database.RunMigration(database.C); err != nil {
		log.Fatal().Err(err).Msg("An error occurred when running database auto migration.")
	}

	// Connect realtime transport
	var rdb *redis.Client
	var bus transport
	switch viper.GetString("realtime.driver") {
	case "redis":
		rdb = redis.NewClient(&redis.Options{Addr: viper.GetString("realtime.redis_addr")})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatal().Err(err).Msg("An error occurred when connecting to redis.")
		}
		bus = pubsub.NewRedisTransport(rdb)
	default:
		bus = pubsub.NewHub()
	}

	// Initialize cache
	if err := cache.NewCache(rdb); err != nil {
		log.Fatal().Err(err).Msg("An error occurred when initializing cache.")
	}

	// Assemble services
	repo := database.NewRepository(database.C, bus, viper.GetString("realtime.topic_prefix"))
	resolver := services.NewReplyResolver(repo)
	linker := services.NewAttachmentLinker(repo, blob.NewFsStorage(), viper.GetString("messages.attachment_placeholder"))

	var translator services.Translator
	if len(viper.GetString("translate.endpoint")) > 0 {
		translator = translate.NewCached(translate.NewLibreClient(), cache.S, viper.GetDuration("translate.cache_ttl"))
	}

	subscriberCfg := services.SubscriberConfig{
		TopicPrefix:       viper.GetString("realtime.topic_prefix"),
		ReconnectInterval: viper.GetDuration("realtime.reconnect_interval"),
	}
	conversationCfg := services.ConversationConfig{
		Window:           viper.GetInt("messages.window"),
		History:          viper.GetInt("messages.history"),
		NotifierCooldown: viper.GetDuration("notifier.cooldown"),
	}
	services.CleanupRetention = viper.GetDuration("cleanup.retention")

	pool := services.NewConversationPool(func(authorID string) *services.Conversation {
		conv := services.NewConversation(authorID, services.ConversationDeps{
			Persist:    repo,
			Linker:     linker,
			Resolver:   resolver,
			Subscriber: services.NewRealtimeSubscriber(bus, repo, resolver, subscriberCfg),
			Translator: translator,
		}, conversationCfg)
		conv.OnNotice(func(notice services.Notice) {
			log.Warn().Err(notice.Err).
				Str("session", notice.SessionID).
				Str("author", authorID).
				Int("suppressed", notice.Suppressed).
				Msgf("Conversation notice %s", notice.Kind)
		})
		return conv
	})

	// Server
	app := server.NewServer(pool)
	go app.Listen()

	// Configure timed tasks
	quartz := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(&log.Logger)))
	quartz.AddFunc("@every 60m", services.DoAutoDatabaseCleanup)
	quartz.Start()

	// Messages
	log.Info().Msgf("ChatSync v%s is started...", pkg.AppVersion)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msgf("ChatSync v%s is quitting...", pkg.AppVersion)

	quartz.Stop()
	pool.CloseAll()
	if err := app.Shutdown(); err != nil {
		log.Error().Err(err).Msg("An error occurred when shutting down server...")
	}
	if rdb != nil {
		_ = rdb.Close()
	}
}
