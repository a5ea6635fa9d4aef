package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/snarg/scanmap/internal/api"
	"github.com/snarg/scanmap/internal/apikeys"
	"github.com/snarg/scanmap/internal/config"
	"github.com/snarg/scanmap/internal/database"
	"github.com/snarg/scanmap/internal/discord"
	"github.com/snarg/scanmap/internal/extract"
	"github.com/snarg/scanmap/internal/geocode"
	"github.com/snarg/scanmap/internal/ingest"
	"github.com/snarg/scanmap/internal/livefeed"
	"github.com/snarg/scanmap/internal/llm"
	"github.com/snarg/scanmap/internal/storage"
	"github.com/snarg/scanmap/internal/summary"
	"github.com/snarg/scanmap/internal/transcribe"
)

var version = "dev"

func main() {
	startTime := time.Now()

	// Config
	cfg, err := config.Load()
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("scanmap starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	dbLog := log.With().Str("component", "database").Logger()
	db, err := database.Connect(ctx, database.PoolOptions{
		URL:      cfg.DatabaseURL,
		MaxConns: int32(cfg.DBMaxConns),
		MinConns: int32(cfg.DBMinConns),
	}, dbLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	if err := db.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to initialise schema")
	}
	if cfg.TalkgroupCSV != "" {
		n, err := db.ImportTalkgroupCSV(ctx, cfg.TalkgroupCSV)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.TalkgroupCSV).Msg("talkgroup csv import failed")
		}
		log.Info().Int("talkgroups", n).Msg("talkgroup csv imported")
	}

	// Upload API keys, hot-reloaded on file change
	keys, err := apikeys.Load(cfg.APIKeyFile, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load api keys")
	}
	if err := keys.Watch(ctx); err != nil {
		log.Warn().Err(err).Msg("api key watcher unavailable, keys are static")
	}

	// Audio store and retention GC
	store, err := storage.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise audio storage")
	}
	pruner := storage.NewPruner(store, cfg.AudioRetentionDays, db.PruneAudioBlobs, log)
	pruner.Start()
	defer pruner.Stop()

	// LLM, extractor, geocoder
	completer, err := llm.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise llm client")
	}
	extractor := extract.New(completer, cfg.GeocodingState, cfg.GeocodingCity, log)
	geocoder, err := geocode.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise geocoder")
	}

	// Live event bus
	bus := livefeed.NewEventBus(256)

	// Discord bot (optional)
	var bot *discord.Bot
	var notifier ingest.Notifier
	if cfg.DiscordToken != "" {
		bot, err = discord.NewBot(discord.BotOptions{
			Config: cfg,
			DB:     db,
			LLM:    completer,
			Store:  store,
			Log:    log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create discord bot")
		}
		notifier = bot.Fanout()
	}

	// Pipeline and transcription queue
	pipeline := ingest.NewPipeline(ingest.Options{
		Config:    cfg,
		DB:        db,
		Store:     store,
		Extractor: extractor,
		Geocoder:  geocoder,
		Publisher: bus,
		Notifier:  notifier,
		Log:       log,
	})

	provider, err := transcribe.NewProvider(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise transcription backend")
	}
	if lp, ok := provider.(*transcribe.LocalProc); ok {
		if err := lp.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start local asr child")
		}
		defer lp.Stop()
	}
	queue := transcribe.NewQueue(transcribe.QueueOptions{
		Provider:  provider,
		Store:     store,
		Workers:   cfg.MaxConcurrent,
		QueueSize: 256,
		Timeout:   cfg.TranscriptionTimeout,
		OnResult:  pipeline.OnTranscribed,
		Log:       log,
	})
	queue.Start()
	defer queue.Stop()
	pipeline.SetQueue(queue)

	// Background loops: pollers and summariser
	g, gctx := errgroup.WithContext(ctx)
	classifier := livefeed.NewClassifier(completer, log)
	mapPoller := livefeed.NewMapPoller(db, bus, classifier.Classify, log)
	feedPoller := livefeed.NewFeedPoller(db, bus, log)
	g.Go(func() error { return mapPoller.Run(gctx) })
	g.Go(func() error { return feedPoller.Run(gctx) })

	if bot != nil {
		if err := bot.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to start discord bot")
		}
		defer bot.Stop()
	}

	var publisher summary.Publisher
	if bot != nil && cfg.SummaryChannelID != "" {
		publisher = discord.NewSummaryChannel(bot.Session(), cfg.SummaryChannelID, cfg.Location(), log)
	}
	summariser := summary.New(summary.Options{
		DB:        db,
		LLM:       completer,
		Publisher: publisher,
		Location:  cfg.Location(),
		Lookback:  time.Duration(cfg.SummaryLookbackHrs * float64(time.Hour)),
		JSONPath:  cfg.SummaryJSONPath,
		Log:       log,
	})
	g.Go(func() error { return summariser.Run(gctx) })

	// HTTP Server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(api.ServerOptions{
		Config:    cfg,
		DB:        db,
		Store:     store,
		Keys:      keys,
		Pipeline:  pipeline,
		Bus:       bus,
		Version:   version,
		StartTime: startTime,
		Log:       httpLog,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	stop()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("background loop error")
	}

	log.Info().Msg("scanmap stopped")
}
