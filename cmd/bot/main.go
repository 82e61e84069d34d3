package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/pastelaria/aluminio-bot/internal/bot"
	"github.com/pastelaria/aluminio-bot/internal/config"
	"github.com/pastelaria/aluminio-bot/internal/events/kafka"
	"github.com/pastelaria/aluminio-bot/internal/interfaces"
	"github.com/pastelaria/aluminio-bot/internal/ledger"
	"github.com/pastelaria/aluminio-bot/internal/queue"
	"github.com/pastelaria/aluminio-bot/internal/reconciler"
	"github.com/pastelaria/aluminio-bot/internal/reset"
	"github.com/pastelaria/aluminio-bot/internal/storage/postgres"
	"github.com/pastelaria/aluminio-bot/internal/storage/sheets"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The store may be down at boot; the process still comes up and the
	// reconciler keeps retrying the connection.
	var store interfaces.SheetStore
	switch cfg.Backend {
	case config.BackendPostgres:
		store, err = postgres.Connect(cfg.PostgresDSN)
	default:
		store, err = sheets.Connect(ctx, cfg.Credentials, cfg.SpreadsheetID)
	}
	if err != nil {
		log.Error().Err(err).Str("backend", cfg.Backend).
			Msg("store connection failed, will keep retrying")
	} else {
		log.Info().Str("backend", cfg.Backend).Msg("store connected")
	}

	q, err := queue.Open(cfg.DataDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("pending queue")
	}

	var publisher interfaces.EventPublisher = interfaces.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := kafka.NewPublisher(cfg.KafkaBrokers)
		defer kp.Close()
		publisher = kp
		log.Info().Strs("brokers", cfg.KafkaBrokers).Msg("event publishing enabled")
	}

	led := ledger.New(store, q, publisher, log)
	coordinator := reset.NewCoordinator(store, cfg.ControlPanel, cfg.ResetHour, log)
	rec := reconciler.New(store, q, led, coordinator, cfg.DrainInterval, log)

	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		log.Fatal().Err(err).Msg("discord session")
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentGuildMessages | discordgo.IntentMessageContent
	// rate-limited replies are resent once by the handler itself
	session.ShouldRetryOnRateLimit = false

	bot.NewHandler(led, coordinator, log).Attach(session)

	var discordReady atomic.Bool
	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		discordReady.Store(true)
		log.Info().Str("user", r.User.Username).Msg("discord connected")
		// catch up on anything that accumulated while offline, and run the
		// startup reset check
		go rec.RunOnce(ctx)
	})
	session.AddHandler(func(*discordgo.Session, *discordgo.Disconnect) {
		discordReady.Store(false)
		log.Warn().Msg("discord disconnected")
	})

	if err := session.Open(); err != nil {
		log.Fatal().Err(err).Msg("discord connect")
	}
	defer session.Close()

	srv := healthServer(cfg.Port, &discordReady, store, log)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server")
		}
	}()

	go rec.Run(ctx)

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server shutdown")
	}
	log.Info().Msg("bye")
}

// healthServer exposes the liveness surface the process supervisor polls.
func healthServer(port string, discordReady *atomic.Bool, store interfaces.SheetStore, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("✅ Bot está rodando!"))
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		status := struct {
			DiscordConnected bool      `json:"discord_connected"`
			SheetsConnected  bool      `json:"sheets_connected"`
			Timestamp        time.Time `json:"timestamp"`
		}{
			DiscordConnected: discordReady.Load(),
			SheetsConnected:  store.Connected(),
			Timestamp:        time.Now(),
		}
		w.Header().Set("Content-Type", "application/json")
		if !status.DiscordConnected || !status.SheetsConnected {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Error().Err(err).Msg("encode health response")
		}
	})
	return &http.Server{Addr: ":" + port, Handler: mux}
}
