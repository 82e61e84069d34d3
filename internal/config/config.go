// Package config loads the process configuration from the environment, with
// an optional .env file for local runs.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/pastelaria/aluminio-bot/internal/reconciler"
	"github.com/pastelaria/aluminio-bot/internal/reset"
)

// Backends selectable via LEDGER_BACKEND.
const (
	BackendSheets   = "sheets"
	BackendPostgres = "postgres"
)

type Config struct {
	DiscordToken string

	// Credentials is the decoded service-account JSON; the env var carries
	// it base64-encoded, as the deployment provisions it.
	Credentials   []byte
	SpreadsheetID string
	ControlPanel  string

	Backend     string
	PostgresDSN string

	DataDir       string
	Port          string
	ResetHour     int
	DrainInterval time.Duration

	KafkaBrokers []string
}

// Load reads the environment. A missing .env file is not an error.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		DiscordToken:  os.Getenv("DISCORD_TOKEN"),
		SpreadsheetID: os.Getenv("SHEET_ID"),
		ControlPanel:  envOr("PAINEL_CONTROLE", "PAINEL DE CONTROLE"),
		Backend:       envOr("LEDGER_BACKEND", BackendSheets),
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		DataDir:       envOr("DATA_DIR", "/app/data"),
		Port:          envOr("PORT", "8080"),
		ResetHour:     reset.DefaultHour,
		DrainInterval: reconciler.DefaultInterval,
	}

	if cfg.DiscordToken == "" {
		return cfg, fmt.Errorf("config: DISCORD_TOKEN is required")
	}

	switch cfg.Backend {
	case BackendSheets:
		raw := os.Getenv("GOOGLE_CREDENTIALS")
		if raw == "" {
			return cfg, fmt.Errorf("config: GOOGLE_CREDENTIALS is required for the sheets backend")
		}
		creds, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return cfg, fmt.Errorf("config: decode GOOGLE_CREDENTIALS: %w", err)
		}
		cfg.Credentials = creds
		if cfg.SpreadsheetID == "" {
			return cfg, fmt.Errorf("config: SHEET_ID is required for the sheets backend")
		}
	case BackendPostgres:
		if cfg.PostgresDSN == "" {
			return cfg, fmt.Errorf("config: POSTGRES_DSN is required for the postgres backend")
		}
	default:
		return cfg, fmt.Errorf("config: unknown LEDGER_BACKEND %q", cfg.Backend)
	}

	if v := os.Getenv("RESET_HOUR"); v != "" {
		hour, err := strconv.Atoi(v)
		if err != nil || hour < 0 || hour > 23 {
			return cfg, fmt.Errorf("config: invalid RESET_HOUR %q", v)
		}
		cfg.ResetHour = hour
	}

	if v := os.Getenv("DRAIN_INTERVAL_MINUTES"); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil || minutes <= 0 {
			return cfg, fmt.Errorf("config: invalid DRAIN_INTERVAL_MINUTES %q", v)
		}
		cfg.DrainInterval = time.Duration(minutes) * time.Minute
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
