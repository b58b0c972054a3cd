package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// config is read from the environment; a .env file in the working directory
// is loaded first when present.
type config struct {
	StoreDriver   string
	DBURL         string
	SQLitePath    string
	ListenAddr    string
	JWTSecret     string
	DefaultTZ     *time.Location
	OpenAIBaseURL string
	OpenAIAPIKey  string
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadConfig() (config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("[loadConfig] no .env file loaded: %v", err)
	}

	cfg := config{
		StoreDriver:   getenv("STORE_DRIVER", "postgres"),
		DBURL:         os.Getenv("DB_URL"),
		SQLitePath:    getenv("SQLITE_PATH", "nutrition.db"),
		ListenAddr:    getenv("LISTEN_ADDR", "localhost:3000"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		OpenAIBaseURL: getenv("OPENAI_BASE_URL", "https://api.openai.com"),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
	}

	tz := getenv("DEFAULT_TZ", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return config{}, fmt.Errorf("invalid DEFAULT_TZ %q: %w", tz, err)
	}
	cfg.DefaultTZ = loc

	if cfg.JWTSecret == "" {
		return config{}, fmt.Errorf("JWT_SECRET not set")
	}
	if cfg.OpenAIAPIKey == "" {
		log.Println("[loadConfig] OPENAI_API_KEY not set, /api/ledger/suggest will fail")
	}
	if cfg.StoreDriver == "postgres" && cfg.DBURL == "" {
		return config{}, fmt.Errorf("DB_URL not set (required for STORE_DRIVER=postgres)")
	}
	return cfg, nil
}
