package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Venue endpoints and credentials (yaml)
	VenuesConfigPath string

	// Engine
	CallTimeout       time.Duration
	PlaceAttempts     int
	HedgeAttempts     int
	QueryAttempts     int
	CancelAttempts    int
	SettleAttempts    int
	CancelSettle      time.Duration
	RetryBase         time.Duration
	RetryMax          time.Duration
	ReconnectGrace    time.Duration
	FirstQuoteTimeout time.Duration

	// Observability
	JournalPath       string
	StatusAddr        string
	DiscordWebhookURL string

	// Telemetry
	LogLevel string
}

func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		VenuesConfigPath: envStr("VENUES_CONFIG_PATH", "venues.yaml"),

		CallTimeout:       envMillis("CALL_TIMEOUT_MS", 5000),
		PlaceAttempts:     envInt("PLACE_ATTEMPTS", 3),
		HedgeAttempts:     envInt("HEDGE_ATTEMPTS", 5),
		QueryAttempts:     envInt("QUERY_ATTEMPTS", 3),
		CancelAttempts:    envInt("CANCEL_ATTEMPTS", 3),
		SettleAttempts:    envInt("SETTLE_ATTEMPTS", 5),
		CancelSettle:      envMillis("CANCEL_SETTLE_MS", 250),
		RetryBase:         envMillis("RETRY_BASE_MS", 200),
		RetryMax:          envMillis("RETRY_MAX_MS", 5000),
		ReconnectGrace:    envMillis("RECONNECT_GRACE_MS", 3000),
		FirstQuoteTimeout: time.Duration(envInt("FIRST_QUOTE_TIMEOUT_SEC", 15)) * time.Second,

		JournalPath:       envStr("JOURNAL_PATH", "data/journal.db"),
		StatusAddr:        envStr("STATUS_ADDR", ""),
		DiscordWebhookURL: envStr("DISCORD_WEBHOOK_URL", ""),

		LogLevel: envStr("LOG_LEVEL", "info"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}
