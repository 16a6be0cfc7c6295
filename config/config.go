package config

import (
	"os"
	"strconv"
	"time"
)

// Feature flags, set once in main before the server starts.
var EnableWebsocketEvents bool

type Config struct {
	Port string

	// Postgres URL for the whatsmeow credential container. Required.
	CredentialDBURL string

	// Optional Postgres URL for the session metadata store. When empty the
	// store falls back to a JSON file at SessionsFile.
	SessionsDBURL string
	SessionsFile  string

	// Reconnect backoff: delay = min(Base * attempts, Max).
	ReconnectBase time.Duration
	ReconnectMax  time.Duration

	// How long the start endpoint waits for a pairing result before telling
	// the caller to watch the websocket instead.
	PairingTimeout time.Duration

	JWTSecret         string
	AdminUsername     string
	AdminPasswordHash string
}

func Load() *Config {
	return &Config{
		Port:              GetEnv("PORT", "2121"),
		CredentialDBURL:   os.Getenv("DATABASE_URL"),
		SessionsDBURL:     os.Getenv("SESSIONS_DATABASE_URL"),
		SessionsFile:      GetEnv("SESSIONS_FILE", "sessions.json"),
		ReconnectBase:     time.Duration(GetEnvAsInt("RECONNECT_BASE_SECONDS", 5)) * time.Second,
		ReconnectMax:      time.Duration(GetEnvAsInt("RECONNECT_MAX_SECONDS", 60)) * time.Second,
		PairingTimeout:    time.Duration(GetEnvAsInt("PAIRING_TIMEOUT_SECONDS", 90)) * time.Second,
		JWTSecret:         os.Getenv("JWT_SECRET"),
		AdminUsername:     GetEnv("ADMIN_USERNAME", "admin"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
	}
}

func GetEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func GetEnvAsInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
