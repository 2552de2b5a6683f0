// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all process-level settings. Values come from environment
// variables (loaded via godotenv autoload in each main) with sane defaults
// for local development.
type Config struct {
	Port       string
	CORSOrigin string

	RedisAddr string
	RedisDB   int

	PostgresUser     string
	PostgresPassword string
	PGHost           string
	PGPort           string
	PGDatabase       string

	// Lobby housekeeping.
	LobbySweepInterval time.Duration // how often the idle sweep runs
	LobbyIdleTTL       time.Duration // lobbies older than this (and not in a game) are evicted
	DisconnectGrace    time.Duration // how long a dropped player is kept before removal
}

// Load reads the environment and returns a populated Config.
func Load() Config {
	return Config{
		Port:       getEnv("PORT", "8080"),
		CORSOrigin: getEnv("CORS_ORIGIN", "*"),

		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:   getEnvInt("REDIS_DB", 0),

		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PGHost:           getEnv("PG_HOST", "localhost"),
		PGPort:           getEnv("PG_PORT", "5432"),
		PGDatabase:       getEnv("PG_DATABASE", "barrage"),

		LobbySweepInterval: getEnvDuration("LOBBY_SWEEP_INTERVAL", 5*time.Minute),
		LobbyIdleTTL:       getEnvDuration("LOBBY_IDLE_TTL", 30*time.Minute),
		DisconnectGrace:    getEnvDuration("DISCONNECT_GRACE", 30*time.Second),
	}
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// getEnvDuration parses an environment variable with time.ParseDuration, else a default.
func getEnvDuration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
