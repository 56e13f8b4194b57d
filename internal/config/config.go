// Package config loads server tuning from the environment, with an optional
// .env file for development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr string

	// Lifecycle timing.
	Countdown    time.Duration
	GraceWindow  time.Duration
	ResultsIdle  time.Duration
	AFKThreshold time.Duration

	// Plumbing sizes.
	SendQueueSize   int
	RoomInboxSize   int
	MaxAlternatives int

	Debug bool
}

func Default() Config {
	return Config{
		Addr:            ":8080",
		Countdown:       5 * time.Second,
		GraceWindow:     30 * time.Second,
		ResultsIdle:     15 * time.Second,
		AFKThreshold:    2 * time.Minute,
		SendQueueSize:   64,
		RoomInboxSize:   256,
		MaxAlternatives: 3,
	}
}

// Load reads .env if present (missing file is fine outside dev) and applies
// environment overrides on top of the defaults.
func Load() Config {
	_ = godotenv.Load()

	cfg := Default()
	cfg.Addr = envString("ARCADE_ADDR", cfg.Addr)
	cfg.Countdown = envDuration("ARCADE_COUNTDOWN", cfg.Countdown)
	cfg.GraceWindow = envDuration("ARCADE_GRACE_WINDOW", cfg.GraceWindow)
	cfg.ResultsIdle = envDuration("ARCADE_RESULTS_IDLE", cfg.ResultsIdle)
	cfg.AFKThreshold = envDuration("ARCADE_AFK_THRESHOLD", cfg.AFKThreshold)
	cfg.SendQueueSize = envInt("ARCADE_SEND_QUEUE", cfg.SendQueueSize)
	cfg.RoomInboxSize = envInt("ARCADE_ROOM_INBOX", cfg.RoomInboxSize)
	cfg.MaxAlternatives = envInt("ARCADE_MAX_ALTERNATIVES", cfg.MaxAlternatives)
	cfg.Debug = envBool("ARCADE_DEBUG", cfg.Debug)
	return cfg
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
