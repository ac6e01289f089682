package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

type AppConfig struct {
	ListenAddr string

	RedisURL    string
	DatabaseURL string

	AuthVerifyURL string
	AuthSecret    string

	RatingDelta    int
	ExperienceWin  int64
	ExperienceLoss int64
	LevelsDir      string

	MaxStake int64

	// Starting balance granted by the in-memory account store when no
	// Redis balance backend is configured. Development only.
	DevStartingBalance int64
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:         ":8080",
		RatingDelta:        25,
		ExperienceWin:      100,
		ExperienceLoss:     25,
		MaxStake:           1_000_000,
		DevStartingBalance: 0,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	cfg.AuthVerifyURL = strings.TrimSpace(os.Getenv("AUTH_VERIFY_URL"))
	cfg.AuthSecret = strings.TrimSpace(os.Getenv("AUTH_SECRET"))

	if v := strings.TrimSpace(os.Getenv("RATING_DELTA")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RatingDelta = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("EXPERIENCE_WIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.ExperienceWin = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("EXPERIENCE_LOSS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			cfg.ExperienceLoss = n
		}
	}
	cfg.LevelsDir = strings.TrimSpace(os.Getenv("SETTLE_LEVELS_DIR"))

	if v := strings.TrimSpace(os.Getenv("MAX_STAKE")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.MaxStake = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("DEV_STARTING_BALANCE")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			cfg.DevStartingBalance = n
		}
	}

	if cfg.AuthVerifyURL == "" && cfg.AuthSecret == "" {
		return nil, errors.New("AUTH_VERIFY_URL or AUTH_SECRET is required")
	}

	return cfg, nil
}
