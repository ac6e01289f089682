package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	appcfg "github.com/mintgrid/checkers-arena/internal/config"
	"github.com/mintgrid/checkers-arena/internal/gateway"
	"github.com/mintgrid/checkers-arena/internal/ledger"
	"github.com/mintgrid/checkers-arena/internal/lobby"
	"github.com/mintgrid/checkers-arena/internal/obslog"
	"github.com/mintgrid/checkers-arena/internal/record"
	"github.com/mintgrid/checkers-arena/internal/settle"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = obslog.L().Sync() }()

	// Balance store: Redis in production, in-memory when no REDIS_URL is
	// set (development only).
	var store ledger.AccountStore
	var redisStore *ledger.RedisStore
	if cfg.RedisURL != "" {
		redisStore, err = ledger.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis init error: %v", err)
		}
		store = redisStore
	} else {
		obslog.L().Warn("memory_account_store", zap.Int64("starting_balance", cfg.DevStartingBalance))
		store = ledger.NewMemoryStore(cfg.DevStartingBalance)
	}

	var repo record.Repository
	if cfg.DatabaseURL != "" {
		repo, err = record.NewRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("repository init error: %v", err)
		}
	} else {
		obslog.L().Warn("memory_repository")
		repo = record.NewMemoryRepository()
	}

	levels, err := settle.LoadLevelTable(cfg.LevelsDir)
	if err != nil {
		log.Fatalf("level table error: %v", err)
	}

	var verifier gateway.Verifier
	if cfg.AuthVerifyURL != "" {
		verifier = gateway.NewRemoteVerifier(cfg.AuthVerifyURL)
	} else {
		obslog.L().Warn("static_token_verifier")
		verifier = gateway.NewStaticVerifier(cfg.AuthSecret)
	}

	hub := gateway.NewHub()
	l := ledger.New(store, repo)
	settler := settle.NewService(l, repo, levels, hub, cfg.RatingDelta, cfg.ExperienceWin, cfg.ExperienceLoss)
	coord := lobby.NewCoordinator(l, repo, settler, hub, cfg.MaxStake)
	srv := gateway.NewServer(cfg.ListenAddr, verifier, hub, coord, settler)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		obslog.L().Error("server_error", zap.Error(err))
	}
	if redisStore != nil {
		_ = redisStore.Close()
	}
	obslog.L().Info("shutdown_complete")
}
