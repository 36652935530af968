package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"orbitstudio/internal/emulator"
	"orbitstudio/internal/infra"
	"orbitstudio/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg := infra.LoadEmulatorConfig()
	logger := infra.NewLogger(cfg.AppEnv, "veoemu")

	store, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare storage")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := emulator.New(emulator.Options{
		Store:        store,
		PendingPolls: cfg.PendingPolls,
		MaxFinished:  cfg.MaxFinished,
		MaxPending:   cfg.MaxPending,
		Logger:       &logger,
	})
	server := infra.NewHTTPServer(cfg.Port, srv.Handler(), infra.ServerTimeouts{
		Read:  30 * time.Second,
		Write: 30 * time.Second,
		Idle:  60 * time.Second,
	}, &logger)

	logger.Info().
		Str("storage", store.BasePath()).
		Int("pending_polls", cfg.PendingPolls).
		Msg("veo emulator starting")
	if err := server.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("http server failed")
	}
}
