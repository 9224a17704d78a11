package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"elite-store-api/app"
	"elite-store-api/config"
	"elite-store-api/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup(os.Stderr, "info", false)
		log.Fatal().Err(err).Msg("config error")
	}
	logging.Setup(os.Stderr, cfg.LogLevel, cfg.IsProduction())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("startup error")
	}

	runErr := a.Run(ctx)

	t := a.Totals.Total()
	log.Info().
		Int64("allowed", t.Allowed).
		Int64("throttled", t.Throttled).
		Int64("blocked", t.Blocked).
		Int64("busy", t.Busy).
		Msg("admission totals")

	if runErr != nil {
		log.Error().Err(runErr).Msg("exiting")
		cancel()
		os.Exit(1)
	}
}
