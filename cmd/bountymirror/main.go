package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/verdikta/verdikta-applications-sub002/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "starting bounty mirror service",
		"contract_address", cfg.Chain.ContractAddress,
		"store_driver", cfg.Store.Driver,
		"sync_interval", cfg.Chain.SyncInterval(),
		"enabled_services", bootstrap.EnabledServiceNames(&cfg),
	)

	if err := bootstrap.ValidateServiceConfig(&cfg); err != nil {
		return err
	}

	adapters, err := bootstrap.NewAdapters(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer adapters.Close(ctx, logger)

	services, err := bootstrap.NewServices(&cfg, adapters, logger)
	if err != nil {
		return err
	}

	return bootstrap.RunWithShutdown(ctx, services, logger)
}
