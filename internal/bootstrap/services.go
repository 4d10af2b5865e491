package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/verdikta/verdikta-applications-sub002/config"
	"github.com/verdikta/verdikta-applications-sub002/internal/adapters/syncrunner"
	"github.com/verdikta/verdikta-applications-sub002/internal/domain/status"
	"github.com/verdikta/verdikta-applications-sub002/internal/service"
)

// Services holds the constructed service layer.
type Services struct {
	Reconciler *service.Reconciler
	Sweeper    *service.Sweeper
	Mutators   *service.Mutators
	Runner     *syncrunner.Runner
}

// NewServices wires the service layer against the connected adapters.
func NewServices(cfg *config.AppConfig, adapters *Adapters, logger *slog.Logger) (*Services, error) {
	s := &Services{}

	var mapper *status.Mapper
	if adapters.Chain != nil {
		mapper = status.NewMapper(status.MapperOptions{
			Evaluations: adapters.Chain,
			Logger:      logger,
		})
	}

	if cfg.IsSyncEnabled() {
		reconciler, err := service.NewReconciler(service.ReconcilerOptions{
			Store:           adapters.Store,
			Chain:           adapters.Chain,
			Mapper:          mapper,
			Metadata:        adapters.Metadata,
			ContractAddress: cfg.Chain.ContractAddress,
			Logger:          logger,
			Metrics:         adapters.Metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("init reconciler: %w", err)
		}
		s.Reconciler = reconciler

		mutators, err := service.NewMutators(service.MutatorsOptions{
			Store:             adapters.Store,
			Chain:             adapters.Chain,
			Receipts:          adapters.Chain,
			Mapper:            mapper,
			ContractAddress:   cfg.Chain.ContractAddress,
			AfterRetrievalTTL: cfg.Archive.AfterRetrievalTTL(),
			ScanWindow:        cfg.Chain.ResolveScanWindow,
			Logger:            logger,
			Metrics:           adapters.Metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("init mutators: %w", err)
		}
		s.Mutators = mutators
	}

	if cfg.IsArchiveEnabled() {
		sweeper, err := service.NewSweeper(service.SweeperOptions{
			Store:          adapters.Store,
			Pins:           adapters.Pins,
			TTL:            cfg.Archive.TTL(),
			VerifyInterval: cfg.Archive.VerifyInterval(),
			RateLimit:      cfg.Archive.RateLimit(),
			Logger:         logger,
			Metrics:        adapters.Metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("init sweeper: %w", err)
		}
		s.Sweeper = sweeper
	}

	if s.Reconciler != nil {
		runner, err := syncrunner.New(syncrunner.Options{
			Syncer:      s.Reconciler,
			Sweeper:     sweeperOrNil(s.Sweeper),
			Interval:    cfg.Chain.SyncInterval(),
			MaxFailures: cfg.Chain.MaxConsecutiveFailures,
			Logger:      logger,
			Metrics:     adapters.Metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("init sync runner: %w", err)
		}
		s.Runner = runner
	}

	return s, nil
}

// sweeperOrNil avoids storing a typed-nil inside the runner's interface field.
func sweeperOrNil(s *service.Sweeper) syncrunner.ArchiveSweeper {
	if s == nil {
		return nil
	}
	return s
}

// RunWithShutdown runs the enabled service loops until SIGINT/SIGTERM.
func RunWithShutdown(ctx context.Context, services *Services, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	started := false
	if services.Runner != nil {
		started = true
		group.Go(func() error {
			return services.Runner.Run(groupCtx)
		})
	}

	if !started {
		// Archive-only deployments still need a parked loop so the process
		// serves mutator traffic until signalled.
		group.Go(func() error {
			<-groupCtx.Done()
			return nil
		})
	}

	if logger != nil {
		logger.InfoContext(ctx, "services running, waiting for shutdown signal")
	}
	return group.Wait()
}
