package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/verdikta/verdikta-applications-sub002/config"
	"github.com/verdikta/verdikta-applications-sub002/internal/adapters/chain"
	"github.com/verdikta/verdikta-applications-sub002/internal/adapters/metadata"
	"github.com/verdikta/verdikta-applications-sub002/internal/adapters/pinner"
	"github.com/verdikta/verdikta-applications-sub002/internal/core"
	"github.com/verdikta/verdikta-applications-sub002/internal/data/filestore"
	"github.com/verdikta/verdikta-applications-sub002/internal/data/pgstore"
	"github.com/verdikta/verdikta-applications-sub002/internal/observability/statsd"
)

// Adapters holds the shared infrastructure the services are wired against.
type Adapters struct {
	Store    core.Store
	Chain    *chain.Adapter
	Pins     *pinner.Client
	Metadata *metadata.Fetcher
	Metrics  *statsd.Client

	pool  *pgxpool.Pool
	redis *redis.Client
}

// NewAdapters connects every configured backend. Callers must Close the
// returned adapters on shutdown.
func NewAdapters(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*Adapters, error) {
	a := &Adapters{}

	metrics, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.Observability.Metrics.IsEnabled(),
		Address: cfg.Observability.Metrics.StatsdAddress,
		Prefix:  cfg.Observability.Metrics.Prefix,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect statsd: %w", err)
	}
	a.Metrics = metrics

	store, err := a.connectStore(ctx, cfg, logger)
	if err != nil {
		a.Close(ctx, logger)
		return nil, err
	}
	a.Store = store

	if cfg.IsSyncEnabled() {
		chainAdapter, err := chain.New(chain.Options{
			RPCURL:                    cfg.Chain.RPCURL,
			ContractAddress:           cfg.Chain.ContractAddress,
			EvaluationContractAddress: cfg.Chain.EvaluationContractAddress,
			CallTimeout:               cfg.Chain.CallTimeout,
			Logger:                    logger,
		})
		if err != nil {
			a.Close(ctx, logger)
			return nil, fmt.Errorf("connect chain: %w", err)
		}
		a.Chain = chainAdapter

		var cache redis.UniversalClient
		if cfg.Redis.Enabled {
			a.redis = redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr(),
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			cache = a.redis
		}
		a.Metadata = metadata.New(metadata.Options{
			Gateways:        cfg.Metadata.Gateways,
			SyntheticPrefix: cfg.Metadata.SyntheticCIDPrefix,
			Timeout:         cfg.Metadata.GatewayTimeout(),
			Cache:           cache,
			CacheTTL:        cfg.Metadata.CacheTTL,
			Logger:          logger,
		})
	}

	if cfg.IsArchiveEnabled() {
		pins, err := pinner.New(pinner.Options{
			BaseURL: cfg.Archive.PinServiceURL,
			Token:   cfg.Archive.PinServiceToken,
			Timeout: cfg.Archive.RequestTimeout,
			Logger:  logger,
		})
		if err != nil {
			a.Close(ctx, logger)
			return nil, fmt.Errorf("connect pin service: %w", err)
		}
		a.Pins = pins
	}

	return a, nil
}

func (a *Adapters) connectStore(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (core.Store, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.Store.DSN())
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.pool = pool
		store, err := pgstore.New(ctx, pgstore.Options{Pool: pool, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("init pgstore: %w", err)
		}
		return store, nil
	default:
		store, err := filestore.New(filestore.Options{Path: cfg.Store.Path, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("init filestore: %w", err)
		}
		return store, nil
	}
}

// Close releases every connected backend.
func (a *Adapters) Close(ctx context.Context, logger *slog.Logger) {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && logger != nil {
			logger.ErrorContext(ctx, "close redis failed", "error", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.Metrics != nil {
		if err := a.Metrics.Close(); err != nil && logger != nil {
			logger.ErrorContext(ctx, "close statsd failed", "error", err)
		}
	}
}
