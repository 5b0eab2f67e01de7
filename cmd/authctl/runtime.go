package main

import (
	"context"
	"fmt"
	"os"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/config"
	"github.com/MrEthical07/authcore/sso"
	"github.com/MrEthical07/authcore/store/memstore"
	"github.com/MrEthical07/authcore/store/pgstore"
	"github.com/MrEthical07/authcore/store/redisstore"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// backend is the storage selected by config plus what must be closed on exit.
type backend struct {
	storage authcore.Storage
	redis   redis.UniversalClient
	closers []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackend(ctx context.Context, cfg *config.Config, log *zap.Logger) (*backend, error) {
	b := &backend{}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.redis = client
		b.closers = append(b.closers, func() { _ = client.Close() })
	}

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		log.Warn("using in-memory storage; data is lost on exit")
		b.storage = memstore.New()

	case config.DriverRedis:
		store := redisstore.New(b.redis, redisstore.WithPrefix(cfg.Redis.Prefix))
		if err := store.Ping(ctx); err != nil {
			b.Close()
			return nil, err
		}
		b.storage = store

	case config.DriverPostgres:
		store, err := pgstore.Open(ctx, cfg.Storage.DSN)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, store.Close)
		if cfg.Storage.Migrate {
			if err := store.Migrate(ctx); err != nil {
				b.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		b.storage = store

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	log.Info("storage ready", zap.String("driver", cfg.Storage.Driver), zap.Bool("shared_throttle", b.redis != nil))
	return b, nil
}

// buildEngine assembles and starts the Engine. The caller closes it.
func buildEngine(cfg *config.Config, be *backend, log *zap.Logger) (*authcore.Engine, error) {
	engineCfg, err := cfg.Engine()
	if err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}

	builder := authcore.New().
		WithConfig(engineCfg).
		WithStorage(be.storage).
		WithLogger(log)
	if be.redis != nil {
		builder.WithRedis(be.redis)
	}

	switch cfg.Audit.Sink {
	case "log":
		builder.WithAuditSink(authcore.NewZapAuditSink(log.Named("audit")))
	case "stdout":
		builder.WithAuditSink(authcore.NewJSONWriterSink(os.Stdout))
	}

	if len(cfg.Google.ClientIDs) > 0 {
		google, err := sso.NewGoogle(sso.GoogleConfig{
			ClientIDs: cfg.Google.ClientIDs,
			JWKSURL:   cfg.Google.JWKSURL,
		})
		if err != nil {
			return nil, err
		}
		builder.WithSSO(google)
	}

	engine, err := builder.Build()
	if err != nil {
		return nil, err
	}
	engine.Start()
	return engine, nil
}
