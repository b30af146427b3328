package main

import (
	"context"
	"errors"
	"fmt"

	"readmark/internal/auth"
	"readmark/internal/config"
	"readmark/internal/extract"
	"readmark/internal/library"
	"readmark/internal/store"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newLogger(c config.LogConfig) (*zap.Logger, error) {
	if c.Development {
		return zap.NewDevelopment()
	}
	level, err := zap.ParseAtomicLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = level
	return zc.Build()
}

func newIssuer() (*auth.Issuer, error) {
	return auth.NewIssuer(auth.Config{
		Secret: cfg.Auth.Secret,
		Issuer: cfg.Auth.Issuer,
		TTL:    cfg.Auth.TTL,
	})
}

func newExtractor() *extract.Extractor {
	fetcher := extract.NewFetcher(extract.FetchOptions{
		Timeout:      cfg.Fetch.Timeout,
		UserAgent:    cfg.Fetch.UserAgent,
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		AllowPrivate: cfg.Fetch.AllowPrivate,
	})
	video := extract.NewVideoExtractor(fetcher.Client(), cfg.Video.OEmbedEndpoint, cfg.Video.CacheSize)
	return extract.NewExtractor(fetcher, extract.ReadabilityExtractor{}, video, logger)
}

func connectRedis(addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

// backend is the opened persistence layer plus the job queue.
type backend struct {
	store  store.Store
	queue  *store.RedisQueue
	hybrid *store.HybridStore
	extra  *redis.Client
}

func (b *backend) Close() error {
	err := b.store.Close()
	if b.extra != nil {
		err = errors.Join(err, b.extra.Close())
	}
	return err
}

// openBackend opens the configured store. withQueue also connects the
// Redis job queue, which the hybrid driver shares with its metadata.
func openBackend(sc config.StoreConfig, withQueue bool) (*backend, error) {
	switch sc.Driver {
	case config.DriverSQLite:
		st, err := store.OpenSQLite(context.Background(), sc.SQLite)
		if err != nil {
			return nil, err
		}
		b := &backend{store: st}
		if withQueue {
			rdb, err := connectRedis(sc.Redis)
			if err != nil {
				logger.Warn("Redis unavailable, background saves disabled", zap.Error(err))
				return b, nil
			}
			b.extra = rdb
			b.queue = store.NewRedisQueue(rdb)
		}
		return b, nil
	default:
		st, err := store.NewHybridStore(sc.Redis, sc.Badger)
		if err != nil {
			return nil, fmt.Errorf("failed to init store: %w", err)
		}
		b := &backend{store: st, hybrid: st}
		if withQueue {
			b.queue = store.NewRedisQueue(st.Redis())
		}
		return b, nil
	}
}

// offlineService opens the store for one-shot commands. With the hybrid
// driver this needs the Badger lock, so the server must not be running.
func offlineService() (*library.Service, func(), error) {
	b, err := openBackend(cfg.Store, false)
	if err != nil {
		return nil, nil, err
	}
	svc := library.NewService(b.store, newExtractor(), logger)
	return svc, func() {
		if err := b.Close(); err != nil {
			logger.Warn("Failed to close store", zap.Error(err))
		}
	}, nil
}
