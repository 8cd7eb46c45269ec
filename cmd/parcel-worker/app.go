package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/BearBump/ParcelDeck/config"
	"github.com/BearBump/ParcelDeck/internal/broker/kafka"
	"github.com/BearBump/ParcelDeck/internal/cache/rediscache"
	"github.com/BearBump/ParcelDeck/internal/integrations/gateway/fake"
	"github.com/BearBump/ParcelDeck/internal/integrations/gateway/seventeenhttp"
	"github.com/BearBump/ParcelDeck/internal/services/poller"
	"github.com/BearBump/ParcelDeck/internal/storage/pgstore"
)

type workerFactories struct {
	newStorage     func(cfg *config.Config) (repo poller.Repository, closeFn func(), err error)
	newProducer    func(cfg *config.Config) poller.Producer
	newRateLimiter func(cfg *config.Config) poller.RateLimiter
	newGateway     func(cfg *config.Config) poller.Gateway
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (poller.Repository, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgstore.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) poller.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) poller.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newGateway: func(cfg *config.Config) poller.Gateway {
			// Без api_key работаем на встроенной эмуляции.
			if cfg.ParcelDeck.GatewayAPIKey != "" {
				return seventeenhttp.New(cfg.ParcelDeck.GatewayBaseURL, cfg.ParcelDeck.GatewayAPIKey)
			}
			return fake.New()
		},
	}
}

func buildPoller(cfg *config.Config, f workerFactories) (*poller.Poller, func(), error) {
	topic := cfg.Kafka.TrackingUpdatedTopicName
	if topic == "" {
		topic = "tracking.updated"
	}

	pollInterval := time.Duration(cfg.ParcelDeck.WorkerPollIntervalSeconds) * time.Second
	batchSize := cfg.ParcelDeck.WorkerBatchSize
	concurrency := cfg.ParcelDeck.WorkerConcurrency
	lease := time.Duration(cfg.ParcelDeck.WorkerLeaseSeconds) * time.Second
	rlPerMin := int64(cfg.ParcelDeck.WorkerRateLimitPerMinute)

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return nil, nil, err
	}

	producer := f.newProducer(cfg)
	rl := f.newRateLimiter(cfg)
	gw := f.newGateway(cfg)

	p := poller.New(repo, gw, producer, rl, topic).
		WithSettings(pollInterval, batchSize, concurrency, lease, rlPerMin).
		WithPlanner(plannerConfigFrom(cfg)).
		WithCarrierRateLimits(cfg.ParcelDeck.WorkerCarrierRateLimits)

	return p, closeFn, nil
}

func plannerConfigFrom(cfg *config.Config) poller.PlannerConfig {
	sec := func(v int) time.Duration { return time.Duration(v) * time.Second }
	return poller.PlannerConfig{
		MovingMinDelay: sec(cfg.ParcelDeck.WorkerNextCheckMovingMinSeconds),
		MovingMaxDelay: sec(cfg.ParcelDeck.WorkerNextCheckMovingMaxSeconds),
		IdleDelay:      sec(cfg.ParcelDeck.WorkerNextCheckIdleSeconds),
		Backoff1:       sec(cfg.ParcelDeck.WorkerBackoff1Seconds),
		Backoff2:       sec(cfg.ParcelDeck.WorkerBackoff2Seconds),
		Backoff3:       sec(cfg.ParcelDeck.WorkerBackoff3Seconds),
		Backoff4:       sec(cfg.ParcelDeck.WorkerBackoff4Seconds),
	}
}

func RunParcelWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	p, closeFn, err := buildPoller(cfg, f)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	httpErr := make(chan error, 1)
	if cfg.ParcelDeck.WorkerHTTPAddr != "" {
		go func() {
			httpErr <- runWorkerHTTPServer(ctx, workerHTTPOpts{
				httpAddr:    cfg.ParcelDeck.WorkerHTTPAddr,
				swaggerPath: os.Getenv("swaggerPath"),
				poller:      p,
				cfg:         cfg,
			})
		}()
	}

	pollErr := make(chan error, 1)
	go func() {
		pollErr <- p.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-pollErr:
		return err
	case err := <-httpErr:
		return err
	}
}
