package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"ticketlottery/internal/config"
	"ticketlottery/internal/events"
	"ticketlottery/internal/metrics"
	"ticketlottery/internal/random"
	"ticketlottery/internal/ratelimit"
	"ticketlottery/internal/services"
	"ticketlottery/internal/store"
)

// app holds the wired service and everything that must be closed with it.
type app struct {
	service    *services.LotteryService
	campaigns  *services.CampaignDirectory
	registry   *prometheus.Registry
	memLimiter *ratelimit.MemoryLimiter // nil with the redis backend
	closers    []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warningf("Error during shutdown: %v", err)
		}
	}
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	st, err := buildStore(a, cfg.Store)
	if err != nil {
		a.Close()
		return nil, err
	}

	limiter, err := buildLimiter(ctx, a, cfg.RateLimit)
	if err != nil {
		a.Close()
		return nil, err
	}

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Events.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.Events.Kafka.Brokers, cfg.Events.Kafka.Topic))
		a.closers = append(a.closers, kp.Close)
		publisher = kp
		logger.Infof("Publishing events to Kafka topic %s", cfg.Events.Kafka.Topic)
	}

	campaigns, err := cfg.CampaignList()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.campaigns = services.NewCampaignDirectory(campaigns...)

	drawPolicy := services.DrawDateReached
	if !cfg.Draw.RequireDrawDate {
		drawPolicy = services.AnyTime
	}

	a.service, err = services.NewLotteryService(services.Dependencies{
		Store:     st,
		Campaigns: a.campaigns,
		Limiter:   limiter,
		Random:    random.NewSecureSource(),
		Publisher: publisher,
		Metrics:   metrics.New(a.registry),
	}, services.Options{
		Sales: services.SalesPolicy{
			Window:            cfg.RateLimit.Window,
			MaxPerWindow:      cfg.RateLimit.MaxPerWindow,
			MaxNumberAttempts: cfg.Tickets.MaxNumberAttempts,
		},
		NumberWidth: cfg.Tickets.NumberWidth,
		DrawPolicy:  drawPolicy,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func buildStore(a *app, cfg config.StoreConfig) (store.Store, error) {
	if cfg.Driver != "mysql" {
		logger.Infof("Using in-memory store")
		return store.NewMemoryStore(), nil
	}

	db, err := store.OpenMySQL(cfg.DSN)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("mysql handle: %w", err)
	}
	a.closers = append(a.closers, sqlDB.Close)

	gs := store.NewGormStore(db)
	if cfg.AutoMigrate {
		if err := gs.AutoMigrate(); err != nil {
			return nil, err
		}
	}
	logger.Infof("Using MySQL store")
	return gs, nil
}

func buildLimiter(ctx context.Context, a *app, cfg config.RateLimitConfig) (ratelimit.Limiter, error) {
	if cfg.Backend != "redis" {
		a.memLimiter = ratelimit.NewMemoryLimiter(nil)
		return a.memLimiter, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	a.closers = append(a.closers, client.Close)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	logger.Infof("Using Redis rate limiter at %s", cfg.Redis.Addr)
	return ratelimit.NewRedisLimiter(client, cfg.Redis.KeyPrefix, nil), nil
}
