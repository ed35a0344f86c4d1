package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/promohub/promohub-api/internal/config"
	"github.com/promohub/promohub-api/internal/domain/payout"
	"github.com/promohub/promohub-api/internal/domain/realtime"
	"github.com/promohub/promohub-api/internal/pkg/database"
	"github.com/promohub/promohub-api/internal/pkg/logger"
)

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env, Service: "conversion-worker"})

	db, err := database.NewPostgres(cfg.DatabaseURL, database.PoolOptions{MaxOpenConns: cfg.ConversionWorkers * 2})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, payout alerts will not reach dashboards")
		redisClient = nil
	}
	defer database.CloseRedis(redisClient)

	// Publishes only; this process holds no websocket sessions.
	hub := realtime.NewHub(redisClient)
	go hub.Run()
	defer hub.Shutdown()

	svc := payout.NewService(payout.NewRepository(db), hub)
	consumer := payout.NewConsumer(payout.ConsumerConfig{
		URL:      cfg.RabbitMQURL,
		Queue:    cfg.ConversionQueue,
		Prefetch: cfg.ConversionPrefetch,
		Workers:  cfg.ConversionWorkers,
	}, svc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("queue", cfg.ConversionQueue).Int("workers", cfg.ConversionWorkers).Msg("Starting conversion worker")
	if err := consumer.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Conversion worker stopped")
	}
	log.Info().Msg("Conversion worker exited properly")
}
