package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"cf-suggest/internal/adapters/codeforces"
	"cf-suggest/internal/adapters/sessionstore"
	"cf-suggest/internal/domain"
	"cf-suggest/internal/infra/config"
	applog "cf-suggest/internal/infra/log"
	"cf-suggest/internal/infra/metrics"
	"cf-suggest/internal/infra/queue"
	sessionusecase "cf-suggest/internal/usecase/session"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9091")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	store := sessionstore.NewRedis(redisClient)

	cfClient, err := codeforces.New(cfg.Codeforces.BaseURL, codeforces.WithTimeout(cfg.Codeforces.Timeout))
	if err != nil {
		logger.Fatal().Err(err).Msg("refresher: некорректный адрес Codeforces API")
	}

	var refreshQueue domain.RefreshQueue
	if cfg.RabbitURL != "" {
		rabbit, err := queue.NewRabbitRefreshQueue(cfg.RabbitURL, cfg.Queues.Refresh)
		if err != nil {
			logger.Fatal().Err(err).Msg("refresher: не удалось подключиться к RabbitMQ")
		}
		defer rabbit.Close()
		refreshQueue = rabbit
	} else {
		refreshQueue = queue.NewRedisRefreshQueue(redisClient, cfg.Queues.Refresh)
	}

	service := sessionusecase.NewService(cfClient, store, nil,
		logger.With().Str("component", "session").Logger(),
		cfg.Suggest.Count, cfg.Suggest.RatingWindow)

	logger.Info().Str("queue", cfg.Queues.Refresh).Msg("refresher: старт")

	for {
		job, ack, err := refreshQueue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info().Msg("refresher: остановка")
				return
			}
			logger.Error().Err(err).Msg("refresher: ошибка чтения очереди")
			continue
		}

		err = service.Refresh(ctx, job.Handle)
		status := "success"
		if err != nil {
			status = "error"
			logger.Error().Err(err).
				Str("job_id", job.ID).
				Str("handle", job.Handle).
				Str("cause", string(job.Cause)).
				Msg("refresher: обновление не удалось")
		} else {
			logger.Info().
				Str("job_id", job.ID).
				Str("handle", job.Handle).
				Str("cause", string(job.Cause)).
				Msg("refresher: сессия обновлена")
		}
		metrics.RefreshJobsTotal.WithLabelValues(status).Inc()

		if ackErr := ack(err == nil); ackErr != nil {
			logger.Error().Err(ackErr).Str("job_id", job.ID).Msg("refresher: не удалось подтвердить задачу")
		}
	}
}
