package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	SuggestRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "suggest_requests_total",
		Help: "Общее количество запросов подборок",
	})
	SuggestRequestsByHandle = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "suggest_requests_by_handle_total",
		Help: "Количество запросов подборок по пользователям",
	}, []string{"handle"})
	SuggestBuildSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "suggest_build_seconds",
		Help:    "Время построения подборки вместе с инициализацией",
		Buckets: prometheus.DefBuckets,
	})
	SuggestEmptyPools = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "suggest_empty_pools_total",
		Help: "Подборки, для которых не нашлось ни одной подходящей задачи",
	})
	RefreshJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "refresh_jobs_total",
		Help: "Обработанные задачи фонового обновления",
	}, []string{"status"})
	RemoteErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "codeforces_errors_total",
		Help: "Ошибки обращения к Codeforces API",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		SuggestRequestsTotal,
		SuggestRequestsByHandle,
		SuggestBuildSeconds,
		SuggestEmptyPools,
		RefreshJobsTotal,
		RemoteErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// IncSuggestOverall увеличивает общий счётчик запросов подборок.
func IncSuggestOverall() {
	SuggestRequestsTotal.Inc()
}

// IncSuggestForHandle увеличивает счётчик запросов подборок пользователя.
func IncSuggestForHandle(handle string) {
	if handle == "" {
		handle = "unknown"
	}
	SuggestRequestsByHandle.WithLabelValues(handle).Inc()
}
