package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"cf-suggest/internal/adapters/codeforces"
	"cf-suggest/internal/adapters/repo"
	"cf-suggest/internal/adapters/sessionstore"
	"cf-suggest/internal/domain"
	"cf-suggest/internal/infra/config"
	"cf-suggest/internal/infra/db"
	httpinfra "cf-suggest/internal/infra/http"
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

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	store := sessionstore.NewRedis(redisClient)

	cfClient, err := codeforces.New(cfg.Codeforces.BaseURL, codeforces.WithTimeout(cfg.Codeforces.Timeout))
	if err != nil {
		logger.Fatal().Err(err).Msg("api: некорректный адрес Codeforces API")
	}

	var history domain.HistoryRepo
	if cfg.PGDSN != "" {
		pool, err := db.Connect(cfg.PGDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: нет подключения к БД")
		}
		defer pool.Close()
		history = repo.NewPostgres(pool)
	} else {
		logger.Warn().Msg("api: PG_DSN не задан, история подборок отключена")
	}

	var refreshQueue domain.RefreshQueue
	if cfg.RabbitURL != "" {
		rabbit, err := queue.NewRabbitRefreshQueue(cfg.RabbitURL, cfg.Queues.Refresh)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: не удалось подключиться к RabbitMQ")
		}
		defer rabbit.Close()
		refreshQueue = rabbit
	} else {
		refreshQueue = queue.NewRedisRefreshQueue(redisClient, cfg.Queues.Refresh)
	}

	service := sessionusecase.NewService(cfClient, store, history,
		logger.With().Str("component", "session").Logger(),
		cfg.Suggest.Count, cfg.Suggest.RatingWindow)

	srv := httpinfra.NewServer(logger.With().Str("component", "http").Logger())
	registerRoutes(srv, service, history, refreshQueue)

	go func() {
		if err := srv.Start(":" + strconv.Itoa(cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("api: сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func registerRoutes(srv *httpinfra.Server, service *sessionusecase.Service, history domain.HistoryRepo, refreshQueue domain.RefreshQueue) {
	r := srv.Router

	// Было сообщение USER_LOGIN_DETECTED.
	r.Post("/api/v1/session/login", func(w http.ResponseWriter, req *http.Request) {
		defer req.Body.Close()
		var body struct {
			Handle string `json:"handle"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "некорректное тело запроса")
			return
		}
		if err := service.Login(req.Context(), body.Handle); err != nil {
			writeError(w, statusFromError(err), err.Error())
			return
		}
		writeJSON(w, map[string]any{"success": true})
	})

	// Было сообщение USER_LOGOUT.
	r.Post("/api/v1/session/logout", func(w http.ResponseWriter, req *http.Request) {
		if err := service.Logout(req.Context()); err != nil {
			writeError(w, statusFromError(err), err.Error())
			return
		}
		writeJSON(w, map[string]any{"success": true})
	})

	// Состояние сессии для попапа.
	r.Get("/api/v1/session", func(w http.ResponseWriter, req *http.Request) {
		session, ok, err := service.Current(req.Context())
		if err != nil {
			writeError(w, statusFromError(err), err.Error())
			return
		}
		if !ok {
			writeJSON(w, map[string]any{"loggedIn": false})
			return
		}
		writeJSON(w, map[string]any{
			"loggedIn":    true,
			"handle":      session.Handle,
			"userData":    session.Profile,
			"solvedCount": len(session.Solved),
			"lastUpdate":  session.LastUpdate,
			"loginTime":   session.LoginTime,
		})
	})

	// Ставит задачу фонового обновления решённых задач.
	r.Post("/api/v1/session/refresh", func(w http.ResponseWriter, req *http.Request) {
		session, ok, err := service.Current(req.Context())
		if err != nil {
			writeError(w, statusFromError(err), err.Error())
			return
		}
		if !ok {
			writeError(w, http.StatusUnauthorized, domain.ErrNotLoggedIn.Error())
			return
		}
		job := domain.NewRefreshJob(session.Handle, domain.RefreshCauseManual)
		if err := refreshQueue.Enqueue(req.Context(), job); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, map[string]any{"success": true, "jobId": job.ID})
	})

	// Было сообщение GET_SUGGESTIONS.
	r.Post("/api/v1/suggestions", func(w http.ResponseWriter, req *http.Request) {
		defer req.Body.Close()
		var body struct {
			Handle string `json:"handle"`
			Count  int    `json:"count"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "некорректное тело запроса")
			return
		}
		batch, profile, err := service.Suggest(req.Context(), body.Handle, body.Count)
		if err != nil {
			writeError(w, statusFromError(err), err.Error())
			return
		}
		writeJSON(w, map[string]any{
			"success":     true,
			"suggestions": batch,
			"userData":    profile,
		})
	})

	// Кнопка "Random Problem": одна задача для текущей сессии.
	r.Get("/api/v1/suggestions/random", func(w http.ResponseWriter, req *http.Request) {
		problem, err := service.RandomProblem(req.Context())
		if err != nil {
			writeError(w, statusFromError(err), err.Error())
			return
		}
		writeJSON(w, map[string]any{
			"success": true,
			"problem": problem,
			"url":     problem.URL(),
		})
	})

	r.Get("/api/v1/history", func(w http.ResponseWriter, req *http.Request) {
		if history == nil {
			writeError(w, http.StatusServiceUnavailable, "история подборок отключена")
			return
		}
		handle := req.URL.Query().Get("handle")
		if handle == "" {
			writeError(w, http.StatusBadRequest, "handle обязателен")
			return
		}
		limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
		records, err := history.ListRecent(req.Context(), handle, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, map[string]any{"success": true, "history": records})
	})
}

// statusFromError переводит ошибки ядра в HTTP-статусы. Само тело ответа
// всегда одно и то же: {success: false, error}.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, sessionusecase.ErrEmptyHandle):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotLoggedIn):
		return http.StatusUnauthorized
	case errors.Is(err, sessionusecase.ErrNoEligibleProblems):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRemote):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
}
