package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"cf-suggest/internal/domain"
	"cf-suggest/internal/infra/metrics"
	"cf-suggest/internal/usecase/suggest"
)

// ErrEmptyHandle возвращается на пустой handle.
var ErrEmptyHandle = errors.New("пустой handle")

// ErrNoEligibleProblems возвращается, когда подходящих задач нет вовсе.
var ErrNoEligibleProblems = errors.New("нет подходящих задач")

// Service реализует операции сессии: вход, выход, подборки, обновление.
// Состояние между вызовами не хранится: каждый запрос выполняет полную
// инициализацию из API, одновременные запросы не исключают друг друга.
type Service struct {
	source  domain.ProblemSource
	store   domain.SessionStore
	history domain.HistoryRepo
	log     zerolog.Logger
	count   int
	window  int
	now     func() time.Time
	newRand func() *rand.Rand
}

// NewService создаёт сервис сессий. history может быть nil —
// тогда история подборок не ведётся.
func NewService(source domain.ProblemSource, store domain.SessionStore, history domain.HistoryRepo, logger zerolog.Logger, count, window int) *Service {
	if count <= 0 {
		count = suggest.DefaultCount
	}
	if window <= 0 {
		window = suggest.DefaultWindow
	}
	return &Service{
		source:  source,
		store:   store,
		history: history,
		log:     logger,
		count:   count,
		window:  window,
		now:     time.Now,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
	}
}

// initState — результат одной инициализации. Живёт только внутри вызова,
// никакого общего изменяемого состояния между запросами.
type initState struct {
	profile domain.UserProfile
	solved  domain.SolvedSet
	catalog []domain.Problem
	version int64
}

// initialize выполняет три запроса к API: профиль, посылки, каталог.
// Версия записи — время старта инициализации, поэтому из двух
// одновременных инициализаций в хранилище остаётся более поздняя.
func (s *Service) initialize(ctx context.Context, handle string) (initState, error) {
	if strings.TrimSpace(handle) == "" {
		return initState{}, ErrEmptyHandle
	}
	version := s.now().UnixNano()

	profile, err := s.source.FetchUserProfile(ctx, handle)
	if err != nil {
		return initState{}, fmt.Errorf("профиль пользователя: %w", err)
	}

	submissions, err := s.source.FetchSubmissions(ctx, handle)
	if err != nil {
		return initState{}, fmt.Errorf("посылки пользователя: %w", err)
	}
	solved := suggest.BuildSolvedSet(submissions)

	catalog, err := s.source.FetchProblemCatalog(ctx)
	if err != nil {
		return initState{}, fmt.Errorf("каталог задач: %w", err)
	}

	return initState{profile: profile, solved: solved, catalog: catalog, version: version}, nil
}

func (s *Service) persist(ctx context.Context, handle string, state initState, loginTime time.Time) error {
	applied, err := s.store.SaveSession(ctx, domain.Session{
		Handle:     handle,
		Profile:    state.profile,
		Solved:     state.solved.Keys(),
		LastUpdate: s.now(),
		LoginTime:  loginTime,
		Version:    state.version,
	})
	if err != nil {
		return fmt.Errorf("сохранение сессии: %w", err)
	}
	if !applied {
		s.log.Debug().Str("handle", handle).Int64("version", state.version).
			Msg("session: запись проиграла более новой версии и пропущена")
	}
	return nil
}

// priorLoginTime возвращает время входа из текущей сессии, если она
// принадлежит тому же пользователю.
func (s *Service) priorLoginTime(ctx context.Context, handle string) time.Time {
	current, ok, err := s.store.LoadSession(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("session: не удалось прочитать текущую сессию")
		return time.Time{}
	}
	if ok && current.Handle == handle {
		return current.LoginTime
	}
	return time.Time{}
}

// Login выполняет полную инициализацию и сохраняет сессию целиком.
func (s *Service) Login(ctx context.Context, handle string) error {
	state, err := s.initialize(ctx, handle)
	if err != nil {
		return err
	}
	return s.persist(ctx, handle, state, s.now())
}

// Logout стирает состояние сессии целиком.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("очистка сессии: %w", err)
	}
	return nil
}

// Suggest выполняет инициализацию, строит подборку, обновляет сессию
// и записывает подборку в историю.
func (s *Service) Suggest(ctx context.Context, handle string, count int) (domain.SuggestionBatch, domain.UserProfile, error) {
	start := s.now()
	metrics.IncSuggestOverall()
	metrics.IncSuggestForHandle(handle)

	state, err := s.initialize(ctx, handle)
	if err != nil {
		return nil, domain.UserProfile{}, err
	}

	if count <= 0 {
		count = s.count
	}
	batch := suggest.Pick(state.profile, state.solved, state.catalog, count, s.window, s.newRand())
	if len(batch) == 0 {
		metrics.SuggestEmptyPools.Inc()
	}

	if err := s.persist(ctx, handle, state, s.priorLoginTime(ctx, handle)); err != nil {
		return nil, domain.UserProfile{}, err
	}

	if s.history != nil && len(batch) > 0 {
		record := domain.SuggestionRecord{
			Handle:    handle,
			Rating:    suggest.EffectiveRating(state.profile),
			Problems:  batch,
			CreatedAt: s.now(),
		}
		if err := s.history.SaveBatch(ctx, record); err != nil {
			s.log.Warn().Err(err).Str("handle", handle).Msg("session: не удалось сохранить историю подборки")
		}
	}

	metrics.SuggestBuildSeconds.Observe(s.now().Sub(start).Seconds())
	return batch, state.profile, nil
}

// Refresh повторяет инициализацию и обновляет сессию без построения подборки.
func (s *Service) Refresh(ctx context.Context, handle string) error {
	state, err := s.initialize(ctx, handle)
	if err != nil {
		return err
	}
	return s.persist(ctx, handle, state, s.priorLoginTime(ctx, handle))
}

// Current возвращает сохранённую сессию.
func (s *Service) Current(ctx context.Context) (domain.Session, bool, error) {
	return s.store.LoadSession(ctx)
}

// RandomProblem выбирает одну задачу для текущего пользователя сессии.
func (s *Service) RandomProblem(ctx context.Context) (domain.Problem, error) {
	current, ok, err := s.store.LoadSession(ctx)
	if err != nil {
		return domain.Problem{}, err
	}
	if !ok {
		return domain.Problem{}, domain.ErrNotLoggedIn
	}
	batch, _, err := s.Suggest(ctx, current.Handle, 1)
	if err != nil {
		return domain.Problem{}, err
	}
	if len(batch) == 0 {
		return domain.Problem{}, ErrNoEligibleProblems
	}
	return batch[0], nil
}
