package session

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"cf-suggest/internal/domain"
)

type stubSource struct {
	profile        domain.UserProfile
	profileErr     error
	submissions    []domain.Submission
	submissionsErr error
	catalog        []domain.Problem
	catalogErr     error
	calls          []string
}

func (s *stubSource) FetchUserProfile(context.Context, string) (domain.UserProfile, error) {
	s.calls = append(s.calls, "profile")
	return s.profile, s.profileErr
}

func (s *stubSource) FetchSubmissions(context.Context, string) ([]domain.Submission, error) {
	s.calls = append(s.calls, "submissions")
	return s.submissions, s.submissionsErr
}

func (s *stubSource) FetchProblemCatalog(context.Context) ([]domain.Problem, error) {
	s.calls = append(s.calls, "catalog")
	return s.catalog, s.catalogErr
}

type memStore struct {
	session domain.Session
	has     bool
	saves   int
	cleared int
}

func (m *memStore) Put(context.Context, string, []byte) error { return nil }

func (m *memStore) GetMany(context.Context, ...string) (map[string][]byte, error) {
	return map[string][]byte{}, nil
}

func (m *memStore) Clear(context.Context) error {
	m.session = domain.Session{}
	m.has = false
	m.cleared++
	return nil
}

func (m *memStore) SaveSession(_ context.Context, session domain.Session) (bool, error) {
	m.saves++
	if m.has && session.Version <= m.session.Version {
		return false, nil
	}
	m.session = session
	m.has = true
	return true, nil
}

func (m *memStore) LoadSession(context.Context) (domain.Session, bool, error) {
	return m.session, m.has, nil
}

type stubHistory struct {
	records []domain.SuggestionRecord
}

func (h *stubHistory) SaveBatch(_ context.Context, record domain.SuggestionRecord) error {
	h.records = append(h.records, record)
	return nil
}

func (h *stubHistory) ListRecent(context.Context, string, int) ([]domain.SuggestionRecord, error) {
	return h.records, nil
}

// fakeClock отдаёт монотонно растущее время с шагом в секунду.
type fakeClock struct {
	current time.Time
}

func (c *fakeClock) Now() time.Time {
	c.current = c.current.Add(time.Second)
	return c.current
}

func newTestService(source *stubSource, store *memStore, history *stubHistory) *Service {
	var hist domain.HistoryRepo
	if history != nil {
		hist = history
	}
	svc := NewService(source, store, hist, zerolog.Nop(), 5, 300)
	clock := &fakeClock{current: time.UnixMilli(1700000000000)}
	svc.now = clock.Now
	svc.newRand = func() *rand.Rand { return rand.New(rand.NewSource(42)) }
	return svc
}

func defaultSource() *stubSource {
	return &stubSource{
		profile: domain.UserProfile{Handle: "tourist", Rating: 1500},
		submissions: []domain.Submission{
			{Problem: domain.Problem{ContestID: 1, Index: "A", Rating: 1500}, Verdict: domain.VerdictOK},
		},
		catalog: []domain.Problem{
			{ContestID: 1, Index: "A", Rating: 1500},
			{ContestID: 2, Index: "A", Rating: 1550},
			{ContestID: 3, Index: "A", Rating: 1400},
			{ContestID: 4, Index: "A", Rating: 2500},
		},
	}
}

func TestLoginPersistsSession(t *testing.T) {
	source := defaultSource()
	store := &memStore{}
	svc := newTestService(source, store, nil)

	if err := svc.Login(context.Background(), "tourist"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !store.has {
		t.Fatalf("сессия не сохранена")
	}
	if store.session.Handle != "tourist" || store.session.Profile.Rating != 1500 {
		t.Fatalf("сессия сохранена неверно: %+v", store.session)
	}
	if store.session.LoginTime.IsZero() {
		t.Fatalf("время входа должно быть записано")
	}
	if len(store.session.Solved) != 1 || store.session.Solved[0] != "1A" {
		t.Fatalf("решённые задачи сохранены неверно: %v", store.session.Solved)
	}
}

func TestSuggestReturnsBatchAndRecordsHistory(t *testing.T) {
	source := defaultSource()
	store := &memStore{}
	history := &stubHistory{}
	svc := newTestService(source, store, history)

	batch, profile, err := svc.Suggest(context.Background(), "tourist", 0)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if profile.Handle != "tourist" {
		t.Fatalf("профиль вернулся неверно: %+v", profile)
	}
	// Подходят 2A и 3A: 1A решена, 4A вне окна.
	if len(batch) != 2 {
		t.Fatalf("ожидали 2 задачи, получили %d", len(batch))
	}
	for _, p := range batch {
		if p.Key() == "1A" || p.Key() == "4A" {
			t.Fatalf("недопустимая задача в подборке: %s", p.Key())
		}
	}
	if len(history.records) != 1 {
		t.Fatalf("подборка не записана в историю")
	}
	if history.records[0].Rating != 1500 {
		t.Fatalf("в истории должен быть эффективный рейтинг")
	}
}

func TestSuggestFailsBeforeEngineOnProfileError(t *testing.T) {
	source := defaultSource()
	source.profileErr = domain.ErrRemote
	store := &memStore{}
	history := &stubHistory{}
	svc := newTestService(source, store, history)

	_, _, err := svc.Suggest(context.Background(), "tourist", 5)
	if !errors.Is(err, domain.ErrRemote) {
		t.Fatalf("ожидали domain.ErrRemote, получили %v", err)
	}
	if len(source.calls) != 1 {
		t.Fatalf("после отказа профиля лишние запросы не нужны: %v", source.calls)
	}
	if store.saves != 0 {
		t.Fatalf("после отказа профиля сессия не должна писаться")
	}
	if len(history.records) != 0 {
		t.Fatalf("после отказа профиля история не должна писаться")
	}
}

func TestSuggestEmptyHandle(t *testing.T) {
	svc := newTestService(defaultSource(), &memStore{}, nil)

	_, _, err := svc.Suggest(context.Background(), "   ", 5)
	if !errors.Is(err, ErrEmptyHandle) {
		t.Fatalf("ожидали ErrEmptyHandle, получили %v", err)
	}
}

func TestSuggestCarriesLoginTime(t *testing.T) {
	source := defaultSource()
	store := &memStore{}
	svc := newTestService(source, store, nil)

	if err := svc.Login(context.Background(), "tourist"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	loginTime := store.session.LoginTime

	if _, _, err := svc.Suggest(context.Background(), "tourist", 5); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !store.session.LoginTime.Equal(loginTime) {
		t.Fatalf("время входа должно переживать обновление сессии")
	}
	if !store.session.LastUpdate.After(loginTime) {
		t.Fatalf("lastUpdate должен обновиться")
	}
}

func TestLogoutClearsStore(t *testing.T) {
	store := &memStore{}
	svc := newTestService(defaultSource(), store, nil)

	if err := svc.Login(context.Background(), "tourist"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if err := svc.Logout(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if store.cleared != 1 || store.has {
		t.Fatalf("выход должен стереть сессию целиком")
	}

	_, ok, _ := svc.Current(context.Background())
	if ok {
		t.Fatalf("после выхода сессии быть не должно")
	}
}

func TestStaleInitializationLosesToNewer(t *testing.T) {
	source := defaultSource()
	store := &memStore{}
	svc := newTestService(source, store, nil)

	// Более новая инициализация уже записана.
	if err := svc.Login(context.Background(), "tourist"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	newest := store.session.Version

	// Опоздавшая запись со старой версией игнорируется без ошибки.
	stale := initState{
		profile: domain.UserProfile{Handle: "tourist", Rating: 1},
		solved:  domain.SolvedSet{},
		version: newest - 100,
	}
	if err := svc.persist(context.Background(), "tourist", stale, time.Time{}); err != nil {
		t.Fatalf("устаревшая запись не должна быть ошибкой: %v", err)
	}
	if store.session.Profile.Rating != 1500 {
		t.Fatalf("устаревшая запись перетёрла более новую")
	}
}

func TestRandomProblemRequiresSession(t *testing.T) {
	svc := newTestService(defaultSource(), &memStore{}, nil)

	_, err := svc.RandomProblem(context.Background())
	if !errors.Is(err, domain.ErrNotLoggedIn) {
		t.Fatalf("ожидали ErrNotLoggedIn, получили %v", err)
	}
}

func TestRandomProblemUsesStoredHandle(t *testing.T) {
	source := defaultSource()
	store := &memStore{}
	svc := newTestService(source, store, nil)

	if err := svc.Login(context.Background(), "tourist"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	problem, err := svc.RandomProblem(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if problem.Key() != "2A" && problem.Key() != "3A" {
		t.Fatalf("неожиданная задача: %s", problem.Key())
	}
}
