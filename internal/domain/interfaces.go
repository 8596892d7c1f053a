package domain

import "context"

// ProblemSource отдаёт данные публичного Codeforces API.
type ProblemSource interface {
	// FetchUserProfile возвращает профиль пользователя (user.info).
	FetchUserProfile(ctx context.Context, handle string) (UserProfile, error)
	// FetchSubmissions возвращает полную историю посылок в порядке API (user.status).
	FetchSubmissions(ctx context.Context, handle string) ([]Submission, error)
	// FetchProblemCatalog возвращает полный каталог задач (problemset.problems).
	FetchProblemCatalog(ctx context.Context) ([]Problem, error)
}

// SessionStore хранит состояние сессии. Отдельные Put не транзакционны:
// читатель обязан трактовать "handle есть, профиля нет" как отсутствие сессии.
type SessionStore interface {
	Put(ctx context.Context, key string, value []byte) error
	// GetMany возвращает частичное отображение: отсутствующих ключей в нём нет.
	GetMany(ctx context.Context, keys ...string) (map[string][]byte, error)
	Clear(ctx context.Context) error

	// SaveSession записывает сессию целиком. Возвращает false, если в
	// хранилище уже лежит запись с версией не меньше данной.
	SaveSession(ctx context.Context, session Session) (bool, error)
	// LoadSession возвращает текущую сессию; второй результат false,
	// если действующей сессии нет.
	LoadSession(ctx context.Context) (Session, bool, error)
}

// HistoryRepo сохраняет выданные подборки.
type HistoryRepo interface {
	SaveBatch(ctx context.Context, record SuggestionRecord) error
	ListRecent(ctx context.Context, handle string, limit int) ([]SuggestionRecord, error)
}
