package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"cf-suggest/internal/domain"
)

// Ключи записи сессии. Читатели обязаны переживать отсутствие любого из них.
const (
	KeyCurrentHandle  = "currentHandle"
	KeySolvedProblems = "solvedProblems"
	KeyUserData       = "userData"
	KeyLastUpdate     = "lastUpdate"
	KeyLoginTime      = "loginTime"
	keyVersion        = "version"
)

const sessionKey = "cf:session"

// saveScript отклоняет запись, если в хранилище уже лежит более новая версия.
// Одновременные инициализации пишут без блокировок: выигрывает та, что
// началась позже, опоздавшие игнорируются.
var saveScript = redis.NewScript(`
local stored = tonumber(redis.call('HGET', KEYS[1], 'version') or '0')
if tonumber(ARGV[1]) <= stored then
	return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1])
redis.call('HSET', KEYS[1], 'currentHandle', ARGV[2])
redis.call('HSET', KEYS[1], 'userData', ARGV[3])
redis.call('HSET', KEYS[1], 'solvedProblems', ARGV[4])
redis.call('HSET', KEYS[1], 'lastUpdate', ARGV[5])
redis.call('HSET', KEYS[1], 'loginTime', ARGV[6])
return 1
`)

// RedisStore хранит запись сессии в одном Redis-хэше.
type RedisStore struct {
	client *redis.Client
}

var _ domain.SessionStore = (*RedisStore)(nil)

// NewRedis создаёт хранилище сессии.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Put записывает одно значение по ключу.
func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	if err := s.client.HSet(ctx, sessionKey, key, value).Err(); err != nil {
		return fmt.Errorf("%w: put %s: %v", domain.ErrStorage, key, err)
	}
	return nil
}

// GetMany возвращает частичное отображение: отсутствующие ключи пропущены.
func (s *RedisStore) GetMany(ctx context.Context, keys ...string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}
	values, err := s.client.HMGet(ctx, sessionKey, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: getMany: %v", domain.ErrStorage, err)
	}
	out := make(map[string][]byte, len(keys))
	for i, raw := range values {
		if raw == nil {
			continue
		}
		if str, ok := raw.(string); ok {
			out[keys[i]] = []byte(str)
		}
	}
	return out, nil
}

// Clear стирает запись сессии целиком.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, sessionKey).Err(); err != nil {
		return fmt.Errorf("%w: clear: %v", domain.ErrStorage, err)
	}
	return nil
}

// SaveSession записывает сессию целиком с проверкой версии.
func (s *RedisStore) SaveSession(ctx context.Context, session domain.Session) (bool, error) {
	profile, err := json.Marshal(session.Profile)
	if err != nil {
		return false, fmt.Errorf("%w: marshal профиля: %v", domain.ErrStorage, err)
	}
	solved, err := json.Marshal(session.Solved)
	if err != nil {
		return false, fmt.Errorf("%w: marshal решённых задач: %v", domain.ErrStorage, err)
	}

	args := []any{
		strconv.FormatInt(session.Version, 10),
		session.Handle,
		string(profile),
		string(solved),
		formatTime(session.LastUpdate),
		formatTime(session.LoginTime),
	}
	applied, err := saveScript.Run(ctx, s.client, []string{sessionKey}, args...).Int()
	if err != nil {
		return false, fmt.Errorf("%w: save: %v", domain.ErrStorage, err)
	}
	return applied == 1, nil
}

// LoadSession возвращает текущую сессию. Запись без профиля равносильна
// отсутствию сессии, даже если handle уже записан.
func (s *RedisStore) LoadSession(ctx context.Context) (domain.Session, bool, error) {
	fields, err := s.client.HGetAll(ctx, sessionKey).Result()
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("%w: load: %v", domain.ErrStorage, err)
	}

	handle := fields[KeyCurrentHandle]
	rawProfile, hasProfile := fields[KeyUserData]
	if handle == "" || !hasProfile {
		return domain.Session{}, false, nil
	}

	session := domain.Session{Handle: handle}
	if err := json.Unmarshal([]byte(rawProfile), &session.Profile); err != nil {
		return domain.Session{}, false, fmt.Errorf("%w: разбор профиля: %v", domain.ErrStorage, err)
	}
	if raw, ok := fields[KeySolvedProblems]; ok {
		if err := json.Unmarshal([]byte(raw), &session.Solved); err != nil {
			return domain.Session{}, false, fmt.Errorf("%w: разбор решённых задач: %v", domain.ErrStorage, err)
		}
	}
	session.LastUpdate = parseTime(fields[KeyLastUpdate])
	session.LoginTime = parseTime(fields[KeyLoginTime])
	if raw, ok := fields[keyVersion]; ok {
		session.Version, _ = strconv.ParseInt(raw, 10, 64)
	}
	return session, true, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
