package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cf-suggest/internal/domain"
	"cf-suggest/internal/infra/metrics"
)

// Postgres хранит историю выданных подборок.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.HistoryRepo = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// SaveBatch сохраняет подборку и её задачи одной транзакцией.
func (p *Postgres) SaveBatch(ctx context.Context, record domain.SuggestionRecord) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	start := time.Now()
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
INSERT INTO suggestion_batches (id, handle, rating, created_at)
VALUES ($1, $2, $3, $4)
`, record.ID, record.Handle, record.Rating, record.CreatedAt); err != nil {
			return fmt.Errorf("вставка подборки: %w", err)
		}
		for pos, problem := range record.Problems {
			tags, err := json.Marshal(problem.Tags)
			if err != nil {
				return fmt.Errorf("marshal тегов: %w", err)
			}
			if _, err := tx.Exec(ctx, `
INSERT INTO suggestion_items (batch_id, position, contest_id, problem_index, name, rating, tags)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, record.ID, pos, problem.ContestID, problem.Index, problem.Name, problem.Rating, tags); err != nil {
				return fmt.Errorf("вставка задачи: %w", err)
			}
		}
		return nil
	})
	metrics.ObserveNetworkRequest("postgres", "suggestion_batch_insert", "suggestion_batches", start, err)
	return err
}

// ListRecent возвращает последние подборки пользователя, новые первыми.
func (p *Postgres) ListRecent(ctx context.Context, handle string, limit int) ([]domain.SuggestionRecord, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 10
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT b.id, b.handle, b.rating, b.created_at,
       i.contest_id, i.problem_index, i.name, i.rating, i.tags
FROM suggestion_batches b
JOIN suggestion_items i ON i.batch_id = b.id
WHERE b.handle = $1
  AND b.id IN (
      SELECT id FROM suggestion_batches
      WHERE handle = $1
      ORDER BY created_at DESC
      LIMIT $2
  )
ORDER BY b.created_at DESC, i.position
`, handle, limit)
	metrics.ObserveNetworkRequest("postgres", "suggestion_batch_list", "suggestion_batches", start, err)
	if err != nil {
		return nil, fmt.Errorf("чтение истории: %w", err)
	}
	defer rows.Close()

	var records []domain.SuggestionRecord
	index := make(map[string]int)
	for rows.Next() {
		var (
			record  domain.SuggestionRecord
			problem domain.Problem
			tags    []byte
		)
		if err := rows.Scan(&record.ID, &record.Handle, &record.Rating, &record.CreatedAt,
			&problem.ContestID, &problem.Index, &problem.Name, &problem.Rating, &tags); err != nil {
			return nil, fmt.Errorf("чтение строки истории: %w", err)
		}
		if len(tags) > 0 {
			if err := json.Unmarshal(tags, &problem.Tags); err != nil {
				return nil, fmt.Errorf("разбор тегов: %w", err)
			}
		}
		pos, ok := index[record.ID]
		if !ok {
			index[record.ID] = len(records)
			pos = len(records)
			records = append(records, record)
		}
		records[pos].Problems = append(records[pos].Problems, problem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("чтение истории: %w", err)
	}
	return records, nil
}
