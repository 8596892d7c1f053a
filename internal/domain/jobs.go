package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RefreshCause описывает источник запроса на обновление сессии.
type RefreshCause string

const (
	// RefreshCauseManual — пользователь запросил обновление вручную.
	RefreshCauseManual RefreshCause = "manual"
	// RefreshCauseLogin — обновление инициировано входом пользователя.
	RefreshCauseLogin RefreshCause = "login"
)

// RefreshJob содержит информацию о задаче фонового обновления сессии.
type RefreshJob struct {
	ID          string       `json:"job_id,omitempty"`
	Handle      string       `json:"handle"`
	RequestedAt time.Time    `json:"requested_at"`
	Cause       RefreshCause `json:"cause"`
}

// NewRefreshJob создаёт задачу обновления с новым идентификатором.
func NewRefreshJob(handle string, cause RefreshCause) RefreshJob {
	return RefreshJob{
		ID:          uuid.NewString(),
		Handle:      handle,
		RequestedAt: time.Now().UTC(),
		Cause:       cause,
	}
}

// RefreshAckFunc подтверждает обработку задачи или возвращает её в очередь.
type RefreshAckFunc func(success bool) error

// RefreshQueue описывает очередь задач обновления.
type RefreshQueue interface {
	Enqueue(ctx context.Context, job RefreshJob) error
	Receive(ctx context.Context) (RefreshJob, RefreshAckFunc, error)
}
