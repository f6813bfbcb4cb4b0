package ports

import (
	"context"
	"time"

	"github.com/seu-repo/echarge/internal/domain"
)

type UserRepository interface {
	Save(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, id string) (*domain.User, error)
}

type PileRepository interface {
	Save(ctx context.Context, pile *domain.Pile) error
	FindAll(ctx context.Context) ([]domain.Pile, error)
}

type RequestRepository interface {
	Save(ctx context.Context, req *domain.ChargeRequest) error
	FindByID(ctx context.Context, id string) (*domain.ChargeRequest, error)
	FindHistoryByUserID(ctx context.Context, userID string) ([]domain.ChargeRequest, error)
}

type SessionRepository interface {
	Save(ctx context.Context, session *domain.ChargingSession) error
	FindByID(ctx context.Context, id string) (*domain.ChargingSession, error)
}

// RecordSort orders bill listings.
type RecordSort string

const (
	RecordSortTimeAsc  RecordSort = "time_asc"
	RecordSortTimeDesc RecordSort = "time_desc"
	RecordSortCostAsc  RecordSort = "cost_asc"
	RecordSortCostDesc RecordSort = "cost_desc"
)

// RecordQuery filters and pages a user's bill history.
type RecordQuery struct {
	From     *time.Time
	To       *time.Time
	Status   domain.BillStatus
	Sort     RecordSort
	Page     int
	PageSize int
}

type BillRepository interface {
	// Insert appends a bill row; rows are immutable afterwards.
	Insert(ctx context.Context, bill *domain.Bill) error
	FindByID(ctx context.Context, id string) (*domain.Bill, error)
	FindByUserID(ctx context.Context, userID string, q RecordQuery) ([]domain.Bill, int64, error)
	// CountForDay returns how many bills exist for the given calendar day,
	// used to seed the daily bill sequence after a restart.
	CountForDay(ctx context.Context, day time.Time) (int64, error)
}

type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping() error
	Close() error
}
