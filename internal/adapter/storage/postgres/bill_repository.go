package postgres

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/seu-repo/echarge/internal/domain"
	"github.com/seu-repo/echarge/internal/ports"
)

type BillRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewBillRepository(db *gorm.DB, log *zap.Logger) ports.BillRepository {
	return &BillRepository{
		db:  db,
		log: log,
	}
}

// Insert appends a bill row. Create (not Save) keeps the rows immutable:
// a second write with the same id fails instead of updating.
func (r *BillRepository) Insert(ctx context.Context, bill *domain.Bill) error {
	return r.db.WithContext(ctx).Create(bill).Error
}

func (r *BillRepository) FindByID(ctx context.Context, id string) (*domain.Bill, error) {
	var b domain.Bill
	err := r.db.WithContext(ctx).First(&b, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

func (r *BillRepository) FindByUserID(ctx context.Context, userID string, q ports.RecordQuery) ([]domain.Bill, int64, error) {
	tx := r.db.WithContext(ctx).Model(&domain.Bill{}).Where("user_id = ?", userID)
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if q.From != nil {
		tx = tx.Where("start_at >= ?", *q.From)
	}
	if q.To != nil {
		tx = tx.Where("start_at < ?", *q.To)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	switch q.Sort {
	case ports.RecordSortTimeDesc:
		tx = tx.Order("start_at desc")
	case ports.RecordSortCostAsc:
		tx = tx.Order("total_cost asc")
	case ports.RecordSortCostDesc:
		tx = tx.Order("total_cost desc")
	default:
		tx = tx.Order("start_at asc")
	}
	if q.PageSize > 0 {
		offset := (q.Page - 1) * q.PageSize
		if offset < 0 {
			offset = 0
		}
		tx = tx.Offset(offset).Limit(q.PageSize)
	}

	var bills []domain.Bill
	err := tx.Find(&bills).Error
	return bills, total, err
}

func (r *BillRepository) CountForDay(ctx context.Context, day time.Time) (int64, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)

	var n int64
	err := r.db.WithContext(ctx).Model(&domain.Bill{}).
		Where("created_at >= ? AND created_at < ?", start, end).
		Count(&n).Error
	return n, err
}
