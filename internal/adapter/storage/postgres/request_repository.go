package postgres

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/seu-repo/echarge/internal/domain"
	"github.com/seu-repo/echarge/internal/ports"
)

type RequestRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewRequestRepository(db *gorm.DB, log *zap.Logger) ports.RequestRepository {
	return &RequestRepository{
		db:  db,
		log: log,
	}
}

func (r *RequestRepository) Save(ctx context.Context, req *domain.ChargeRequest) error {
	return r.db.WithContext(ctx).Save(req).Error
}

func (r *RequestRepository) FindByID(ctx context.Context, id string) (*domain.ChargeRequest, error) {
	var req domain.ChargeRequest
	err := r.db.WithContext(ctx).First(&req, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func (r *RequestRepository) FindHistoryByUserID(ctx context.Context, userID string) ([]domain.ChargeRequest, error) {
	var reqs []domain.ChargeRequest
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at desc").Find(&reqs).Error
	return reqs, err
}
