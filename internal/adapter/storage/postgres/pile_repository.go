package postgres

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/seu-repo/echarge/internal/domain"
	"github.com/seu-repo/echarge/internal/ports"
)

type PileRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewPileRepository(db *gorm.DB, log *zap.Logger) ports.PileRepository {
	return &PileRepository{
		db:  db,
		log: log,
	}
}

func (r *PileRepository) Save(ctx context.Context, pile *domain.Pile) error {
	return r.db.WithContext(ctx).Save(pile).Error
}

func (r *PileRepository) FindAll(ctx context.Context) ([]domain.Pile, error) {
	var piles []domain.Pile
	err := r.db.WithContext(ctx).Order("id asc").Find(&piles).Error
	return piles, err
}
