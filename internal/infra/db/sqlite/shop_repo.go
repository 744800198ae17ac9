package sqlite

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"reparaturbonus/internal/domain"
	"reparaturbonus/internal/domain/model"
	"reparaturbonus/internal/domain/ports/repository"
)

var _ repository.ShopRepository = (*ShopRepo)(nil)

type ShopRepo struct {
	db *gorm.DB
}

func NewShopRepo(db *gorm.DB) *ShopRepo { return &ShopRepo{db: db} }

func (r *ShopRepo) Save(ctx context.Context, tx repository.Tx, s *model.Shop) error {
	db, err := conn(ctx, r.db, tx)
	if err != nil {
		return err
	}
	if err := db.Clauses(clause.OnConflict{UpdateAll: true}).Create(fromDomainShop(s)).Error; err != nil {
		return fmt.Errorf("%w: upsert shop: %v", domain.ErrOperationFailed, err)
	}
	return nil
}

func (r *ShopRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Shop, error) {
	db, err := conn(ctx, r.db, tx)
	if err != nil {
		return nil, err
	}
	var m ShopModel
	if err := db.Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrShopNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return toDomainShop(&m), nil
}

func (r *ShopRepo) List(ctx context.Context, tx repository.Tx) ([]*model.Shop, error) {
	db, err := conn(ctx, r.db, tx)
	if err != nil {
		return nil, err
	}
	var rows []ShopModel
	if err := db.Order("name").Find(&rows).Error; err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	out := make([]*model.Shop, 0, len(rows))
	for i := range rows {
		out = append(out, toDomainShop(&rows[i]))
	}
	return out, nil
}
