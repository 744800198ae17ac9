package sqlite

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"reparaturbonus/internal/domain"
	"reparaturbonus/internal/domain/model"
	"reparaturbonus/internal/domain/ports/repository"
)

var _ repository.OrderRepository = (*OrderRepo)(nil)

type OrderRepo struct {
	db *gorm.DB
}

func NewOrderRepo(db *gorm.DB) *OrderRepo { return &OrderRepo{db: db} }

func (r *OrderRepo) Create(ctx context.Context, tx repository.Tx, o *model.Order) error {
	db, err := conn(ctx, r.db, tx)
	if err != nil {
		return err
	}
	if err := db.Create(fromDomainOrder(o)).Error; err != nil {
		if isDuplicate(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("%w: insert order: %v", domain.ErrOperationFailed, err)
	}
	return nil
}

func (r *OrderRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Order, error) {
	db, err := conn(ctx, r.db, tx)
	if err != nil {
		return nil, err
	}
	var m OrderModel
	if err := db.Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return toDomainOrder(&m), nil
}
