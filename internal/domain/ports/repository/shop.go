package repository

import (
	"context"

	"reparaturbonus/internal/domain/model"
)

type ShopRepository interface {
	Save(ctx context.Context, tx Tx, shop *model.Shop) error
	// FindByID returns domain.ErrShopNotFound when absent.
	FindByID(ctx context.Context, tx Tx, id string) (*model.Shop, error)
	List(ctx context.Context, tx Tx) ([]*model.Shop, error)
}
