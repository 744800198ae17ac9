package repository

import (
	"context"

	"reparaturbonus/internal/domain/model"
)

type OrderRepository interface {
	Create(ctx context.Context, tx Tx, order *model.Order) error
	// FindByID returns domain.ErrOrderNotFound when absent.
	FindByID(ctx context.Context, tx Tx, id string) (*model.Order, error)
}
