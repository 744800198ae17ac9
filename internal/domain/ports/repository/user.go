package repository

import (
	"context"

	"reparaturbonus/internal/domain/model"
)

type UserRepository interface {
	Save(ctx context.Context, tx Tx, user *model.User) error
	// FindByID returns domain.ErrUserNotFound when absent.
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
}
