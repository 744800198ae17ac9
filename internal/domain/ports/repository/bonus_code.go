package repository

import (
	"context"
	"time"

	"reparaturbonus/internal/domain/model"
)

// BonusCodeRepository is the port for bonus code persistence.
// Codes are stored upper-cased; lookups are by the normalized value.
type BonusCodeRepository interface {
	// Create inserts a new code. A unique-index violation on code is
	// reported as domain.ErrCodeConflict.
	Create(ctx context.Context, tx Tx, code *model.BonusCode) error
	// ExistsByCode is the best-effort pre-check used by the generation loop.
	ExistsByCode(ctx context.Context, tx Tx, code string) (bool, error)
	// FindByCode returns domain.ErrCodeNotFound when no row matches.
	FindByCode(ctx context.Context, tx Tx, code string) (*model.BonusCode, error)
	// ListByOwner returns the owner's codes, newest first.
	ListByOwner(ctx context.Context, tx Tx, ownerUserID string) ([]*model.BonusCode, error)
	// MarkUsed performs the single conditional write
	//   is_used=false AND expires_at >= now  ->  is_used=true, used_at=now, ...
	// and returns the updated row. When no row was updated it returns
	// domain.ErrCodeNotFound, domain.ErrCodeAlreadyUsed or domain.ErrCodeExpired.
	MarkUsed(ctx context.Context, tx Tx, code string, r model.Redemption, now time.Time) (*model.BonusCode, error)
	// Stats aggregates all codes relative to now.
	Stats(ctx context.Context, tx Tx, now time.Time) (*model.BonusStats, error)
}
