package adapter

import (
	"context"

	"reparaturbonus/internal/domain/model"
)

// RedemptionNotifier informs operators about successful redemptions.
type RedemptionNotifier interface {
	NotifyRedeemed(ctx context.Context, code *model.BonusCode) error
}
