package usecase

import (
	"context"
	"time"

	"reparaturbonus/internal/domain"
	"reparaturbonus/internal/domain/model"
	"reparaturbonus/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

type StatsUseCase interface {
	// Summary aggregates issued/used/expired codes; admins only.
	Summary(ctx context.Context, p *model.Principal) (*model.BonusStats, error)
}

type statsUC struct {
	codes repository.BonusCodeRepository
	now   func() time.Time

	log *zerolog.Logger
}

func NewStatsUseCase(codes repository.BonusCodeRepository, logger *zerolog.Logger) *statsUC {
	return &statsUC{codes: codes, now: time.Now, log: logger}
}

func (s *statsUC) Summary(ctx context.Context, p *model.Principal) (*model.BonusStats, error) {
	if p == nil {
		return nil, domain.ErrUnauthorized
	}
	if !p.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	return s.codes.Stats(ctx, repository.NoTX, s.now())
}
