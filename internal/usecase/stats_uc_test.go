//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"reparaturbonus/internal/domain"
	"reparaturbonus/internal/domain/model"
	"reparaturbonus/internal/usecase"
)

func TestStatsUseCase(t *testing.T) {
	ctx := context.Background()
	testLogger := newTestLogger()

	t.Run("Summary should aggregate codes by status", func(t *testing.T) {
		// --- Arrange ---
		codes := NewMockBonusCodeRepo()
		now := time.Now()
		usedAt := now.Add(-time.Hour)
		codes.Put(&model.BonusCode{Code: "OPEN0001", Amount: 100, IssuedAt: now, ExpiresAt: now.Add(24 * time.Hour)})
		codes.Put(&model.BonusCode{Code: "OPEN0002", Amount: 100, IssuedAt: now, ExpiresAt: now.Add(24 * time.Hour)})
		codes.Put(&model.BonusCode{Code: "USED0001", Amount: 100, IsUsed: true, UsedAt: &usedAt, ExpiresAt: now.Add(24 * time.Hour)})
		codes.Put(&model.BonusCode{Code: "GONE0001", Amount: 100, ExpiresAt: now.Add(-24 * time.Hour)})

		uc := usecase.NewStatsUseCase(codes, testLogger)

		// --- Act ---
		s, err := uc.Summary(ctx, admin)

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, but got %v", err)
		}
		want := model.BonusStats{Issued: 4, Used: 1, Expired: 1, Open: 2, DisbursedAmount: 100}
		if *s != want {
			t.Errorf("expected %+v, got %+v", want, *s)
		}
	})

	t.Run("Summary should be restricted to admins", func(t *testing.T) {
		uc := usecase.NewStatsUseCase(NewMockBonusCodeRepo(), testLogger)

		if _, err := uc.Summary(ctx, nil); !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
		if _, err := uc.Summary(ctx, owner); !errors.Is(err, domain.ErrForbidden) {
			t.Errorf("expected ErrForbidden, got %v", err)
		}
		shop := &model.Principal{UserID: "shop-user", Role: model.RoleShop}
		if _, err := uc.Summary(ctx, shop); !errors.Is(err, domain.ErrForbidden) {
			t.Errorf("expected ErrForbidden for shop role, got %v", err)
		}
	})
}
