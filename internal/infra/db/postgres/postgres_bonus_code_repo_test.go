//go:build integration

package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"reparaturbonus/internal/domain"
	"reparaturbonus/internal/domain/model"
	"reparaturbonus/internal/domain/ports/repository"
)

func TestBonusCodeRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	repo := NewBonusCodeRepo(testPool)
	tm := NewTxManager(testPool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("should create, find and list codes", func(t *testing.T) {
		cleanup(t)
		u, s := seedOwnerAndShop(t)

		first, _ := model.NewBonusCode("AAAA0001", u.ID, s.ID, nil, now)
		second, _ := model.NewBonusCode("AAAA0002", u.ID, s.ID, nil, now.Add(time.Minute))
		for _, c := range []*model.BonusCode{first, second} {
			if err := repo.Create(ctx, nil, c); err != nil {
				t.Fatalf("Create(%s) failed: %v", c.Code, err)
			}
		}

		found, err := repo.FindByCode(ctx, nil, "AAAA0001")
		if err != nil {
			t.Fatalf("FindByCode failed: %v", err)
		}
		if found.ID != first.ID || found.Amount != 100 || found.Currency != "CHF" || found.IsUsed {
			t.Errorf("unexpected row: %+v", found)
		}
		if !found.ExpiresAt.Equal(first.ExpiresAt) {
			t.Errorf("expected expiresAt %s, got %s", first.ExpiresAt, found.ExpiresAt)
		}

		exists, err := repo.ExistsByCode(ctx, nil, "AAAA0002")
		if err != nil || !exists {
			t.Errorf("expected AAAA0002 to exist, got %v (%v)", exists, err)
		}

		list, err := repo.ListByOwner(ctx, nil, u.ID)
		if err != nil {
			t.Fatalf("ListByOwner failed: %v", err)
		}
		if len(list) != 2 || list[0].Code != "AAAA0002" {
			t.Errorf("expected newest first, got %d rows", len(list))
		}

		if _, err := repo.FindByCode(ctx, nil, "ZZZZZZZZ"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("a duplicate code inside a transaction is retryable", func(t *testing.T) {
		cleanup(t)
		u, s := seedOwnerAndShop(t)
		taken, _ := model.NewBonusCode("DUPE0001", u.ID, s.ID, nil, now)
		if err := repo.Create(ctx, nil, taken); err != nil {
			t.Fatalf("seed code: %v", err)
		}

		err := tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			dup, _ := model.NewBonusCode("DUPE0001", u.ID, s.ID, nil, now)
			if err := repo.Create(ctx, tx, dup); !errors.Is(err, domain.ErrCodeConflict) {
				t.Errorf("expected ErrCodeConflict, got %v", err)
			}
			// The transaction must still accept statements after the conflict.
			fresh, _ := model.NewBonusCode("FRESH001", u.ID, s.ID, nil, now)
			return repo.Create(ctx, tx, fresh)
		})
		if err != nil {
			t.Fatalf("expected transaction to commit, got %v", err)
		}
		if _, err := repo.FindByCode(ctx, nil, "FRESH001"); err != nil {
			t.Errorf("expected FRESH001 to be committed: %v", err)
		}
	})

	t.Run("mark used is a single conditional write", func(t *testing.T) {
		cleanup(t)
		u, s := seedOwnerAndShop(t)
		c, _ := model.NewBonusCode("RACE0001", u.ID, s.ID, nil, now)
		if err := repo.Create(ctx, nil, c); err != nil {
			t.Fatalf("seed code: %v", err)
		}

		const n = 8
		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			wins   int
			losses int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.MarkUsed(ctx, nil, "RACE0001", model.EvidenceRedemption("proofs/x"), now.Add(time.Second))
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					wins++
				} else if errors.Is(err, domain.ErrCodeAlreadyUsed) {
					losses++
				} else {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		if wins != 1 || losses != n-1 {
			t.Fatalf("expected exactly one winner, got %d wins %d losses", wins, losses)
		}

		used, _ := repo.FindByCode(ctx, nil, "RACE0001")
		if !used.IsUsed || used.UsedAt == nil || used.ResidenceProofRef == nil || *used.ResidenceProofRef != "proofs/x" {
			t.Errorf("unexpected used row: %+v", used)
		}
		if used.RedemptionMode == nil || *used.RedemptionMode != model.RedemptionEvidence {
			t.Errorf("expected evidence mode, got %v", used.RedemptionMode)
		}
	})

	t.Run("mark used classifies rejected updates", func(t *testing.T) {
		cleanup(t)
		u, s := seedOwnerAndShop(t)
		c, _ := model.NewBonusCode("LATE0001", u.ID, s.ID, nil, now)
		if err := repo.Create(ctx, nil, c); err != nil {
			t.Fatalf("seed code: %v", err)
		}

		_, err := repo.MarkUsed(ctx, nil, "LATE0001", model.OwnerAssertionRedemption(u.ID), c.ExpiresAt.Add(time.Second))
		if !errors.Is(err, domain.ErrCodeExpired) {
			t.Errorf("expected ErrCodeExpired, got %v", err)
		}
		_, err = repo.MarkUsed(ctx, nil, "NOPE0001", model.OwnerAssertionRedemption(u.ID), now)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		got, err := repo.MarkUsed(ctx, nil, "LATE0001", model.OwnerAssertionRedemption(u.ID), c.ExpiresAt)
		if err != nil {
			t.Fatalf("expected redemption exactly at expiry to succeed, got %v", err)
		}
		if got.RedeemedBy == nil || *got.RedeemedBy != u.ID || got.ResidenceProofRef != nil {
			t.Errorf("unexpected owner assertion row: %+v", got)
		}
	})

	t.Run("stats aggregate by status", func(t *testing.T) {
		cleanup(t)
		u, s := seedOwnerAndShop(t)
		old := now.AddDate(0, -2, 0)
		for _, c := range []struct {
			code string
			at   time.Time
		}{{"STAT0001", now}, {"STAT0002", now}, {"STAT0003", old}} {
			bc, _ := model.NewBonusCode(c.code, u.ID, s.ID, nil, c.at)
			if err := repo.Create(ctx, nil, bc); err != nil {
				t.Fatalf("seed %s: %v", c.code, err)
			}
		}
		if _, err := repo.MarkUsed(ctx, nil, "STAT0001", model.EvidenceRedemption("p"), now); err != nil {
			t.Fatalf("mark used: %v", err)
		}

		st, err := repo.Stats(ctx, nil, now)
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		want := model.BonusStats{Issued: 3, Used: 1, Expired: 1, Open: 1, DisbursedAmount: 100}
		if *st != want {
			t.Errorf("expected %+v, got %+v", want, *st)
		}
	})
}
