package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"reparaturbonus/internal/domain"
	"reparaturbonus/internal/domain/model"
	"reparaturbonus/internal/domain/ports/repository"
)

var _ repository.BonusCodeRepository = (*BonusCodeRepo)(nil)

type BonusCodeRepo struct {
	db *gorm.DB
}

func NewBonusCodeRepo(db *gorm.DB) *BonusCodeRepo {
	return &BonusCodeRepo{db: db}
}

func (r *BonusCodeRepo) Create(ctx context.Context, tx repository.Tx, c *model.BonusCode) error {
	db, err := conn(ctx, r.db, tx)
	if err != nil {
		return err
	}
	m := fromDomainBonusCode(c)
	m.IsUsed = false
	if err := db.Create(m).Error; err != nil {
		if isDuplicate(err) {
			return domain.ErrCodeConflict
		}
		return fmt.Errorf("%w: insert bonus code: %v", domain.ErrOperationFailed, err)
	}
	return nil
}

func (r *BonusCodeRepo) ExistsByCode(ctx context.Context, tx repository.Tx, code string) (bool, error) {
	db, err := conn(ctx, r.db, tx)
	if err != nil {
		return false, err
	}
	var n int64
	if err := db.Model(&BonusCodeModel{}).Where("code = ?", code).Count(&n).Error; err != nil {
		return false, fmt.Errorf("%w: check bonus code: %v", domain.ErrOperationFailed, err)
	}
	return n > 0, nil
}

func (r *BonusCodeRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.BonusCode, error) {
	db, err := conn(ctx, r.db, tx)
	if err != nil {
		return nil, err
	}
	var m BonusCodeModel
	if err := db.Where("code = ?", code).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCodeNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return toDomainBonusCode(&m), nil
}

func (r *BonusCodeRepo) ListByOwner(ctx context.Context, tx repository.Tx, ownerUserID string) ([]*model.BonusCode, error) {
	db, err := conn(ctx, r.db, tx)
	if err != nil {
		return nil, err
	}
	var rows []BonusCodeModel
	if err := db.Where("owner_user_id = ?", ownerUserID).Order("issued_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	out := make([]*model.BonusCode, 0, len(rows))
	for i := range rows {
		out = append(out, toDomainBonusCode(&rows[i]))
	}
	return out, nil
}

// MarkUsed flips is_used with a guarded UPDATE. Zero affected rows means the
// guard failed; the row is re-read to report why.
func (r *BonusCodeRepo) MarkUsed(ctx context.Context, tx repository.Tx, code string, red model.Redemption, now time.Time) (*model.BonusCode, error) {
	db, err := conn(ctx, r.db, tx)
	if err != nil {
		return nil, err
	}
	nowMs := millis(now)
	updates := map[string]interface{}{
		"is_used":             true,
		"used_at":             nowMs,
		"redemption_mode":     string(red.Mode),
		"residence_proof_ref": optional(red.ProofRef),
		"redeemed_by":         optional(red.PrincipalID),
	}
	res := db.Model(&BonusCodeModel{}).
		Where("code = ? AND is_used = ? AND expires_at >= ?", code, false, nowMs).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("%w: mark bonus code used: %v", domain.ErrOperationFailed, res.Error)
	}

	current, err := r.FindByCode(ctx, tx, code)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 1 {
		return current, nil
	}
	if err := current.CheckRedeemable(now); err != nil {
		return nil, err
	}
	return nil, domain.ErrCodeAlreadyUsed
}

func (r *BonusCodeRepo) Stats(ctx context.Context, tx repository.Tx, now time.Time) (*model.BonusStats, error) {
	db, err := conn(ctx, r.db, tx)
	if err != nil {
		return nil, err
	}
	var row struct {
		Issued          int
		Used            int
		Expired         int
		DisbursedAmount int64
	}
	err = db.Model(&BonusCodeModel{}).Select(
		`COUNT(*) AS issued,
		 COALESCE(SUM(CASE WHEN is_used THEN 1 ELSE 0 END), 0) AS used,
		 COALESCE(SUM(CASE WHEN NOT is_used AND expires_at < ? THEN 1 ELSE 0 END), 0) AS expired,
		 COALESCE(SUM(CASE WHEN is_used THEN amount ELSE 0 END), 0) AS disbursed_amount`, millis(now),
	).Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("%w: bonus code stats: %v", domain.ErrOperationFailed, err)
	}
	return &model.BonusStats{
		Issued:          row.Issued,
		Used:            row.Used,
		Expired:         row.Expired,
		Open:            row.Issued - row.Used - row.Expired,
		DisbursedAmount: row.DisbursedAmount,
	}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
