package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"reparaturbonus/internal/domain"
	"reparaturbonus/internal/domain/model"
	"reparaturbonus/internal/domain/ports/repository"
)

// Ensure implementation satisfies the interface.
var _ repository.BonusCodeRepository = (*bonusCodeRepo)(nil)

const bonusCodeColumns = `id, code, amount, currency, issued_at, expires_at, is_used, used_at,
       residence_proof_ref, redemption_mode, redeemed_by, owner_user_id, shop_id, order_id`

type bonusCodeRepo struct {
	pool *pgxpool.Pool
}

func NewBonusCodeRepo(pool *pgxpool.Pool) repository.BonusCodeRepository {
	return &bonusCodeRepo{pool: pool}
}

// Create inserts inside a savepoint so that a unique violation leaves the
// surrounding transaction usable for the next candidate.
func (r *bonusCodeRepo) Create(ctx context.Context, tx repository.Tx, c *model.BonusCode) error {
	const q = `
INSERT INTO bonus_codes (id, code, amount, currency, issued_at, expires_at, is_used, owner_user_id, shop_id, order_id)
VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $8, $9);
`
	err := withSavepoint(ctx, r.pool, tx, func(ex executor) error {
		_, err := ex.Exec(ctx, q, c.ID, c.Code, c.Amount, c.Currency, c.IssuedAt, c.ExpiresAt, c.OwnerUserID, c.ShopID, c.OrderID)
		return err
	})
	if isUniqueViolation(err, "bonus_codes_code_key") {
		return domain.ErrCodeConflict
	}
	if err != nil {
		return opFailed("insert bonus code", err)
	}
	return nil
}

func (r *bonusCodeRepo) ExistsByCode(ctx context.Context, tx repository.Tx, code string) (bool, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT EXISTS (SELECT 1 FROM bonus_codes WHERE code = $1);`, code)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, opFailed("check bonus code", err)
	}
	return exists, nil
}

func (r *bonusCodeRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.BonusCode, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+bonusCodeColumns+` FROM bonus_codes WHERE code = $1;`, code)
	if err != nil {
		return nil, err
	}
	c, err := scanBonusCode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCodeNotFound
	}
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return c, nil
}

func (r *bonusCodeRepo) ListByOwner(ctx context.Context, tx repository.Tx, ownerUserID string) ([]*model.BonusCode, error) {
	rows, err := queryRows(ctx, r.pool, tx,
		`SELECT `+bonusCodeColumns+` FROM bonus_codes WHERE owner_user_id = $1 ORDER BY issued_at DESC, id DESC;`, ownerUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.BonusCode
	for rows.Next() {
		c, err := scanBonusCode(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, opFailed("list bonus codes", err)
	}
	return out, nil
}

// MarkUsed is the only write that flips is_used. When the guard rejects the
// update the row is re-read to report why.
func (r *bonusCodeRepo) MarkUsed(ctx context.Context, tx repository.Tx, code string, red model.Redemption, now time.Time) (*model.BonusCode, error) {
	const q = `
UPDATE bonus_codes
   SET is_used = TRUE, used_at = $2, residence_proof_ref = $3, redemption_mode = $4, redeemed_by = $5
 WHERE code = $1 AND is_used = FALSE AND expires_at >= $2
RETURNING ` + bonusCodeColumns + `;`
	row, err := pickRow(ctx, r.pool, tx, q, code, now, nullable(red.ProofRef), string(red.Mode), nullable(red.PrincipalID))
	if err != nil {
		return nil, err
	}
	c, err := scanBonusCode(row)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, opFailed("mark bonus code used", err)
	}

	current, err := r.FindByCode(ctx, tx, code)
	if err != nil {
		return nil, err
	}
	if err := current.CheckRedeemable(now); err != nil {
		return nil, err
	}
	return nil, domain.ErrCodeAlreadyUsed
}

func (r *bonusCodeRepo) Stats(ctx context.Context, tx repository.Tx, now time.Time) (*model.BonusStats, error) {
	const q = `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE is_used),
       COUNT(*) FILTER (WHERE NOT is_used AND expires_at < $1),
       COALESCE(SUM(amount) FILTER (WHERE is_used), 0)::BIGINT
  FROM bonus_codes;
`
	row, err := pickRow(ctx, r.pool, tx, q, now)
	if err != nil {
		return nil, err
	}
	var s model.BonusStats
	if err := row.Scan(&s.Issued, &s.Used, &s.Expired, &s.DisbursedAmount); err != nil {
		return nil, opFailed("bonus code stats", err)
	}
	s.Open = s.Issued - s.Used - s.Expired
	return &s, nil
}

func scanBonusCode(row rowScanner) (*model.BonusCode, error) {
	var (
		c    model.BonusCode
		mode *string
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Amount, &c.Currency, &c.IssuedAt, &c.ExpiresAt, &c.IsUsed, &c.UsedAt,
		&c.ResidenceProofRef, &mode, &c.RedeemedBy, &c.OwnerUserID, &c.ShopID, &c.OrderID,
	)
	if err != nil {
		return nil, err
	}
	if mode != nil {
		m := model.RedemptionMode(*mode)
		c.RedemptionMode = &m
	}
	return &c, nil
}
