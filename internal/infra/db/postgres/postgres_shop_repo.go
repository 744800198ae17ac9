package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"reparaturbonus/internal/domain"
	"reparaturbonus/internal/domain/model"
	"reparaturbonus/internal/domain/ports/repository"
)

var _ repository.ShopRepository = (*shopRepo)(nil)

type shopRepo struct {
	pool *pgxpool.Pool
}

func NewShopRepo(pool *pgxpool.Pool) repository.ShopRepository {
	return &shopRepo{pool: pool}
}

func (r *shopRepo) Save(ctx context.Context, tx repository.Tx, s *model.Shop) error {
	const q = `
INSERT INTO shops (id, name, category, address, email, latitude, longitude, active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name,
  category = EXCLUDED.category,
  address = EXCLUDED.address,
  email = EXCLUDED.email,
  latitude = EXCLUDED.latitude,
  longitude = EXCLUDED.longitude,
  active = EXCLUDED.active;
`
	_, err := execSQL(ctx, r.pool, tx, q,
		s.ID, s.Name, string(s.Category), s.Address, s.Email, s.Latitude, s.Longitude, s.Active, s.CreatedAt,
	)
	if err != nil {
		return opFailed("upsert shop", err)
	}
	return nil
}

func (r *shopRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Shop, error) {
	const q = `
SELECT id, name, category, address, email, latitude, longitude, active, created_at
  FROM shops WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	s, err := scanShop(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrShopNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return s, nil
}

func (r *shopRepo) List(ctx context.Context, tx repository.Tx) ([]*model.Shop, error) {
	rows, err := queryRows(ctx, r.pool, tx, `
SELECT id, name, category, address, email, latitude, longitude, active, created_at
  FROM shops ORDER BY name;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Shop
	for rows.Next() {
		s, err := scanShop(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, opFailed("list shops", err)
	}
	return out, nil
}

func scanShop(row rowScanner) (*model.Shop, error) {
	var (
		s        model.Shop
		category string
	)
	if err := row.Scan(&s.ID, &s.Name, &category, &s.Address, &s.Email, &s.Latitude, &s.Longitude, &s.Active, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.Category = model.ShopCategory(category)
	return &s, nil
}
