package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"reparaturbonus/internal/domain"
	"reparaturbonus/internal/domain/ports/repository"
	"reparaturbonus/internal/infra/metrics"
)

// Open connects to the SQLite file (or memory DSN) and migrates the schema.
// SQLite serializes writers, so the pool is pinned to one connection.
func Open(dsn string) (*gorm.DB, error) {
	if !strings.Contains(dsn, "_pragma=busy_timeout") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return db, nil
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&UserModel{}, &ShopModel{}, &OrderModel{}, &BonusCodeModel{})
}

// ReportPoolStats publishes pool gauges every interval until ctx is done.
func ReportPoolStats(ctx context.Context, db *gorm.DB, interval time.Duration, logger *zerolog.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		logger.Warn().Err(err).Msg("sqlite pool stats unavailable")
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		s := sqlDB.Stats()
		metrics.SetDBPoolConns("sqlite", s.OpenConnections, s.Idle, s.InUse)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Ensure compile-time conformance
var _ repository.TransactionManager = (*TxManager)(nil)

// TxManager runs callbacks inside db.Transaction; the *gorm.DB handle for
// the transaction is passed on as repository.Tx.
type TxManager struct {
	db *gorm.DB
}

func NewTxManager(db *gorm.DB) *TxManager { return &TxManager{db: db} }

func (m *TxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, tx)
	})
}

func conn(ctx context.Context, db *gorm.DB, tx repository.Tx) (*gorm.DB, error) {
	switch v := tx.(type) {
	case nil:
		return db.WithContext(ctx), nil
	case *gorm.DB:
		return v.WithContext(ctx), nil
	default:
		return nil, domain.ErrInvalidExecContext
	}
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		(err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed"))
}
