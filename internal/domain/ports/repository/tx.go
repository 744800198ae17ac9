package repository

import "context"

// Tx is an opaque, store-defined transaction handle (pgx.Tx, *gorm.DB, ...).
type Tx interface{}

var NoTX interface{}

// TransactionManager executes fn within a store transaction and passes the
// handle through tx. Repositories MUST accept a nil tx (non-transactional path).
//
//	tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
//		if err := orders.Create(ctx, tx, o); err != nil {
//			return err
//		}
//		return codes.Create(ctx, tx, c)
//	})
//
// A non-nil error from fn rolls the transaction back.
type TransactionManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
