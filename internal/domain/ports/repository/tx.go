package repository

import "context"

// Tx is a backend transaction handle.
type Tx interface{}

// TransactionManager runs fn inside one storage transaction and passes the
// backend-specific handle (pgx.Tx, *sqlx.Tx) as tx. Repositories accept a nil
// tx as the non-transactional path.
type TransactionManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
