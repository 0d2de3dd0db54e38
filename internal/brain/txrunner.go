package brain

import (
	"context"

	"basegraph.app/hookrelay/core/db"
	"basegraph.app/hookrelay/internal/store"
)

// StoreProvider exposes stores needed by transactional operations in the brain package.
// This is a local interface to avoid import cycles (service → brain, not brain → service).
type StoreProvider interface {
	Tasks() store.TaskStore
	Watchers() store.WatcherStore
}

// TxRunner runs functions within a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(stores StoreProvider) error) error
}

type dbTxRunner struct {
	db *db.DB
}

// NewTxRunner creates a TxRunner backed by the given database.
func NewTxRunner(db *db.DB) TxRunner {
	return &dbTxRunner{db: db}
}

func (r *dbTxRunner) WithTx(ctx context.Context, fn func(stores StoreProvider) error) error {
	return r.db.WithTx(ctx, func(q db.DBTX) error {
		return fn(store.NewStores(q))
	})
}
