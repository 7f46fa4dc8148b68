package postgres

import (
	"context"

	"github.com/aussiebroadwan/scagate/internal/sca/store"
	"github.com/jackc/pgx/v5"
)

type txStore struct {
	tx pgx.Tx
}

// Commit and Rollback don't take a context in the store contract, so they
// run detached from the request.
func (t *txStore) Commit() error   { return t.tx.Commit(context.Background()) }
func (t *txStore) Rollback() error { return t.tx.Rollback(context.Background()) }

func (t *txStore) Close() error                   { return nil }
func (t *txStore) Ping(ctx context.Context) error { return nil }

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	return nil, pgx.ErrTxClosed
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return pgx.ErrTxClosed
}

func (t *txStore) Authorisations() store.Authorisations { return &authorisationsRepo{q: t.tx} }
func (t *txStore) Consents() store.Consents             { return &consentsRepo{q: t.tx} }
func (t *txStore) Payments() store.Payments             { return &paymentsRepo{q: t.tx} }

func (t *txStore) ApplyMigrations() error { return nil }
