package bunrepo

import (
	"context"

	"github.com/uptrace/bun"
)

type txKey struct{}

// WithTx binds a transaction to the context. Repository writes issued
// with the returned context execute against the transaction instead of
// the pooled connection.
func WithTx(ctx context.Context, tx bun.IDB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func txFromContext(ctx context.Context) (bun.IDB, bool) {
	tx, ok := ctx.Value(txKey{}).(bun.IDB)
	return tx, ok
}
