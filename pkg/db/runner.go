package db

import (
	"context"

	"gorm.io/gorm"
)

// TxRunner executes a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type connRunner struct {
	conn *gorm.DB
}

// NewTxRunner adapts a raw gorm connection into a TxRunner. Workers and
// tests that hold a *gorm.DB rather than a Client use this.
func NewTxRunner(conn *gorm.DB) TxRunner {
	return &connRunner{conn: conn}
}

func (r *connRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.conn.WithContext(ctx).Transaction(fn)
}
