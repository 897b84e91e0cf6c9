package store

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type txKey struct{}

var errTxClosed = errors.New("transaction already closed")

// Tx is a gorm transaction carried in a context. Store methods called with
// that context join it through getDB.
type Tx struct {
	id int64
	db *gorm.DB
}

func txFrom(ctx context.Context) (*Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*Tx)
	return tx, ok && tx != nil
}

// FromContext returns the open transaction of ctx, or nil.
func FromContext(ctx context.Context) *gorm.DB {
	if tx, ok := txFrom(ctx); ok && tx.db != nil {
		return tx.db
	}
	return nil
}

// Commit commits the transaction of ctx. Without one it is a no-op.
func Commit(ctx context.Context) (context.Context, error) {
	tx, ok := txFrom(ctx)
	if !ok {
		return ctx, nil
	}
	return context.WithValue(ctx, txKey{}, nil), tx.close(true)
}

// Rollback rolls back the transaction of ctx. Without one it is a no-op.
func Rollback(ctx context.Context) (context.Context, error) {
	tx, ok := txFrom(ctx)
	if !ok {
		return ctx, nil
	}
	return context.WithValue(ctx, txKey{}, nil), tx.close(false)
}

// newTransactionContext begins a transaction unless ctx already carries one,
// in which case ctx is returned as is.
func newTransactionContext(ctx context.Context, db *gorm.DB) (context.Context, error) {
	if _, ok := txFrom(ctx); ok {
		return ctx, nil
	}

	session := db.Session(&gorm.Session{Context: ctx})
	gtx := session.Begin()
	if gtx.Error != nil {
		return ctx, gtx.Error
	}

	tx := &Tx{db: gtx}
	// only used to correlate log lines
	if session.Dialector.Name() == "postgres" {
		var row struct{ ID int64 }
		gtx.Raw("select txid_current() as id").Scan(&row)
		tx.id = row.ID
	}
	return context.WithValue(ctx, txKey{}, tx), nil
}

// withTransaction runs fn inside a transaction and commits when fn succeeds.
// A transaction already present in ctx is joined and left to its owner.
func withTransaction(ctx context.Context, db *gorm.DB, fn func(ctx context.Context) error) error {
	if _, ok := txFrom(ctx); ok {
		return fn(ctx)
	}

	txCtx, err := newTransactionContext(ctx, db)
	if err != nil {
		return err
	}
	if err := fn(txCtx); err != nil {
		if _, rbErr := Rollback(txCtx); rbErr != nil {
			zap.S().Named("store").Warnw("failed to rollback transaction", "error", rbErr)
		}
		return err
	}
	_, err = Commit(txCtx)
	return err
}

func (t *Tx) close(commit bool) error {
	if t.db == nil {
		return errTxClosed
	}

	op := "rollback"
	var res *gorm.DB
	if commit {
		op, res = "commit", t.db.Commit()
	} else {
		res = t.db.Rollback()
	}
	t.db = nil

	if res.Error != nil {
		zap.S().Named("store").Errorw("transaction failed to close", "tx", t.id, "op", op, "error", res.Error)
		return res.Error
	}
	zap.S().Named("store").Debugw("transaction closed", "tx", t.id, "op", op)
	return nil
}
