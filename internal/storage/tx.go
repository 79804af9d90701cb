package storage

import (
	"context"
	"fmt"
)

// Tx is a write transaction with repositories bound to it
type Tx struct {
	Sites    *SiteRepository
	Users    *UserRepository
	Sessions *SessionRepository
	Auctions *AuctionRepository
}

// WithTx runs fn inside one write transaction. The transaction commits
// when fn returns nil and rolls back on every other exit path, including
// a panic. Errors from fn are returned unchanged.
func (db *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classify(err))
	}
	defer sqlTx.Rollback()

	tx := &Tx{
		Sites:    &SiteRepository{q: sqlTx},
		Users:    &UserRepository{q: sqlTx},
		Sessions: &SessionRepository{q: sqlTx},
		Auctions: &AuctionRepository{q: sqlTx},
	}
	if err := fn(tx); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", classify(err))
	}
	return nil
}
