package auctionsite

import (
	"context"
	"iter"

	"github.com/findosh/auctionsite/internal/storage"
	"github.com/google/uuid"
)

// User is a handle on a registered user
type User struct {
	id       uuid.UUID
	username string
	site     *Site
}

// ID returns the user's identifier
func (u *User) ID() uuid.UUID { return u.id }

// Username returns the user's name, unique within the site
func (u *User) Username() string { return u.username }

// WonAuctions returns a snapshot of the ended auctions this user won
func (u *User) WonAuctions(ctx context.Context) (iter.Seq[*Auction], error) {
	if _, err := storage.NewUserRepository(u.site.db).GetByID(ctx, u.id); err != nil {
		return nil, fromStore(err, "user no longer exists")
	}

	rows, err := storage.NewAuctionRepository(u.site.db).ListWonBy(ctx, u.id, u.site.Now())
	if err != nil {
		return nil, fromStore(err, "failed to list won auctions")
	}
	return u.site.auctionHandles(rows), nil
}

// Delete removes the user together with every auction they sell. It
// fails while the user sells or leads an auction that has not ended.
// Auctions the user already won keep existing without a winner.
func (u *User) Delete(ctx context.Context) error {
	var sold int64
	err := u.site.db.WithTx(ctx, func(tx *storage.Tx) error {
		if _, err := tx.Users.GetByID(ctx, u.id); err != nil {
			return err
		}

		active, err := tx.Users.HasActiveAuctions(ctx, u.id, u.site.Now())
		if err != nil {
			return err
		}
		if active {
			return newError(CodeInvalidOperation, "user %q has active auctions", u.username)
		}

		if sold, err = tx.Auctions.DeleteBySeller(ctx, u.id); err != nil {
			return err
		}
		return tx.Users.Delete(ctx, u.id)
	})
	if err != nil {
		return fromStore(err, "failed to delete user")
	}

	u.site.logger.Info("user deleted", "username", u.username, "auctions_removed", sold)
	return nil
}
