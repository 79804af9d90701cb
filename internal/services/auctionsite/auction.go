package auctionsite

import (
	"context"
	"errors"
	"time"

	"github.com/findosh/auctionsite/internal/clock"
	"github.com/findosh/auctionsite/internal/models"
	"github.com/findosh/auctionsite/internal/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Auction is a handle on a timed auction. Description and end time are
// fixed; price and winner are read from the store on every call.
type Auction struct {
	id          uuid.UUID
	site        *Site
	seller      *User
	description string
	endsOn      time.Time
}

func newAuction(site *Site, seller *User, row *models.Auction) *Auction {
	return &Auction{
		id:          row.ID,
		site:        site,
		seller:      seller,
		description: row.Description,
		endsOn:      row.EndsOn.In(clock.Zone(site.Timezone())),
	}
}

// ID returns the auction's identifier
func (a *Auction) ID() uuid.UUID { return a.id }

// Seller returns the user who put the item up for auction
func (a *Auction) Seller() *User { return a.seller }

// Description returns what is being sold
func (a *Auction) Description() string { return a.description }

// EndsOn returns when bidding closes, in the site's timezone
func (a *Auction) EndsOn() time.Time { return a.endsOn }

func (a *Auction) load(ctx context.Context) (*models.Auction, error) {
	row, err := storage.NewAuctionRepository(a.site.db).GetByID(ctx, a.id)
	if err != nil {
		return nil, fromStore(err, "auction no longer exists")
	}
	return row, nil
}

// CurrentPrice returns the price a buyer would pay right now
func (a *Auction) CurrentPrice(ctx context.Context) (decimal.Decimal, error) {
	row, err := a.load(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return row.CurrentPrice, nil
}

// CurrentWinner returns the leading bidder. It reports false while no
// bid has been accepted, or once the winner's account was deleted.
func (a *Auction) CurrentWinner(ctx context.Context) (*User, bool, error) {
	row, err := a.load(ctx)
	if err != nil {
		return nil, false, err
	}
	if !row.HasWinner() {
		return nil, false, nil
	}

	winner, err := storage.NewUserRepository(a.site.db).GetByID(ctx, row.WinnerID.UUID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fromStore(err, "failed to load winner")
	}
	return a.site.userHandle(winner), true, nil
}

// Bid places offer on behalf of the session's user and reports whether
// it was accepted. Bids on an ended auction are rejected without
// touching the session. Otherwise the session is extended even when the
// offer is too low.
func (a *Auction) Bid(ctx context.Context, session *Session, offer decimal.Decimal) (bool, error) {
	if offer.IsNegative() {
		return false, newError(CodeInvalidArgument, "offer must not be negative, got %s", offer)
	}
	if _, err := a.load(ctx); err != nil {
		return false, err
	}
	if session == nil {
		return false, newError(CodeInvalidArgument, "session is required")
	}
	valid, err := session.IsValid(ctx, uuid.NullUUID{UUID: a.site.ID(), Valid: true})
	if err != nil {
		return false, err
	}
	if !valid {
		return false, newError(CodeInvalidArgument, "session is not valid on this site")
	}

	accepted := false
	err = a.site.db.WithTx(ctx, func(tx *storage.Tx) error {
		auction, err := tx.Auctions.GetByID(ctx, a.id)
		if err != nil {
			return err
		}
		now := a.site.Now()
		if auction.IsEnded(now) {
			return nil
		}

		// The session may have expired or been swept since the check above.
		row, err := tx.Sessions.GetByID(ctx, session.id)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && row.IsExpired(now)) {
			return newError(CodeInvalidArgument, "session is not valid on this site")
		}
		if err != nil {
			return err
		}
		if err := tx.Sessions.Extend(ctx, row.ID, a.site.expiresAt(now)); err != nil {
			return err
		}

		bidder, err := tx.Users.GetByID(ctx, row.UserID)
		if errors.Is(err, storage.ErrNotFound) {
			return newError(CodeInvalidOperation, "bidder no longer exists")
		}
		if err != nil {
			return err
		}

		if !auction.ApplyBid(bidder.ID, offer, a.site.MinimumBidIncrement()) {
			return nil
		}
		accepted = true
		return tx.Auctions.UpdateBidState(ctx, auction)
	})
	if err != nil {
		return false, fromStore(err, "failed to place bid")
	}

	if accepted {
		a.site.logger.Debug("bid accepted", "auction", a.id, "bidder", session.user.Username(), "offer", offer.String())
	}
	return accepted, nil
}

// Delete removes the auction
func (a *Auction) Delete(ctx context.Context) error {
	err := a.site.db.WithTx(ctx, func(tx *storage.Tx) error {
		return tx.Auctions.Delete(ctx, a.id)
	})
	if err != nil {
		return fromStore(err, "auction no longer exists")
	}
	return nil
}
