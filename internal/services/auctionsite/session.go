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

// Session is a handle on a user's login. Its expiration lives in the
// store and is re-read by every call.
type Session struct {
	id   string
	site *Site
	user *User
}

// ID returns the opaque session token
func (s *Session) ID() string { return s.id }

// User returns the logged-in user
func (s *Session) User() *User { return s.user }

// ValidUntil returns the current expiration of the session
func (s *Session) ValidUntil(ctx context.Context) (time.Time, error) {
	row, err := storage.NewSessionRepository(s.site.db).GetByID(ctx, s.id)
	if err != nil {
		return time.Time{}, fromStore(err, "session no longer exists")
	}
	return row.ValidUntil.In(clock.Zone(s.site.Timezone())), nil
}

// IsValid reports whether the session still exists and has not expired.
// When siteID is set, the session must also belong to that site.
func (s *Session) IsValid(ctx context.Context, siteID uuid.NullUUID) (bool, error) {
	if siteID.Valid && siteID.UUID != s.site.ID() {
		return false, nil
	}

	row, err := storage.NewSessionRepository(s.site.db).GetByID(ctx, s.id)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fromStore(err, "failed to read session")
	}
	return row.SiteID == s.site.ID() && !row.IsExpired(s.site.Now()), nil
}

// Logout destroys the session
func (s *Session) Logout(ctx context.Context) error {
	err := s.site.db.WithTx(ctx, func(tx *storage.Tx) error {
		return tx.Sessions.Delete(ctx, s.id)
	})
	if errors.Is(err, storage.ErrNotFound) {
		return newError(CodeInvalidOperation, "session already logged out")
	}
	if err != nil {
		return fromStore(err, "failed to log out")
	}
	return nil
}

// IncreaseExpirationTime pushes the expiration to one full session
// lifetime from now. The expiration never moves backwards.
func (s *Session) IncreaseExpirationTime(ctx context.Context) error {
	err := s.site.db.WithTx(ctx, func(tx *storage.Tx) error {
		return tx.Sessions.Extend(ctx, s.id, s.site.expiresAt(s.site.Now()))
	})
	if err != nil {
		return fromStore(err, "session no longer exists")
	}
	return nil
}

// CreateAuction puts an item up for auction with the session's user as
// seller. Bidding starts at startingPrice and closes at endsOn.
func (s *Session) CreateAuction(ctx context.Context, description string, endsOn time.Time, startingPrice decimal.Decimal) (*Auction, error) {
	valid, err := s.IsValid(ctx, uuid.NullUUID{})
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, newError(CodeInvalidOperation, "session is no longer valid")
	}
	if description == "" {
		return nil, newError(CodeInvalidArgument, "description must not be empty")
	}
	now := s.site.Now()
	if !endsOn.After(now) {
		return nil, newError(CodeTimeParadox, "auction would end at %s, not after %s", endsOn.Format(time.RFC3339), now.Format(time.RFC3339))
	}
	if !storage.Representable(endsOn) {
		return nil, newError(CodeArgumentOutOfRange, "auction end %s is after %s", endsOn.UTC().Format(time.RFC3339), storage.MaxTime.Format(time.RFC3339))
	}
	if startingPrice.IsNegative() {
		return nil, newError(CodeArgumentOutOfRange, "starting price must not be negative, got %s", startingPrice)
	}

	row := models.NewAuction(s.site.ID(), s.user.ID(), description, endsOn, startingPrice)
	err = s.site.db.WithTx(ctx, func(tx *storage.Tx) error {
		// Re-check under the write lock; the sweep may have run meanwhile.
		session, err := tx.Sessions.GetByID(ctx, s.id)
		if errors.Is(err, storage.ErrNotFound) {
			return newError(CodeInvalidOperation, "session is no longer valid")
		}
		if err != nil {
			return err
		}
		now := s.site.Now()
		if session.IsExpired(now) {
			return newError(CodeInvalidOperation, "session is no longer valid")
		}
		if err := tx.Auctions.Create(ctx, row); err != nil {
			return err
		}
		return tx.Sessions.Extend(ctx, s.id, s.site.expiresAt(now))
	})
	if err != nil {
		return nil, fromStore(err, "failed to create auction")
	}

	s.site.logger.Info("auction created", "auction", row.ID, "seller", s.user.Username())
	return newAuction(s.site, s.user, row), nil
}
