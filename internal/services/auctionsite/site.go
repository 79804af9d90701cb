package auctionsite

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/findosh/auctionsite/internal/clock"
	"github.com/findosh/auctionsite/internal/models"
	"github.com/findosh/auctionsite/internal/services/auth"
	"github.com/findosh/auctionsite/internal/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Site is a loaded tenant. Its attributes are immutable once created.
type Site struct {
	db            *storage.DB
	model         models.Site
	clock         clock.AlarmClock
	hasher        auth.Hasher
	logger        *slog.Logger
	sweepInterval time.Duration

	mu     sync.Mutex
	alarm  clock.Alarm
	closed bool
}

func newSite(ctx context.Context, h *Host, model *models.Site) *Site {
	s := &Site{
		db:            h.db,
		model:         *model,
		clock:         h.clocks.InstantiateAlarmClock(model.Timezone),
		hasher:        h.opts.hasher,
		logger:        h.logger.With("site", model.Name),
		sweepInterval: h.opts.sweepInterval,
	}

	s.sweep(ctx)
	s.mu.Lock()
	s.armLocked()
	s.mu.Unlock()
	return s
}

// ID returns the site's identifier
func (s *Site) ID() uuid.UUID { return s.model.ID }

// Name returns the site's unique name
func (s *Site) Name() string { return s.model.Name }

// Timezone returns the site's offset from UTC in hours
func (s *Site) Timezone() int { return s.model.Timezone }

// SessionExpiration returns how long a session lasts after its last activity
func (s *Site) SessionExpiration() time.Duration { return s.model.SessionExpiration() }

// MinimumBidIncrement returns the smallest raise a bid must make
func (s *Site) MinimumBidIncrement() decimal.Decimal { return s.model.MinimumBidIncrement }

// Now returns the current time in the site's timezone
func (s *Site) Now() time.Time {
	return s.clock.Now()
}

// expiresAt saturates at the latest instant the store can hold
func (s *Site) expiresAt(now time.Time) time.Time {
	if now.After(storage.MaxTime.Add(-s.model.SessionExpiration())) {
		return storage.MaxTime
	}
	return now.Add(s.model.SessionExpiration())
}

// Login authenticates a user. It reports false when the username is
// unknown or the password is wrong. A user who already holds a valid
// session gets that session back.
func (s *Site) Login(ctx context.Context, username, password string) (*Session, bool, error) {
	if err := validateCredentials(username, password); err != nil {
		return nil, false, err
	}
	if err := s.requireExists(ctx); err != nil {
		return nil, false, err
	}

	// Verify outside the write transaction; hashing is slow.
	user, err := storage.NewUserRepository(s.db).GetByUsername(ctx, s.model.ID, username)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fromStore(err, "failed to look up user")
	}
	if err := s.hasher.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrMismatchedPassword) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var session *models.Session
	err = s.db.WithTx(ctx, func(tx *storage.Tx) error {
		// The user may have been deleted since verification.
		if _, err := tx.Users.GetByID(ctx, user.ID); err != nil {
			return err
		}

		now := s.Now()
		existing, err := tx.Sessions.GetValidForUser(ctx, user.ID, now)
		if err == nil {
			session = existing
			return nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		session = &models.Session{
			ID:         auth.NewSessionToken(username, s.model.Name, now),
			UserID:     user.ID,
			SiteID:     s.model.ID,
			ValidUntil: s.expiresAt(now),
		}
		return tx.Sessions.Create(ctx, session)
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fromStore(err, "failed to log in")
	}

	s.logger.Debug("user logged in", "username", username)
	return &Session{id: session.ID, site: s, user: s.userHandle(user)}, true, nil
}

// CreateUser registers a user on the site
func (s *Site) CreateUser(ctx context.Context, username, password string) error {
	if err := validateCredentials(username, password); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	user := models.NewUser(s.model.ID, username, hash)

	err = s.db.WithTx(ctx, func(tx *storage.Tx) error {
		if err := requireSite(ctx, tx, s.model.ID); err != nil {
			return err
		}
		return tx.Users.Create(ctx, user)
	})
	if errors.Is(err, storage.ErrUniqueViolation) {
		return nameInUse(username, err)
	}
	if err != nil {
		return fromStore(err, "failed to create user")
	}

	s.logger.Info("user created", "username", username)
	return nil
}

// ToyGetUsers returns a snapshot of the site's users
func (s *Site) ToyGetUsers(ctx context.Context) (iter.Seq[*User], error) {
	if err := s.requireExists(ctx); err != nil {
		return nil, err
	}

	rows, err := storage.NewUserRepository(s.db).ListBySite(ctx, s.model.ID)
	if err != nil {
		return nil, fromStore(err, "failed to list users")
	}

	users := make([]*User, 0, len(rows))
	for _, u := range rows {
		users = append(users, s.userHandle(u))
	}
	return slices.Values(users), nil
}

// ToyGetSessions returns a snapshot of the site's sessions, including
// expired ones the sweep has not removed yet
func (s *Site) ToyGetSessions(ctx context.Context) (iter.Seq[*Session], error) {
	if err := s.requireExists(ctx); err != nil {
		return nil, err
	}

	rows, err := storage.NewSessionRepository(s.db).ListBySite(ctx, s.model.ID)
	if err != nil {
		return nil, fromStore(err, "failed to list sessions")
	}

	sessions := make([]*Session, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, &Session{id: row.Session.ID, site: s, user: s.userHandle(row.User)})
	}
	return slices.Values(sessions), nil
}

// ToyGetAuctions returns a snapshot of the site's auctions; with
// onlyNotEnded, only those still open for bidding
func (s *Site) ToyGetAuctions(ctx context.Context, onlyNotEnded bool) (iter.Seq[*Auction], error) {
	if err := s.requireExists(ctx); err != nil {
		return nil, err
	}

	rows, err := storage.NewAuctionRepository(s.db).ListBySite(ctx, s.model.ID, onlyNotEnded, s.Now())
	if err != nil {
		return nil, fromStore(err, "failed to list auctions")
	}
	return s.auctionHandles(rows), nil
}

// Delete removes the site together with its users, sessions and
// auctions. It fails while any auction is still open, since an open
// auction always has a seller who cannot be deleted.
func (s *Site) Delete(ctx context.Context) error {
	err := s.db.WithTx(ctx, func(tx *storage.Tx) error {
		if err := requireSite(ctx, tx, s.model.ID); err != nil {
			return err
		}

		active, err := tx.Auctions.CountActiveBySite(ctx, s.model.ID, s.Now())
		if err != nil {
			return err
		}
		if active > 0 {
			return newError(CodeInvalidOperation, "site %q has %d active auctions", s.model.Name, active)
		}

		if err := tx.Auctions.DeleteBySite(ctx, s.model.ID); err != nil {
			return err
		}
		if err := tx.Sessions.DeleteBySite(ctx, s.model.ID); err != nil {
			return err
		}
		users, err := tx.Users.ListBySite(ctx, s.model.ID)
		if err != nil {
			return err
		}
		for _, u := range users {
			if err := tx.Users.Delete(ctx, u.ID); err != nil {
				return err
			}
		}
		return tx.Sites.Delete(ctx, s.model.ID)
	})
	if err != nil {
		return fromStore(err, "failed to delete site")
	}

	s.Close()
	s.logger.Info("site deleted")
	return nil
}

// Close stops the periodic sweep. The site's data is untouched.
func (s *Site) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.alarm != nil {
		s.alarm.Stop()
		s.alarm = nil
	}
}

// armLocked replaces the current alarm with a fresh one. s.mu must be held.
func (s *Site) armLocked() {
	if s.closed {
		return
	}
	if s.alarm != nil {
		s.alarm.Stop()
	}
	s.alarm = s.clock.InstantiateAlarm(int(s.sweepInterval.Milliseconds()))
	s.alarm.OnRing(s.onRing)
}

func (s *Site) onRing() {
	s.sweep(context.Background())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.armLocked()
}

// sweep removes every session of the site that has expired. Failures are
// logged; the next ring retries.
func (s *Site) sweep(ctx context.Context) {
	var removed int64
	err := s.db.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		removed, err = tx.Sessions.DeleteExpired(ctx, s.model.ID, s.Now())
		return err
	})
	if err != nil {
		s.logger.Error("session sweep failed", "error", err)
		return
	}
	s.logger.Debug("expired sessions swept", "removed", removed)
}

func (s *Site) requireExists(ctx context.Context) error {
	exists, err := storage.NewSiteRepository(s.db).Exists(ctx, s.model.ID)
	if err != nil {
		return fromStore(err, "failed to check site")
	}
	if !exists {
		return newError(CodeInvalidOperation, "site %q has been deleted", s.model.Name)
	}
	return nil
}

func requireSite(ctx context.Context, tx *storage.Tx, id uuid.UUID) error {
	exists, err := tx.Sites.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return newError(CodeInvalidOperation, "site has been deleted")
	}
	return nil
}

func (s *Site) userHandle(u *models.User) *User {
	return &User{id: u.ID, username: u.Username, site: s}
}

func (s *Site) auctionHandles(rows []storage.AuctionListing) iter.Seq[*Auction] {
	auctions := make([]*Auction, 0, len(rows))
	for _, row := range rows {
		auctions = append(auctions, newAuction(s, s.userHandle(row.Seller), row.Auction))
	}
	return slices.Values(auctions)
}

func validateCredentials(username, password string) error {
	n := utf8.RuneCountInString(username)
	if n < models.MinUsername || n > models.MaxUsername {
		return newError(CodeInvalidArgument, "username length %d outside %d..%d", n, models.MinUsername, models.MaxUsername)
	}
	if utf8.RuneCountInString(password) < models.MinPassword {
		return newError(CodeInvalidArgument, "password shorter than %d characters", models.MinPassword)
	}
	return nil
}
