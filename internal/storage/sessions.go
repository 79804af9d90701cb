package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/findosh/auctionsite/internal/models"
	"github.com/google/uuid"
)

// SessionListing is a session together with the user it belongs to
type SessionListing struct {
	Session *models.Session
	User    *models.User
}

// SessionRepository provides session data access
type SessionRepository struct {
	q querier
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{q: db}
}

// Create inserts a new session
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if err := checkRepresentable("session expiration", session.ValidUntil); err != nil {
		return err
	}
	query := `
		INSERT INTO sessions (id, valid_until, user_id, site_id)
		VALUES (?, ?, ?, ?)
	`
	_, err := r.q.ExecContext(ctx, query,
		session.ID,
		toNanos(session.ValidUntil),
		session.UserID.String(),
		session.SiteID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", classify(err))
	}
	return nil
}

// GetByID retrieves a session by its token
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	query := `
		SELECT id, valid_until, user_id, site_id
		FROM sessions WHERE id = ?
	`
	return scanSession(r.q.QueryRowContext(ctx, query, id))
}

// GetValidForUser retrieves a session of the user still valid at now,
// preferring the one that lasts longest
func (r *SessionRepository) GetValidForUser(ctx context.Context, userID uuid.UUID, now time.Time) (*models.Session, error) {
	query := `
		SELECT id, valid_until, user_id, site_id
		FROM sessions WHERE user_id = ? AND valid_until > ?
		ORDER BY valid_until DESC LIMIT 1
	`
	return scanSession(r.q.QueryRowContext(ctx, query, userID.String(), toNanos(now)))
}

// ListBySite retrieves every session of a site, expired or not, with the
// user owning it
func (r *SessionRepository) ListBySite(ctx context.Context, siteID uuid.UUID) ([]SessionListing, error) {
	query := `
		SELECT s.id, s.valid_until, s.user_id, s.site_id,
			u.id, u.username, u.site_id, u.password_hash
		FROM sessions s JOIN users u ON u.id = s.user_id
		WHERE s.site_id = ? ORDER BY s.valid_until
	`
	rows, err := r.q.QueryContext(ctx, query, siteID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", classify(err))
	}
	defer rows.Close()

	var listings []SessionListing
	for rows.Next() {
		var sr sessionRow
		var ur userRow
		if err := rows.Scan(append(sr.dest(), ur.dest()...)...); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", classify(err))
		}
		session, err := sr.session()
		if err != nil {
			return nil, err
		}
		user, err := ur.user()
		if err != nil {
			return nil, err
		}
		listings = append(listings, SessionListing{Session: session, User: user})
	}

	return listings, classify(rows.Err())
}

// Extend moves the expiration to validUntil unless it is already later,
// so a session's expiration never decreases. Returns ErrNotFound when the
// session is gone.
func (r *SessionRepository) Extend(ctx context.Context, id string, validUntil time.Time) error {
	if err := checkRepresentable("session expiration", validUntil); err != nil {
		return err
	}
	result, err := r.q.ExecContext(ctx,
		"UPDATE sessions SET valid_until = MAX(valid_until, ?) WHERE id = ?",
		toNanos(validUntil), id,
	)
	if err != nil {
		return fmt.Errorf("failed to extend session: %w", classify(err))
	}
	return requireAffected(result)
}

// Delete removes a session. Returns ErrNotFound when it is already gone.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", classify(err))
	}
	return requireAffected(result)
}

// DeleteExpired removes the sessions of a site that are no longer valid
// at now and returns how many were removed
func (r *SessionRepository) DeleteExpired(ctx context.Context, siteID uuid.UUID, now time.Time) (int64, error) {
	result, err := r.q.ExecContext(ctx,
		"DELETE FROM sessions WHERE site_id = ? AND valid_until <= ?",
		siteID.String(), toNanos(now),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", classify(err))
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, classify(err)
	}
	return removed, nil
}

// DeleteBySite removes every session of a site
func (r *SessionRepository) DeleteBySite(ctx context.Context, siteID uuid.UUID) error {
	_, err := r.q.ExecContext(ctx, "DELETE FROM sessions WHERE site_id = ?", siteID.String())
	if err != nil {
		return fmt.Errorf("failed to delete site sessions: %w", classify(err))
	}
	return nil
}

type sessionRow struct {
	id, userID, siteID string
	validUntil         int64
}

func (r *sessionRow) dest() []any {
	return []any{&r.id, &r.validUntil, &r.userID, &r.siteID}
}

func (r *sessionRow) session() (*models.Session, error) {
	session := models.Session{ID: r.id, ValidUntil: fromNanos(r.validUntil)}
	var err error
	if session.UserID, err = uuid.Parse(r.userID); err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", r.userID, err)
	}
	if session.SiteID, err = uuid.Parse(r.siteID); err != nil {
		return nil, fmt.Errorf("invalid site id %q: %w", r.siteID, err)
	}
	return &session, nil
}

func scanSession(row scanner) (*models.Session, error) {
	var r sessionRow
	if err := row.Scan(r.dest()...); err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", classify(err))
	}
	return r.session()
}
