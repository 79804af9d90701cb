package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/findosh/auctionsite/internal/models"
	"github.com/google/uuid"
)

// UserRepository provides user data access
type UserRepository struct {
	q querier
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{q: db}
}

// Create inserts a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, username, site_id, password_hash)
		VALUES (?, ?, ?, ?)
	`
	_, err := r.q.ExecContext(ctx, query,
		user.ID.String(),
		user.Username,
		user.SiteID.String(),
		user.PasswordHash,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", classify(err))
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `
		SELECT id, username, site_id, password_hash
		FROM users WHERE id = ?
	`
	return scanUser(r.q.QueryRowContext(ctx, query, id.String()))
}

// GetByUsername retrieves a user by username within a site
func (r *UserRepository) GetByUsername(ctx context.Context, siteID uuid.UUID, username string) (*models.User, error) {
	query := `
		SELECT id, username, site_id, password_hash
		FROM users WHERE username = ? AND site_id = ?
	`
	return scanUser(r.q.QueryRowContext(ctx, query, username, siteID.String()))
}

// ListBySite retrieves every user of a site ordered by username
func (r *UserRepository) ListBySite(ctx context.Context, siteID uuid.UUID) ([]*models.User, error) {
	query := `
		SELECT id, username, site_id, password_hash
		FROM users WHERE site_id = ? ORDER BY username
	`
	rows, err := r.q.QueryContext(ctx, query, siteID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", classify(err))
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, classify(rows.Err())
}

// HasActiveAuctions reports whether the user sells or currently leads an
// auction that has not ended at now
func (r *UserRepository) HasActiveAuctions(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	query := `
		SELECT COUNT(*) FROM auctions
		WHERE (owner_id = ? OR winner_id = ?) AND ends_on > ?
	`
	var count int
	err := r.q.QueryRowContext(ctx, query, id.String(), id.String(), toNanos(now)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check active auctions: %w", classify(err))
	}
	return count > 0, nil
}

// Delete removes a user. Sessions cascade and won auctions lose their
// winner; auctions the user sells must already be gone.
func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.q.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", classify(err))
	}
	return requireAffected(result)
}

type userRow struct {
	id, username, siteID, passwordHash string
}

func (r *userRow) dest() []any {
	return []any{&r.id, &r.username, &r.siteID, &r.passwordHash}
}

func (r *userRow) user() (*models.User, error) {
	user := models.User{Username: r.username, PasswordHash: r.passwordHash}
	var err error
	if user.ID, err = uuid.Parse(r.id); err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", r.id, err)
	}
	if user.SiteID, err = uuid.Parse(r.siteID); err != nil {
		return nil, fmt.Errorf("invalid site id %q: %w", r.siteID, err)
	}
	return &user, nil
}

func scanUser(row scanner) (*models.User, error) {
	var r userRow
	if err := row.Scan(r.dest()...); err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", classify(err))
	}
	return r.user()
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
