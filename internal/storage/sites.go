package storage

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/findosh/auctionsite/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

// Bounds of the instants the store can hold. Times are kept as UTC unix
// nanoseconds in an INTEGER column so SQL comparisons are independent of
// the site timezone.
var (
	MinTime = time.Unix(0, math.MinInt64).UTC()
	MaxTime = time.Unix(0, math.MaxInt64).UTC()
)

// Representable reports whether t lies within MinTime..MaxTime
func Representable(t time.Time) bool {
	return !t.Before(MinTime) && !t.After(MaxTime)
}

func checkRepresentable(what string, t time.Time) error {
	if !Representable(t) {
		return fmt.Errorf("%w: %s %s outside %s..%s", ErrOutOfRange, what,
			t.UTC().Format(time.RFC3339), MinTime.Format(time.RFC3339), MaxTime.Format(time.RFC3339))
	}
	return nil
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// SiteRepository provides site data access
type SiteRepository struct {
	q querier
}

// NewSiteRepository creates a new site repository
func NewSiteRepository(db *DB) *SiteRepository {
	return &SiteRepository{q: db}
}

// Create inserts a new site
func (r *SiteRepository) Create(ctx context.Context, s *models.Site) error {
	query := `
		INSERT INTO sites (id, name, timezone, session_expiration_seconds, minimum_bid_increment)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := r.q.ExecContext(ctx, query,
		s.ID.String(),
		s.Name,
		s.Timezone,
		s.SessionExpirationSeconds,
		s.MinimumBidIncrement.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to create site: %w", classify(err))
	}
	return nil
}

// GetByID retrieves a site by ID
func (r *SiteRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Site, error) {
	query := `
		SELECT id, name, timezone, session_expiration_seconds, minimum_bid_increment
		FROM sites WHERE id = ?
	`
	return scanSite(r.q.QueryRowContext(ctx, query, id.String()))
}

// GetByName retrieves a site by its unique name
func (r *SiteRepository) GetByName(ctx context.Context, name string) (*models.Site, error) {
	query := `
		SELECT id, name, timezone, session_expiration_seconds, minimum_bid_increment
		FROM sites WHERE name = ?
	`
	return scanSite(r.q.QueryRowContext(ctx, query, name))
}

// Exists reports whether a site row is present
func (r *SiteRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int
	err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM sites WHERE id = ?", id.String()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check site: %w", classify(err))
	}
	return count > 0, nil
}

// List retrieves every site ordered by name
func (r *SiteRepository) List(ctx context.Context) ([]*models.Site, error) {
	query := `
		SELECT id, name, timezone, session_expiration_seconds, minimum_bid_increment
		FROM sites ORDER BY name
	`
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", classify(err))
	}
	defer rows.Close()

	var sites []*models.Site
	for rows.Next() {
		s, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, s)
	}

	return sites, classify(rows.Err())
}

// Delete removes a site row. Users, sessions and auctions must be gone.
func (r *SiteRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.q.ExecContext(ctx, "DELETE FROM sites WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("failed to delete site: %w", classify(err))
	}
	return requireAffected(result)
}

func scanSite(row scanner) (*models.Site, error) {
	var s models.Site
	var id, increment string

	err := row.Scan(&id, &s.Name, &s.Timezone, &s.SessionExpirationSeconds, &increment)
	if err != nil {
		return nil, fmt.Errorf("failed to scan site: %w", classify(err))
	}

	if s.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid site id %q: %w", id, err)
	}
	if s.MinimumBidIncrement, err = decimal.NewFromString(increment); err != nil {
		return nil, fmt.Errorf("invalid minimum bid increment %q: %w", increment, err)
	}

	return &s, nil
}
