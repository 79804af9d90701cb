package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/findosh/auctionsite/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AuctionRepository provides auction data access
type AuctionRepository struct {
	q querier
}

// NewAuctionRepository creates a new auction repository
func NewAuctionRepository(db *DB) *AuctionRepository {
	return &AuctionRepository{q: db}
}

const selectAuction = `
	SELECT id, description, ends_on, maximum_bid_value, current_price, owner_id, winner_id, site_id
	FROM auctions
`

// selectListing joins each auction with its seller so a listing is read in
// a single statement
const selectListing = `
	SELECT a.id, a.description, a.ends_on, a.maximum_bid_value, a.current_price, a.owner_id, a.winner_id, a.site_id,
		u.id, u.username, u.site_id, u.password_hash
	FROM auctions a JOIN users u ON u.id = a.owner_id
`

// AuctionListing is an auction together with its seller
type AuctionListing struct {
	Auction *models.Auction
	Seller  *models.User
}

// Create inserts a new auction
func (r *AuctionRepository) Create(ctx context.Context, a *models.Auction) error {
	if err := checkRepresentable("auction end", a.EndsOn); err != nil {
		return err
	}
	query := `
		INSERT INTO auctions (id, description, ends_on, maximum_bid_value, current_price, owner_id, winner_id, site_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.q.ExecContext(ctx, query,
		a.ID.String(),
		a.Description,
		toNanos(a.EndsOn),
		a.MaximumBidValue.String(),
		a.CurrentPrice.String(),
		a.SellerID.String(),
		nullableID(a.WinnerID),
		a.SiteID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to create auction: %w", classify(err))
	}
	return nil
}

// GetByID retrieves an auction by ID
func (r *AuctionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	return scanAuction(r.q.QueryRowContext(ctx, selectAuction+"WHERE id = ?", id.String()))
}

// ListBySite retrieves the auctions of a site with their sellers; with
// onlyNotEnded, only those still open at now
func (r *AuctionRepository) ListBySite(ctx context.Context, siteID uuid.UUID, onlyNotEnded bool, now time.Time) ([]AuctionListing, error) {
	if onlyNotEnded {
		return r.list(ctx, selectListing+"WHERE a.site_id = ? AND a.ends_on > ? ORDER BY a.ends_on", siteID.String(), toNanos(now))
	}
	return r.list(ctx, selectListing+"WHERE a.site_id = ? ORDER BY a.ends_on", siteID.String())
}

// ListWonBy retrieves the auctions that ended at or before now with
// userID as winner, together with their sellers
func (r *AuctionRepository) ListWonBy(ctx context.Context, userID uuid.UUID, now time.Time) ([]AuctionListing, error) {
	return r.list(ctx, selectListing+"WHERE a.winner_id = ? AND a.ends_on <= ? ORDER BY a.ends_on", userID.String(), toNanos(now))
}

// UpdateBidState persists the price, maximum bid and winner of an auction
func (r *AuctionRepository) UpdateBidState(ctx context.Context, a *models.Auction) error {
	query := `
		UPDATE auctions SET current_price = ?, maximum_bid_value = ?, winner_id = ?
		WHERE id = ?
	`
	result, err := r.q.ExecContext(ctx, query,
		a.CurrentPrice.String(),
		a.MaximumBidValue.String(),
		nullableID(a.WinnerID),
		a.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update auction: %w", classify(err))
	}
	return requireAffected(result)
}

// Delete removes an auction. Returns ErrNotFound when it is already gone.
func (r *AuctionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.q.ExecContext(ctx, "DELETE FROM auctions WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("failed to delete auction: %w", classify(err))
	}
	return requireAffected(result)
}

// DeleteBySeller removes every auction sold by a user
func (r *AuctionRepository) DeleteBySeller(ctx context.Context, sellerID uuid.UUID) (int64, error) {
	result, err := r.q.ExecContext(ctx, "DELETE FROM auctions WHERE owner_id = ?", sellerID.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete seller auctions: %w", classify(err))
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, classify(err)
	}
	return deleted, nil
}

// DeleteBySite removes every auction of a site
func (r *AuctionRepository) DeleteBySite(ctx context.Context, siteID uuid.UUID) error {
	_, err := r.q.ExecContext(ctx, "DELETE FROM auctions WHERE site_id = ?", siteID.String())
	if err != nil {
		return fmt.Errorf("failed to delete site auctions: %w", classify(err))
	}
	return nil
}

// CountActiveBySite counts auctions of a site that are still open at now
func (r *AuctionRepository) CountActiveBySite(ctx context.Context, siteID uuid.UUID, now time.Time) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM auctions WHERE site_id = ? AND ends_on > ?",
		siteID.String(), toNanos(now),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active auctions: %w", classify(err))
	}
	return count, nil
}

func (r *AuctionRepository) list(ctx context.Context, query string, args ...any) ([]AuctionListing, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list auctions: %w", classify(err))
	}
	defer rows.Close()

	var listings []AuctionListing
	for rows.Next() {
		var ar auctionRow
		var ur userRow
		if err := rows.Scan(append(ar.dest(), ur.dest()...)...); err != nil {
			return nil, fmt.Errorf("failed to scan auction: %w", classify(err))
		}
		a, err := ar.auction()
		if err != nil {
			return nil, err
		}
		seller, err := ur.user()
		if err != nil {
			return nil, err
		}
		listings = append(listings, AuctionListing{Auction: a, Seller: seller})
	}

	return listings, classify(rows.Err())
}

func nullableID(id uuid.NullUUID) sql.NullString {
	if !id.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: id.UUID.String(), Valid: true}
}

type auctionRow struct {
	id, description, ownerID, siteID, maxBid, price string
	winnerID                                        sql.NullString
	endsOn                                          int64
}

func (r *auctionRow) dest() []any {
	return []any{&r.id, &r.description, &r.endsOn, &r.maxBid, &r.price, &r.ownerID, &r.winnerID, &r.siteID}
}

func (r *auctionRow) auction() (*models.Auction, error) {
	a := models.Auction{Description: r.description, EndsOn: fromNanos(r.endsOn)}
	var err error
	if a.ID, err = uuid.Parse(r.id); err != nil {
		return nil, fmt.Errorf("invalid auction id %q: %w", r.id, err)
	}
	if a.SellerID, err = uuid.Parse(r.ownerID); err != nil {
		return nil, fmt.Errorf("invalid owner id %q: %w", r.ownerID, err)
	}
	if a.SiteID, err = uuid.Parse(r.siteID); err != nil {
		return nil, fmt.Errorf("invalid site id %q: %w", r.siteID, err)
	}
	if r.winnerID.Valid {
		winner, err := uuid.Parse(r.winnerID.String)
		if err != nil {
			return nil, fmt.Errorf("invalid winner id %q: %w", r.winnerID.String, err)
		}
		a.WinnerID = uuid.NullUUID{UUID: winner, Valid: true}
	}
	if a.MaximumBidValue, err = decimal.NewFromString(r.maxBid); err != nil {
		return nil, fmt.Errorf("invalid maximum bid %q: %w", r.maxBid, err)
	}
	if a.CurrentPrice, err = decimal.NewFromString(r.price); err != nil {
		return nil, fmt.Errorf("invalid current price %q: %w", r.price, err)
	}
	return &a, nil
}

func scanAuction(row scanner) (*models.Auction, error) {
	var r auctionRow
	if err := row.Scan(r.dest()...); err != nil {
		return nil, fmt.Errorf("failed to scan auction: %w", classify(err))
	}
	return r.auction()
}
