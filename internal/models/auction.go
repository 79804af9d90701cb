package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Auction is a timed proxy-bid auction.
//
// MaximumBidValue is the winner's hidden proxy bid; CurrentPrice is the
// visible price derived from it. WinnerID is null until the first bid
// is accepted, and until then both amounts equal the starting price.
type Auction struct {
	ID              uuid.UUID       `json:"id"`
	SiteID          uuid.UUID       `json:"site_id"`
	SellerID        uuid.UUID       `json:"seller_id"`
	Description     string          `json:"description"`
	EndsOn          time.Time       `json:"ends_on"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
	MaximumBidValue decimal.Decimal `json:"-"` // Hidden from sellers and bidders
	WinnerID        uuid.NullUUID   `json:"winner_id"`
}

// NewAuction creates an auction with no bids at the starting price
func NewAuction(siteID, sellerID uuid.UUID, description string, endsOn time.Time, startingPrice decimal.Decimal) *Auction {
	return &Auction{
		ID:              uuid.New(),
		SiteID:          siteID,
		SellerID:        sellerID,
		Description:     description,
		EndsOn:          endsOn,
		CurrentPrice:    startingPrice,
		MaximumBidValue: startingPrice,
	}
}

// IsEnded reports whether bidding is closed at now
func (a *Auction) IsEnded(now time.Time) bool {
	return !a.EndsOn.After(now)
}

// HasWinner reports whether any bid has been accepted
func (a *Auction) HasWinner() bool {
	return a.WinnerID.Valid
}

// IsWinner reports whether userID currently leads the auction
func (a *Auction) IsWinner(userID uuid.UUID) bool {
	return a.WinnerID.Valid && a.WinnerID.UUID == userID
}

// ApplyBid runs the proxy bidding rules for an offer by bidder and
// reports whether the bid was accepted. A rejected bid leaves the
// auction unchanged. The caller checks that the auction has not ended.
func (a *Auction) ApplyBid(bidder uuid.UUID, offer, increment decimal.Decimal) bool {
	if a.HasWinner() && !a.IsWinner(bidder) && offer.LessThan(a.CurrentPrice.Add(increment)) {
		return false
	}

	switch {
	case !a.HasWinner():
		// The first bid only needs to meet the starting price; the price
		// stays there until someone challenges.
		if offer.LessThan(a.CurrentPrice) {
			return false
		}
		a.MaximumBidValue = offer
		a.WinnerID = uuid.NullUUID{UUID: bidder, Valid: true}

	case a.IsWinner(bidder):
		if offer.LessThan(a.MaximumBidValue.Add(increment)) {
			return false
		}
		a.MaximumBidValue = offer

	case offer.GreaterThan(a.MaximumBidValue):
		a.CurrentPrice = decimal.Min(a.MaximumBidValue.Add(increment), offer)
		a.MaximumBidValue = offer
		a.WinnerID = uuid.NullUUID{UUID: bidder, Valid: true}

	default:
		a.CurrentPrice = decimal.Min(a.MaximumBidValue, offer.Add(increment))
	}

	return true
}
