package models

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Limits enforced on site and user attributes
const (
	MinSiteName = 1
	MaxSiteName = 128

	MinTimezone = -12
	MaxTimezone = 12

	MinUsername = 3
	MaxUsername = 64

	MinPassword = 4

	// MaxSessionExpiration is about 68 years, well inside time.Duration
	MaxSessionExpiration = math.MaxInt32
)

// Site is a tenant: an isolated namespace of users, sessions and auctions
type Site struct {
	ID                       uuid.UUID       `json:"id"`
	Name                     string          `json:"name"`
	Timezone                 int             `json:"timezone"` // Hours from UTC
	SessionExpirationSeconds int             `json:"session_expiration_seconds"`
	MinimumBidIncrement      decimal.Decimal `json:"minimum_bid_increment"`
}

// NewSite creates a new site with a generated ID
func NewSite(name string, timezone, sessionExpirationSeconds int, minimumBidIncrement decimal.Decimal) *Site {
	return &Site{
		ID:                       uuid.New(),
		Name:                     name,
		Timezone:                 timezone,
		SessionExpirationSeconds: sessionExpirationSeconds,
		MinimumBidIncrement:      minimumBidIncrement,
	}
}

// SessionExpiration returns the session lifetime as a duration
func (s *Site) SessionExpiration() time.Duration {
	return time.Duration(s.SessionExpirationSeconds) * time.Second
}
