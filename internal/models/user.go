// Package models defines core domain types
package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an account registered on exactly one site
type User struct {
	ID           uuid.UUID `json:"id"`
	SiteID       uuid.UUID `json:"site_id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Never serialize to JSON
}

// NewUser creates a new user with a generated ID
func NewUser(siteID uuid.UUID, username, passwordHash string) *User {
	return &User{
		ID:           uuid.New(),
		SiteID:       siteID,
		Username:     username,
		PasswordHash: passwordHash,
	}
}

// Session is an authenticated login of one user on one site
type Session struct {
	ID         string    `json:"id"` // Opaque token
	UserID     uuid.UUID `json:"user_id"`
	SiteID     uuid.UUID `json:"site_id"`
	ValidUntil time.Time `json:"valid_until"`
}

// IsExpired reports whether the session is no longer valid at now.
// A session expiring exactly at now is expired.
func (s *Session) IsExpired(now time.Time) bool {
	return !s.ValidUntil.After(now)
}
