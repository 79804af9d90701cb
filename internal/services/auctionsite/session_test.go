package auctionsite

import (
	"context"
	"testing"
	"time"

	"github.com/findosh/auctionsite/internal/models"
	"github.com/findosh/auctionsite/internal/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestSession_IsValid(t *testing.T) {
	host, fake := newTestHost(t)
	garage := newTestSite(t, host, "garage", 60, 1)
	attic := newTestSite(t, host, "attic", 60, 1)
	ctx := context.Background()

	session := newTestSession(t, garage, "alice")

	tests := []struct {
		name   string
		siteID uuid.NullUUID
		want   bool
	}{
		{"any site", uuid.NullUUID{}, true},
		{"own site", uuid.NullUUID{UUID: garage.ID(), Valid: true}, true},
		{"other site", uuid.NullUUID{UUID: attic.ID(), Valid: true}, false},
	}
	for _, tt := range tests {
		got, err := session.IsValid(ctx, tt.siteID)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}

	// Valid strictly before the expiration instant.
	fake.Advance(59 * time.Second)
	if valid, _ := session.IsValid(ctx, uuid.NullUUID{}); !valid {
		t.Error("Expected session valid one second before expiring")
	}
	fake.Advance(time.Second)
	if valid, _ := session.IsValid(ctx, uuid.NullUUID{}); valid {
		t.Error("Expected session invalid at its expiration instant")
	}
}

func TestSession_IncreaseExpirationTime(t *testing.T) {
	host, fake := newTestHost(t)
	site := newTestSite(t, host, "garage", 60, 1)
	ctx := context.Background()

	session := newTestSession(t, site, "alice")
	fake.Advance(30 * time.Second)

	if err := session.IncreaseExpirationTime(ctx); err != nil {
		t.Fatalf("IncreaseExpirationTime: %v", err)
	}
	validUntil, err := session.ValidUntil(ctx)
	if err != nil {
		t.Fatalf("ValidUntil: %v", err)
	}
	want := epoch.Add(90 * time.Second)
	if !validUntil.Equal(want) {
		t.Errorf("Expected %v, got %v", want, validUntil)
	}
	if _, offset := validUntil.Zone(); offset != 0 {
		t.Errorf("Expected expiration in the site timezone, got offset %d", offset)
	}
}

func TestSession_Logout(t *testing.T) {
	host, _ := newTestHost(t)
	site := newTestSite(t, host, "garage", 60, 1)
	ctx := context.Background()

	session := newTestSession(t, site, "alice")
	if err := session.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if valid, err := session.IsValid(ctx, uuid.NullUUID{}); err != nil || valid {
		t.Errorf("Expected logged out session invalid, got %v (%v)", valid, err)
	}
	assertCode(t, session.Logout(ctx), ErrInvalidOperation)
	assertCode(t, session.IncreaseExpirationTime(ctx), ErrEntityGone)
	_, err := session.ValidUntil(ctx)
	assertCode(t, err, ErrEntityGone)
}

func TestSession_CreateAuction(t *testing.T) {
	host, fake := newTestHost(t)
	site := newTestSite(t, host, "garage", 60, 1)
	ctx := context.Background()

	session := newTestSession(t, site, "alice")
	fake.Advance(20 * time.Second)
	endsOn := site.Now().Add(time.Hour)

	auction, err := session.CreateAuction(ctx, "bike", endsOn, decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}
	if auction.Description() != "bike" || !auction.EndsOn().Equal(endsOn) {
		t.Errorf("Expected bike ending %v, got %s ending %v", endsOn, auction.Description(), auction.EndsOn())
	}
	if auction.Seller().Username() != "alice" {
		t.Errorf("Expected seller alice, got %s", auction.Seller().Username())
	}

	price, _ := auction.CurrentPrice(ctx)
	if !price.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected starting price 10, got %s", price)
	}
	if _, ok, _ := auction.CurrentWinner(ctx); ok {
		t.Error("Expected no winner on a new auction")
	}

	validUntil, _ := session.ValidUntil(ctx)
	if !validUntil.Equal(epoch.Add(80 * time.Second)) {
		t.Errorf("Expected creation to extend the session, got %v", validUntil)
	}

	free, err := session.CreateAuction(ctx, "flyer", endsOn, decimal.Zero)
	if err != nil || free == nil {
		t.Errorf("Expected zero starting price accepted, got %v", err)
	}
}

func TestSession_CreateAuction_Validation(t *testing.T) {
	host, fake := newTestHost(t)
	site := newTestSite(t, host, "garage", 60, 1)
	ctx := context.Background()

	session := newTestSession(t, site, "alice")
	later := site.Now().Add(time.Hour)

	tests := []struct {
		name        string
		description string
		endsOn      time.Time
		price       decimal.Decimal
		want        *Error
	}{
		{"empty description", "", later, decimal.NewFromInt(1), ErrInvalidArgument},
		{"ends now", "bike", site.Now(), decimal.NewFromInt(1), ErrTimeParadox},
		{"ends in the past", "bike", site.Now().Add(-time.Minute), decimal.NewFromInt(1), ErrTimeParadox},
		{"negative price", "bike", later, decimal.NewFromInt(-1), ErrArgumentOutOfRange},
		{"ends after the storable range", "bike", time.Date(3000, 1, 1, 0, 0, 0, 0, time.UTC), decimal.NewFromInt(1), ErrArgumentOutOfRange},
		// Description is checked before the end time.
		{"empty description in the past", "", site.Now().Add(-time.Minute), decimal.NewFromInt(-1), ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := session.CreateAuction(ctx, tt.description, tt.endsOn, tt.price)
			assertCode(t, err, tt.want)
		})
	}

	fake.Advance(2 * time.Minute)
	_, err := session.CreateAuction(ctx, "", later, decimal.NewFromInt(-1))
	assertCode(t, err, ErrInvalidOperation)

	auctions, _ := site.ToyGetAuctions(ctx, false)
	for range auctions {
		t.Error("Expected no auction stored by rejected calls")
	}
}

func TestSession_CreateAuction_LatestStorableEnd(t *testing.T) {
	host, _ := newTestHost(t)
	site := newTestSite(t, host, "garage", 60, 1)
	ctx := context.Background()

	seller := newTestSession(t, site, "alice")
	bidder := newTestSession(t, site, "bob")

	auction, err := seller.CreateAuction(ctx, "bike", storage.MaxTime, decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}
	if !auction.EndsOn().Equal(storage.MaxTime) {
		t.Errorf("Expected end %v, got %v", storage.MaxTime, auction.EndsOn())
	}

	open, err := site.ToyGetAuctions(ctx, true)
	if err != nil {
		t.Fatalf("ToyGetAuctions: %v", err)
	}
	count := 0
	for a := range open {
		if a.ID() != auction.ID() {
			t.Errorf("Expected only %s, got %s", auction.ID(), a.ID())
		}
		count++
	}
	if count != 1 {
		t.Errorf("Expected 1 open auction, got %d", count)
	}

	if !bid(t, auction, bidder, 15) {
		t.Error("Expected bid on a far future auction to be accepted")
	}
	assertState(t, auction, 10, "bob")
}

func TestSession_LongestExpiration(t *testing.T) {
	host, fake := newTestHost(t)
	site := newTestSite(t, host, "garage", models.MaxSessionExpiration, 1)
	ctx := context.Background()

	session := newTestSession(t, site, "alice")
	valid, err := session.IsValid(ctx, uuid.NullUUID{})
	if err != nil || !valid {
		t.Fatalf("Expected fresh session to be valid, got %v %v", valid, err)
	}

	validUntil, _ := session.ValidUntil(ctx)
	want := epoch.Add(time.Duration(models.MaxSessionExpiration) * time.Second)
	if !validUntil.Equal(want) {
		t.Errorf("Expected expiration %v, got %v", want, validUntil)
	}

	fake.Advance(365 * 24 * time.Hour)
	if err := session.IncreaseExpirationTime(ctx); err != nil {
		t.Fatalf("IncreaseExpirationTime: %v", err)
	}
	if valid, _ := session.IsValid(ctx, uuid.NullUUID{}); !valid {
		t.Error("Expected session to stay valid after a year")
	}
}
