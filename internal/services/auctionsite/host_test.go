package auctionsite

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/findosh/auctionsite/internal/clock"
	"github.com/findosh/auctionsite/internal/models"
	"github.com/findosh/auctionsite/internal/services/auth"
	"github.com/findosh/auctionsite/internal/storage"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func testOptions(extra ...Option) []Option {
	opts := []Option{
		WithHasher(auth.NewBcryptHasher(bcrypt.MinCost)),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return append(opts, extra...)
}

func newTestHost(t *testing.T, extra ...Option) (*Host, *clock.FakeClock) {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "auctions.db")
	opts := testOptions(extra...)

	if err := CreateHost(ctx, path, opts...); err != nil {
		t.Fatalf("CreateHost: %v", err)
	}

	fake := clock.Fake(epoch)
	host, err := LoadHost(ctx, path, clock.NewFactory(fake), opts...)
	if err != nil {
		t.Fatalf("LoadHost: %v", err)
	}
	t.Cleanup(func() { host.Close() })
	return host, fake
}

func newTestSite(t *testing.T, host *Host, name string, sessionExpirationSeconds int, increment int64) *Site {
	t.Helper()
	ctx := context.Background()

	if err := host.CreateSite(ctx, name, 0, sessionExpirationSeconds, decimal.NewFromInt(increment)); err != nil {
		t.Fatalf("CreateSite: %v", err)
	}
	site, err := host.LoadSite(ctx, name)
	if err != nil {
		t.Fatalf("LoadSite: %v", err)
	}
	t.Cleanup(site.Close)
	return site
}

func assertCode(t *testing.T, err error, target *Error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Errorf("Expected %s, got %v", target.Code, err)
	}
}

func TestCreateHost_Validation(t *testing.T) {
	err := CreateHost(context.Background(), "", testOptions()...)
	assertCode(t, err, ErrNullArgument)

	unreachable := filepath.Join(t.TempDir(), "missing", "auctions.db")
	err = CreateHost(context.Background(), unreachable, testOptions()...)
	assertCode(t, err, ErrUnavailable)
}

func TestLoadHost_Validation(t *testing.T) {
	ctx := context.Background()
	factory := clock.NewFactory(clock.Fake(epoch))

	_, err := LoadHost(ctx, "", factory, testOptions()...)
	assertCode(t, err, ErrNullArgument)

	_, err = LoadHost(ctx, filepath.Join(t.TempDir(), "auctions.db"), nil, testOptions()...)
	assertCode(t, err, ErrNullArgument)

	_, err = LoadHost(ctx, filepath.Join(t.TempDir(), "missing", "auctions.db"), factory, testOptions()...)
	assertCode(t, err, ErrUnavailable)

	// Reachable but never provisioned.
	empty := filepath.Join(t.TempDir(), "empty.db")
	if err := os.WriteFile(empty, nil, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err = LoadHost(ctx, empty, factory, testOptions()...)
	assertCode(t, err, ErrUnavailable)
}

func TestCreateHost_DropsExistingData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "auctions.db")
	factory := clock.NewFactory(clock.Fake(epoch))

	if err := CreateHost(ctx, path, testOptions()...); err != nil {
		t.Fatalf("CreateHost: %v", err)
	}
	host, err := LoadHost(ctx, path, factory, testOptions()...)
	if err != nil {
		t.Fatalf("LoadHost: %v", err)
	}
	if err := host.CreateSite(ctx, "garage", 0, 60, decimal.NewFromInt(1)); err != nil {
		t.Fatalf("CreateSite: %v", err)
	}
	host.Close()

	if err := CreateHost(ctx, path, testOptions()...); err != nil {
		t.Fatalf("second CreateHost: %v", err)
	}
	host, err = LoadHost(ctx, path, factory, testOptions()...)
	if err != nil {
		t.Fatalf("LoadHost: %v", err)
	}
	defer host.Close()

	infos, err := host.GetSiteInfos(ctx)
	if err != nil {
		t.Fatalf("GetSiteInfos: %v", err)
	}
	if n := len(slices.Collect(infos)); n != 0 {
		t.Errorf("Expected no sites after reprovisioning, got %d", n)
	}
}

func TestHost_CreateSite_Validation(t *testing.T) {
	host, _ := newTestHost(t)
	ctx := context.Background()
	long := strings.Repeat("x", 129)

	tests := []struct {
		name       string
		site       string
		timezone   int
		expiration int
		increment  decimal.Decimal
		want       *Error
	}{
		{"empty name", "", 0, 60, decimal.NewFromInt(1), ErrInvalidArgument},
		{"long name", long, 0, 60, decimal.NewFromInt(1), ErrInvalidArgument},
		{"timezone too low", "garage", -13, 60, decimal.NewFromInt(1), ErrArgumentOutOfRange},
		{"timezone too high", "garage", 13, 60, decimal.NewFromInt(1), ErrArgumentOutOfRange},
		{"zero expiration", "garage", 0, 0, decimal.NewFromInt(1), ErrArgumentOutOfRange},
		{"expiration beyond duration range", "garage", 0, 10_000_000_000, decimal.NewFromInt(1), ErrArgumentOutOfRange},
		{"expiration just above limit", "garage", 0, models.MaxSessionExpiration + 1, decimal.NewFromInt(1), ErrArgumentOutOfRange},
		{"zero increment", "garage", 0, 60, decimal.Zero, ErrArgumentOutOfRange},
		{"negative increment", "garage", 0, 60, decimal.NewFromInt(-1), ErrArgumentOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := host.CreateSite(ctx, tt.site, tt.timezone, tt.expiration, tt.increment)
			assertCode(t, err, tt.want)
		})
	}
}

func TestHost_CreateSite_DuplicateName(t *testing.T) {
	host, _ := newTestHost(t)
	ctx := context.Background()

	if err := host.CreateSite(ctx, "garage", 2, 60, decimal.NewFromInt(1)); err != nil {
		t.Fatalf("CreateSite: %v", err)
	}
	err := host.CreateSite(ctx, "garage", -3, 120, decimal.NewFromInt(2))

	var domainErr *Error
	if !errors.As(err, &domainErr) || domainErr.Code != CodeNameAlreadyInUse {
		t.Fatalf("Expected NameAlreadyInUse, got %v", err)
	}
	if domainErr.Name != "garage" {
		t.Errorf("Expected offending name garage, got %q", domainErr.Name)
	}
}

func TestHost_GetSiteInfos(t *testing.T) {
	host, _ := newTestHost(t)
	ctx := context.Background()

	for _, info := range []SiteInfo{{"garage", 2}, {"attic", -5}} {
		if err := host.CreateSite(ctx, info.Name, info.Timezone, 60, decimal.NewFromInt(1)); err != nil {
			t.Fatalf("CreateSite: %v", err)
		}
	}

	infos, err := host.GetSiteInfos(ctx)
	if err != nil {
		t.Fatalf("GetSiteInfos: %v", err)
	}
	got := slices.Collect(infos)
	want := []SiteInfo{{"attic", -5}, {"garage", 2}}
	if !slices.Equal(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	// The snapshot can be iterated again.
	if again := slices.Collect(infos); !slices.Equal(again, want) {
		t.Errorf("Expected repeatable iteration, got %v", again)
	}
}

func TestHost_LoadSite(t *testing.T) {
	host, fake := newTestHost(t)
	ctx := context.Background()

	if err := host.CreateSite(ctx, "garage", 3, 600, decimal.RequireFromString("0.5")); err != nil {
		t.Fatalf("CreateSite: %v", err)
	}
	site, err := host.LoadSite(ctx, "garage")
	if err != nil {
		t.Fatalf("LoadSite: %v", err)
	}
	defer site.Close()

	if site.Name() != "garage" || site.Timezone() != 3 {
		t.Errorf("Expected garage at UTC+3, got %s at %d", site.Name(), site.Timezone())
	}
	if site.SessionExpiration() != 10*time.Minute {
		t.Errorf("Expected 10m expiration, got %v", site.SessionExpiration())
	}
	if !site.MinimumBidIncrement().Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("Expected increment 0.5, got %s", site.MinimumBidIncrement())
	}
	if !site.Now().Equal(fake.Now()) || site.Now().Hour() != 15 {
		t.Errorf("Expected site time 15:00 local, got %v", site.Now())
	}

	_, err = host.LoadSite(ctx, "attic")
	var domainErr *Error
	if !errors.As(err, &domainErr) || domainErr.Code != CodeUnknownName || domainErr.Name != "attic" {
		t.Errorf("Expected UnknownName for attic, got %v", err)
	}

	_, err = host.LoadSite(ctx, "")
	assertCode(t, err, ErrInvalidArgument)
}

func TestHost_PureGoDriver(t *testing.T) {
	host, _ := newTestHost(t, WithDriver(storage.DriverPure))
	site := newTestSite(t, host, "garage", 300, 5)
	ctx := context.Background()

	seller := newTestSession(t, site, "alice")
	bidder := newTestSession(t, site, "bob")

	auction, err := seller.CreateAuction(ctx, "bike", site.Now().Add(time.Hour), decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}
	accepted, err := auction.Bid(ctx, bidder, decimal.NewFromInt(12))
	if err != nil || !accepted {
		t.Fatalf("Expected accepted bid, got %v (%v)", accepted, err)
	}

	winner, ok, err := auction.CurrentWinner(ctx)
	if err != nil || !ok || winner.Username() != "bob" {
		t.Errorf("Expected bob winning, got %v %v (%v)", winner, ok, err)
	}
}
