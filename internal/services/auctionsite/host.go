// Package auctionsite implements multi-tenant timed auctions with proxy
// bidding on top of the storage layer.
//
// A Host is the registry of sites stored in one database. Each loaded
// Site owns an alarm that periodically sweeps its expired sessions.
// Handles returned by a Site (Session, User, Auction) hold identity and
// immutable attributes only; every operation re-reads mutable state from
// the store inside its own transaction, so several processes may share
// one database.
package auctionsite

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/findosh/auctionsite/internal/clock"
	"github.com/findosh/auctionsite/internal/models"
	"github.com/findosh/auctionsite/internal/services/auth"
	"github.com/findosh/auctionsite/internal/storage"
	"github.com/shopspring/decimal"
)

// DefaultSweepInterval is how often a site removes expired sessions
const DefaultSweepInterval = 5 * time.Minute

type options struct {
	logger        *slog.Logger
	hasher        auth.Hasher
	driver        string
	sweepInterval time.Duration
}

// Option configures a Host
type Option func(*options)

// WithLogger sets the logger used by the host and its sites
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithHasher replaces the bcrypt password hasher
func WithHasher(hasher auth.Hasher) Option {
	return func(o *options) {
		if hasher != nil {
			o.hasher = hasher
		}
	}
}

// WithDriver selects the database/sql driver, storage.DriverCGo by default
func WithDriver(driver string) Option {
	return func(o *options) {
		o.driver = driver
	}
}

// WithSweepInterval sets how often sites remove expired sessions.
// Non-positive values keep the default.
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.sweepInterval = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:        slog.Default(),
		hasher:        auth.NewBcryptHasher(0),
		driver:        storage.DriverCGo,
		sweepInterval: DefaultSweepInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Host is the registry of sites stored in one database
type Host struct {
	db     *storage.DB
	clocks clock.Factory
	opts   options
	logger *slog.Logger
}

// SiteInfo summarises a site without loading it
type SiteInfo struct {
	Name     string
	Timezone int
}

// CreateHost provisions the database at connectionString, dropping any
// existing auction data.
func CreateHost(ctx context.Context, connectionString string, opts ...Option) error {
	if strings.TrimSpace(connectionString) == "" {
		return newError(CodeNullArgument, "connection string is required")
	}
	o := buildOptions(opts)

	db, err := openStore(ctx, o.driver, connectionString)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Reset(ctx); err != nil {
		return unavailable("failed to provision store", err)
	}

	o.logger.Info("host provisioned", "driver", o.driver)
	return nil
}

// LoadHost connects to a provisioned database. Sites loaded from the
// returned Host read time from clocks.
func LoadHost(ctx context.Context, connectionString string, clocks clock.Factory, opts ...Option) (*Host, error) {
	if strings.TrimSpace(connectionString) == "" {
		return nil, newError(CodeNullArgument, "connection string is required")
	}
	if clocks == nil {
		return nil, newError(CodeNullArgument, "alarm clock factory is required")
	}
	o := buildOptions(opts)

	db, err := openStore(ctx, o.driver, connectionString)
	if err != nil {
		return nil, err
	}

	provisioned, err := db.IsProvisioned(ctx)
	if err != nil {
		db.Close()
		return nil, unavailable("failed to inspect store", err)
	}
	if !provisioned {
		db.Close()
		return nil, newError(CodeUnavailable, "store is not provisioned")
	}

	return &Host{
		db:     db,
		clocks: clocks,
		opts:   o,
		logger: o.logger,
	}, nil
}

func openStore(ctx context.Context, driver, connectionString string) (*storage.DB, error) {
	db, err := storage.New(driver, connectionString)
	if err != nil {
		return nil, unavailable("failed to open store", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, unavailable("failed to reach store", err)
	}
	return db, nil
}

func unavailable(message string, err error) *Error {
	return &Error{Code: CodeUnavailable, Message: message, Cause: err}
}

// CreateSite registers a new site
func (h *Host) CreateSite(ctx context.Context, name string, timezone, sessionExpirationSeconds int, minimumBidIncrement decimal.Decimal) error {
	if err := validateSiteName(name); err != nil {
		return err
	}
	if timezone < models.MinTimezone || timezone > models.MaxTimezone {
		return newError(CodeArgumentOutOfRange, "timezone %d outside %d..%d", timezone, models.MinTimezone, models.MaxTimezone)
	}
	if sessionExpirationSeconds <= 0 {
		return newError(CodeArgumentOutOfRange, "session expiration must be positive, got %d", sessionExpirationSeconds)
	}
	if sessionExpirationSeconds > models.MaxSessionExpiration {
		return newError(CodeArgumentOutOfRange, "session expiration %d exceeds %d seconds", sessionExpirationSeconds, models.MaxSessionExpiration)
	}
	if !minimumBidIncrement.IsPositive() {
		return newError(CodeArgumentOutOfRange, "minimum bid increment must be positive, got %s", minimumBidIncrement)
	}

	site := models.NewSite(name, timezone, sessionExpirationSeconds, minimumBidIncrement)
	err := h.db.WithTx(ctx, func(tx *storage.Tx) error {
		return tx.Sites.Create(ctx, site)
	})
	if errors.Is(err, storage.ErrUniqueViolation) {
		return nameInUse(name, err)
	}
	if err != nil {
		return fromStore(err, "failed to create site")
	}

	h.logger.Info("site created", "site", name, "timezone", timezone)
	return nil
}

// GetSiteInfos lists the name and timezone of every site
func (h *Host) GetSiteInfos(ctx context.Context) (iter.Seq[SiteInfo], error) {
	sites, err := storage.NewSiteRepository(h.db).List(ctx)
	if err != nil {
		return nil, fromStore(err, "failed to list sites")
	}

	infos := make([]SiteInfo, 0, len(sites))
	for _, s := range sites {
		infos = append(infos, SiteInfo{Name: s.Name, Timezone: s.Timezone})
	}
	return slices.Values(infos), nil
}

// LoadSite binds the named site to an alarm clock for its timezone,
// sweeps its expired sessions and arms the periodic sweep
func (h *Host) LoadSite(ctx context.Context, name string) (*Site, error) {
	if err := validateSiteName(name); err != nil {
		return nil, err
	}

	model, err := storage.NewSiteRepository(h.db).GetByName(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &Error{Code: CodeUnknownName, Message: fmt.Sprintf("no site named %q", name), Name: name}
	}
	if err != nil {
		return nil, fromStore(err, "failed to load site")
	}

	return newSite(ctx, h, model), nil
}

// Close releases the database. Sites loaded from the host must be
// closed first.
func (h *Host) Close() error {
	return h.db.Close()
}

func validateSiteName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < models.MinSiteName || n > models.MaxSiteName {
		return newError(CodeInvalidArgument, "site name length %d outside %d..%d", n, models.MinSiteName, models.MaxSiteName)
	}
	return nil
}
