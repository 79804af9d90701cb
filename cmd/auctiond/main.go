// auctiond hosts the auction sites stored in one database. It loads
// each site, keeps its expired session sweep running and exits on
// SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"

	"github.com/findosh/auctionsite/internal/clock"
	"github.com/findosh/auctionsite/internal/config"
	"github.com/findosh/auctionsite/internal/services/auctionsite"
	"github.com/findosh/auctionsite/internal/services/auth"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		provision  bool
		sites      []string
		createSite string
		timezone   int
		expiration int
		increment  string
	)

	flagSet := pflag.NewFlagSet("auctiond", pflag.ContinueOnError)
	flagSet.BoolVar(&provision, "provision", false, "drop and recreate the database schema before starting")
	flagSet.StringSliceVar(&sites, "site", nil, "site to serve (repeatable; default: every site)")
	flagSet.StringVar(&createSite, "create-site", "", "create a site with this name before starting")
	flagSet.IntVar(&timezone, "timezone", 0, "timezone of the created site, in hours from UTC")
	flagSet.IntVar(&expiration, "session-expiration", 3600, "session lifetime of the created site, in seconds")
	flagSet.StringVar(&increment, "min-increment", "1", "minimum bid increment of the created site")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []auctionsite.Option{
		auctionsite.WithLogger(logger),
		auctionsite.WithDriver(cfg.DatabaseDriver),
		auctionsite.WithHasher(auth.NewBcryptHasher(cfg.BcryptCost)),
		auctionsite.WithSweepInterval(cfg.SweepInterval),
	}

	if provision {
		if err := auctionsite.CreateHost(ctx, cfg.DatabaseURL, opts...); err != nil {
			return fmt.Errorf("provision host: %w", err)
		}
	}

	host, err := auctionsite.LoadHost(ctx, cfg.DatabaseURL, clock.NewFactory(clock.Real()), opts...)
	if err != nil {
		return fmt.Errorf("load host: %w", err)
	}
	defer host.Close()

	if createSite != "" {
		minIncrement, err := decimal.NewFromString(increment)
		if err != nil {
			return fmt.Errorf("invalid --min-increment %q: %w", increment, err)
		}
		if err := host.CreateSite(ctx, createSite, timezone, expiration, minIncrement); err != nil {
			return fmt.Errorf("create site: %w", err)
		}
	}

	names, err := siteNames(ctx, host, append(cfg.Sites, sites...))
	if err != nil {
		return err
	}

	var loaded []*auctionsite.Site
	defer func() {
		for _, site := range loaded {
			site.Close()
		}
	}()
	for _, name := range names {
		site, err := host.LoadSite(ctx, name)
		if err != nil {
			return fmt.Errorf("load site %q: %w", name, err)
		}
		loaded = append(loaded, site)
	}

	logger.Info("auctiond started",
		"environment", cfg.Environment,
		"driver", cfg.DatabaseDriver,
		"sites", len(loaded),
		"sweep_interval", cfg.SweepInterval,
	)
	<-ctx.Done()
	logger.Info("auctiond stopping")
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.IsDevelopment() {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// siteNames returns the requested sites, or every stored site when none
// were requested
func siteNames(ctx context.Context, host *auctionsite.Host, requested []string) ([]string, error) {
	if len(requested) > 0 {
		slices.Sort(requested)
		return slices.Compact(requested), nil
	}

	infos, err := host.GetSiteInfos(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	var names []string
	for info := range infos {
		names = append(names, info.Name)
	}
	return names, nil
}
