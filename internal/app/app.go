package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/durability-labs/ultra-data-burning-rom/internal/api"
	"github.com/durability-labs/ultra-data-burning-rom/internal/config"
	"github.com/durability-labs/ultra-data-burning-rom/internal/database"
	"github.com/durability-labs/ultra-data-burning-rom/internal/encryption"
	"github.com/durability-labs/ultra-data-burning-rom/internal/fs"
	"github.com/durability-labs/ultra-data-burning-rom/internal/metrics"
	"github.com/durability-labs/ultra-data-burning-rom/internal/model"
	"github.com/durability-labs/ultra-data-burning-rom/internal/rom"
	"github.com/durability-labs/ultra-data-burning-rom/internal/vault"
)

// EnvPassphrase holds the passphrase that unlocks the age archive key.
const EnvPassphrase = "BROM_AGE_PASSPHRASE"

// shutdownTimeout bounds how long Run waits for in-flight requests.
const shutdownTimeout = 10 * time.Second

// App is the application layer between the CLI and the ROM services.
// It constructs all dependencies from config, runs the scanner and the HTTP
// API, and closes the store on Close.
type App struct {
	cfg      *config.Config
	logger   rom.Logger
	logFile  *os.File
	store    *database.Store
	pool     *rom.NodePool
	registry *prometheus.Registry

	downloads *rom.DownloadService
	burns     *rom.BurnService
	scanner   *rom.Scanner
	server    *api.Server
}

// Options tune NewApp beyond the config file.
type Options struct {
	// Getenv reads environment overrides. Nil uses os.Getenv.
	Getenv func(string) string
	// SkipProbe starts without waiting for the storage nodes to answer.
	SkipProbe bool
}

// NewApp creates a fully wired App from the given config.
// The caller must call Close when done.
func NewApp(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := config.ApplyEnv(cfg, getenv); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}
	if len(cfg.Vaults) == 0 {
		return nil, fmt.Errorf("no vaults configured")
	}

	logger, logFile, err := newLogger(cfg.LogDir, newRunID(), cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	a := &App{cfg: cfg, logger: logger, logFile: logFile, registry: prometheus.NewRegistry()}

	if err := a.wire(ctx, getenv, opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context, getenv func(string) string, opts Options) error {
	cfg := a.cfg
	clock := rom.RealClock{}

	store, err := database.NewStoreFromConfig(cfg.Database, a.logger)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	a.store = store

	nodes := make([]rom.Vault, 0, len(cfg.Vaults))
	for _, vc := range cfg.Vaults {
		v, err := vault.NewVaultFromConfig(ctx, vc, clock)
		if err != nil {
			return fmt.Errorf("creating vault %q: %w", vc.Name, err)
		}
		if !opts.SkipProbe {
			if err := vault.WaitReachable(ctx, v, vault.DefaultProbeInterval, a.logger); err != nil {
				return err
			}
		}
		nodes = append(nodes, v)
	}
	a.pool = rom.NewNodePool(nodes...)

	cipher, err := encryption.NewCipherFromConfig(cfg.Encryption, getenv(EnvPassphrase))
	if err != nil {
		return fmt.Errorf("creating cipher: %w", err)
	}

	m := metrics.New(a.registry)
	metrics.WatchPool(a.registry, a.pool)

	durability := rom.NewDurability(DurabilityTiers(cfg.Durability))
	layout := rom.Layout{Root: cfg.Mounts.Root, ZipDir: cfg.Mounts.ZipDir}

	a.downloads = rom.NewDownloadService(a.pool, layout, cfg.VolumeSize, cipher, m, a.logger)
	mounts, err := rom.NewMountService(store, a.downloads, fs.NewListerFromConfig(cfg.Filesystem), rom.MountConfig{
		Layout:        layout,
		Lifetime:      cfg.Mounts.Lifetime.Duration,
		CacheCapacity: cfg.Database.CacheCapacity,
	}, clock, rom.UUIDGenerator{}, a.logger)
	if err != nil {
		return fmt.Errorf("creating mount service: %w", err)
	}

	users := rom.NewUserService(store, mounts, cfg.Usernames, a.logger)
	a.burns = rom.NewBurnService(store, mounts, a.pool, durability, cipher, rom.BurnConfig{
		VolumeSize:  cfg.VolumeSize,
		MinBurnSize: cfg.MinBurnSize,
	}, clock, m, a.logger)
	buckets := rom.NewBucketService(users, mounts, a.burns, cfg.VolumeSize, a.logger)
	popular := rom.NewPopular(store, a.logger)
	search := rom.NewSearch(store)

	a.scanner = rom.NewScanner(store, cfg.Worker.Interval.Duration, m, a.logger)
	rom.Attach(a.scanner, rom.NewCleanupFactory(mounts, a.downloads, cfg.Mounts.Grace.Duration, clock, m, a.logger))
	rom.Attach[model.Rom](a.scanner, popular.NewHandler)
	rom.Attach[model.Rom](a.scanner, search.NewHandler)

	a.server = api.NewServer(api.Services{
		Users:      users,
		Buckets:    buckets,
		Mounts:     mounts,
		Burns:      a.burns,
		Mapper:     rom.NewMapper(store),
		Popular:    popular,
		Search:     search,
		Durability: durability,
	}, a.registry, a.logger)

	a.logger.Info("app ready", "nodes", len(nodes), "users", len(cfg.Usernames), "volume_size", cfg.VolumeSize)
	return nil
}

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Run starts the scanner and serves the API on the configured address until
// ctx is done.
func (a *App) Run(ctx context.Context) error {
	a.scanner.Start(ctx)
	defer a.scanner.Stop()

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", a.cfg.ListenAddr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("serving api: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down api: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving api: %w", err)
	}
	a.logger.Info("stopped")
	return nil
}

// RunScan runs one scan pass synchronously.
func (a *App) RunScan() {
	a.scanner.RunOnce()
}

// Close waits for background burns and downloads, then closes the store
// and the log file.
func (a *App) Close() error {
	if a.burns != nil {
		a.burns.Wait()
	}
	if a.downloads != nil {
		a.downloads.Wait()
	}
	var errs []error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing store: %w", err))
		}
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing log file: %w", err))
		}
	}
	return errors.Join(errs...)
}

// DurabilityTiers converts configured tiers. An empty list yields nil so the
// built-in tiers apply.
func DurabilityTiers(cfgs []config.DurabilityConfig) []rom.DurabilityTier {
	if len(cfgs) == 0 {
		return nil
	}
	tiers := make([]rom.DurabilityTier, len(cfgs))
	for i, c := range cfgs {
		tiers[i] = rom.DurabilityTier{
			ID:                    c.ID,
			Name:                  c.Name,
			Description:           c.Description,
			SponsorLine:           c.SponsorLine,
			Nodes:                 c.Nodes,
			Tolerance:             c.Tolerance,
			Duration:              c.Duration.Duration,
			Expiry:                c.Expiry.Duration,
			PricePerBytePerSecond: c.PricePerBytePerSecond,
			CollateralPerByte:     c.CollateralPerByte,
			ProofProbability:      c.ProofProbability,
		}
	}
	return tiers
}
