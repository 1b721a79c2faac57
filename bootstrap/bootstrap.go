// Package bootstrap assembles the application from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hoaworks/metergate/adapters/clock"
	httpadapter "github.com/hoaworks/metergate/adapters/http"
	"github.com/hoaworks/metergate/adapters/idgen"
	"github.com/hoaworks/metergate/adapters/memory"
	"github.com/hoaworks/metergate/adapters/metrics"
	"github.com/hoaworks/metergate/adapters/payment"
	"github.com/hoaworks/metergate/adapters/renderer"
	"github.com/hoaworks/metergate/adapters/sqlite"
	"github.com/hoaworks/metergate/app"
	"github.com/hoaworks/metergate/config"
	"github.com/hoaworks/metergate/domain/billing"
	"github.com/hoaworks/metergate/domain/quota"
	"github.com/hoaworks/metergate/ports"
)

// App is the assembled application.
type App struct {
	cfg    *config.Config
	holder *config.Holder
	db     *sqlite.DB
	server *http.Server
	logger zerolog.Logger
}

// New assembles the application from a loaded configuration.
func New(cfg *config.Config) (*App, error) {
	return build(cfg, nil)
}

// NewWithHotReload assembles the application with a watching config
// holder: quota tables and credit grants pick up file edits and SIGHUP.
func NewWithHotReload(path string) (*App, error) {
	logger := newLogger(config.Default())
	holder, err := config.NewHolder(path, logger)
	if err != nil {
		return nil, err
	}
	return build(holder.Get(), holder)
}

func build(cfg *config.Config, holder *config.Holder) (*App, error) {
	logger := newLogger(cfg)

	var accounts ports.AccountStore
	var artifacts ports.ArtifactStore
	var db *sqlite.DB

	switch cfg.Database.Driver {
	case "memory":
		accounts = memory.NewAccountStore()
		artifacts = memory.NewArtifactStore()
	default:
		var err error
		db, err = sqlite.Open(cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		accounts = sqlite.NewAccountStore(db)
		artifacts = sqlite.NewArtifactStore(db)
	}

	// Quota table and grants come through the holder when hot reload
	// is on, so edits apply without restart.
	quotas := app.StaticTable(cfg.QuotaTable())
	grants := app.StaticGrants(cfg.Grants())
	if holder != nil {
		quotas = func() quota.Table { return holder.Get().QuotaTable() }
		grants = func() billing.CreditGrants { return holder.Get().Grants() }
	}

	clk := clock.Real{}
	gate := app.NewGateService(accounts, quotas, clk, logger.With().Str("service", "gate").Logger())
	credits := app.NewCreditService(accounts, clk, logger.With().Str("service", "credits").Logger())
	upgrades := app.NewUpgradeService(accounts, grants, clk, logger.With().Str("service", "upgrades").Logger())

	var provider ports.PaymentProvider = payment.NewNoopProvider()
	if cfg.Billing.Mode == "paddle" {
		provider = payment.NewPaddleProvider()
	}

	rend := renderer.New(cfg.Renderer.URL, cfg.Renderer.APIKey, cfg.Renderer.Timeout)
	collector := metrics.New()

	handler := httpadapter.NewHandler(gate, credits, upgrades, artifacts, rend,
		provider, idgen.UUID{}, clk, logger, collector)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler.Router(cfg.Metrics.Enabled, cfg.Metrics.Path),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &App{
		cfg:    cfg,
		holder: holder,
		db:     db,
		server: server,
		logger: logger,
	}, nil
}

// Run starts the server and blocks until shutdown.
func (a *App) Run() error {
	if a.holder != nil {
		if err := a.holder.WatchFile(); err != nil {
			a.logger.Warn().Err(err).Msg("config file watch unavailable")
		}
		a.holder.WatchSignals()
		defer a.holder.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().Str("addr", a.server.Addr).Msg("server listening")
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if a.db != nil {
		a.db.Close()
	}
	return nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Logging.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
