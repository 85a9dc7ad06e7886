package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bnema/focuscoin/internal/adapters/events"
	"github.com/bnema/focuscoin/internal/adapters/metrics"
	statusadapter "github.com/bnema/focuscoin/internal/adapters/render/status"
	sqliterepo "github.com/bnema/focuscoin/internal/adapters/repo/sqlite"
	tomlrepo "github.com/bnema/focuscoin/internal/adapters/repo/toml"
	chainstore "github.com/bnema/focuscoin/internal/adapters/secrets/chain"
	filestore "github.com/bnema/focuscoin/internal/adapters/secrets/file"
	passstore "github.com/bnema/focuscoin/internal/adapters/secrets/pass"
	"github.com/bnema/focuscoin/internal/application"
	"github.com/bnema/focuscoin/internal/ports"
	"github.com/sirupsen/logrus"
)

type app struct {
	cfg     config
	log     logrus.FieldLogger
	bus     *events.Bus
	metrics *metrics.Collector
	store   *sqliterepo.Store

	ledger    *application.LedgerService
	market    *application.MarketService
	paywall   *application.PaywallService
	economy   *application.EconomyService
	emergency *application.EmergencyService
	sync      *application.SyncService
	pairing   *application.PairingService
	status    *application.StatusService

	statusRenderer func(application.Status, statusadapter.RenderOptions) (string, error)
	now            func() time.Time
}

func wireApp() (*app, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	v := newViper(home)
	cfg, err := loadConfig(v, home)
	if err != nil {
		return nil, err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	logger := log.WithField("device", cfg.DeviceID)

	rates, err := tomlrepo.NewRateRepository(v)
	if err != nil {
		return nil, fmt.Errorf("wire rate repository: %w", err)
	}
	emergencyRepo, err := tomlrepo.NewEmergencyRepository(v)
	if err != nil {
		return nil, fmt.Errorf("wire emergency repository: %w", err)
	}

	store, err := sqliterepo.Open(cfg.LedgerPath)
	if err != nil {
		return nil, fmt.Errorf("wire ledger store: %w", err)
	}

	secrets, err := newSecretStore(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	bus := events.NewBus()
	collector := metrics.NewCollector()
	bus.Subscribe(events.LogHandler(logger))
	bus.Subscribe(collector.Observe)

	clock := ports.SystemClock{}
	ledger := application.NewLedgerService(store, bus, clock, cfg.DeviceID)
	market := application.NewMarketService(rates, clock)
	paywall := application.NewPaywallService(ledger, market, store, bus, clock, logger)
	economy := application.NewEconomyService(ledger, market, paywall, bus, clock, logger, cfg.Economy)
	emergency := application.NewEmergencyService(paywall, ledger, emergencyRepo, store, clock, logger, cfg.EmergencyPolicy)

	if err := paywall.Restore(context.Background()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("restore sessions: %w", err)
	}

	return &app{
		cfg:            cfg,
		log:            logger,
		bus:            bus,
		metrics:        collector,
		store:          store,
		ledger:         ledger,
		market:         market,
		paywall:        paywall,
		economy:        economy,
		emergency:      emergency,
		sync:           application.NewSyncService(ledger, store, clock, logger),
		pairing:        application.NewPairingService(secrets),
		status:         application.NewStatusService(ledger, paywall, emergency, clock),
		statusRenderer: statusadapter.Render,
		now:            time.Now,
	}, nil
}

func (a *app) Close() error {
	if a == nil || a.store == nil {
		return nil
	}
	return a.store.Close()
}

func newSecretStore(cfg config) (ports.SecretStore, error) {
	switch cfg.SecretsBackend {
	case "", "file":
		return filestore.NewStore(cfg.SecretsDir), nil
	case "pass":
		return passstore.NewStore(cfg.PassPrefix), nil
	case "auto":
		store, err := chainstore.NewPassWithFileFallback(cfg.PassPrefix, cfg.SecretsDir)
		if err != nil {
			return nil, fmt.Errorf("wire secret store chain: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("config secrets.backend: %w", errUnknownSecretsBackend)
	}
}

var errUnknownSecretsBackend = errors.New("unknown secrets backend, want file, pass or auto")
