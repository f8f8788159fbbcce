// Package app wires the settlement layer's services together and manages
// their lifecycle.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MarketForge/settlement_layer/internal/app/domain/event"
	"github.com/MarketForge/settlement_layer/internal/app/services/assets"
	"github.com/MarketForge/settlement_layer/internal/app/services/factory"
	ledgersvc "github.com/MarketForge/settlement_layer/internal/app/services/ledger"
	"github.com/MarketForge/settlement_layer/internal/app/services/market"
	"github.com/MarketForge/settlement_layer/internal/app/services/staking"
	"github.com/MarketForge/settlement_layer/internal/app/storage"
	"github.com/MarketForge/settlement_layer/internal/app/storage/memory"
	"github.com/MarketForge/settlement_layer/internal/app/system"
	"github.com/MarketForge/settlement_layer/internal/config"
	"github.com/MarketForge/settlement_layer/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Assets   storage.AssetStore
	Listings storage.ListingStore
	Pools    storage.PoolStore
	Registry storage.RegistryStore
	Ledger   storage.LedgerStore
	Events   storage.EventStore
}

// Application ties the settlement services together and manages their
// lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger
	events  storage.EventStore

	Policy  *config.MarketPolicy
	Assets  *assets.Service
	Ledger  *ledgersvc.Service
	Staking *staking.Service
	Factory *factory.Service
	Market  *market.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, policy *config.MarketPolicy, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if policy == nil {
		var err error
		policy, err = config.NewMarketPolicy(config.DefaultFeeConfig())
		if err != nil {
			return nil, err
		}
	}

	mem := memory.New()
	if stores.Assets == nil {
		stores.Assets = mem
	}
	if stores.Listings == nil {
		stores.Listings = mem
	}
	if stores.Pools == nil {
		stores.Pools = mem
	}
	if stores.Registry == nil {
		stores.Registry = mem
	}
	if stores.Ledger == nil {
		stores.Ledger = mem
	}
	if stores.Events == nil {
		stores.Events = mem
	}

	manager := system.NewManager()

	assetService := assets.New(stores.Assets, log)
	ledgerService := ledgersvc.New(stores.Ledger, log)
	stakingService := staking.New(stores.Pools, stores.Events, assetService, ledgerService, policy, log)
	stakingService.BindEngine(market.EngineIdentity)
	factoryService := factory.New(stores.Registry, stores.Events, assetService, stakingService, ledgerService, policy, log)
	marketService := market.New(stores.Listings, stores.Events, assetService, ledgerService, stakingService, factoryService, policy, log)

	for _, name := range []string{"assets", "ledger", "factory", "market"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	sweepInterval := time.Minute
	if raw := strings.TrimSpace(os.Getenv("BUFFER_SWEEP_INTERVAL")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			log.WithError(err).Warn("invalid BUFFER_SWEEP_INTERVAL; using default")
		} else {
			sweepInterval = parsed
		}
	}
	sweeper := staking.NewBufferSweeper(stakingService, sweepInterval, log)
	if err := manager.Register(sweeper); err != nil {
		return nil, fmt.Errorf("register %s: %w", sweeper.Name(), err)
	}

	return &Application{
		manager: manager,
		log:     log,
		events:  stores.Events,
		Policy:  policy,
		Assets:  assetService,
		Ledger:  ledgerService,
		Staking: stakingService,
		Factory: factoryService,
		Market:  marketService,
	}, nil
}

// Events returns the most recent journal records, optionally filtered by
// collection.
func (a *Application) Events(ctx context.Context, collectionID string, limit int) ([]event.Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return a.events.ListEvents(ctx, collectionID, limit)
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
