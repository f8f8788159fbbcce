// Package factory deploys collections together with their reward pools and
// keeps the immutable registry binding each collection to its pool.
package factory

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/MarketForge/settlement_layer/internal/app/domain/asset"
	"github.com/MarketForge/settlement_layer/internal/app/domain/event"
	"github.com/MarketForge/settlement_layer/internal/app/domain/ledger"
	"github.com/MarketForge/settlement_layer/internal/app/domain/pool"
	"github.com/MarketForge/settlement_layer/internal/app/domain/settlement"
	"github.com/MarketForge/settlement_layer/internal/app/services/assets"
	"github.com/MarketForge/settlement_layer/internal/app/storage"
	"github.com/MarketForge/settlement_layer/pkg/logger"
)

// CollectionCreator is the slice of the asset service the factory deploys
// through.
type CollectionCreator interface {
	CreateCollection(ctx context.Context, creator string, params assets.CollectionParams) (asset.Collection, error)
}

// PoolCreator is the slice of the staking service that provisions pools.
type PoolCreator interface {
	CreatePool(ctx context.Context, collectionID string) (pool.Pool, error)
}

// PaymentLedger collects the deployment fee.
type PaymentLedger interface {
	Transfer(ctx context.Context, from, to, currency string, amount *big.Int, reference string) (ledger.Transaction, error)
}

// PolicyProvider exposes the active marketplace fee configuration.
type PolicyProvider interface {
	Fees() settlement.FeeConfig
}

// Service is the collection factory.
type Service struct {
	mu          sync.Mutex
	registry    storage.RegistryStore
	events      storage.EventStore
	collections CollectionCreator
	pools       PoolCreator
	payments    PaymentLedger
	policy      PolicyProvider
	log         *logger.Logger
}

// New constructs the factory.
func New(registry storage.RegistryStore, events storage.EventStore, collections CollectionCreator, pools PoolCreator, payments PaymentLedger, policy PolicyProvider, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("factory")
	}
	return &Service{
		registry:    registry,
		events:      events,
		collections: collections,
		pools:       pools,
		payments:    payments,
		policy:      policy,
		log:         log,
	}
}

// DeployCollection charges the exact creation fee, creates the collection
// and its reward pool, and binds them for the collection's lifetime. The fee
// is refunded if deployment fails after it was collected.
func (s *Service) DeployCollection(ctx context.Context, caller string, params assets.CollectionParams) (asset.Collection, pool.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.policy.Fees()
	feeCharged := cfg.CreationFee != nil && cfg.CreationFee.Sign() > 0
	if feeCharged {
		if _, err := s.payments.Transfer(ctx, caller, cfg.Treasury, cfg.NativeCurrency, cfg.CreationFee, "deploy-fee"); err != nil {
			return asset.Collection{}, pool.Pool{}, fmt.Errorf("%w: %v", ErrCreationFeeUnpaid, err)
		}
	}

	col, err := s.collections.CreateCollection(ctx, caller, params)
	if err != nil {
		s.refundFee(ctx, caller, cfg)
		return asset.Collection{}, pool.Pool{}, err
	}

	p, err := s.pools.CreatePool(ctx, col.ID)
	if err != nil {
		s.refundFee(ctx, caller, cfg)
		return asset.Collection{}, pool.Pool{}, err
	}

	if err := s.registry.CreateBinding(ctx, col.ID, p.ID); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			err = ErrAlreadyBound
		}
		s.refundFee(ctx, caller, cfg)
		return asset.Collection{}, pool.Pool{}, err
	}

	s.appendEvent(ctx, event.Record{
		Type:         event.TypeCollectionDeployed,
		CollectionID: col.ID,
		Actor:        caller,
		Attributes: map[string]string{
			"pool_id": p.ID,
			"symbol":  col.Symbol,
		},
	})
	s.log.WithField("collection_id", col.ID).
		WithField("pool_id", p.ID).
		WithField("creator", caller).
		Info("collection deployed")
	return col, p, nil
}

// PoolFor resolves the pool bound to a collection. A missing binding is not
// an error; the second return is false.
func (s *Service) PoolFor(ctx context.Context, collectionID string) (string, bool, error) {
	poolID, err := s.registry.GetBinding(ctx, collectionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return poolID, true, nil
}

// Bindings returns the whole collection -> pool registry.
func (s *Service) Bindings(ctx context.Context) (map[string]string, error) {
	return s.registry.ListBindings(ctx)
}

func (s *Service) refundFee(ctx context.Context, caller string, cfg settlement.FeeConfig) {
	if cfg.CreationFee == nil || cfg.CreationFee.Sign() <= 0 {
		return
	}
	if _, err := s.payments.Transfer(ctx, cfg.Treasury, caller, cfg.NativeCurrency, cfg.CreationFee, "deploy-fee-refund"); err != nil {
		s.log.WithError(err).WithField("creator", caller).Error("creation fee refund failed")
	}
}

func (s *Service) appendEvent(ctx context.Context, rec event.Record) {
	if s.events == nil {
		return
	}
	if _, err := s.events.AppendEvent(ctx, rec); err != nil {
		s.log.WithError(err).Warn("append event failed")
	}
}
