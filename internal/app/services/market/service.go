// Package market implements the marketplace settlement engine: fixed-price
// listings and the atomic four-way purchase split across royalty receiver,
// staking pool, platform treasury, and seller.
package market

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/MarketForge/settlement_layer/internal/app/domain/asset"
	"github.com/MarketForge/settlement_layer/internal/app/domain/event"
	"github.com/MarketForge/settlement_layer/internal/app/domain/ledger"
	"github.com/MarketForge/settlement_layer/internal/app/domain/listing"
	"github.com/MarketForge/settlement_layer/internal/app/domain/pool"
	"github.com/MarketForge/settlement_layer/internal/app/domain/settlement"
	"github.com/MarketForge/settlement_layer/internal/app/storage"
	"github.com/MarketForge/settlement_layer/pkg/logger"
)

// EngineIdentity is the account name the settlement engine acts under when
// it moves tokens and attributes fee income. Sellers approve this identity
// so the engine can deliver the token at purchase time.
const EngineIdentity = "settlement-engine"

// StakingVault receives the staking fee of collections that have no reward
// pool bound and no default pool configured.
const StakingVault = "staking-vault"

// AssetRegistry is the slice of the asset collaborator the engine needs.
type AssetRegistry interface {
	OwnerOf(ctx context.Context, collectionID, tokenID string) (string, error)
	Approved(ctx context.Context, collectionID, tokenID string) (string, error)
	Transfer(ctx context.Context, caller, collectionID, tokenID, from, to string) error
	RoyaltyFor(ctx context.Context, collectionID, tokenID string, price *big.Int) (asset.Royalty, bool, error)
}

// PaymentLedger is the slice of the ledger the engine settles through.
type PaymentLedger interface {
	Balance(ctx context.Context, account, currency string) (*big.Int, error)
	TransferBatch(ctx context.Context, legs []ledger.Leg) ([]ledger.Transaction, error)
}

// RewardPools is the slice of the staking service the engine needs to route
// and attribute the staking fee.
type RewardPools interface {
	GetPool(ctx context.Context, poolID string) (pool.Pool, error)
	IsStaked(ctx context.Context, poolID, assetID string) (bool, error)
	AccrueFees(ctx context.Context, caller, poolID, currency string, amount *big.Int) error
}

// PoolDirectory resolves the pool bound to a collection. The second return
// is false when the collection has no binding.
type PoolDirectory interface {
	PoolFor(ctx context.Context, collectionID string) (string, bool, error)
}

// PolicyProvider exposes the active marketplace fee configuration.
type PolicyProvider interface {
	Fees() settlement.FeeConfig
}

// Service is the marketplace settlement engine. One mutex serializes every
// listing mutation and purchase; collaborators are only ever called from
// inside the engine, never back into it.
type Service struct {
	mu       sync.Mutex
	store    storage.ListingStore
	events   storage.EventStore
	assets   AssetRegistry
	payments PaymentLedger
	rewards  RewardPools
	registry PoolDirectory
	policy   PolicyProvider
	log      *logger.Logger
}

// New constructs the settlement engine.
func New(store storage.ListingStore, events storage.EventStore, assets AssetRegistry, payments PaymentLedger, rewards RewardPools, registry PoolDirectory, policy PolicyProvider, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("market")
	}
	return &Service{
		store:    store,
		events:   events,
		assets:   assets,
		payments: payments,
		rewards:  rewards,
		registry: registry,
		policy:   policy,
		log:      log,
	}
}

// Receipt reports a completed purchase.
type Receipt struct {
	Listing      listing.Listing
	Split        settlement.Split
	PoolID       string
	Transactions []ledger.Transaction
}

// List puts a token up for sale at a fixed price. The caller must own the
// token, the settlement engine must hold transfer approval, and a staked
// token cannot be listed.
func (s *Service) List(ctx context.Context, caller, collectionID, assetID string, price *big.Int, currency string) (listing.Listing, error) {
	if price == nil || price.Sign() <= 0 {
		return listing.Listing{}, ErrInvalidPrice
	}
	if !s.policy.Fees().CurrencyAllowed(currency) {
		return listing.Listing{}, ErrCurrencyNotAllowed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Staked custody lives with the pool account, so this check must come
	// before the ownership check to report the real reason.
	if staked, err := s.isStaked(ctx, collectionID, assetID); err != nil {
		return listing.Listing{}, err
	} else if staked {
		return listing.Listing{}, ErrAssetStaked
	}

	owner, err := s.assets.OwnerOf(ctx, collectionID, assetID)
	if err != nil {
		return listing.Listing{}, err
	}
	if owner != caller {
		return listing.Listing{}, ErrNotOwner
	}

	approved, err := s.assets.Approved(ctx, collectionID, assetID)
	if err != nil {
		return listing.Listing{}, err
	}
	if approved != EngineIdentity {
		return listing.Listing{}, ErrNotApproved
	}

	lst, err := s.store.CreateListing(ctx, listing.Listing{
		CollectionID: collectionID,
		AssetID:      assetID,
		Seller:       caller,
		Price:        new(big.Int).Set(price),
		Currency:     currency,
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return listing.Listing{}, ErrAlreadyListed
		}
		return listing.Listing{}, err
	}

	s.appendEvent(ctx, event.Record{
		Type:         event.TypeListed,
		CollectionID: collectionID,
		AssetID:      assetID,
		Actor:        caller,
		Attributes: map[string]string{
			"price":    lst.Price.String(),
			"currency": lst.Currency,
		},
	})
	s.log.WithField("collection_id", collectionID).
		WithField("asset_id", assetID).
		WithField("price", lst.Price.String()).
		Info("token listed")
	return lst, nil
}

// Cancel removes the caller's listing without any money movement.
func (s *Service) Cancel(ctx context.Context, caller, collectionID, assetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lst, err := s.store.GetListing(ctx, collectionID, assetID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotListed
		}
		return err
	}
	if lst.Seller != caller {
		return ErrNotSeller
	}
	if err := s.store.DeleteListing(ctx, collectionID, assetID); err != nil {
		return err
	}

	s.appendEvent(ctx, event.Record{
		Type:         event.TypeCancelled,
		CollectionID: collectionID,
		AssetID:      assetID,
		Actor:        caller,
	})
	return nil
}

// Quote computes the four-way split a purchase at the listed price would
// settle, without moving anything.
func (s *Service) Quote(ctx context.Context, collectionID, assetID string) (listing.Listing, settlement.Split, error) {
	lst, err := s.store.GetListing(ctx, collectionID, assetID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return listing.Listing{}, settlement.Split{}, ErrNotListed
		}
		return listing.Listing{}, settlement.Split{}, err
	}

	split, err := s.splitFor(ctx, lst)
	if err != nil {
		return listing.Listing{}, settlement.Split{}, err
	}
	return lst, split, nil
}

// Buy settles a listed sale atomically: the listing is consumed, one ledger
// batch pays royalty receiver, staking pool, treasury, and seller from the
// buyer, and the token moves to the buyer. Any failure leaves the listing in
// place and moves no money.
func (s *Service) Buy(ctx context.Context, buyer, collectionID, assetID string) (Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lst, err := s.store.GetListing(ctx, collectionID, assetID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Receipt{}, ErrNotListed
		}
		return Receipt{}, err
	}
	if buyer == lst.Seller {
		return Receipt{}, ErrSelfPurchase
	}

	owner, err := s.assets.OwnerOf(ctx, collectionID, assetID)
	if err != nil {
		return Receipt{}, err
	}
	if owner != lst.Seller {
		// Stale listing: the seller moved or staked the token after
		// listing it. Drop the record so it cannot be retried.
		if err := s.store.DeleteListing(ctx, collectionID, assetID); err != nil {
			return Receipt{}, err
		}
		return Receipt{}, ErrSellerNoLongerOwner
	}

	split, err := s.splitFor(ctx, lst)
	if err != nil {
		return Receipt{}, err
	}

	poolID, stakingAccount, err := s.stakingDestination(ctx, collectionID)
	if err != nil {
		return Receipt{}, err
	}

	balance, err := s.payments.Balance(ctx, buyer, lst.Currency)
	if err != nil {
		return Receipt{}, err
	}
	if balance.Cmp(lst.Price) < 0 {
		return Receipt{}, fmt.Errorf("%w: buyer balance %s below price %s", ErrTransferFailed, balance, lst.Price)
	}

	if err := s.store.DeleteListing(ctx, collectionID, assetID); err != nil {
		return Receipt{}, err
	}

	reference := "sale:" + lst.ID
	legs := settlementLegs(buyer, lst, split, stakingAccount, s.policy.Fees().Treasury, reference)

	txs, err := s.payments.TransferBatch(ctx, legs)
	if err != nil {
		s.restoreListing(ctx, lst)
		return Receipt{}, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	if err := s.assets.Transfer(ctx, EngineIdentity, collectionID, assetID, lst.Seller, buyer); err != nil {
		// The seller raced the settlement. Reverse every leg and put the
		// listing back; the credits just applied guarantee the reversal
		// cannot bounce.
		if _, revErr := s.payments.TransferBatch(ctx, reverseLegs(legs, reference)); revErr != nil {
			s.log.WithError(revErr).WithField("listing_id", lst.ID).Error("settlement reversal failed")
		}
		s.restoreListing(ctx, lst)
		return Receipt{}, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	if poolID != "" && split.StakingFee.Sign() > 0 {
		if err := s.rewards.AccrueFees(ctx, EngineIdentity, poolID, lst.Currency, split.StakingFee); err != nil {
			// Funds already sit in the pool account; attribution can be
			// replayed by an operator, so the sale still completes.
			s.log.WithError(err).
				WithField("pool_id", poolID).
				WithField("amount", split.StakingFee.String()).
				Error("staking fee accrual failed")
		}
	}

	s.appendEvent(ctx, event.Record{
		Type:         event.TypeBought,
		CollectionID: collectionID,
		AssetID:      assetID,
		Actor:        buyer,
		Attributes: map[string]string{
			"seller":          lst.Seller,
			"price":           lst.Price.String(),
			"currency":        lst.Currency,
			"royalty":         split.RoyaltyAmount.String(),
			"staking_fee":     split.StakingFee.String(),
			"platform_fee":    split.PlatformFee.String(),
			"seller_proceeds": split.SellerProceeds.String(),
		},
	})
	s.log.WithField("collection_id", collectionID).
		WithField("asset_id", assetID).
		WithField("buyer", buyer).
		WithField("price", lst.Price.String()).
		Info("sale settled")

	return Receipt{Listing: lst, Split: split, PoolID: poolID, Transactions: txs}, nil
}

// GetListing retrieves one active listing.
func (s *Service) GetListing(ctx context.Context, collectionID, assetID string) (listing.Listing, error) {
	lst, err := s.store.GetListing(ctx, collectionID, assetID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return listing.Listing{}, ErrNotListed
		}
		return listing.Listing{}, err
	}
	return lst, nil
}

// ListListings returns the active listings, optionally one collection's.
func (s *Service) ListListings(ctx context.Context, collectionID string) ([]listing.Listing, error) {
	return s.store.ListListings(ctx, collectionID)
}

func (s *Service) splitFor(ctx context.Context, lst listing.Listing) (settlement.Split, error) {
	royalty, ok, err := s.assets.RoyaltyFor(ctx, lst.CollectionID, lst.AssetID, lst.Price)
	if err != nil {
		return settlement.Split{}, err
	}
	cfg := s.policy.Fees()
	if !ok {
		return settlement.ComputeSplit(lst.Price, nil, "", cfg), nil
	}
	return settlement.ComputeSplit(lst.Price, royalty.Amount, royalty.Receiver, cfg), nil
}

// stakingDestination resolves where the staking fee goes: the bound pool's
// ledger account, the configured default pool, or the vault when neither
// exists. An empty pool id means no accrual happens.
func (s *Service) stakingDestination(ctx context.Context, collectionID string) (string, string, error) {
	poolID, ok, err := s.registry.PoolFor(ctx, collectionID)
	if err != nil {
		return "", "", err
	}
	if !ok {
		poolID = s.policy.Fees().DefaultPoolID
	}
	if poolID == "" {
		return "", StakingVault, nil
	}
	p, err := s.rewards.GetPool(ctx, poolID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", StakingVault, nil
		}
		return "", "", err
	}
	return p.ID, p.LedgerAccount, nil
}

func (s *Service) isStaked(ctx context.Context, collectionID, assetID string) (bool, error) {
	poolID, ok, err := s.registry.PoolFor(ctx, collectionID)
	if err != nil || !ok {
		return false, err
	}
	return s.rewards.IsStaked(ctx, poolID, assetID)
}

func (s *Service) restoreListing(ctx context.Context, lst listing.Listing) {
	if _, err := s.store.CreateListing(ctx, lst); err != nil {
		s.log.WithError(err).WithField("listing_id", lst.ID).Error("listing restore failed")
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

// settlementLegs builds the purchase batch. Zero-amount legs are omitted.
func settlementLegs(buyer string, lst listing.Listing, split settlement.Split, stakingAccount, treasury, reference string) []ledger.Leg {
	legs := make([]ledger.Leg, 0, 4)
	if split.RoyaltyAmount.Sign() > 0 {
		legs = append(legs, ledger.Leg{From: buyer, To: split.RoyaltyReceiver, Currency: lst.Currency, Amount: split.RoyaltyAmount, Reference: reference})
	}
	if split.StakingFee.Sign() > 0 {
		legs = append(legs, ledger.Leg{From: buyer, To: stakingAccount, Currency: lst.Currency, Amount: split.StakingFee, Reference: reference})
	}
	if split.PlatformFee.Sign() > 0 {
		legs = append(legs, ledger.Leg{From: buyer, To: treasury, Currency: lst.Currency, Amount: split.PlatformFee, Reference: reference})
	}
	if split.SellerProceeds.Sign() > 0 {
		legs = append(legs, ledger.Leg{From: buyer, To: lst.Seller, Currency: lst.Currency, Amount: split.SellerProceeds, Reference: reference})
	}
	return legs
}

func reverseLegs(legs []ledger.Leg, reference string) []ledger.Leg {
	out := make([]ledger.Leg, 0, len(legs))
	for _, leg := range legs {
		out = append(out, ledger.Leg{
			From:      leg.To,
			To:        leg.From,
			Currency:  leg.Currency,
			Amount:    leg.Amount,
			Reference: "reversal:" + reference,
		})
	}
	return out
}
