// Package storage defines the persistence interfaces the domain services
// depend on. Implementations must be safe for concurrent use.
package storage

import (
	"context"

	"github.com/MarketForge/settlement_layer/internal/app/domain/asset"
	"github.com/MarketForge/settlement_layer/internal/app/domain/event"
	"github.com/MarketForge/settlement_layer/internal/app/domain/ledger"
	"github.com/MarketForge/settlement_layer/internal/app/domain/listing"
	"github.com/MarketForge/settlement_layer/internal/app/domain/pool"
)

// AssetStore persists collections and tokens.
type AssetStore interface {
	CreateCollection(ctx context.Context, col asset.Collection) (asset.Collection, error)
	UpdateCollection(ctx context.Context, col asset.Collection) (asset.Collection, error)
	GetCollection(ctx context.Context, id string) (asset.Collection, error)
	ListCollections(ctx context.Context) ([]asset.Collection, error)

	CreateToken(ctx context.Context, tok asset.Token) (asset.Token, error)
	UpdateToken(ctx context.Context, tok asset.Token) (asset.Token, error)
	GetToken(ctx context.Context, collectionID, tokenID string) (asset.Token, error)
	ListTokens(ctx context.Context, collectionID string) ([]asset.Token, error)
}

// ListingStore persists active sale listings. At most one listing exists per
// (collection, asset) pair; CreateListing must reject a second.
type ListingStore interface {
	CreateListing(ctx context.Context, lst listing.Listing) (listing.Listing, error)
	GetListing(ctx context.Context, collectionID, assetID string) (listing.Listing, error)
	DeleteListing(ctx context.Context, collectionID, assetID string) error
	ListListings(ctx context.Context, collectionID string) ([]listing.Listing, error)
}

// PoolStore persists reward pools, staker positions, and stake custody
// records.
type PoolStore interface {
	CreatePool(ctx context.Context, p pool.Pool) (pool.Pool, error)
	UpdatePool(ctx context.Context, p pool.Pool) (pool.Pool, error)
	GetPool(ctx context.Context, id string) (pool.Pool, error)
	ListPools(ctx context.Context) ([]pool.Pool, error)

	UpsertPosition(ctx context.Context, pos pool.Position) (pool.Position, error)
	GetPosition(ctx context.Context, poolID, staker string) (pool.Position, error)
	DeletePosition(ctx context.Context, poolID, staker string) error
	ListPositions(ctx context.Context, poolID string) ([]pool.Position, error)

	CreateStake(ctx context.Context, st pool.Stake) (pool.Stake, error)
	GetStake(ctx context.Context, poolID, assetID string) (pool.Stake, error)
	DeleteStake(ctx context.Context, poolID, assetID string) error
	ListStakes(ctx context.Context, poolID, staker string) ([]pool.Stake, error)
}

// RegistryStore persists the immutable collection -> pool bindings created
// by the factory. A collection is never rebound.
type RegistryStore interface {
	CreateBinding(ctx context.Context, collectionID, poolID string) error
	GetBinding(ctx context.Context, collectionID string) (string, error)
	ListBindings(ctx context.Context) (map[string]string, error)
}

// LedgerStore persists balances and the transfer journal. ApplyTransfers is
// atomic: either every leg is applied and journaled, or none are.
type LedgerStore interface {
	GetBalance(ctx context.Context, account, currency string) (ledger.Balance, error)
	ListBalances(ctx context.Context, account string) ([]ledger.Balance, error)
	ApplyTransfers(ctx context.Context, legs []ledger.Leg) ([]ledger.Transaction, error)
	ListTransactions(ctx context.Context, account string, limit int) ([]ledger.Transaction, error)
}

// EventStore persists the append-only domain event journal.
type EventStore interface {
	AppendEvent(ctx context.Context, rec event.Record) (event.Record, error)
	ListEvents(ctx context.Context, collectionID string, limit int) ([]event.Record, error)
}
