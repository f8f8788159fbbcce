// Package memory provides a thread-safe in-memory implementation of the
// storage interfaces. It is intended for tests and prototyping and
// deliberately keeps the implementation simple.
package memory

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MarketForge/settlement_layer/internal/app/domain/asset"
	"github.com/MarketForge/settlement_layer/internal/app/domain/event"
	"github.com/MarketForge/settlement_layer/internal/app/domain/ledger"
	"github.com/MarketForge/settlement_layer/internal/app/domain/listing"
	"github.com/MarketForge/settlement_layer/internal/app/domain/pool"
	"github.com/MarketForge/settlement_layer/internal/app/storage"
)

type pairKey struct {
	a string
	b string
}

// Store is the in-memory backend. The zero value is not usable; call New.
type Store struct {
	mu          sync.RWMutex
	collections map[string]asset.Collection
	tokens      map[pairKey]asset.Token
	listings    map[pairKey]listing.Listing
	pools       map[string]pool.Pool
	positions   map[pairKey]pool.Position
	stakes      map[pairKey]pool.Stake
	bindings    map[string]string
	balances    map[pairKey]*big.Int
	journal     []ledger.Transaction
	events      []event.Record
}

var _ storage.AssetStore = (*Store)(nil)
var _ storage.ListingStore = (*Store)(nil)
var _ storage.PoolStore = (*Store)(nil)
var _ storage.RegistryStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)
var _ storage.EventStore = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		collections: make(map[string]asset.Collection),
		tokens:      make(map[pairKey]asset.Token),
		listings:    make(map[pairKey]listing.Listing),
		pools:       make(map[string]pool.Pool),
		positions:   make(map[pairKey]pool.Position),
		stakes:      make(map[pairKey]pool.Stake),
		bindings:    make(map[string]string),
		balances:    make(map[pairKey]*big.Int),
	}
}

// AssetStore implementation -------------------------------------------------

func (s *Store) CreateCollection(_ context.Context, col asset.Collection) (asset.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if col.ID == "" {
		col.ID = uuid.NewString()
	} else if _, exists := s.collections[col.ID]; exists {
		return asset.Collection{}, fmt.Errorf("collection %s: %w", col.ID, storage.ErrConflict)
	}

	now := time.Now().UTC()
	col.CreatedAt = now
	col.UpdatedAt = now

	s.collections[col.ID] = col
	return col, nil
}

func (s *Store) UpdateCollection(_ context.Context, col asset.Collection) (asset.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.collections[col.ID]
	if !ok {
		return asset.Collection{}, fmt.Errorf("collection %s: %w", col.ID, storage.ErrNotFound)
	}

	col.CreatedAt = original.CreatedAt
	col.UpdatedAt = time.Now().UTC()

	s.collections[col.ID] = col
	return col, nil
}

func (s *Store) GetCollection(_ context.Context, id string) (asset.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[id]
	if !ok {
		return asset.Collection{}, fmt.Errorf("collection %s: %w", id, storage.ErrNotFound)
	}
	return col, nil
}

func (s *Store) ListCollections(_ context.Context) ([]asset.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]asset.Collection, 0, len(s.collections))
	for _, col := range s.collections {
		result = append(result, col)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) CreateToken(_ context.Context, tok asset.Token) (asset.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tok.ID == "" {
		tok.ID = uuid.NewString()
	}
	key := pairKey{tok.CollectionID, tok.ID}
	if _, exists := s.tokens[key]; exists {
		return asset.Token{}, fmt.Errorf("token %s: %w", tok.ID, storage.ErrConflict)
	}

	now := time.Now().UTC()
	tok.CreatedAt = now
	tok.UpdatedAt = now

	s.tokens[key] = tok
	return tok, nil
}

func (s *Store) UpdateToken(_ context.Context, tok asset.Token) (asset.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{tok.CollectionID, tok.ID}
	original, ok := s.tokens[key]
	if !ok {
		return asset.Token{}, fmt.Errorf("token %s: %w", tok.ID, storage.ErrNotFound)
	}

	tok.CreatedAt = original.CreatedAt
	tok.UpdatedAt = time.Now().UTC()

	s.tokens[key] = tok
	return tok, nil
}

func (s *Store) GetToken(_ context.Context, collectionID, tokenID string) (asset.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tok, ok := s.tokens[pairKey{collectionID, tokenID}]
	if !ok {
		return asset.Token{}, fmt.Errorf("token %s/%s: %w", collectionID, tokenID, storage.ErrNotFound)
	}
	return tok, nil
}

func (s *Store) ListTokens(_ context.Context, collectionID string) ([]asset.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]asset.Token, 0)
	for key, tok := range s.tokens {
		if collectionID == "" || key.a == collectionID {
			result = append(result, tok)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Serial < result[j].Serial })
	return result, nil
}

// ListingStore implementation -----------------------------------------------

func (s *Store) CreateListing(_ context.Context, lst listing.Listing) (listing.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{lst.CollectionID, lst.AssetID}
	if _, exists := s.listings[key]; exists {
		return listing.Listing{}, fmt.Errorf("listing %s/%s: %w", lst.CollectionID, lst.AssetID, storage.ErrConflict)
	}

	if lst.ID == "" {
		lst.ID = uuid.NewString()
	}
	lst.CreatedAt = time.Now().UTC()
	lst.Price = new(big.Int).Set(lst.Price)

	s.listings[key] = lst
	return cloneListing(lst), nil
}

func (s *Store) GetListing(_ context.Context, collectionID, assetID string) (listing.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lst, ok := s.listings[pairKey{collectionID, assetID}]
	if !ok {
		return listing.Listing{}, fmt.Errorf("listing %s/%s: %w", collectionID, assetID, storage.ErrNotFound)
	}
	return cloneListing(lst), nil
}

func (s *Store) DeleteListing(_ context.Context, collectionID, assetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{collectionID, assetID}
	if _, ok := s.listings[key]; !ok {
		return fmt.Errorf("listing %s/%s: %w", collectionID, assetID, storage.ErrNotFound)
	}
	delete(s.listings, key)
	return nil
}

func (s *Store) ListListings(_ context.Context, collectionID string) ([]listing.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]listing.Listing, 0)
	for key, lst := range s.listings {
		if collectionID == "" || key.a == collectionID {
			result = append(result, cloneListing(lst))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// PoolStore implementation --------------------------------------------------

func (s *Store) CreatePool(_ context.Context, p pool.Pool) (pool.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	} else if _, exists := s.pools[p.ID]; exists {
		return pool.Pool{}, fmt.Errorf("pool %s: %w", p.ID, storage.ErrConflict)
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	s.pools[p.ID] = clonePool(p)
	return clonePool(p), nil
}

func (s *Store) UpdatePool(_ context.Context, p pool.Pool) (pool.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.pools[p.ID]
	if !ok {
		return pool.Pool{}, fmt.Errorf("pool %s: %w", p.ID, storage.ErrNotFound)
	}

	p.CollectionID = original.CollectionID
	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	s.pools[p.ID] = clonePool(p)
	return clonePool(p), nil
}

func (s *Store) GetPool(_ context.Context, id string) (pool.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pools[id]
	if !ok {
		return pool.Pool{}, fmt.Errorf("pool %s: %w", id, storage.ErrNotFound)
	}
	return clonePool(p), nil
}

func (s *Store) ListPools(_ context.Context) ([]pool.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]pool.Pool, 0, len(s.pools))
	for _, p := range s.pools {
		result = append(result, clonePool(p))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) UpsertPosition(_ context.Context, pos pool.Position) (pool.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.positions[pairKey{pos.PoolID, pos.Staker}] = clonePosition(pos)
	return clonePosition(pos), nil
}

func (s *Store) GetPosition(_ context.Context, poolID, staker string) (pool.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.positions[pairKey{poolID, staker}]
	if !ok {
		return pool.Position{}, fmt.Errorf("position %s/%s: %w", poolID, staker, storage.ErrNotFound)
	}
	return clonePosition(pos), nil
}

func (s *Store) DeletePosition(_ context.Context, poolID, staker string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.positions, pairKey{poolID, staker})
	return nil
}

func (s *Store) ListPositions(_ context.Context, poolID string) ([]pool.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]pool.Position, 0)
	for key, pos := range s.positions {
		if key.a == poolID {
			result = append(result, clonePosition(pos))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Staker < result[j].Staker })
	return result, nil
}

func (s *Store) CreateStake(_ context.Context, st pool.Stake) (pool.Stake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{st.PoolID, st.AssetID}
	if _, exists := s.stakes[key]; exists {
		return pool.Stake{}, fmt.Errorf("stake %s/%s: %w", st.PoolID, st.AssetID, storage.ErrConflict)
	}
	st.StakedAt = time.Now().UTC()
	s.stakes[key] = st
	return st, nil
}

func (s *Store) GetStake(_ context.Context, poolID, assetID string) (pool.Stake, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stakes[pairKey{poolID, assetID}]
	if !ok {
		return pool.Stake{}, fmt.Errorf("stake %s/%s: %w", poolID, assetID, storage.ErrNotFound)
	}
	return st, nil
}

func (s *Store) DeleteStake(_ context.Context, poolID, assetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{poolID, assetID}
	if _, ok := s.stakes[key]; !ok {
		return fmt.Errorf("stake %s/%s: %w", poolID, assetID, storage.ErrNotFound)
	}
	delete(s.stakes, key)
	return nil
}

func (s *Store) ListStakes(_ context.Context, poolID, staker string) ([]pool.Stake, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]pool.Stake, 0)
	for key, st := range s.stakes {
		if key.a != poolID {
			continue
		}
		if staker != "" && st.Staker != staker {
			continue
		}
		result = append(result, st)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AssetID < result[j].AssetID })
	return result, nil
}

// RegistryStore implementation ----------------------------------------------

func (s *Store) CreateBinding(_ context.Context, collectionID, poolID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bindings[collectionID]; exists {
		return fmt.Errorf("binding %s: %w", collectionID, storage.ErrConflict)
	}
	s.bindings[collectionID] = poolID
	return nil
}

func (s *Store) GetBinding(_ context.Context, collectionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	poolID, ok := s.bindings[collectionID]
	if !ok {
		return "", fmt.Errorf("binding %s: %w", collectionID, storage.ErrNotFound)
	}
	return poolID, nil
}

func (s *Store) ListBindings(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]string, len(s.bindings))
	for k, v := range s.bindings {
		result[k] = v
	}
	return result, nil
}

// LedgerStore implementation ------------------------------------------------

func (s *Store) GetBalance(_ context.Context, account, currency string) (ledger.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return ledger.Balance{Account: account, Currency: currency, Amount: s.balanceLocked(account, currency)}, nil
}

func (s *Store) ListBalances(_ context.Context, account string) ([]ledger.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ledger.Balance, 0)
	for key, amount := range s.balances {
		if key.a == account && amount.Sign() != 0 {
			result = append(result, ledger.Balance{Account: account, Currency: key.b, Amount: new(big.Int).Set(amount)})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Currency < result[j].Currency })
	return result, nil
}

// ApplyTransfers applies every leg or none. Legs are staged against a copy
// of the touched balances so a failing debit leaves the ledger untouched.
func (s *Store) ApplyTransfers(_ context.Context, legs []ledger.Leg) ([]ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[pairKey]*big.Int)
	stagedBalance := func(account, currency string) *big.Int {
		key := pairKey{account, currency}
		if v, ok := staged[key]; ok {
			return v
		}
		v := new(big.Int).Set(s.balanceLocked(account, currency))
		staged[key] = v
		return v
	}

	for i, leg := range legs {
		if leg.Amount == nil || leg.Amount.Sign() < 0 {
			return nil, fmt.Errorf("leg %d: negative or missing amount", i)
		}
		if leg.Amount.Sign() == 0 {
			continue
		}
		if leg.From != "" {
			from := stagedBalance(leg.From, leg.Currency)
			if from.Cmp(leg.Amount) < 0 {
				return nil, fmt.Errorf("leg %d (%s -> %s, %s): %w", i, leg.From, leg.To, leg.Currency, storage.ErrInsufficientFunds)
			}
			from.Sub(from, leg.Amount)
		}
		to := stagedBalance(leg.To, leg.Currency)
		to.Add(to, leg.Amount)
	}

	for key, amount := range staged {
		s.balances[key] = amount
	}

	now := time.Now().UTC()
	txs := make([]ledger.Transaction, 0, len(legs))
	for _, leg := range legs {
		if leg.Amount == nil || leg.Amount.Sign() == 0 {
			continue
		}
		tx := ledger.Transaction{
			ID:        uuid.NewString(),
			From:      leg.From,
			To:        leg.To,
			Currency:  leg.Currency,
			Amount:    new(big.Int).Set(leg.Amount),
			Reference: leg.Reference,
			CreatedAt: now,
		}
		s.journal = append(s.journal, tx)
		txs = append(txs, tx)
	}
	return txs, nil
}

func (s *Store) ListTransactions(_ context.Context, account string, limit int) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ledger.Transaction, 0)
	for i := len(s.journal) - 1; i >= 0; i-- {
		tx := s.journal[i]
		if account != "" && tx.From != account && tx.To != account {
			continue
		}
		result = append(result, cloneTransaction(tx))
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) balanceLocked(account, currency string) *big.Int {
	if v, ok := s.balances[pairKey{account, currency}]; ok {
		return v
	}
	return new(big.Int)
}

// EventStore implementation -------------------------------------------------

func (s *Store) AppendEvent(_ context.Context, rec event.Record) (event.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = time.Now().UTC()
	rec.Attributes = copyAttrs(rec.Attributes)

	s.events = append(s.events, rec)
	return rec, nil
}

func (s *Store) ListEvents(_ context.Context, collectionID string, limit int) ([]event.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]event.Record, 0)
	for i := len(s.events) - 1; i >= 0; i-- {
		rec := s.events[i]
		if collectionID != "" && rec.CollectionID != collectionID {
			continue
		}
		rec.Attributes = copyAttrs(rec.Attributes)
		result = append(result, rec)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// Helpers ---------------------------------------------------------------------

func copyAttrs(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func copyBigMap(src map[string]*big.Int) map[string]*big.Int {
	dst := make(map[string]*big.Int, len(src))
	for k, v := range src {
		dst[k] = new(big.Int).Set(v)
	}
	return dst
}

func cloneListing(lst listing.Listing) listing.Listing {
	lst.Price = new(big.Int).Set(lst.Price)
	return lst
}

func clonePool(p pool.Pool) pool.Pool {
	p.AccPerShare = copyBigMap(p.AccPerShare)
	p.Buffer = copyBigMap(p.Buffer)
	return p
}

func clonePosition(pos pool.Position) pool.Position {
	pos.RewardDebt = copyBigMap(pos.RewardDebt)
	return pos
}

func cloneTransaction(tx ledger.Transaction) ledger.Transaction {
	tx.Amount = new(big.Int).Set(tx.Amount)
	return tx
}
