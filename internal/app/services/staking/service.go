// Package staking implements the per-collection reward accumulator: stakers
// lock tokens as shares and earn a pro-rata cut of marketplace fee income.
//
// Reward math is integer fixed-point at scale 1e18. Fees arriving while a
// pool has no shares land in an unallocated buffer that is drained into the
// accumulator when shares next become positive, so income is never lost and
// division by zero is structurally impossible.
package staking

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/MarketForge/settlement_layer/internal/app/domain/event"
	"github.com/MarketForge/settlement_layer/internal/app/domain/ledger"
	"github.com/MarketForge/settlement_layer/internal/app/domain/pool"
	"github.com/MarketForge/settlement_layer/internal/app/domain/settlement"
	"github.com/MarketForge/settlement_layer/internal/app/storage"
	"github.com/MarketForge/settlement_layer/pkg/logger"
)

// AssetCustodian is the slice of the asset collaborator the pool needs to
// take and return custody of staked tokens.
type AssetCustodian interface {
	OwnerOf(ctx context.Context, collectionID, tokenID string) (string, error)
	Transfer(ctx context.Context, caller, collectionID, tokenID, from, to string) error
}

// PaymentLedger is the slice of the ledger used to collect fee payments and
// pay out rewards.
type PaymentLedger interface {
	Transfer(ctx context.Context, from, to, currency string, amount *big.Int, reference string) (ledger.Transaction, error)
}

// PolicyProvider exposes the active marketplace fee configuration.
type PolicyProvider interface {
	Fees() settlement.FeeConfig
}

// Service manages all reward pools. Every mutating call is serialized by
// one mutex so accumulator updates are atomic with respect to each other.
type Service struct {
	mu       sync.Mutex
	store    storage.PoolStore
	events   storage.EventStore
	assets   AssetCustodian
	payments PaymentLedger
	policy   PolicyProvider
	engine   string
	log      *logger.Logger
}

// New constructs the staking service.
func New(store storage.PoolStore, events storage.EventStore, assets AssetCustodian, payments PaymentLedger, policy PolicyProvider, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("staking")
	}
	return &Service{
		store:    store,
		events:   events,
		assets:   assets,
		payments: payments,
		policy:   policy,
		log:      log,
	}
}

// BindEngine records the settlement engine identity allowed to notify and
// accrue fees. Call once at wiring time.
func (s *Service) BindEngine(identity string) { s.engine = identity }

// CreatePool creates an empty reward pool bound to a collection for its
// whole lifetime. Called by the factory at collection deployment.
func (s *Service) CreatePool(ctx context.Context, collectionID string) (pool.Pool, error) {
	if strings.TrimSpace(collectionID) == "" {
		return pool.Pool{}, fmt.Errorf("collection_id is required")
	}

	id := uuid.NewString()
	p, err := s.store.CreatePool(ctx, pool.Pool{
		ID:            id,
		CollectionID:  collectionID,
		LedgerAccount: "pool:" + id,
		AccPerShare:   map[string]*big.Int{},
		Buffer:        map[string]*big.Int{},
	})
	if err != nil {
		return pool.Pool{}, err
	}

	s.log.WithField("pool_id", p.ID).
		WithField("collection_id", collectionID).
		Info("reward pool created")
	return p, nil
}

// Stake locks a token into its collection's pool. The caller's pending
// reward is settled against the share count before the increment, custody
// moves to the pool, and the reward debt is resynced afterwards.
func (s *Service) Stake(ctx context.Context, caller, poolID, assetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.store.GetPool(ctx, poolID)
	if err != nil {
		return err
	}

	// The pool account holds staked custody, so check the stake record
	// before ownership to report the real reason.
	if _, err := s.store.GetStake(ctx, poolID, assetID); err == nil {
		return ErrAlreadyStaked
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	owner, err := s.assets.OwnerOf(ctx, p.CollectionID, assetID)
	if err != nil {
		return err
	}
	if owner != caller {
		return ErrNotOwner
	}

	pos, err := s.positionOrZero(ctx, poolID, caller)
	if err != nil {
		return err
	}

	// Settle before anything moves; a failed reward payout aborts with
	// custody and bookkeeping untouched.
	if _, err := s.settleLocked(ctx, &p, &pos); err != nil {
		return err
	}
	s.resyncLocked(&p, &pos)
	prev := clonePosition(pos)

	if err := s.assets.Transfer(ctx, caller, p.CollectionID, assetID, caller, p.LedgerAccount); err != nil {
		s.restorePositionLocked(ctx, prev)
		return err
	}

	if _, err := s.store.CreateStake(ctx, pool.Stake{
		PoolID:       poolID,
		CollectionID: p.CollectionID,
		AssetID:      assetID,
		Staker:       caller,
	}); err != nil {
		s.restorePositionLocked(ctx, prev)
		s.returnCustodyLocked(ctx, p, assetID, caller)
		return err
	}

	pos.Shares++
	p.TotalShares++

	// Resync before draining so retroactive buffer income is attributed
	// to the shares that now exist.
	s.resyncLocked(&p, &pos)
	if p.TotalShares > 0 {
		s.drainLocked(&p)
	}

	if _, err := s.store.UpsertPosition(ctx, pos); err != nil {
		s.unwindStakeLocked(ctx, p, assetID, caller, prev)
		return err
	}
	if _, err := s.store.UpdatePool(ctx, p); err != nil {
		s.unwindStakeLocked(ctx, p, assetID, caller, prev)
		return err
	}

	s.appendEvent(ctx, event.Record{
		Type:         event.TypeStaked,
		CollectionID: p.CollectionID,
		AssetID:      assetID,
		Actor:        caller,
		Attributes: map[string]string{
			"pool_id":      poolID,
			"total_shares": fmt.Sprintf("%d", p.TotalShares),
		},
	})
	return nil
}

// Unstake returns custody of a staked token to its staker, settling the
// pending reward first.
func (s *Service) Unstake(ctx context.Context, caller, poolID, assetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.store.GetPool(ctx, poolID)
	if err != nil {
		return err
	}
	st, err := s.store.GetStake(ctx, poolID, assetID)
	if err != nil {
		return err
	}
	if st.Staker != caller {
		return ErrNotStaker
	}

	pos, err := s.store.GetPosition(ctx, poolID, caller)
	if err != nil {
		return err
	}

	if _, err := s.settleLocked(ctx, &p, &pos); err != nil {
		return err
	}
	s.resyncLocked(&p, &pos)
	prev := clonePosition(pos)

	// Custody returns before the bookkeeping so a failed transfer leaves
	// the stake record and share counts intact.
	if err := s.assets.Transfer(ctx, p.LedgerAccount, p.CollectionID, assetID, p.LedgerAccount, caller); err != nil {
		s.restorePositionLocked(ctx, prev)
		return err
	}

	if err := s.store.DeleteStake(ctx, poolID, assetID); err != nil {
		s.unwindUnstakeLocked(ctx, p, assetID, caller, prev)
		return err
	}

	pos.Shares--
	p.TotalShares--
	s.resyncLocked(&p, &pos)

	if pos.Shares == 0 {
		if err := s.store.DeletePosition(ctx, poolID, caller); err != nil {
			s.unwindUnstakeLocked(ctx, p, assetID, caller, prev)
			return err
		}
	} else if _, err := s.store.UpsertPosition(ctx, pos); err != nil {
		s.unwindUnstakeLocked(ctx, p, assetID, caller, prev)
		return err
	}
	if _, err := s.store.UpdatePool(ctx, p); err != nil {
		s.unwindUnstakeLocked(ctx, p, assetID, caller, prev)
		return err
	}

	s.appendEvent(ctx, event.Record{
		Type:         event.TypeUnstaked,
		CollectionID: p.CollectionID,
		AssetID:      assetID,
		Actor:        caller,
		Attributes: map[string]string{
			"pool_id":      poolID,
			"total_shares": fmt.Sprintf("%d", p.TotalShares),
		},
	})
	return nil
}

// ClaimAll settles and pays out the caller's pending reward in every
// allow-listed currency. A caller with nothing pending is paid zero
// silently.
func (s *Service) ClaimAll(ctx context.Context, caller, poolID string) (map[string]*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}

	pos, err := s.positionOrZero(ctx, poolID, caller)
	if err != nil {
		return nil, err
	}
	if pos.Shares == 0 {
		return map[string]*big.Int{}, nil
	}

	paid, err := s.settleLocked(ctx, &p, &pos)
	if err != nil {
		return nil, err
	}

	s.resyncLocked(&p, &pos)
	if _, err := s.store.UpsertPosition(ctx, pos); err != nil {
		return nil, err
	}

	if len(paid) > 0 {
		attrs := map[string]string{"pool_id": poolID}
		for cur, amount := range paid {
			attrs["paid_"+cur] = amount.String()
		}
		s.appendEvent(ctx, event.Record{
			Type:         event.TypeClaimed,
			CollectionID: p.CollectionID,
			Actor:        caller,
			Attributes:   attrs,
		})
	}
	return paid, nil
}

// NotifyFee collects an exact fee payment from the caller into the pool
// account and accrues it. Restricted to the settlement engine unless the
// policy opens fee notification to everyone.
func (s *Service) NotifyFee(ctx context.Context, caller, poolID, currency string, amount *big.Int) error {
	cfg := s.policy.Fees()
	if !cfg.OpenFeeNotification && caller != s.engine {
		return ErrNotSettlementEngine
	}
	if !cfg.CurrencyAllowed(currency) {
		return ErrCurrencyNotAllowed
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.store.GetPool(ctx, poolID)
	if err != nil {
		return err
	}

	if _, err := s.payments.Transfer(ctx, caller, p.LedgerAccount, currency, amount, "fee:"+poolID); err != nil {
		return err
	}
	return s.accrueAndPersistLocked(ctx, p, currency, amount, caller)
}

// AccrueFees attributes fee income whose funds the settlement engine has
// already delivered to the pool account inside its atomic settlement
// batch. Engine-only, regardless of the open-notification policy.
func (s *Service) AccrueFees(ctx context.Context, caller, poolID, currency string, amount *big.Int) error {
	if caller != s.engine {
		return ErrNotSettlementEngine
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.store.GetPool(ctx, poolID)
	if err != nil {
		return err
	}
	return s.accrueAndPersistLocked(ctx, p, currency, amount, caller)
}

// FlushBuffer drains buffered fee income into the accumulator. Callable by
// anyone; a no-op while the pool has no shares or nothing buffered.
func (s *Service) FlushBuffer(ctx context.Context, poolID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.store.GetPool(ctx, poolID)
	if err != nil {
		return err
	}
	if p.TotalShares == 0 {
		return nil
	}
	if !s.drainLocked(&p) {
		return nil
	}
	_, err = s.store.UpdatePool(ctx, p)
	return err
}

// Pending returns the caller's unpaid reward per currency. Buffered income
// is excluded until drained.
func (s *Service) Pending(ctx context.Context, poolID, staker string) (map[string]*big.Int, error) {
	p, err := s.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	pos, err := s.store.GetPosition(ctx, poolID, staker)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return map[string]*big.Int{}, nil
		}
		return nil, err
	}

	out := make(map[string]*big.Int)
	for _, cur := range s.policy.Fees().Currencies() {
		if pending := pool.Pending(pos.Shares, p.Acc(cur), pos.Debt(cur)); pending.Sign() > 0 {
			out[cur] = pending
		}
	}
	return out, nil
}

// IsStaked reports whether a token is currently locked in a pool.
func (s *Service) IsStaked(ctx context.Context, poolID, assetID string) (bool, error) {
	_, err := s.store.GetStake(ctx, poolID, assetID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// StakerOf returns the recorded staker of a token, empty if unstaked.
func (s *Service) StakerOf(ctx context.Context, poolID, assetID string) (string, error) {
	st, err := s.store.GetStake(ctx, poolID, assetID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return st.Staker, nil
}

// GetPool retrieves one pool.
func (s *Service) GetPool(ctx context.Context, poolID string) (pool.Pool, error) {
	return s.store.GetPool(ctx, poolID)
}

// ListPools returns all pools.
func (s *Service) ListPools(ctx context.Context) ([]pool.Pool, error) {
	return s.store.ListPools(ctx)
}

// Positions returns all staker positions of a pool.
func (s *Service) Positions(ctx context.Context, poolID string) ([]pool.Position, error) {
	return s.store.ListPositions(ctx, poolID)
}

// Stakes returns the custody records of a pool, optionally filtered by
// staker.
func (s *Service) Stakes(ctx context.Context, poolID, staker string) ([]pool.Stake, error) {
	return s.store.ListStakes(ctx, poolID, staker)
}

// Internal helpers ------------------------------------------------------------

func (s *Service) positionOrZero(ctx context.Context, poolID, staker string) (pool.Position, error) {
	pos, err := s.store.GetPosition(ctx, poolID, staker)
	if err == nil {
		return pos, nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return pool.Position{PoolID: poolID, Staker: staker, RewardDebt: map[string]*big.Int{}}, nil
	}
	return pool.Position{}, err
}

// clonePosition snapshots a position, including its debt map, so a failed
// operation can restore it.
func clonePosition(pos pool.Position) pool.Position {
	out := pos
	out.RewardDebt = make(map[string]*big.Int, len(pos.RewardDebt))
	for cur, v := range pos.RewardDebt {
		out.RewardDebt[cur] = new(big.Int).Set(v)
	}
	return out
}

// restorePositionLocked persists a settled position snapshot so a reward
// paid before the operation failed cannot be claimed a second time.
func (s *Service) restorePositionLocked(ctx context.Context, prev pool.Position) {
	if prev.Shares == 0 {
		return
	}
	if _, err := s.store.UpsertPosition(ctx, prev); err != nil {
		s.log.WithError(err).
			WithField("pool_id", prev.PoolID).
			WithField("staker", prev.Staker).
			Error("position restore failed")
	}
}

// returnCustodyLocked hands a token back to its staker after a later stake
// step failed. Failures are logged; the original error is what the caller
// sees.
func (s *Service) returnCustodyLocked(ctx context.Context, p pool.Pool, assetID, staker string) {
	if err := s.assets.Transfer(ctx, p.LedgerAccount, p.CollectionID, assetID, p.LedgerAccount, staker); err != nil {
		s.log.WithError(err).
			WithField("pool_id", p.ID).
			WithField("asset_id", assetID).
			Error("custody return failed")
	}
}

// unwindStakeLocked reverts a partially applied stake: the stake record is
// dropped, the settled position restored, and custody returned.
func (s *Service) unwindStakeLocked(ctx context.Context, p pool.Pool, assetID, staker string, prev pool.Position) {
	if err := s.store.DeleteStake(ctx, p.ID, assetID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.log.WithError(err).
			WithField("pool_id", p.ID).
			WithField("asset_id", assetID).
			Error("stake unwind: delete stake record failed")
	}
	if prev.Shares == 0 {
		if err := s.store.DeletePosition(ctx, p.ID, staker); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.log.WithError(err).
				WithField("pool_id", p.ID).
				WithField("staker", staker).
				Error("stake unwind: delete position failed")
		}
	} else {
		s.restorePositionLocked(ctx, prev)
	}
	s.returnCustodyLocked(ctx, p, assetID, staker)
}

// unwindUnstakeLocked reverts a partially applied unstake: custody goes
// back to the pool, the stake record is recreated, and the settled
// position restored.
func (s *Service) unwindUnstakeLocked(ctx context.Context, p pool.Pool, assetID, staker string, prev pool.Position) {
	if err := s.assets.Transfer(ctx, staker, p.CollectionID, assetID, staker, p.LedgerAccount); err != nil {
		s.log.WithError(err).
			WithField("pool_id", p.ID).
			WithField("asset_id", assetID).
			Error("unstake unwind: custody return failed")
	}
	if _, err := s.store.CreateStake(ctx, pool.Stake{
		PoolID:       p.ID,
		CollectionID: p.CollectionID,
		AssetID:      assetID,
		Staker:       staker,
	}); err != nil && !errors.Is(err, storage.ErrConflict) {
		s.log.WithError(err).
			WithField("pool_id", p.ID).
			WithField("asset_id", assetID).
			Error("unstake unwind: recreate stake record failed")
	}
	s.restorePositionLocked(ctx, prev)
}

// settleLocked pays out the position's pending reward against the current
// share count. The caller resyncs reward debt afterwards.
func (s *Service) settleLocked(ctx context.Context, p *pool.Pool, pos *pool.Position) (map[string]*big.Int, error) {
	paid := make(map[string]*big.Int)
	if pos.Shares == 0 {
		return paid, nil
	}
	for _, cur := range s.policy.Fees().Currencies() {
		pending := pool.Pending(pos.Shares, p.Acc(cur), pos.Debt(cur))
		if pending.Sign() <= 0 {
			continue
		}
		if _, err := s.payments.Transfer(ctx, p.LedgerAccount, pos.Staker, cur, pending, "reward:"+p.ID); err != nil {
			return nil, fmt.Errorf("pay reward (%s): %w", cur, err)
		}
		paid[cur] = pending
	}
	return paid, nil
}

// resyncLocked sets the position's reward debt to shares*acc/scale in every
// currency that has ever accrued.
func (s *Service) resyncLocked(p *pool.Pool, pos *pool.Position) {
	if pos.RewardDebt == nil {
		pos.RewardDebt = map[string]*big.Int{}
	}
	for cur := range pos.RewardDebt {
		pos.RewardDebt[cur] = pool.DebtFor(pos.Shares, p.Acc(cur))
	}
	for cur := range p.AccPerShare {
		pos.RewardDebt[cur] = pool.DebtFor(pos.Shares, p.Acc(cur))
	}
}

// drainLocked empties the buffer into the accumulator. Returns true when
// anything moved. Requires TotalShares > 0.
func (s *Service) drainLocked(p *pool.Pool) bool {
	moved := false
	for cur, buffered := range p.Buffer {
		if buffered == nil || buffered.Sign() == 0 {
			continue
		}
		acc := new(big.Int).Set(p.Acc(cur))
		acc.Add(acc, pool.AccrueDelta(buffered, p.TotalShares))
		p.AccPerShare[cur] = acc
		p.Buffer[cur] = new(big.Int)
		moved = true
		s.log.WithField("pool_id", p.ID).
			WithField("currency", cur).
			WithField("amount", buffered.String()).
			Info("unallocated buffer drained")
	}
	return moved
}

// accrueAndPersistLocked routes fee income into the accumulator, or into
// the buffer when the pool has no shares, then persists and journals it.
func (s *Service) accrueAndPersistLocked(ctx context.Context, p pool.Pool, currency string, amount *big.Int, actor string) error {
	if p.AccPerShare == nil {
		p.AccPerShare = map[string]*big.Int{}
	}
	if p.Buffer == nil {
		p.Buffer = map[string]*big.Int{}
	}

	if p.TotalShares == 0 {
		buffered := new(big.Int).Set(p.Buffered(currency))
		buffered.Add(buffered, amount)
		p.Buffer[currency] = buffered
	} else {
		acc := new(big.Int).Set(p.Acc(currency))
		acc.Add(acc, pool.AccrueDelta(amount, p.TotalShares))
		p.AccPerShare[currency] = acc
	}

	if _, err := s.store.UpdatePool(ctx, p); err != nil {
		return err
	}

	s.appendEvent(ctx, event.Record{
		Type:         event.TypeFeeNotified,
		CollectionID: p.CollectionID,
		Actor:        actor,
		Attributes: map[string]string{
			"pool_id":       p.ID,
			"currency":      currency,
			"amount":        amount.String(),
			"acc_per_share": p.Acc(currency).String(),
			"buffered":      p.Buffered(currency).String(),
		},
	})
	return nil
}

func (s *Service) appendEvent(ctx context.Context, rec event.Record) {
	if s.events == nil {
		return
	}
	if _, err := s.events.AppendEvent(ctx, rec); err != nil {
		s.log.WithError(err).Warn("append event failed")
	}
}
