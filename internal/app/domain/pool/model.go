// Package pool defines the per-collection reward pool: the share ledger and
// the fixed-point fee accumulator that attributes marketplace fee income to
// stakers pro rata.
package pool

import (
	"math/big"
	"time"
)

// Pool is one reward pool, bound to exactly one collection for its whole
// lifetime. AccPerShare and Buffer are keyed by currency; both only ever
// grow or, for Buffer, drain into AccPerShare.
type Pool struct {
	ID            string
	CollectionID  string
	LedgerAccount string
	TotalShares   uint64
	AccPerShare   map[string]*big.Int
	Buffer        map[string]*big.Int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Position tracks one staker's share count and per-currency reward debt.
// RewardDebt must be resynced to shares*accPerShare/Scale immediately after
// any share change or payout, so Pending never goes negative.
type Position struct {
	PoolID     string
	Staker     string
	Shares     uint64
	RewardDebt map[string]*big.Int
}

// Stake records custody of one staked token. One share equals one token.
type Stake struct {
	PoolID       string
	CollectionID string
	AssetID      string
	Staker       string
	StakedAt     time.Time
}

// Acc returns the accumulator for a currency, zero if never accrued.
func (p *Pool) Acc(currency string) *big.Int {
	if v, ok := p.AccPerShare[currency]; ok && v != nil {
		return v
	}
	return new(big.Int)
}

// Buffered returns the unallocated buffer for a currency.
func (p *Pool) Buffered(currency string) *big.Int {
	if v, ok := p.Buffer[currency]; ok && v != nil {
		return v
	}
	return new(big.Int)
}

// Debt returns the position's reward debt for a currency.
func (p *Position) Debt(currency string) *big.Int {
	if v, ok := p.RewardDebt[currency]; ok && v != nil {
		return v
	}
	return new(big.Int)
}
