// Package ledger provides the account-based payment ledger the
// settlement engine moves money through. Balances are per (account,
// currency); multi-leg settlement batches apply atomically.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/MarketForge/settlement_layer/internal/app/domain/ledger"
	"github.com/MarketForge/settlement_layer/internal/app/storage"
	"github.com/MarketForge/settlement_layer/pkg/logger"
)

// Service manages balances and transfers.
type Service struct {
	mu    sync.Mutex
	store storage.LedgerStore
	log   *logger.Logger
}

// New constructs a ledger service.
func New(store storage.LedgerStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("ledger")
	}
	return &Service{store: store, log: log}
}

// Deposit credits external funds to an account.
func (s *Service) Deposit(ctx context.Context, account, currency string, amount *big.Int, reference string) (ledger.Transaction, error) {
	if account == "" || currency == "" {
		return ledger.Transaction{}, fmt.Errorf("account and currency are required")
	}
	if amount == nil || amount.Sign() <= 0 {
		return ledger.Transaction{}, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	txs, err := s.store.ApplyTransfers(ctx, []ledger.Leg{{
		To:        account,
		Currency:  currency,
		Amount:    amount,
		Reference: reference,
	}})
	if err != nil {
		return ledger.Transaction{}, err
	}

	s.log.WithField("account", account).
		WithField("currency", currency).
		WithField("amount", amount.String()).
		Info("deposit credited")
	return txs[0], nil
}

// Balance returns an account's balance in one currency (zero if the
// account has never been credited).
func (s *Service) Balance(ctx context.Context, account, currency string) (*big.Int, error) {
	bal, err := s.store.GetBalance(ctx, account, currency)
	if err != nil {
		return nil, err
	}
	return bal.Amount, nil
}

// Balances returns all non-zero balances of an account.
func (s *Service) Balances(ctx context.Context, account string) ([]ledger.Balance, error) {
	return s.store.ListBalances(ctx, account)
}

// Transfer moves funds between two accounts.
func (s *Service) Transfer(ctx context.Context, from, to, currency string, amount *big.Int, reference string) (ledger.Transaction, error) {
	if amount == nil || amount.Sign() <= 0 {
		return ledger.Transaction{}, ErrInvalidAmount
	}
	txs, err := s.TransferBatch(ctx, []ledger.Leg{{
		From:      from,
		To:        to,
		Currency:  currency,
		Amount:    amount,
		Reference: reference,
	}})
	if err != nil {
		return ledger.Transaction{}, err
	}
	return txs[0], nil
}

// TransferBatch applies a settlement batch atomically: every leg or none.
// Legs are applied in order, so earlier credits fund later debits within
// the same batch.
func (s *Service) TransferBatch(ctx context.Context, legs []ledger.Leg) ([]ledger.Transaction, error) {
	for i, leg := range legs {
		if leg.Amount == nil || leg.Amount.Sign() < 0 {
			return nil, fmt.Errorf("leg %d: %w", i, ErrInvalidAmount)
		}
		if leg.To == "" || leg.Currency == "" {
			return nil, fmt.Errorf("leg %d: destination and currency are required", i)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	txs, err := s.store.ApplyTransfers(ctx, legs)
	if err != nil {
		if errors.Is(err, storage.ErrInsufficientFunds) {
			return nil, fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
		}
		return nil, err
	}
	return txs, nil
}

// Transactions returns the most recent journal entries touching an account.
func (s *Service) Transactions(ctx context.Context, account string, limit int) ([]ledger.Transaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListTransactions(ctx, account, limit)
}
