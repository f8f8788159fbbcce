package ledger

import (
	"context"
	"errors"
	"math/big"
	"testing"

	domain "github.com/MarketForge/settlement_layer/internal/app/domain/ledger"
	"github.com/MarketForge/settlement_layer/internal/app/storage/memory"
)

func TestDepositAndBalance(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.New(), nil)

	if _, err := svc.Deposit(ctx, "alice", "GAS", big.NewInt(0), "x"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero deposit: %v", err)
	}

	tx, err := svc.Deposit(ctx, "alice", "GAS", big.NewInt(500), "seed")
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if tx.From != "" || tx.To != "alice" {
		t.Fatalf("journal: %+v", tx)
	}

	bal, err := svc.Balance(ctx, "alice", "GAS")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("balance = %s", bal)
	}

	// Unknown accounts read as zero, not as an error.
	zero, err := svc.Balance(ctx, "nobody", "GAS")
	if err != nil {
		t.Fatalf("zero balance: %v", err)
	}
	if zero.Sign() != 0 {
		t.Fatalf("phantom funds: %s", zero)
	}
}

func TestTransferInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.New(), nil)

	if _, err := svc.Transfer(ctx, "alice", "bob", "GAS", big.NewInt(10), "x"); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("overdraft: %v", err)
	}
}

func TestTransferBatchAtomicity(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.New(), nil)

	if _, err := svc.Deposit(ctx, "buyer", "GAS", big.NewInt(100), "seed"); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// Second leg overdraws; the first must not stick.
	_, err := svc.TransferBatch(ctx, []domain.Leg{
		{From: "buyer", To: "seller", Currency: "GAS", Amount: big.NewInt(60), Reference: "sale"},
		{From: "buyer", To: "treasury", Currency: "GAS", Amount: big.NewInt(60), Reference: "sale"},
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("batch overdraft: %v", err)
	}

	buyer, _ := svc.Balance(ctx, "buyer", "GAS")
	seller, _ := svc.Balance(ctx, "seller", "GAS")
	if buyer.Cmp(big.NewInt(100)) != 0 || seller.Sign() != 0 {
		t.Fatalf("partial batch applied: buyer=%s seller=%s", buyer, seller)
	}

	// Earlier credits fund later debits within one batch.
	txs, err := svc.TransferBatch(ctx, []domain.Leg{
		{From: "buyer", To: "seller", Currency: "GAS", Amount: big.NewInt(100), Reference: "sale"},
		{From: "seller", To: "treasury", Currency: "GAS", Amount: big.NewInt(100), Reference: "fee"},
	})
	if err != nil {
		t.Fatalf("chained batch: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("journal entries = %d", len(txs))
	}
	treasury, _ := svc.Balance(ctx, "treasury", "GAS")
	if treasury.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("treasury = %s", treasury)
	}
}

func TestTransactionsLimit(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.New(), nil)

	for i := 0; i < 5; i++ {
		if _, err := svc.Deposit(ctx, "alice", "GAS", big.NewInt(1), "seed"); err != nil {
			t.Fatalf("deposit %d: %v", i, err)
		}
	}

	txs, err := svc.Transactions(ctx, "alice", 3)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("limit ignored: %d", len(txs))
	}
}
