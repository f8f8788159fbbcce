package factory

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/MarketForge/settlement_layer/internal/app/domain/settlement"
	"github.com/MarketForge/settlement_layer/internal/app/services/assets"
	ledgersvc "github.com/MarketForge/settlement_layer/internal/app/services/ledger"
	"github.com/MarketForge/settlement_layer/internal/app/services/staking"
	"github.com/MarketForge/settlement_layer/internal/app/storage/memory"
)

type staticPolicy struct {
	cfg settlement.FeeConfig
}

func (p staticPolicy) Fees() settlement.FeeConfig { return p.cfg }

func newFactory(t *testing.T, creationFee int64) (*Service, *ledgersvc.Service) {
	t.Helper()
	pol := staticPolicy{cfg: settlement.FeeConfig{
		PlatformFeeBP:  20,
		StakingFeeBP:   30,
		RoyaltyCapBP:   200,
		Treasury:       "treasury",
		NativeCurrency: "GAS",
		CreationFee:    big.NewInt(creationFee),
	}}

	store := memory.New()
	assetSvc := assets.New(store, nil)
	ledgerSvc := ledgersvc.New(store, nil)
	stakingSvc := staking.New(store, store, assetSvc, ledgerSvc, pol, nil)
	return New(store, store, assetSvc, stakingSvc, ledgerSvc, pol, nil), ledgerSvc
}

func TestDeployCollectionChargesFeeAndBindsPool(t *testing.T) {
	ctx := context.Background()
	svc, ledger := newFactory(t, 1000)

	if _, err := ledger.Deposit(ctx, "alice", "GAS", big.NewInt(1500), "fund"); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	col, p, err := svc.DeployCollection(ctx, "alice", assets.CollectionParams{
		Name: "Art", Symbol: "art", MaxSupply: 10,
	})
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if col.Symbol != "ART" {
		t.Fatalf("symbol not normalised: %s", col.Symbol)
	}
	if p.CollectionID != col.ID {
		t.Fatalf("pool bound to %s, want %s", p.CollectionID, col.ID)
	}

	poolID, ok, err := svc.PoolFor(ctx, col.ID)
	if err != nil || !ok {
		t.Fatalf("pool lookup: %v ok=%v", err, ok)
	}
	if poolID != p.ID {
		t.Fatalf("binding = %s, want %s", poolID, p.ID)
	}

	bal, _ := ledger.Balance(ctx, "treasury", "GAS")
	if bal.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("treasury = %s, want 1000", bal)
	}
	remaining, _ := ledger.Balance(ctx, "alice", "GAS")
	if remaining.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("creator remainder = %s, want 500", remaining)
	}
}

func TestDeployCollectionUnpaidFee(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFactory(t, 1000)

	_, _, err := svc.DeployCollection(ctx, "pauper", assets.CollectionParams{
		Name: "Art", Symbol: "ART", MaxSupply: 10,
	})
	if !errors.Is(err, ErrCreationFeeUnpaid) {
		t.Fatalf("unpaid deploy: %v", err)
	}
}

func TestDeployCollectionRefundsOnFailure(t *testing.T) {
	ctx := context.Background()
	svc, ledger := newFactory(t, 1000)

	if _, err := ledger.Deposit(ctx, "alice", "GAS", big.NewInt(1000), "fund"); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// Zero supply cap fails collection validation after the fee is taken.
	_, _, err := svc.DeployCollection(ctx, "alice", assets.CollectionParams{
		Name: "Art", Symbol: "ART", MaxSupply: 0,
	})
	if err == nil {
		t.Fatalf("expected validation failure")
	}

	bal, _ := ledger.Balance(ctx, "alice", "GAS")
	if bal.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("fee not refunded: %s", bal)
	}
}

func TestPoolForUnboundCollection(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFactory(t, 0)

	poolID, ok, err := svc.PoolFor(ctx, "missing")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if ok || poolID != "" {
		t.Fatalf("unexpected binding: %q ok=%v", poolID, ok)
	}
}
