package assets

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/MarketForge/settlement_layer/internal/app/storage/memory"
)

func TestCreateCollectionValidation(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.New(), nil)

	if _, err := svc.CreateCollection(ctx, "", CollectionParams{Name: "a", Symbol: "A", MaxSupply: 1}); err == nil {
		t.Fatalf("empty creator accepted")
	}
	if _, err := svc.CreateCollection(ctx, "alice", CollectionParams{Symbol: "A", MaxSupply: 1}); err == nil {
		t.Fatalf("empty name accepted")
	}
	if _, err := svc.CreateCollection(ctx, "alice", CollectionParams{Name: "a", Symbol: "A", MaxSupply: 1, RoyaltyBP: 10_001}); !errors.Is(err, ErrInvalidRoyalty) {
		t.Fatalf("royalty above denominator: %v", err)
	}
	if _, err := svc.CreateCollection(ctx, "alice", CollectionParams{Name: "a", Symbol: "A"}); !errors.Is(err, ErrZeroSupplyCap) {
		t.Fatalf("zero supply cap: %v", err)
	}

	// A royalty without a receiver defaults to the creator.
	col, err := svc.CreateCollection(ctx, "alice", CollectionParams{Name: "a", Symbol: "a", MaxSupply: 5, RoyaltyBP: 100})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if col.RoyaltyReceiver != "alice" {
		t.Fatalf("receiver = %s", col.RoyaltyReceiver)
	}
	if col.Symbol != "A" {
		t.Fatalf("symbol not upper-cased: %s", col.Symbol)
	}
}

func TestMintSupplyCapAndSerial(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.New(), nil)

	col, err := svc.CreateCollection(ctx, "alice", CollectionParams{Name: "a", Symbol: "A", MaxSupply: 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Mint(ctx, "mallory", col.ID, "", ""); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("mint by stranger: %v", err)
	}

	first, err := svc.Mint(ctx, "alice", col.ID, "bob", "")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if first.Serial != 1 || first.Owner != "bob" {
		t.Fatalf("first token: %+v", first)
	}
	second, err := svc.Mint(ctx, "alice", col.ID, "", "")
	if err != nil {
		t.Fatalf("mint second: %v", err)
	}
	if second.Serial != 2 || second.Owner != "alice" {
		t.Fatalf("second token: %+v", second)
	}

	if _, err := svc.Mint(ctx, "alice", col.ID, "", ""); !errors.Is(err, ErrSupplyExhausted) {
		t.Fatalf("mint over cap: %v", err)
	}
}

func TestTransferAuthorityAndApprovalClearing(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.New(), nil)

	col, _ := svc.CreateCollection(ctx, "alice", CollectionParams{Name: "a", Symbol: "A", MaxSupply: 5})
	tok, _ := svc.Mint(ctx, "alice", col.ID, "alice", "")

	if err := svc.Transfer(ctx, "mallory", col.ID, tok.ID, "alice", "mallory"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("unauthorized transfer: %v", err)
	}
	if err := svc.Approve(ctx, "mallory", col.ID, tok.ID, "mallory"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("approve by stranger: %v", err)
	}

	if err := svc.Approve(ctx, "alice", col.ID, tok.ID, "operator"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := svc.Transfer(ctx, "operator", col.ID, tok.ID, "alice", "bob"); err != nil {
		t.Fatalf("operator transfer: %v", err)
	}

	owner, _ := svc.OwnerOf(ctx, col.ID, tok.ID)
	if owner != "bob" {
		t.Fatalf("owner = %s", owner)
	}
	approved, _ := svc.Approved(ctx, col.ID, tok.ID)
	if approved != "" {
		t.Fatalf("approval survived transfer: %s", approved)
	}

	// The old approval is dead: a second operator transfer must fail.
	if err := svc.Transfer(ctx, "operator", col.ID, tok.ID, "bob", "carol"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("stale operator transfer: %v", err)
	}
}

func TestRoyaltyForCollectionAndOverride(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.New(), nil)
	price := big.NewInt(1_000_000)

	col, _ := svc.CreateCollection(ctx, "alice", CollectionParams{
		Name: "a", Symbol: "A", MaxSupply: 5, RoyaltyBP: 300, RoyaltyReceiver: "rina",
	})

	plain, _ := svc.Mint(ctx, "alice", col.ID, "alice", "")
	roy, ok, err := svc.RoyaltyFor(ctx, col.ID, plain.ID, price)
	if err != nil || !ok {
		t.Fatalf("royalty: %v ok=%v", err, ok)
	}
	if roy.Receiver != "rina" || roy.Amount.Cmp(big.NewInt(30_000)) != 0 {
		t.Fatalf("royalty = %+v", roy)
	}

	// A token manifest overrides both rate and receiver.
	custom, _ := svc.Mint(ctx, "alice", col.ID, "alice", `{"royalty":{"bps":500,"receiver":"zed"}}`)
	roy, ok, err = svc.RoyaltyFor(ctx, col.ID, custom.ID, price)
	if err != nil || !ok {
		t.Fatalf("override royalty: %v ok=%v", err, ok)
	}
	if roy.Receiver != "zed" || roy.Amount.Cmp(big.NewInt(50_000)) != 0 {
		t.Fatalf("override royalty = %+v", roy)
	}
}

func TestRoyaltyForAbsent(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.New(), nil)

	col, _ := svc.CreateCollection(ctx, "alice", CollectionParams{Name: "a", Symbol: "A", MaxSupply: 5})
	tok, _ := svc.Mint(ctx, "alice", col.ID, "alice", "")

	_, ok, err := svc.RoyaltyFor(ctx, col.ID, tok.ID, big.NewInt(100))
	if err != nil {
		t.Fatalf("royalty: %v", err)
	}
	if ok {
		t.Fatalf("royalty reported for royalty-free collection")
	}
}
