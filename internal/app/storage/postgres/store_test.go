package postgres

import (
	"context"
	"errors"
	"math/big"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/MarketForge/settlement_layer/internal/app/domain/asset"
	"github.com/MarketForge/settlement_layer/internal/app/domain/ledger"
	"github.com/MarketForge/settlement_layer/internal/app/domain/pool"
	"github.com/MarketForge/settlement_layer/internal/app/storage"
)

func TestMigrateExecutesAllStatements(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	for range migrations {
		mock.ExpectExec(".*").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	if err := Migrate(context.Background(), sqlx.NewDb(db, "sqlmock")); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestApplyTransfersRollsBackOnOverdraft(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	// The guarded debit matches no row, which signals insufficient funds.
	mock.ExpectExec("UPDATE mf_balances").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	store := New(sqlx.NewDb(db, "sqlmock"), nil)
	_, err = store.ApplyTransfers(context.Background(), []ledger.Leg{
		{From: "a", To: "b", Currency: "GAS", Amount: big.NewInt(10)},
	})
	if !errors.Is(err, storage.ErrInsufficientFunds) {
		t.Fatalf("overdraft: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

// Integration round-trip against a live database, gated on TEST_POSTGRES_DSN.
func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration")
	}

	ctx := context.Background()
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer db.Close()

	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := New(db, nil)

	col, err := store.CreateCollection(ctx, asset.Collection{Name: "Art", Symbol: "ART", Creator: "alice", MaxSupply: 10})
	if err != nil {
		t.Fatalf("create collection: %v", err)
	}
	tok, err := store.CreateToken(ctx, asset.Token{CollectionID: col.ID, Serial: 1, Owner: "alice"})
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	got, err := store.GetToken(ctx, col.ID, tok.ID)
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	if got.Owner != "alice" {
		t.Fatalf("owner = %s", got.Owner)
	}

	p, err := store.CreatePool(ctx, pool.Pool{
		CollectionID:  col.ID,
		LedgerAccount: "pool:test",
		AccPerShare:   map[string]*big.Int{"GAS": big.NewInt(42)},
		Buffer:        map[string]*big.Int{},
	})
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	loaded, err := store.GetPool(ctx, p.ID)
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	if loaded.Acc("GAS").Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("accumulator round trip: %s", loaded.Acc("GAS"))
	}

	huge, _ := new(big.Int).SetString("1000000000000000000000000000000", 10)
	if _, err := store.ApplyTransfers(ctx, []ledger.Leg{{To: "whale", Currency: "GAS", Amount: huge}}); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	bal, err := store.GetBalance(ctx, "whale", "GAS")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Amount.Cmp(huge) != 0 {
		t.Fatalf("numeric round trip: %s", bal.Amount)
	}
}
