// Package postgres implements the storage interfaces on PostgreSQL. Token
// amounts are NUMERIC(78,0) columns carried as decimal strings; accumulator
// maps travel as JSONB objects of decimal strings.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/MarketForge/settlement_layer/internal/app/domain/asset"
	"github.com/MarketForge/settlement_layer/internal/app/domain/event"
	"github.com/MarketForge/settlement_layer/internal/app/domain/ledger"
	"github.com/MarketForge/settlement_layer/internal/app/domain/listing"
	"github.com/MarketForge/settlement_layer/internal/app/domain/pool"
	"github.com/MarketForge/settlement_layer/internal/app/storage"
	"github.com/MarketForge/settlement_layer/pkg/logger"
)

// Store implements every storage interface backed by PostgreSQL.
type Store struct {
	db  *sqlx.DB
	log *logger.Logger
}

var _ storage.AssetStore = (*Store)(nil)
var _ storage.ListingStore = (*Store)(nil)
var _ storage.PoolStore = (*Store)(nil)
var _ storage.RegistryStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)
var _ storage.EventStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB, log *logger.Logger) *Store {
	if log == nil {
		log = logger.NewDefault("postgres")
	}
	return &Store{db: db, log: log}
}

// --- AssetStore -------------------------------------------------------------

func (s *Store) CreateCollection(ctx context.Context, col asset.Collection) (asset.Collection, error) {
	if col.ID == "" {
		col.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	col.CreatedAt = now
	col.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mf_collections (id, name, symbol, creator, royalty_bp, royalty_receiver, max_supply, minted, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, col.ID, col.Name, col.Symbol, col.Creator, col.RoyaltyBP, col.RoyaltyReceiver, col.MaxSupply, col.Minted, col.Metadata, col.CreatedAt, col.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return asset.Collection{}, fmt.Errorf("collection %s: %w", col.ID, storage.ErrConflict)
		}
		return asset.Collection{}, err
	}
	return col, nil
}

func (s *Store) UpdateCollection(ctx context.Context, col asset.Collection) (asset.Collection, error) {
	col.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE mf_collections
		SET name = $2, symbol = $3, royalty_bp = $4, royalty_receiver = $5, max_supply = $6, minted = $7, metadata = $8, updated_at = $9
		WHERE id = $1
	`, col.ID, col.Name, col.Symbol, col.RoyaltyBP, col.RoyaltyReceiver, col.MaxSupply, col.Minted, col.Metadata, col.UpdatedAt)
	if err != nil {
		return asset.Collection{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return asset.Collection{}, fmt.Errorf("collection %s: %w", col.ID, storage.ErrNotFound)
	}
	return col, nil
}

func (s *Store) GetCollection(ctx context.Context, id string) (asset.Collection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, symbol, creator, royalty_bp, royalty_receiver, max_supply, minted, metadata, created_at, updated_at
		FROM mf_collections
		WHERE id = $1
	`, id)

	var col asset.Collection
	err := row.Scan(&col.ID, &col.Name, &col.Symbol, &col.Creator, &col.RoyaltyBP, &col.RoyaltyReceiver, &col.MaxSupply, &col.Minted, &col.Metadata, &col.CreatedAt, &col.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return asset.Collection{}, fmt.Errorf("collection %s: %w", id, storage.ErrNotFound)
		}
		return asset.Collection{}, err
	}
	return col, nil
}

func (s *Store) ListCollections(ctx context.Context) ([]asset.Collection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, symbol, creator, royalty_bp, royalty_receiver, max_supply, minted, metadata, created_at, updated_at
		FROM mf_collections
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []asset.Collection
	for rows.Next() {
		var col asset.Collection
		if err := rows.Scan(&col.ID, &col.Name, &col.Symbol, &col.Creator, &col.RoyaltyBP, &col.RoyaltyReceiver, &col.MaxSupply, &col.Minted, &col.Metadata, &col.CreatedAt, &col.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, col)
	}
	return result, rows.Err()
}

func (s *Store) CreateToken(ctx context.Context, tok asset.Token) (asset.Token, error) {
	if tok.ID == "" {
		tok.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	tok.CreatedAt = now
	tok.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mf_tokens (id, collection_id, serial, owner, approved, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, tok.ID, tok.CollectionID, tok.Serial, tok.Owner, tok.Approved, tok.Metadata, tok.CreatedAt, tok.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return asset.Token{}, fmt.Errorf("token %s: %w", tok.ID, storage.ErrConflict)
		}
		return asset.Token{}, err
	}
	return tok, nil
}

func (s *Store) UpdateToken(ctx context.Context, tok asset.Token) (asset.Token, error) {
	tok.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE mf_tokens
		SET owner = $3, approved = $4, metadata = $5, updated_at = $6
		WHERE collection_id = $1 AND id = $2
	`, tok.CollectionID, tok.ID, tok.Owner, tok.Approved, tok.Metadata, tok.UpdatedAt)
	if err != nil {
		return asset.Token{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return asset.Token{}, fmt.Errorf("token %s: %w", tok.ID, storage.ErrNotFound)
	}
	return tok, nil
}

func (s *Store) GetToken(ctx context.Context, collectionID, tokenID string) (asset.Token, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, collection_id, serial, owner, approved, metadata, created_at, updated_at
		FROM mf_tokens
		WHERE collection_id = $1 AND id = $2
	`, collectionID, tokenID)

	var tok asset.Token
	err := row.Scan(&tok.ID, &tok.CollectionID, &tok.Serial, &tok.Owner, &tok.Approved, &tok.Metadata, &tok.CreatedAt, &tok.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return asset.Token{}, fmt.Errorf("token %s/%s: %w", collectionID, tokenID, storage.ErrNotFound)
		}
		return asset.Token{}, err
	}
	return tok, nil
}

func (s *Store) ListTokens(ctx context.Context, collectionID string) ([]asset.Token, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, collection_id, serial, owner, approved, metadata, created_at, updated_at
		FROM mf_tokens
		WHERE collection_id = $1
		ORDER BY serial
	`, collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []asset.Token
	for rows.Next() {
		var tok asset.Token
		if err := rows.Scan(&tok.ID, &tok.CollectionID, &tok.Serial, &tok.Owner, &tok.Approved, &tok.Metadata, &tok.CreatedAt, &tok.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, tok)
	}
	return result, rows.Err()
}

// --- ListingStore -----------------------------------------------------------

func (s *Store) CreateListing(ctx context.Context, lst listing.Listing) (listing.Listing, error) {
	if lst.ID == "" {
		lst.ID = uuid.NewString()
	}
	lst.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mf_listings (id, collection_id, asset_id, seller, price, currency, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)
	`, lst.ID, lst.CollectionID, lst.AssetID, lst.Seller, lst.Price.String(), lst.Currency, lst.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return listing.Listing{}, fmt.Errorf("listing %s/%s: %w", lst.CollectionID, lst.AssetID, storage.ErrConflict)
		}
		return listing.Listing{}, err
	}
	return lst, nil
}

func (s *Store) GetListing(ctx context.Context, collectionID, assetID string) (listing.Listing, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, collection_id, asset_id, seller, price::text, currency, created_at
		FROM mf_listings
		WHERE collection_id = $1 AND asset_id = $2
	`, collectionID, assetID)

	var (
		lst      listing.Listing
		priceRaw string
	)
	err := row.Scan(&lst.ID, &lst.CollectionID, &lst.AssetID, &lst.Seller, &priceRaw, &lst.Currency, &lst.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return listing.Listing{}, fmt.Errorf("listing %s/%s: %w", collectionID, assetID, storage.ErrNotFound)
		}
		return listing.Listing{}, err
	}
	if lst.Price, err = parseNumeric(priceRaw); err != nil {
		return listing.Listing{}, err
	}
	return lst, nil
}

func (s *Store) DeleteListing(ctx context.Context, collectionID, assetID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM mf_listings WHERE collection_id = $1 AND asset_id = $2
	`, collectionID, assetID)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("listing %s/%s: %w", collectionID, assetID, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) ListListings(ctx context.Context, collectionID string) ([]listing.Listing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, collection_id, asset_id, seller, price::text, currency, created_at
		FROM mf_listings
		WHERE $1 = '' OR collection_id = $1
		ORDER BY created_at
	`, collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []listing.Listing
	for rows.Next() {
		var (
			lst      listing.Listing
			priceRaw string
		)
		if err := rows.Scan(&lst.ID, &lst.CollectionID, &lst.AssetID, &lst.Seller, &priceRaw, &lst.Currency, &lst.CreatedAt); err != nil {
			return nil, err
		}
		if lst.Price, err = parseNumeric(priceRaw); err != nil {
			return nil, err
		}
		result = append(result, lst)
	}
	return result, rows.Err()
}

// --- PoolStore --------------------------------------------------------------

func (s *Store) CreatePool(ctx context.Context, p pool.Pool) (pool.Pool, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	accJSON, err := marshalAmounts(p.AccPerShare)
	if err != nil {
		return pool.Pool{}, err
	}
	bufJSON, err := marshalAmounts(p.Buffer)
	if err != nil {
		return pool.Pool{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mf_pools (id, collection_id, ledger_account, total_shares, acc_per_share, buffer, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.CollectionID, p.LedgerAccount, p.TotalShares, accJSON, bufJSON, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return pool.Pool{}, fmt.Errorf("pool %s: %w", p.ID, storage.ErrConflict)
		}
		return pool.Pool{}, err
	}
	return p, nil
}

func (s *Store) UpdatePool(ctx context.Context, p pool.Pool) (pool.Pool, error) {
	p.UpdatedAt = time.Now().UTC()

	accJSON, err := marshalAmounts(p.AccPerShare)
	if err != nil {
		return pool.Pool{}, err
	}
	bufJSON, err := marshalAmounts(p.Buffer)
	if err != nil {
		return pool.Pool{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE mf_pools
		SET total_shares = $2, acc_per_share = $3, buffer = $4, updated_at = $5
		WHERE id = $1
	`, p.ID, p.TotalShares, accJSON, bufJSON, p.UpdatedAt)
	if err != nil {
		return pool.Pool{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return pool.Pool{}, fmt.Errorf("pool %s: %w", p.ID, storage.ErrNotFound)
	}
	return p, nil
}

func (s *Store) GetPool(ctx context.Context, id string) (pool.Pool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, collection_id, ledger_account, total_shares, acc_per_share, buffer, created_at, updated_at
		FROM mf_pools
		WHERE id = $1
	`, id)
	p, err := scanPool(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return pool.Pool{}, fmt.Errorf("pool %s: %w", id, storage.ErrNotFound)
		}
		return pool.Pool{}, err
	}
	return p, nil
}

func (s *Store) ListPools(ctx context.Context) ([]pool.Pool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, collection_id, ledger_account, total_shares, acc_per_share, buffer, created_at, updated_at
		FROM mf_pools
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []pool.Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) UpsertPosition(ctx context.Context, pos pool.Position) (pool.Position, error) {
	debtJSON, err := marshalAmounts(pos.RewardDebt)
	if err != nil {
		return pool.Position{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mf_positions (pool_id, staker, shares, reward_debt)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (pool_id, staker)
		DO UPDATE SET shares = EXCLUDED.shares, reward_debt = EXCLUDED.reward_debt
	`, pos.PoolID, pos.Staker, pos.Shares, debtJSON)
	if err != nil {
		return pool.Position{}, err
	}
	return pos, nil
}

func (s *Store) GetPosition(ctx context.Context, poolID, staker string) (pool.Position, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT pool_id, staker, shares, reward_debt
		FROM mf_positions
		WHERE pool_id = $1 AND staker = $2
	`, poolID, staker)

	var (
		pos     pool.Position
		debtRaw []byte
	)
	err := row.Scan(&pos.PoolID, &pos.Staker, &pos.Shares, &debtRaw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return pool.Position{}, fmt.Errorf("position %s/%s: %w", poolID, staker, storage.ErrNotFound)
		}
		return pool.Position{}, err
	}
	if pos.RewardDebt, err = unmarshalAmounts(debtRaw); err != nil {
		return pool.Position{}, err
	}
	return pos, nil
}

func (s *Store) DeletePosition(ctx context.Context, poolID, staker string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM mf_positions WHERE pool_id = $1 AND staker = $2
	`, poolID, staker)
	return err
}

func (s *Store) ListPositions(ctx context.Context, poolID string) ([]pool.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pool_id, staker, shares, reward_debt
		FROM mf_positions
		WHERE pool_id = $1
		ORDER BY staker
	`, poolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []pool.Position
	for rows.Next() {
		var (
			pos     pool.Position
			debtRaw []byte
		)
		if err := rows.Scan(&pos.PoolID, &pos.Staker, &pos.Shares, &debtRaw); err != nil {
			return nil, err
		}
		if pos.RewardDebt, err = unmarshalAmounts(debtRaw); err != nil {
			return nil, err
		}
		result = append(result, pos)
	}
	return result, rows.Err()
}

func (s *Store) CreateStake(ctx context.Context, st pool.Stake) (pool.Stake, error) {
	st.StakedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mf_stakes (pool_id, collection_id, asset_id, staker, staked_at)
		VALUES ($1, $2, $3, $4, $5)
	`, st.PoolID, st.CollectionID, st.AssetID, st.Staker, st.StakedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return pool.Stake{}, fmt.Errorf("stake %s/%s: %w", st.PoolID, st.AssetID, storage.ErrConflict)
		}
		return pool.Stake{}, err
	}
	return st, nil
}

func (s *Store) GetStake(ctx context.Context, poolID, assetID string) (pool.Stake, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT pool_id, collection_id, asset_id, staker, staked_at
		FROM mf_stakes
		WHERE pool_id = $1 AND asset_id = $2
	`, poolID, assetID)

	var st pool.Stake
	err := row.Scan(&st.PoolID, &st.CollectionID, &st.AssetID, &st.Staker, &st.StakedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return pool.Stake{}, fmt.Errorf("stake %s/%s: %w", poolID, assetID, storage.ErrNotFound)
		}
		return pool.Stake{}, err
	}
	return st, nil
}

func (s *Store) DeleteStake(ctx context.Context, poolID, assetID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM mf_stakes WHERE pool_id = $1 AND asset_id = $2
	`, poolID, assetID)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("stake %s/%s: %w", poolID, assetID, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) ListStakes(ctx context.Context, poolID, staker string) ([]pool.Stake, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pool_id, collection_id, asset_id, staker, staked_at
		FROM mf_stakes
		WHERE pool_id = $1 AND ($2 = '' OR staker = $2)
		ORDER BY staked_at
	`, poolID, staker)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []pool.Stake
	for rows.Next() {
		var st pool.Stake
		if err := rows.Scan(&st.PoolID, &st.CollectionID, &st.AssetID, &st.Staker, &st.StakedAt); err != nil {
			return nil, err
		}
		result = append(result, st)
	}
	return result, rows.Err()
}

// --- RegistryStore ----------------------------------------------------------

func (s *Store) CreateBinding(ctx context.Context, collectionID, poolID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mf_bindings (collection_id, pool_id) VALUES ($1, $2)
	`, collectionID, poolID)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("binding %s: %w", collectionID, storage.ErrConflict)
	}
	return err
}

func (s *Store) GetBinding(ctx context.Context, collectionID string) (string, error) {
	var poolID string
	err := s.db.QueryRowContext(ctx, `
		SELECT pool_id FROM mf_bindings WHERE collection_id = $1
	`, collectionID).Scan(&poolID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("binding %s: %w", collectionID, storage.ErrNotFound)
		}
		return "", err
	}
	return poolID, nil
}

func (s *Store) ListBindings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT collection_id, pool_id FROM mf_bindings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var collectionID, poolID string
		if err := rows.Scan(&collectionID, &poolID); err != nil {
			return nil, err
		}
		result[collectionID] = poolID
	}
	return result, rows.Err()
}

// --- LedgerStore ------------------------------------------------------------

func (s *Store) GetBalance(ctx context.Context, account, currency string) (ledger.Balance, error) {
	var amountRaw string
	err := s.db.QueryRowContext(ctx, `
		SELECT amount::text FROM mf_balances WHERE account = $1 AND currency = $2
	`, account, currency).Scan(&amountRaw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Balance{Account: account, Currency: currency, Amount: new(big.Int)}, nil
		}
		return ledger.Balance{}, err
	}
	amount, err := parseNumeric(amountRaw)
	if err != nil {
		return ledger.Balance{}, err
	}
	return ledger.Balance{Account: account, Currency: currency, Amount: amount}, nil
}

func (s *Store) ListBalances(ctx context.Context, account string) ([]ledger.Balance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account, currency, amount::text
		FROM mf_balances
		WHERE account = $1 AND amount <> 0
		ORDER BY currency
	`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ledger.Balance
	for rows.Next() {
		var (
			bal       ledger.Balance
			amountRaw string
		)
		if err := rows.Scan(&bal.Account, &bal.Currency, &amountRaw); err != nil {
			return nil, err
		}
		if bal.Amount, err = parseNumeric(amountRaw); err != nil {
			return nil, err
		}
		result = append(result, bal)
	}
	return result, rows.Err()
}

// ApplyTransfers runs the whole batch inside one database transaction.
// Debits carry a balance guard in the UPDATE itself, so an overdraft aborts
// the transaction before any journal row is written.
func (s *Store) ApplyTransfers(ctx context.Context, legs []ledger.Leg) ([]ledger.Transaction, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	txs := make([]ledger.Transaction, 0, len(legs))
	for i, leg := range legs {
		amount := leg.Amount.String()
		if leg.From != "" {
			result, err := tx.ExecContext(ctx, `
				UPDATE mf_balances
				SET amount = amount - $3::numeric
				WHERE account = $1 AND currency = $2 AND amount >= $3::numeric
			`, leg.From, leg.Currency, amount)
			if err != nil {
				return nil, err
			}
			if rows, _ := result.RowsAffected(); rows == 0 {
				return nil, fmt.Errorf("leg %d (%s -> %s, %s): %w", i, leg.From, leg.To, leg.Currency, storage.ErrInsufficientFunds)
			}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO mf_balances (account, currency, amount)
			VALUES ($1, $2, $3::numeric)
			ON CONFLICT (account, currency)
			DO UPDATE SET amount = mf_balances.amount + EXCLUDED.amount
		`, leg.To, leg.Currency, amount); err != nil {
			return nil, err
		}

		rec := ledger.Transaction{
			ID:        uuid.NewString(),
			From:      leg.From,
			To:        leg.To,
			Currency:  leg.Currency,
			Amount:    new(big.Int).Set(leg.Amount),
			Reference: leg.Reference,
			CreatedAt: now,
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO mf_transactions (id, from_account, to_account, currency, amount, reference, created_at)
			VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)
		`, rec.ID, rec.From, rec.To, rec.Currency, amount, rec.Reference, rec.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, rec)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return txs, nil
}

func (s *Store) ListTransactions(ctx context.Context, account string, limit int) ([]ledger.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_account, to_account, currency, amount::text, reference, created_at
		FROM mf_transactions
		WHERE from_account = $1 OR to_account = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, account, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ledger.Transaction
	for rows.Next() {
		var (
			rec       ledger.Transaction
			amountRaw string
		)
		if err := rows.Scan(&rec.ID, &rec.From, &rec.To, &rec.Currency, &amountRaw, &rec.Reference, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if rec.Amount, err = parseNumeric(amountRaw); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// --- EventStore -------------------------------------------------------------

func (s *Store) AppendEvent(ctx context.Context, rec event.Record) (event.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = time.Now().UTC()

	attrsJSON, err := json.Marshal(rec.Attributes)
	if err != nil {
		return event.Record{}, err
	}
	if rec.Attributes == nil {
		attrsJSON = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mf_events (id, type, collection_id, asset_id, actor, attributes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, string(rec.Type), rec.CollectionID, rec.AssetID, rec.Actor, attrsJSON, rec.CreatedAt)
	if err != nil {
		return event.Record{}, err
	}
	return rec, nil
}

func (s *Store) ListEvents(ctx context.Context, collectionID string, limit int) ([]event.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, collection_id, asset_id, actor, attributes, created_at
		FROM mf_events
		WHERE $1 = '' OR collection_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, collectionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []event.Record
	for rows.Next() {
		var (
			rec      event.Record
			kind     string
			attrsRaw []byte
		)
		if err := rows.Scan(&rec.ID, &kind, &rec.CollectionID, &rec.AssetID, &rec.Actor, &attrsRaw, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Type = event.Type(kind)
		if len(attrsRaw) > 0 {
			_ = json.Unmarshal(attrsRaw, &rec.Attributes)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// --- helpers ----------------------------------------------------------------

type scannable interface {
	Scan(dest ...any) error
}

func scanPool(row scannable) (pool.Pool, error) {
	var (
		p      pool.Pool
		accRaw []byte
		bufRaw []byte
	)
	if err := row.Scan(&p.ID, &p.CollectionID, &p.LedgerAccount, &p.TotalShares, &accRaw, &bufRaw, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return pool.Pool{}, err
	}
	var err error
	if p.AccPerShare, err = unmarshalAmounts(accRaw); err != nil {
		return pool.Pool{}, err
	}
	if p.Buffer, err = unmarshalAmounts(bufRaw); err != nil {
		return pool.Pool{}, err
	}
	return p, nil
}

func marshalAmounts(amounts map[string]*big.Int) ([]byte, error) {
	view := make(map[string]string, len(amounts))
	for currency, amount := range amounts {
		if amount == nil {
			continue
		}
		view[currency] = amount.String()
	}
	return json.Marshal(view)
}

func unmarshalAmounts(raw []byte) (map[string]*big.Int, error) {
	out := make(map[string]*big.Int)
	if len(raw) == 0 {
		return out, nil
	}
	var view map[string]string
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, err
	}
	for currency, text := range view {
		amount, err := parseNumeric(text)
		if err != nil {
			return nil, err
		}
		out[currency] = amount
	}
	return out, nil
}

func parseNumeric(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", raw)
	}
	return amount, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
