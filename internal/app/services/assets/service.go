// Package assets implements the asset collaborator: collections, tokens,
// ownership, transfer approvals, and the optional royalty capability the
// settlement engine queries on every purchase.
package assets

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/MarketForge/settlement_layer/internal/app/domain/asset"
	"github.com/MarketForge/settlement_layer/internal/app/domain/settlement"
	"github.com/MarketForge/settlement_layer/internal/app/storage"
	"github.com/MarketForge/settlement_layer/pkg/logger"
)

// Service manages collections and tokens.
type Service struct {
	mu    sync.Mutex
	store storage.AssetStore
	log   *logger.Logger
}

// New constructs an asset service.
func New(store storage.AssetStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("assets")
	}
	return &Service{store: store, log: log}
}

// CollectionParams describes a collection to create.
type CollectionParams struct {
	Name            string
	Symbol          string
	RoyaltyBP       uint32
	RoyaltyReceiver string
	MaxSupply       uint64
	Metadata        string
}

// CreateCollection validates and registers a new collection administered by
// creator. Royalty and supply-cap validation lives here, not in the
// factory.
func (s *Service) CreateCollection(ctx context.Context, creator string, params CollectionParams) (asset.Collection, error) {
	creator = strings.TrimSpace(creator)
	if creator == "" {
		return asset.Collection{}, fmt.Errorf("creator is required")
	}
	if strings.TrimSpace(params.Name) == "" || strings.TrimSpace(params.Symbol) == "" {
		return asset.Collection{}, fmt.Errorf("name and symbol are required")
	}
	if params.RoyaltyBP > settlement.BasisPointDenominator {
		return asset.Collection{}, ErrInvalidRoyalty
	}
	if params.MaxSupply == 0 {
		return asset.Collection{}, ErrZeroSupplyCap
	}
	receiver := strings.TrimSpace(params.RoyaltyReceiver)
	if params.RoyaltyBP > 0 && receiver == "" {
		receiver = creator
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.store.CreateCollection(ctx, asset.Collection{
		Name:            strings.TrimSpace(params.Name),
		Symbol:          strings.ToUpper(strings.TrimSpace(params.Symbol)),
		Creator:         creator,
		RoyaltyBP:       params.RoyaltyBP,
		RoyaltyReceiver: receiver,
		MaxSupply:       params.MaxSupply,
		Metadata:        params.Metadata,
	})
	if err != nil {
		return asset.Collection{}, err
	}

	s.log.WithField("collection_id", col.ID).
		WithField("creator", creator).
		WithField("symbol", col.Symbol).
		Info("collection created")
	return col, nil
}

// Mint issues a new token into a collection. Only the collection creator
// may mint; the supply cap is enforced.
func (s *Service) Mint(ctx context.Context, caller, collectionID, owner, metadata string) (asset.Token, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		owner = caller
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.store.GetCollection(ctx, collectionID)
	if err != nil {
		return asset.Token{}, err
	}
	if col.Creator != caller {
		return asset.Token{}, ErrNotCreator
	}
	if col.Minted >= col.MaxSupply {
		return asset.Token{}, ErrSupplyExhausted
	}

	col.Minted++
	if _, err := s.store.UpdateCollection(ctx, col); err != nil {
		return asset.Token{}, err
	}

	tok, err := s.store.CreateToken(ctx, asset.Token{
		CollectionID: collectionID,
		Serial:       col.Minted,
		Owner:        owner,
		Metadata:     metadata,
	})
	if err != nil {
		return asset.Token{}, err
	}

	s.log.WithField("collection_id", collectionID).
		WithField("token_id", tok.ID).
		WithField("owner", owner).
		Info("token minted")
	return tok, nil
}

// OwnerOf answers the collaborator's ownership query.
func (s *Service) OwnerOf(ctx context.Context, collectionID, tokenID string) (string, error) {
	tok, err := s.store.GetToken(ctx, collectionID, tokenID)
	if err != nil {
		return "", err
	}
	return tok.Owner, nil
}

// Approve grants operator transfer authority over one token. Only the
// current owner may grant it; an empty operator revokes.
func (s *Service) Approve(ctx context.Context, caller, collectionID, tokenID, operator string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.store.GetToken(ctx, collectionID, tokenID)
	if err != nil {
		return err
	}
	if tok.Owner != caller {
		return ErrNotOwner
	}

	tok.Approved = strings.TrimSpace(operator)
	_, err = s.store.UpdateToken(ctx, tok)
	return err
}

// Approved returns the operator currently holding transfer authority.
func (s *Service) Approved(ctx context.Context, collectionID, tokenID string) (string, error) {
	tok, err := s.store.GetToken(ctx, collectionID, tokenID)
	if err != nil {
		return "", err
	}
	return tok.Approved, nil
}

// Transfer moves a token from its owner to another identity. The caller
// must be the owner or the approved operator; the approval is cleared on
// every transfer.
func (s *Service) Transfer(ctx context.Context, caller, collectionID, tokenID, from, to string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return fmt.Errorf("transfer recipient is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.store.GetToken(ctx, collectionID, tokenID)
	if err != nil {
		return err
	}
	if tok.Owner != from {
		return ErrNotOwner
	}
	if caller != tok.Owner && caller != tok.Approved {
		return ErrNotAuthorized
	}

	tok.Owner = to
	tok.Approved = ""
	if _, err := s.store.UpdateToken(ctx, tok); err != nil {
		return err
	}

	s.log.WithField("collection_id", collectionID).
		WithField("token_id", tokenID).
		WithField("from", from).
		WithField("to", to).
		Debug("token transferred")
	return nil
}

// RoyaltyFor resolves the royalty declared for selling a token at price.
// A token metadata manifest may override the collection declaration with
// royalty.bps / royalty.receiver fields. The second return value is false
// when the collection declares no royalty at all; callers must treat that
// as royalty zero, not as an error.
func (s *Service) RoyaltyFor(ctx context.Context, collectionID, tokenID string, price *big.Int) (asset.Royalty, bool, error) {
	col, err := s.store.GetCollection(ctx, collectionID)
	if err != nil {
		return asset.Royalty{}, false, err
	}
	tok, err := s.store.GetToken(ctx, collectionID, tokenID)
	if err != nil {
		return asset.Royalty{}, false, err
	}

	bp := col.RoyaltyBP
	receiver := col.RoyaltyReceiver
	if tok.Metadata != "" && gjson.Valid(tok.Metadata) {
		if override := gjson.Get(tok.Metadata, "royalty.bps"); override.Exists() {
			if v := override.Uint(); v <= settlement.BasisPointDenominator {
				bp = uint32(v)
			}
		}
		if override := gjson.Get(tok.Metadata, "royalty.receiver"); override.Exists() && override.String() != "" {
			receiver = override.String()
		}
	}

	if bp == 0 || receiver == "" {
		return asset.Royalty{}, false, nil
	}
	return asset.Royalty{
		Receiver: receiver,
		Amount:   settlement.BasisPointShare(price, bp),
	}, true, nil
}

// GetCollection retrieves one collection.
func (s *Service) GetCollection(ctx context.Context, id string) (asset.Collection, error) {
	return s.store.GetCollection(ctx, id)
}

// ListCollections returns all collections.
func (s *Service) ListCollections(ctx context.Context) ([]asset.Collection, error) {
	return s.store.ListCollections(ctx)
}

// GetToken retrieves one token.
func (s *Service) GetToken(ctx context.Context, collectionID, tokenID string) (asset.Token, error) {
	return s.store.GetToken(ctx, collectionID, tokenID)
}

// ListTokens returns the tokens of a collection.
func (s *Service) ListTokens(ctx context.Context, collectionID string) ([]asset.Token, error) {
	return s.store.ListTokens(ctx, collectionID)
}
