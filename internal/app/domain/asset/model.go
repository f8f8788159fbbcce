// Package asset defines the collection and token records managed by the
// asset collaborator. The marketplace queries but never owns this state.
package asset

import (
	"math/big"
	"time"
)

// Collection groups tokens under a single creator-administered contract-like
// namespace. RoyaltyBP is the collection-wide resale royalty declaration.
type Collection struct {
	ID              string
	Name            string
	Symbol          string
	Creator         string
	RoyaltyBP       uint32
	RoyaltyReceiver string
	MaxSupply       uint64
	Minted          uint64
	Metadata        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Token is a single non-fungible asset. Approved names the one identity,
// besides the owner, with transfer authority; it is cleared on every
// transfer.
type Token struct {
	ID           string
	CollectionID string
	Serial       uint64
	Owner        string
	Approved     string
	Metadata     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Royalty is the resale royalty a collection (or an individual token)
// declares for a sale at a given price. The marketplace treats the
// declaration as advisory and applies its own cap.
type Royalty struct {
	Receiver string
	Amount   *big.Int
}
