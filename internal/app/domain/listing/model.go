// Package listing defines the sale listing record kept by the marketplace.
package listing

import (
	"math/big"
	"time"
)

// Listing is an active offer to sell one token at a fixed price. At most one
// active listing exists per (collection, asset) pair; the record is removed
// on cancel and consumed on a successful purchase.
type Listing struct {
	ID           string
	CollectionID string
	AssetID      string
	Seller       string
	Price        *big.Int
	Currency     string
	CreatedAt    time.Time
}
