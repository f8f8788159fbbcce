// Package event defines the append-only domain event journal emitted for
// observability and indexing. Events are not required for correctness.
package event

import "time"

// Type enumerates the emitted event kinds.
type Type string

const (
	TypeListed             Type = "listed"
	TypeCancelled          Type = "cancelled"
	TypeBought             Type = "bought"
	TypeStaked             Type = "staked"
	TypeUnstaked           Type = "unstaked"
	TypeClaimed            Type = "claimed"
	TypeFeeNotified        Type = "fee_notified"
	TypeCollectionDeployed Type = "collection_deployed"
)

// Record is one journal entry. Monetary amounts are carried as decimal
// strings in Attributes so the journal stays schema-stable.
type Record struct {
	ID           string
	Type         Type
	CollectionID string
	AssetID      string
	Actor        string
	Attributes   map[string]string
	CreatedAt    time.Time
}
