// Package ledger defines the account-based balance records used as the
// payment substrate for settlement.
package ledger

import (
	"math/big"
	"time"
)

// Balance is the amount of one currency held by one account. Accounts are
// plain string identities; they exist implicitly once credited.
type Balance struct {
	Account  string
	Currency string
	Amount   *big.Int
}

// Leg is a single directed transfer inside a settlement batch. An empty
// From denotes an external deposit (funds entering the ledger).
type Leg struct {
	From      string
	To        string
	Currency  string
	Amount    *big.Int
	Reference string
}

// Transaction is the journal record written for every applied leg.
type Transaction struct {
	ID        string
	From      string
	To        string
	Currency  string
	Amount    *big.Int
	Reference string
	CreatedAt time.Time
}
