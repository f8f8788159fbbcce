package storage

import "errors"

// Sentinel errors shared by all store implementations so services and the
// HTTP layer can branch without knowing the backend.
var (
	ErrNotFound          = errors.New("record not found")
	ErrConflict          = errors.New("record already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
)
