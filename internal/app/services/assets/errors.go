package assets

import "errors"

var (
	ErrNotOwner        = errors.New("caller does not own the token")
	ErrNotAuthorized   = errors.New("caller lacks transfer authority")
	ErrNotCreator      = errors.New("caller is not the collection creator")
	ErrSupplyExhausted = errors.New("collection max supply reached")
	ErrInvalidRoyalty  = errors.New("royalty basis points exceed 10000")
	ErrZeroSupplyCap   = errors.New("max supply must be positive")
)
