package market

import "errors"

var (
	ErrInvalidPrice        = errors.New("price must be positive")
	ErrCurrencyNotAllowed  = errors.New("currency is not in the payment allow-list")
	ErrNotOwner            = errors.New("caller does not own the token")
	ErrNotSeller           = errors.New("caller is not the listing seller")
	ErrNotApproved         = errors.New("settlement engine is not approved for the token")
	ErrAlreadyListed       = errors.New("token is already listed")
	ErrAssetStaked         = errors.New("token is staked and cannot be listed")
	ErrNotListed           = errors.New("token is not listed")
	ErrSelfPurchase        = errors.New("buyer cannot be the seller")
	ErrSellerNoLongerOwner = errors.New("seller no longer owns the token")
	ErrTransferFailed      = errors.New("settlement transfer failed")
)
