package staking

import "errors"

var (
	ErrNotOwner            = errors.New("caller does not own the token")
	ErrNotStaker           = errors.New("caller is not the recorded staker")
	ErrAlreadyStaked       = errors.New("token is already staked")
	ErrNotSettlementEngine = errors.New("fee notification restricted to the settlement engine")
	ErrCurrencyNotAllowed  = errors.New("currency is not in the payment allow-list")
	ErrInvalidAmount       = errors.New("amount must be positive")
)
