package factory

import "errors"

var (
	ErrCreationFeeUnpaid = errors.New("creation fee payment failed")
	ErrAlreadyBound      = errors.New("collection is already bound to a pool")
)
