package entity

import "errors"

var (
	ErrInvalidReference     = errors.New("invalid branch or variant reference")
	ErrEmptyCart            = errors.New("cart is empty")
	ErrAvailabilityCheck    = errors.New("availability check failed")
	ErrOrderSubmission      = errors.New("order submission failed")
	ErrMixedBranches        = errors.New("cart contains items from more than one branch")
	ErrUnknownPaymentMethod = errors.New("unknown payment method")
	ErrInvalidIdentity      = errors.New("invalid customer identity")
	ErrNotLoggedIn          = errors.New("user not logged in")
	ErrDuplicateSubmission  = errors.New("checkout already submitted")
	ErrUnknownBranch        = errors.New("unknown branch")
	ErrVariantUnavailable   = errors.New("variant is out of stock")
	ErrOrderNotFound        = errors.New("order not found")
)
