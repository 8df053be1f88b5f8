package market

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound: lot/cart/item/order missing or not owned by the caller.
	ErrNotFound = errors.New("not found")

	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrDuplicateItem   = errors.New("lot already in cart, use update instead")
	ErrEmptyCart       = errors.New("cart is empty")

	// ErrOrderNotPending: the order already reached a terminal state; the
	// caller must start a new checkout, not retry this one.
	ErrOrderNotPending = errors.New("order is not pending")

	ErrPaymentDeclined = errors.New("payment declined")
)

// ConflictError means a lot's effective availability could not cover the
// requested quantity. Available already accounts for other carts' active
// reservations.
type ConflictError struct {
	LotID     string
	Requested int64
	Available int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("insufficient credits for lot %s: requested %d, available %d",
		e.LotID, e.Requested, e.Available)
}

// Shortfall is how many credits were missing.
func (e *ConflictError) Shortfall() int64 { return e.Requested - e.Available }
