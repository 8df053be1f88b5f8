// Package payment defines the gateway capability consumed by checkout. The
// real gateway lives outside this service; Sandbox is what the binaries wire
// in environments without one.
package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

type ChargeStatus string

const (
	StatusApproved ChargeStatus = "approved"
	StatusDeclined ChargeStatus = "declined"
	StatusPending  ChargeStatus = "pending"
)

type Result struct {
	PaymentID string
	Status    ChargeStatus
	Reference string
}

// Gateway charges synchronously. Implementations must be idempotent-safe for
// at-least-once invocation per order: a retried Charge for the same order
// must not double-bill.
type Gateway interface {
	Charge(ctx context.Context, orderID, method string, amount decimal.Decimal) (Result, error)
}
