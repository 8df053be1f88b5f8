package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sandbox approves everything except methods carrying a "declined" marker
// (e.g. "card-declined"), which test environments use to drive the failure
// path end to end.
type Sandbox struct{}

func (Sandbox) Charge(ctx context.Context, orderID, method string, amount decimal.Decimal) (Result, error) {
	if strings.Contains(method, "declined") {
		return Result{Status: StatusDeclined}, nil
	}
	return Result{
		PaymentID: uuid.NewString(),
		Status:    StatusApproved,
		Reference: fmt.Sprintf("sandbox-%s", orderID),
	}, nil
}
