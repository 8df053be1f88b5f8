package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreditLot is a tranche of verified carbon credits offered for sale.
// Available is the only field this subsystem mutates; it is decremented at
// settlement, never at reservation time.
type CreditLot struct {
	ID          string
	SKU         string
	Name        string
	Vintage     int
	TotalAmount int64
	Available   int64
	Price       decimal.Decimal // per credit
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Cart holds a company's in-progress selection. One active (non-expired)
// cart per owner; totals are derived, see RecalculateTotals.
type Cart struct {
	ID         string
	OwnerID    string
	Items      []CartItem
	Subtotal   decimal.Decimal
	ServiceFee decimal.Decimal
	Total      decimal.Decimal
	ExpiresAt  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (c *Cart) Empty() bool { return len(c.Items) == 0 }

// CartItem references a lot; price is read from the lot at recalculation
// time, it is not stored on the line item.
type CartItem struct {
	ID       string
	CartID   string
	LotID    string
	Quantity int64

	// denormalized from the lot for display
	LotSKU   string
	LotName  string
	LotPrice decimal.Decimal
}

// Reservation is a time-boxed claim on lot quantity by one cart. It is
// independent of the lot's Available field; expiry alone frees the claim.
type Reservation struct {
	CartID    string
	LotID     string
	Quantity  int64
	ExpiresAt time.Time
}

// ReservationRequest is one line of a reserve call.
type ReservationRequest struct {
	LotID    string
	Quantity int64
}

type Order struct {
	ID             string
	OrderNumber    string
	OwnerID        string
	CartID         string
	Status         Status
	PaymentMethod  string
	Items          []OrderItem
	Subtotal       decimal.Decimal
	ServiceFee     decimal.Decimal
	Total          decimal.Decimal
	PaymentID      string
	TransactionRef string
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

// OrderItem is a value copy of a cart line at order-creation time. UnitPrice
// is snapshotted; later lot price changes must not affect an existing order.
type OrderItem struct {
	ID        string
	OrderID   string
	LotID     string
	Quantity  int64
	UnitPrice decimal.Decimal
}
