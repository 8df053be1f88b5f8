// Package checkout drives a reserved cart into a finalized order. It owns
// the pending→completed/failed state machine; the repos own the transactions
// that make each step atomic.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/verdex/carbonmarket/internal/audit"
	"github.com/verdex/carbonmarket/internal/market"
	"github.com/verdex/carbonmarket/internal/payment"
)

type CartStore interface {
	ActiveCart(ctx context.Context, ownerID string) (*market.Cart, error)
}

type ReservationStore interface {
	Reserve(ctx context.Context, cartID string, items []market.ReservationRequest) error
	Release(ctx context.Context, cartID string) error
}

type OrderStore interface {
	Create(ctx context.Context, cart *market.Cart, paymentMethod string) (*market.Order, error)
	GetForOwner(ctx context.Context, orderID, ownerID string) (*market.Order, error)
	MarkFailed(ctx context.Context, orderID, reason string) error
	Settle(ctx context.Context, order *market.Order, paymentID, transactionRef string) error
}

type LedgerStore interface {
	Availability(ctx context.Context, lotID string) (int64, error)
}

type Service struct {
	Carts        CartStore
	Reservations ReservationStore
	Orders       OrderStore
	Ledger       LedgerStore
	Gateway      payment.Gateway
	Audit        audit.Sink
}

// Initiate validates and reserves the owner's cart, then creates a pending
// order with price-snapshotted items. A reservation conflict on any lot
// fails the whole call and no order is created; the cart is left intact and
// reservation-free for a plain retry.
func (s *Service) Initiate(ctx context.Context, ownerID, userID, paymentMethod string) (*market.Order, error) {
	cart, err := s.Carts.ActiveCart(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if cart.Empty() {
		return nil, market.ErrEmptyCart
	}

	// advisory pre-check; Reserve below is the authoritative one
	reqs := make([]market.ReservationRequest, 0, len(cart.Items))
	for _, it := range cart.Items {
		avail, err := s.Ledger.Availability(ctx, it.LotID)
		if err != nil {
			return nil, err
		}
		if it.Quantity > avail {
			return nil, &market.ConflictError{LotID: it.LotID, Requested: it.Quantity, Available: avail}
		}
		reqs = append(reqs, market.ReservationRequest{LotID: it.LotID, Quantity: it.Quantity})
	}

	if err := s.Reservations.Reserve(ctx, cart.ID, reqs); err != nil {
		return nil, err
	}

	order, err := s.Orders.Create(ctx, cart, paymentMethod)
	if err != nil {
		// order creation failed after the claim was granted; drop the claim
		// so the cart is clean for a retry
		s.release(ctx, cart.ID)
		return nil, err
	}

	s.Audit.Record(ctx, market.AuditEvent{
		OrderID:  order.ID,
		Event:    market.EventOrderCreated,
		ToStatus: market.StatusPending,
		Actor:    userID,
		Metadata: map[string]string{"order_number": order.OrderNumber},
	})
	return order, nil
}

// Confirm drives a pending order to a terminal state. Declines and credit
// shortfalls end in FAILED with the cart's reservations released first;
// approval settles the ledger, empties the cart and ends in COMPLETED.
// Gateway transport errors leave the order pending so the caller can retry
// the confirm (the gateway is idempotent-safe per order).
func (s *Service) Confirm(ctx context.Context, orderID, ownerID, userID string) (*market.Order, error) {
	order, err := s.Orders.GetForOwner(ctx, orderID, ownerID)
	if err != nil {
		return nil, err
	}
	if order.Status != market.StatusPending {
		return nil, fmt.Errorf("order %s is %s: %w", order.ID, order.Status, market.ErrOrderNotPending)
	}

	// the reservation protects against other carts, not against settlements
	// that raced us since initiate; re-check before charging
	for _, it := range order.Items {
		avail, err := s.Ledger.Availability(ctx, it.LotID)
		if err != nil {
			return nil, err
		}
		if it.Quantity > avail {
			conflict := &market.ConflictError{LotID: it.LotID, Requested: it.Quantity, Available: avail}
			s.fail(ctx, order, userID, market.EventCreditsUnavailable, conflict.Error())
			return nil, conflict
		}
	}

	res, err := s.Gateway.Charge(ctx, order.ID, order.PaymentMethod, order.Total)
	if err != nil {
		return nil, fmt.Errorf("charge order %s: %w", order.ID, err)
	}
	if res.Status != payment.StatusApproved {
		s.fail(ctx, order, userID, market.EventPaymentDeclined, "payment declined")
		return nil, market.ErrPaymentDeclined
	}

	if err := s.Orders.Settle(ctx, order, res.PaymentID, res.Reference); err != nil {
		var conflict *market.ConflictError
		if errors.As(err, &conflict) {
			// another settlement won the last credits between our re-check
			// and the guarded decrement
			s.fail(ctx, order, userID, market.EventCreditsUnavailable, conflict.Error())
			return nil, conflict
		}
		return nil, err
	}

	s.Audit.Record(ctx, market.AuditEvent{
		OrderID:    order.ID,
		Event:      market.EventOrderConfirmed,
		FromStatus: market.StatusPending,
		ToStatus:   market.StatusCompleted,
		Actor:      userID,
		Metadata:   map[string]string{"payment_id": res.PaymentID, "transaction_ref": res.Reference},
	})

	return s.Orders.GetForOwner(ctx, orderID, ownerID)
}

// fail releases the cart's reservations, drives the order to FAILED and
// emits the audit event. Reservations go first: they must never outlive a
// dead order.
func (s *Service) fail(ctx context.Context, order *market.Order, userID, event, reason string) {
	s.release(ctx, order.CartID)
	if err := s.Orders.MarkFailed(ctx, order.ID, reason); err != nil {
		log.Printf("mark order %s failed: %v", order.ID, err)
	}
	s.Audit.Record(ctx, market.AuditEvent{
		OrderID:    order.ID,
		Event:      event,
		FromStatus: market.StatusPending,
		ToStatus:   market.StatusFailed,
		Actor:      userID,
		Metadata:   map[string]string{"reason": reason},
	})
}

func (s *Service) release(ctx context.Context, cartID string) {
	if err := s.Reservations.Release(ctx, cartID); err != nil {
		log.Printf("release reservations for cart %s: %v", cartID, err)
	}
}
