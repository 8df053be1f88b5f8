package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type OrderRepo struct{ DB DB }

// Create converts a cart into a pending order in one transaction: allocate
// the next order number for the current year, insert the order, and snapshot
// every line item's price and quantity. The snapshot is a value copy; later
// lot price changes never reach an existing order.
func (r *OrderRepo) Create(ctx context.Context, cart *Cart, paymentMethod string) (*Order, error) {
	if cart.Empty() {
		return nil, ErrEmptyCart
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	number, err := nextOrderNumber(ctx, tx, now.Year())
	if err != nil {
		return nil, err
	}

	t := ComputeTotals(pricedQuantities(cart.Items))
	o := &Order{
		ID:            uuid.NewString(),
		OrderNumber:   number,
		OwnerID:       cart.OwnerID,
		CartID:        cart.ID,
		Status:        StatusPending,
		PaymentMethod: paymentMethod,
		Subtotal:      t.Subtotal,
		ServiceFee:    t.ServiceFee,
		Total:         t.Total,
		CreatedAt:     now,
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO orders (id, order_number, owner_id, cart_id, status, payment_method,
		                    subtotal, service_fee, total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		o.ID, o.OrderNumber, o.OwnerID, o.CartID, o.Status, o.PaymentMethod,
		o.Subtotal, o.ServiceFee, o.Total); err != nil {
		return nil, err
	}

	for _, it := range cart.Items {
		item := OrderItem{
			ID:        uuid.NewString(),
			OrderID:   o.ID,
			LotID:     it.LotID,
			Quantity:  it.Quantity,
			UnitPrice: it.LotPrice,
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, lot_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)`,
			item.ID, item.OrderID, item.LotID, item.Quantity, item.UnitPrice); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, item)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return o, nil
}

// nextOrderNumber bumps the per-year sequence row inside the caller's
// transaction, so two concurrent checkouts can never draw the same number.
func nextOrderNumber(ctx context.Context, tx pgx.Tx, year int) (string, error) {
	var seq int64
	err := tx.QueryRow(ctx, `
		INSERT INTO order_sequences (year, seq) VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET seq = order_sequences.seq + 1
		RETURNING seq`, year).Scan(&seq)
	if err != nil {
		return "", err
	}
	return FormatOrderNumber(year, seq), nil
}

// GetForOwner loads an order with its items, scoped to the owner. An order
// belonging to someone else is indistinguishable from a missing one.
func (r *OrderRepo) GetForOwner(ctx context.Context, orderID, ownerID string) (*Order, error) {
	var o Order
	err := r.DB.QueryRow(ctx, `
		SELECT id, order_number, owner_id, cart_id, status, payment_method,
		       subtotal, service_fee, total,
		       COALESCE(payment_id, ''), COALESCE(transaction_ref, ''), COALESCE(failure_reason, ''),
		       created_at, updated_at, completed_at
		FROM orders WHERE id=$1 AND owner_id=$2`, orderID, ownerID).
		Scan(&o.ID, &o.OrderNumber, &o.OwnerID, &o.CartID, &o.Status, &o.PaymentMethod,
			&o.Subtotal, &o.ServiceFee, &o.Total,
			&o.PaymentID, &o.TransactionRef, &o.FailureReason,
			&o.CreatedAt, &o.UpdatedAt, &o.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, lot_id, quantity, unit_price
		FROM order_items WHERE order_id=$1 ORDER BY lot_id`, o.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.LotID, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	return &o, rows.Err()
}

func (r *OrderRepo) ListForOwner(ctx context.Context, ownerID string) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_number, owner_id, cart_id, status, payment_method,
		       subtotal, service_fee, total,
		       COALESCE(payment_id, ''), COALESCE(transaction_ref, ''), COALESCE(failure_reason, ''),
		       created_at, updated_at, completed_at
		FROM orders WHERE owner_id=$1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.OrderNumber, &o.OwnerID, &o.CartID, &o.Status, &o.PaymentMethod,
			&o.Subtotal, &o.ServiceFee, &o.Total,
			&o.PaymentID, &o.TransactionRef, &o.FailureReason,
			&o.CreatedAt, &o.UpdatedAt, &o.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// MarkFailed drives a pending order to the terminal FAILED state. Guarded on
// status so a lost race with another transition surfaces as
// ErrOrderNotPending instead of overwriting a terminal state.
func (r *OrderRepo) MarkFailed(ctx context.Context, orderID, reason string) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$2, failure_reason=$3, updated_at=now()
		WHERE id=$1 AND status=$4`,
		orderID, StatusFailed, reason, StatusPending)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("order %s: %w", orderID, ErrOrderNotPending)
	}
	return nil
}

// Settle finalizes an approved order in one transaction: guarded decrement
// of each lot's availability, order to COMPLETED with the payment identifiers,
// the cart's reservations and items deleted and its totals zeroed. The cart
// row remains as an empty husk. A decrement that cannot cover its quantity
// rolls everything back and returns a *ConflictError.
func (r *OrderRepo) Settle(ctx context.Context, order *Order, paymentID, transactionRef string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Items are sorted by lot_id, so concurrent settlements take the lot
	// row locks in the same order.
	for _, it := range order.Items {
		if err := decrementAvailable(ctx, tx, it.LotID, it.Quantity); err != nil {
			return err
		}
	}

	ct, err := tx.Exec(ctx, `
		UPDATE orders SET status=$2, payment_id=$3, transaction_ref=$4,
		       completed_at=now(), updated_at=now()
		WHERE id=$1 AND status=$5`,
		order.ID, StatusCompleted, paymentID, transactionRef, StatusPending)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("order %s: %w", order.ID, ErrOrderNotPending)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM reservations WHERE cart_id=$1`, order.CartID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1`, order.CartID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE carts SET subtotal=0, service_fee=0, total=0, updated_at=now()
		WHERE id=$1`, order.CartID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func pricedQuantities(items []CartItem) []PricedQuantity {
	out := make([]PricedQuantity, 0, len(items))
	for _, it := range items {
		out = append(out, PricedQuantity{Price: it.LotPrice, Quantity: it.Quantity})
	}
	return out
}
