package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// CartRepo is the mutable per-company line-item collection. Totals are
// derived; every mutation goes through recalculateTotals in the same
// transaction.
type CartRepo struct {
	DB  DB
	TTL time.Duration // cart horizon, refreshed on each add
}

// ActiveCart returns the owner's current non-expired cart with items, or
// ErrNotFound if there is none.
func (r *CartRepo) ActiveCart(ctx context.Context, ownerID string) (*Cart, error) {
	cart, err := r.findActive(ctx, r.DB, ownerID)
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, r.DB, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// AddItem puts a lot into the owner's cart, creating the cart lazily. The
// availability check here is point-in-time and advisory; the authoritative
// check happens at reservation. A lot already in the cart is rejected, the
// caller must use UpdateItem.
func (r *CartRepo) AddItem(ctx context.Context, ownerID, lotID string, qty int64) (*Cart, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var available int64
	err = tx.QueryRow(ctx, `SELECT available FROM credit_lots WHERE id=$1`, lotID).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("lot %s: %w", lotID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if qty > available {
		return nil, &ConflictError{LotID: lotID, Requested: qty, Available: available}
	}

	cart, err := r.findActive(ctx, tx, ownerID)
	if errors.Is(err, ErrNotFound) {
		cart, err = r.create(ctx, tx, ownerID)
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO cart_items (id, cart_id, lot_id, quantity)
		VALUES ($1, $2, $3, $4)`, uuid.NewString(), cart.ID, lotID, qty); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateItem
		}
		return nil, err
	}

	// adding refreshes the cart horizon
	if _, err := tx.Exec(ctx, `UPDATE carts SET expires_at=$2, updated_at=now() WHERE id=$1`,
		cart.ID, time.Now().UTC().Add(r.TTL)); err != nil {
		return nil, err
	}

	if err := recalculateTotals(ctx, tx, cart.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r.ActiveCart(ctx, ownerID)
}

// UpdateItem replaces a line item's quantity and recomputes totals.
func (r *CartRepo) UpdateItem(ctx context.Context, ownerID, itemID string, qty int64) (*Cart, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	cartID, err := r.ownedItemCart(ctx, tx, ownerID, itemID)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `UPDATE cart_items SET quantity=$2 WHERE id=$1`, itemID, qty); err != nil {
		return nil, err
	}
	if err := recalculateTotals(ctx, tx, cartID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r.ActiveCart(ctx, ownerID)
}

// RemoveItem deletes a line item. Cart contents changed, so any reservations
// held by the cart are released in the same transaction.
func (r *CartRepo) RemoveItem(ctx context.Context, ownerID, itemID string) (*Cart, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	cartID, err := r.ownedItemCart(ctx, tx, ownerID, itemID)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE id=$1`, itemID); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM reservations WHERE cart_id=$1`, cartID); err != nil {
		return nil, err
	}
	if err := recalculateTotals(ctx, tx, cartID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r.ActiveCart(ctx, ownerID)
}

// ClearCart removes every line item, zeroes totals and releases the cart's
// reservations. The cart row itself stays.
func (r *CartRepo) ClearCart(ctx context.Context, ownerID string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	cart, err := r.findActive(ctx, tx, ownerID)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1`, cart.ID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM reservations WHERE cart_id=$1`, cart.ID); err != nil {
		return err
	}
	if err := recalculateTotals(ctx, tx, cart.ID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CleanupExpired hard-deletes carts past their horizon. Items and
// reservations go with them via ON DELETE CASCADE. Idempotent.
func (r *CartRepo) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	ct, err := r.DB.Exec(ctx, `DELETE FROM carts WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *CartRepo) findActive(ctx context.Context, q queryer, ownerID string) (*Cart, error) {
	var c Cart
	err := q.QueryRow(ctx, `
		SELECT id, owner_id, subtotal, service_fee, total, expires_at, created_at, updated_at
		FROM carts WHERE owner_id=$1 AND expires_at > now()`, ownerID).
		Scan(&c.ID, &c.OwnerID, &c.Subtotal, &c.ServiceFee, &c.Total, &c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("cart for %s: %w", ownerID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// create inserts the owner's cart row. The unique index on carts.owner_id
// makes "one cart per owner" hold under concurrency: of two racing creates,
// one insert wins and the other conflicts into zero affected rows, then
// re-reads the winner's cart. The index is total, so a lapsed row is cleared
// first in the same transaction.
func (r *CartRepo) create(ctx context.Context, tx pgx.Tx, ownerID string) (*Cart, error) {
	if _, err := tx.Exec(ctx, `
		DELETE FROM carts WHERE owner_id=$1 AND expires_at <= now()`, ownerID); err != nil {
		return nil, err
	}

	c := &Cart{ID: uuid.NewString(), OwnerID: ownerID, ExpiresAt: time.Now().UTC().Add(r.TTL)}
	ct, err := tx.Exec(ctx, `
		INSERT INTO carts (id, owner_id, subtotal, service_fee, total, expires_at)
		VALUES ($1, $2, 0, 0, 0, $3)
		ON CONFLICT (owner_id) DO NOTHING`, c.ID, c.OwnerID, c.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if ct.RowsAffected() == 1 {
		return c, nil
	}
	// lost the race; a concurrent request committed the owner's cart
	return r.findActive(ctx, tx, ownerID)
}

func (r *CartRepo) loadItems(ctx context.Context, q queryer, cart *Cart) error {
	rows, err := q.Query(ctx, `
		SELECT ci.id, ci.cart_id, ci.lot_id, ci.quantity, l.sku, l.name, l.price
		FROM cart_items ci JOIN credit_lots l ON l.id = ci.lot_id
		WHERE ci.cart_id=$1 ORDER BY l.sku`, cart.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var it CartItem
		if err := rows.Scan(&it.ID, &it.CartID, &it.LotID, &it.Quantity, &it.LotSKU, &it.LotName, &it.LotPrice); err != nil {
			return err
		}
		cart.Items = append(cart.Items, it)
	}
	return rows.Err()
}

// ownedItemCart resolves an item id to its cart, scoped to the owner's
// active cart so one tenant can never touch another's line items.
func (r *CartRepo) ownedItemCart(ctx context.Context, tx pgx.Tx, ownerID, itemID string) (string, error) {
	var cartID string
	err := tx.QueryRow(ctx, `
		SELECT c.id FROM cart_items ci
		JOIN carts c ON c.id = ci.cart_id
		WHERE ci.id=$1 AND c.owner_id=$2 AND c.expires_at > now()`, itemID, ownerID).Scan(&cartID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("cart item %s: %w", itemID, ErrNotFound)
	}
	return cartID, err
}

// recalculateTotals recomputes the cart's derived money columns from its
// line items and current lot prices. Idempotent: unchanged items yield
// unchanged totals. Every cart mutation in this package funnels through it.
func recalculateTotals(ctx context.Context, tx pgx.Tx, cartID string) error {
	rows, err := tx.Query(ctx, `
		SELECT l.price, ci.quantity
		FROM cart_items ci JOIN credit_lots l ON l.id = ci.lot_id
		WHERE ci.cart_id=$1`, cartID)
	if err != nil {
		return err
	}
	var items []PricedQuantity
	for rows.Next() {
		var pq PricedQuantity
		if err := rows.Scan(&pq.Price, &pq.Quantity); err != nil {
			rows.Close()
			return err
		}
		items = append(items, pq)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	t := ComputeTotals(items)
	_, err = tx.Exec(ctx, `
		UPDATE carts SET subtotal=$2, service_fee=$3, total=$4, updated_at=now()
		WHERE id=$1`, cartID, t.Subtotal, t.ServiceFee, t.Total)
	return err
}
