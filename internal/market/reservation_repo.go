package market

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ReservationRepo manages time-boxed claims on lot quantity. It never
// mutates the ledger: the claim lives in its own row and expiry alone frees
// the capacity again.
type ReservationRepo struct {
	DB  DB
	TTL time.Duration // claim lifetime, refreshed on every reserve
}

// Reserve grants claims for every requested lot, or none. One transaction:
// per lot it locks the lot row, sums the *other* carts' unexpired claims and
// admits the request only if available minus that sum covers the quantity.
// A shortfall on any lot rolls the whole call back and returns a
// *ConflictError for that lot.
//
// The row lock is held only for the duration of this transaction, never for
// the reservation window; an expired claim drops out of the sum without any
// explicit release.
func (r *ReservationRepo) Reserve(ctx context.Context, cartID string, items []ReservationRequest) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	expires := now.Add(r.TTL)

	for _, it := range items {
		var available int64
		if err := tx.QueryRow(ctx,
			`SELECT available FROM credit_lots WHERE id=$1 FOR UPDATE`, it.LotID).Scan(&available); err != nil {
			if err == pgx.ErrNoRows {
				return fmt.Errorf("lot %s: %w", it.LotID, ErrNotFound)
			}
			return err
		}

		others, err := otherClaims(ctx, tx, it.LotID, cartID)
		if err != nil {
			return err
		}
		if err := Admit(available, others, it, now); err != nil {
			return err
		}

		// refresh, not sum: a repeat reserve for the same cart+lot replaces
		// quantity and pushes the TTL out
		if _, err := tx.Exec(ctx, `
			INSERT INTO reservations (cart_id, lot_id, quantity, expires_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (cart_id, lot_id)
			DO UPDATE SET quantity = EXCLUDED.quantity, expires_at = EXCLUDED.expires_at`,
			cartID, it.LotID, it.Quantity, expires); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// otherClaims loads competing reservations for a lot, expired ones included;
// Admit discounts those. Runs inside the reserve transaction, after the lot
// row is locked, so the view is consistent with the admission decision.
func otherClaims(ctx context.Context, tx pgx.Tx, lotID, cartID string) ([]Reservation, error) {
	rows, err := tx.Query(ctx, `
		SELECT cart_id, lot_id, quantity, expires_at FROM reservations
		WHERE lot_id = $1 AND cart_id <> $2`, lotID, cartID)
	if err != nil {
		return nil, err
	}
	var out []Reservation
	for rows.Next() {
		var r Reservation
		if err := rows.Scan(&r.CartID, &r.LotID, &r.Quantity, &r.ExpiresAt); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, r)
	}
	rows.Close()
	return out, rows.Err()
}

// Release drops every claim held by the cart. Idempotent; safe to call for a
// cart with no claims.
func (r *ReservationRepo) Release(ctx context.Context, cartID string) error {
	_, err := r.DB.Exec(ctx, `DELETE FROM reservations WHERE cart_id=$1`, cartID)
	return err
}

// SweepExpired deletes claims past their TTL. This is the sole eviction
// mechanism; it is idempotent and safe to run concurrently from several
// instances.
func (r *ReservationRepo) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	ct, err := r.DB.Exec(ctx, `DELETE FROM reservations WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
