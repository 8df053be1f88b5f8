package market

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// LedgerRepo reads credit lots and applies the guarded settlement decrement.
// Available is never written outside decrementAvailable.
type LedgerRepo struct{ DB DB }

func (r *LedgerRepo) GetLot(ctx context.Context, lotID string) (CreditLot, error) {
	var l CreditLot
	err := r.DB.QueryRow(ctx, `
		SELECT id, sku, name, vintage, total_amount, available, price, created_at, updated_at
		FROM credit_lots WHERE id=$1`, lotID).
		Scan(&l.ID, &l.SKU, &l.Name, &l.Vintage, &l.TotalAmount, &l.Available, &l.Price, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return CreditLot{}, fmt.Errorf("lot %s: %w", lotID, ErrNotFound)
	}
	if err != nil {
		return CreditLot{}, err
	}
	return l, nil
}

func (r *LedgerRepo) ListLots(ctx context.Context) ([]CreditLot, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, sku, name, vintage, total_amount, available, price, created_at, updated_at
		FROM credit_lots ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CreditLot
	for rows.Next() {
		var l CreditLot
		if err := rows.Scan(&l.ID, &l.SKU, &l.Name, &l.Vintage, &l.TotalAmount, &l.Available, &l.Price, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Availability is a point-in-time read. It is advisory: only the reserve
// transaction is authoritative about what a cart may claim.
func (r *LedgerRepo) Availability(ctx context.Context, lotID string) (int64, error) {
	var n int64
	err := r.DB.QueryRow(ctx, `SELECT available FROM credit_lots WHERE id=$1`, lotID).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("lot %s: %w", lotID, ErrNotFound)
	}
	return n, err
}

// decrementAvailable applies the guarded decrement inside the settlement
// transaction. The WHERE clause carries the invariant: available never goes
// negative, whatever the interleaving.
func decrementAvailable(ctx context.Context, tx pgx.Tx, lotID string, qty int64) error {
	ct, err := tx.Exec(ctx, `
		UPDATE credit_lots SET available = available - $2, updated_at = now()
		WHERE id = $1 AND available >= $2`, lotID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		var avail int64
		if err := tx.QueryRow(ctx, `SELECT available FROM credit_lots WHERE id=$1`, lotID).Scan(&avail); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("lot %s: %w", lotID, ErrNotFound)
			}
			return err
		}
		return &ConflictError{LotID: lotID, Requested: qty, Available: avail}
	}
	return nil
}
