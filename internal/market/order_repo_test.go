package market

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderRow(id, owner string, status Status) *pgxmock.Rows {
	now := time.Now().UTC()
	return pgxmock.NewRows([]string{
		"id", "order_number", "owner_id", "cart_id", "status", "payment_method",
		"subtotal", "service_fee", "total",
		"payment_id", "transaction_ref", "failure_reason",
		"created_at", "updated_at", "completed_at"}).
		AddRow(id, "ORD-2026-0001", owner, "cart-1", status, "card",
			dec("250"), dec("12.5"), dec("262.5"), "", "", "", now, now, nil)
}

// Settlement iterates an order's items to lock and decrement lots, so the
// items must come back in a deterministic lot order.
func TestGetForOwnerLoadsItemsSortedByLot(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM orders WHERE id=`).
		WithArgs("order-1", "acme").
		WillReturnRows(orderRow("order-1", "acme", StatusPending))
	mock.ExpectQuery(`FROM order_items WHERE order_id=\$1 ORDER BY lot_id`).
		WithArgs("order-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "order_id", "lot_id", "quantity", "unit_price"}).
			AddRow("oi-1", "order-1", "lot-a", int64(10), dec("10")).
			AddRow("oi-2", "order-1", "lot-b", int64(5), dec("15")))

	repo := &OrderRepo{DB: mock}
	o, err := repo.GetForOwner(context.Background(), "order-1", "acme")
	require.NoError(t, err)

	require.Len(t, o.Items, 2)
	assert.Equal(t, "lot-a", o.Items[0].LotID)
	assert.Equal(t, "lot-b", o.Items[1].LotID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleShortfallRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	order := &Order{
		ID:     "order-1",
		CartID: "cart-1",
		Status: StatusPending,
		Items: []OrderItem{
			{ID: "oi-1", OrderID: "order-1", LotID: "lot-a", Quantity: 10, UnitPrice: dec("10")},
			{ID: "oi-2", OrderID: "order-1", LotID: "lot-b", Quantity: 5, UnitPrice: dec("15")},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE credit_lots SET available = available -`).
		WithArgs("lot-a", int64(10)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE credit_lots SET available = available -`).
		WithArgs("lot-b", int64(5)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT available FROM credit_lots`).
		WithArgs("lot-b").
		WillReturnRows(pgxmock.NewRows([]string{"available"}).AddRow(int64(3)))
	mock.ExpectRollback()

	repo := &OrderRepo{DB: mock}
	err = repo.Settle(context.Background(), order, "pay-1", "txn-1")

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "lot-b", conflict.LotID)
	assert.EqualValues(t, 2, conflict.Shortfall())
	assert.NoError(t, mock.ExpectationsWereMet())
}
