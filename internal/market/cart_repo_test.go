package market

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cartColumns() []string {
	return []string{"id", "owner_id", "subtotal", "service_fee", "total", "expires_at", "created_at", "updated_at"}
}

func cartRow(id, owner string) *pgxmock.Rows {
	now := time.Now().UTC()
	return pgxmock.NewRows(cartColumns()).
		AddRow(id, owner, dec("0"), dec("0"), dec("0"), now.Add(time.Hour), now, now)
}

// Two requests can race to create the owner's first cart. The loser's insert
// conflicts on the owner unique index into zero affected rows and must come
// back with the winner's cart instead of a second one.
func TestAddItemCreateRaceLoserReusesWinnerCart(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT available FROM credit_lots`).
		WithArgs("lot-a").
		WillReturnRows(pgxmock.NewRows([]string{"available"}).AddRow(int64(1000)))

	// no active cart yet
	mock.ExpectQuery(`FROM carts WHERE owner_id=`).
		WithArgs("acme").
		WillReturnError(pgx.ErrNoRows)

	// create clears any lapsed row, then loses the insert race
	mock.ExpectExec(`DELETE FROM carts WHERE owner_id=`).
		WithArgs("acme").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`INSERT INTO carts`).
		WithArgs(pgxmock.AnyArg(), "acme", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	// re-read sees the concurrent winner
	mock.ExpectQuery(`FROM carts WHERE owner_id=`).
		WithArgs("acme").
		WillReturnRows(cartRow("cart-w", "acme"))

	mock.ExpectExec(`INSERT INTO cart_items`).
		WithArgs(pgxmock.AnyArg(), "cart-w", "lot-a", int64(25)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE carts SET expires_at=`).
		WithArgs("cart-w", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	mock.ExpectQuery(`SELECT l.price, ci.quantity`).
		WithArgs("cart-w").
		WillReturnRows(pgxmock.NewRows([]string{"price", "quantity"}).AddRow(dec("10"), int64(25)))
	mock.ExpectExec(`UPDATE carts SET subtotal=`).
		WithArgs("cart-w", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	// reload after commit
	mock.ExpectQuery(`FROM carts WHERE owner_id=`).
		WithArgs("acme").
		WillReturnRows(cartRow("cart-w", "acme"))
	mock.ExpectQuery(`FROM cart_items ci JOIN credit_lots`).
		WithArgs("cart-w").
		WillReturnRows(pgxmock.NewRows([]string{"id", "cart_id", "lot_id", "quantity", "sku", "name", "price"}).
			AddRow("item-1", "cart-w", "lot-a", int64(25), "VCS-001", "Mangrove Restoration", dec("10")))

	repo := &CartRepo{DB: mock, TTL: time.Hour}
	cart, err := repo.AddItem(context.Background(), "acme", "lot-a", 25)
	require.NoError(t, err)

	assert.Equal(t, "cart-w", cart.ID)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "lot-a", cart.Items[0].LotID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddItemCreateWinsInsertsOwnRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT available FROM credit_lots`).
		WithArgs("lot-a").
		WillReturnRows(pgxmock.NewRows([]string{"available"}).AddRow(int64(1000)))
	mock.ExpectQuery(`FROM carts WHERE owner_id=`).
		WithArgs("acme").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`DELETE FROM carts WHERE owner_id=`).
		WithArgs("acme").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`INSERT INTO carts`).
		WithArgs(pgxmock.AnyArg(), "acme", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	mock.ExpectExec(`INSERT INTO cart_items`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "lot-a", int64(5)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE carts SET expires_at=`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`SELECT l.price, ci.quantity`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"price", "quantity"}).AddRow(dec("10"), int64(5)))
	mock.ExpectExec(`UPDATE carts SET subtotal=`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	mock.ExpectQuery(`FROM carts WHERE owner_id=`).
		WithArgs("acme").
		WillReturnRows(cartRow("cart-1", "acme"))
	mock.ExpectQuery(`FROM cart_items ci JOIN credit_lots`).
		WithArgs("cart-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "cart_id", "lot_id", "quantity", "sku", "name", "price"}).
			AddRow("item-1", "cart-1", "lot-a", int64(5), "VCS-001", "Mangrove Restoration", dec("10")))

	repo := &CartRepo{DB: mock, TTL: time.Hour}
	cart, err := repo.AddItem(context.Background(), "acme", "lot-a", 5)
	require.NoError(t, err)
	assert.Equal(t, "cart-1", cart.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
