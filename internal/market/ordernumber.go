package market

import "fmt"

// FormatOrderNumber renders the human-readable, year-scoped order number,
// e.g. ORD-2026-0001. seq comes from the per-year sequence row allocated
// inside the order-creating transaction.
func FormatOrderNumber(year int, seq int64) string {
	return fmt.Sprintf("ORD-%d-%04d", year, seq)
}
