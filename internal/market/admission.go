package market

import "time"

// ActiveClaim sums the quantity held by reservations that are still live at
// now. Expired rows contribute nothing: lapsing is how capacity frees itself
// without an explicit release.
func ActiveClaim(reservations []Reservation, now time.Time) int64 {
	var sum int64
	for _, r := range reservations {
		if r.ExpiresAt.After(now) {
			sum += r.Quantity
		}
	}
	return sum
}

// Admit decides whether a lot can cover a requested quantity given the other
// carts' reservations. Pure: the caller reads the lot row and the competing
// reservations inside one transaction and this function only does the
// arithmetic.
func Admit(available int64, others []Reservation, req ReservationRequest, now time.Time) error {
	effective := available - ActiveClaim(others, now)
	if effective < req.Quantity {
		return &ConflictError{LotID: req.LotID, Requested: req.Quantity, Available: effective}
	}
	return nil
}
