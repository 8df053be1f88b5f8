package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActiveClaim(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	res := []Reservation{
		{CartID: "a", LotID: "lot", Quantity: 100, ExpiresAt: now.Add(10 * time.Minute)},
		{CartID: "b", LotID: "lot", Quantity: 40, ExpiresAt: now.Add(time.Second)},
		{CartID: "c", LotID: "lot", Quantity: 999, ExpiresAt: now.Add(-time.Minute)}, // expired
		{CartID: "d", LotID: "lot", Quantity: 7, ExpiresAt: now},                     // boundary: expired
	}
	assert.EqualValues(t, 140, ActiveClaim(res, now))
	assert.EqualValues(t, 0, ActiveClaim(nil, now))
}

func TestAdmitGrantsUpToEffectiveAvailability(t *testing.T) {
	now := time.Now().UTC()
	others := []Reservation{{CartID: "other", LotID: "lot", Quantity: 300, ExpiresAt: now.Add(15 * time.Minute)}}

	assert.NoError(t, Admit(1000, others, ReservationRequest{LotID: "lot", Quantity: 700}, now))

	err := Admit(1000, others, ReservationRequest{LotID: "lot", Quantity: 701}, now)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.EqualValues(t, 700, conflict.Available)
	assert.EqualValues(t, 1, conflict.Shortfall())
}

// A claim created at t0 with a 15m TTL no longer counts against a request
// evaluated at t0+16m, with no release call in between.
func TestAdmitIgnoresLapsedClaims(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	claim := []Reservation{{CartID: "a", LotID: "lot", Quantity: 1000, ExpiresAt: t0.Add(15 * time.Minute)}}
	req := ReservationRequest{LotID: "lot", Quantity: 1000}

	err := Admit(1000, claim, req, t0.Add(time.Minute))
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.EqualValues(t, 0, conflict.Available)

	assert.NoError(t, Admit(1000, claim, req, t0.Add(16*time.Minute)))
}

// Exactly one of two competing claims for the last unit can be granted: once
// the first is recorded, the second sees zero effective availability.
func TestAdmitLastUnit(t *testing.T) {
	now := time.Now().UTC()
	require.NoError(t, Admit(1, nil, ReservationRequest{LotID: "lot", Quantity: 1}, now))

	granted := []Reservation{{CartID: "winner", LotID: "lot", Quantity: 1, ExpiresAt: now.Add(15 * time.Minute)}}
	err := Admit(1, granted, ReservationRequest{LotID: "lot", Quantity: 1}, now)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.EqualValues(t, 0, conflict.Available)
}
