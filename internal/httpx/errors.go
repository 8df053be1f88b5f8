package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/verdex/carbonmarket/internal/market"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the domain error taxonomy onto HTTP statuses so clients
// can branch without string matching. Anything unmapped is a retryable 500.
func writeError(w http.ResponseWriter, err error) {
	var conflict *market.ConflictError
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     "insufficient credits",
			"lot_id":    conflict.LotID,
			"requested": conflict.Requested,
			"available": conflict.Available,
			"shortfall": conflict.Shortfall(),
		})
	case errors.Is(err, market.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, market.ErrOrderNotPending):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, market.ErrPaymentDeclined):
		writeJSON(w, http.StatusPaymentRequired, map[string]string{"error": err.Error()})
	case errors.Is(err, market.ErrInvalidQuantity),
		errors.Is(err, market.ErrDuplicateItem),
		errors.Is(err, market.ErrEmptyCart):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
