package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/verdex/carbonmarket/internal/identity"
	"github.com/verdex/carbonmarket/internal/market"
)

type CartService interface {
	ActiveCart(ctx context.Context, ownerID string) (*market.Cart, error)
	AddItem(ctx context.Context, ownerID, lotID string, qty int64) (*market.Cart, error)
	UpdateItem(ctx context.Context, ownerID, itemID string, qty int64) (*market.Cart, error)
	RemoveItem(ctx context.Context, ownerID, itemID string) (*market.Cart, error)
	ClearCart(ctx context.Context, ownerID string) error
}

type LotReader interface {
	ListLots(ctx context.Context) ([]market.CreditLot, error)
}

type CartHandler struct {
	Carts CartService
	Lots  LotReader
}

func (h *CartHandler) Register(r *chi.Mux) {
	r.Get("/lots", h.listLots)
	r.Group(func(r chi.Router) {
		r.Use(RequireIdentity)
		r.Get("/cart", h.getCart)
		r.Post("/cart/items", h.addItem)
		r.Put("/cart/items/{itemID}", h.updateItem)
		r.Delete("/cart/items/{itemID}", h.removeItem)
		r.Delete("/cart", h.clearCart)
	})
}

type addItemReq struct {
	LotID    string `json:"lot_id"`
	Quantity int64  `json:"quantity"`
}

type updateItemReq struct {
	Quantity int64 `json:"quantity"`
}

type cartItemView struct {
	ID       string          `json:"id"`
	LotID    string          `json:"lot_id"`
	SKU      string          `json:"sku"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
}

type cartView struct {
	ID         string          `json:"id"`
	Items      []cartItemView  `json:"items"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	ServiceFee decimal.Decimal `json:"service_fee"`
	Total      decimal.Decimal `json:"total"`
	ExpiresAt  time.Time       `json:"expires_at"`
}

func toCartView(c *market.Cart) cartView {
	v := cartView{
		ID:         c.ID,
		Items:      make([]cartItemView, 0, len(c.Items)),
		Subtotal:   c.Subtotal,
		ServiceFee: c.ServiceFee,
		Total:      c.Total,
		ExpiresAt:  c.ExpiresAt,
	}
	for _, it := range c.Items {
		v.Items = append(v.Items, cartItemView{
			ID: it.ID, LotID: it.LotID, SKU: it.LotSKU, Name: it.LotName,
			Price: it.LotPrice, Quantity: it.Quantity,
		})
	}
	return v
}

func (h *CartHandler) listLots(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	lots, err := h.Lots.ListLots(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lots)
}

func (h *CartHandler) getCart(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.From(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	cart, err := h.Carts.ActiveCart(ctx, id.CompanyID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartView(cart))
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.LotID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing lot_id"})
		return
	}

	id, _ := identity.From(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	cart, err := h.Carts.AddItem(ctx, id.CompanyID, req.LotID, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCartView(cart))
}

func (h *CartHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	id, _ := identity.From(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	cart, err := h.Carts.UpdateItem(ctx, id.CompanyID, chi.URLParam(r, "itemID"), req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartView(cart))
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.From(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	cart, err := h.Carts.RemoveItem(ctx, id.CompanyID, chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartView(cart))
}

func (h *CartHandler) clearCart(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.From(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Carts.ClearCart(ctx, id.CompanyID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
