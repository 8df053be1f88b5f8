package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/verdex/carbonmarket/internal/identity"
	"github.com/verdex/carbonmarket/internal/market"
	"github.com/verdex/carbonmarket/internal/redisx"
)

type CheckoutService interface {
	Initiate(ctx context.Context, ownerID, userID, paymentMethod string) (*market.Order, error)
	Confirm(ctx context.Context, orderID, ownerID, userID string) (*market.Order, error)
}

type OrderReader interface {
	GetForOwner(ctx context.Context, orderID, ownerID string) (*market.Order, error)
	ListForOwner(ctx context.Context, ownerID string) ([]market.Order, error)
}

type CheckoutHandler struct {
	Checkout CheckoutService
	Orders   OrderReader
	Redis    *redis.Client
}

func (h *CheckoutHandler) Register(r *chi.Mux) {
	r.Group(func(r chi.Router) {
		r.Use(RequireIdentity)
		r.Post("/checkout", h.initiate)
		r.Post("/orders/{orderID}/confirm", h.confirm)
		r.Get("/orders", h.listOrders)
		r.Get("/orders/{orderID}", h.getOrder)
		r.Get("/orders/{orderID}/status", h.getOrderStatus)
	})
}

type initiateReq struct {
	PaymentMethod string `json:"payment_method"`
}

type orderItemView struct {
	LotID     string          `json:"lot_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type orderView struct {
	ID             string          `json:"id"`
	OrderNumber    string          `json:"order_number"`
	Status         market.Status   `json:"status"`
	Items          []orderItemView `json:"items,omitempty"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	ServiceFee     decimal.Decimal `json:"service_fee"`
	Total          decimal.Decimal `json:"total"`
	PaymentID      string          `json:"payment_id,omitempty"`
	TransactionRef string          `json:"transaction_ref,omitempty"`
	FailureReason  string          `json:"failure_reason,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

func toOrderView(o *market.Order) orderView {
	v := orderView{
		ID:             o.ID,
		OrderNumber:    o.OrderNumber,
		Status:         o.Status,
		Subtotal:       o.Subtotal,
		ServiceFee:     o.ServiceFee,
		Total:          o.Total,
		PaymentID:      o.PaymentID,
		TransactionRef: o.TransactionRef,
		FailureReason:  o.FailureReason,
		CreatedAt:      o.CreatedAt,
		CompletedAt:    o.CompletedAt,
	}
	for _, it := range o.Items {
		v.Items = append(v.Items, orderItemView{LotID: it.LotID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	return v
}

func (h *CheckoutHandler) initiate(w http.ResponseWriter, r *http.Request) {
	var req initiateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.PaymentMethod == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing payment_method"})
		return
	}

	id, _ := identity.From(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	order, err := h.Checkout.Initiate(ctx, id.CompanyID, id.UserID, req.PaymentMethod)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, order)
	writeJSON(w, http.StatusCreated, toOrderView(order))
}

func (h *CheckoutHandler) confirm(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.From(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	orderID := chi.URLParam(r, "orderID")
	order, err := h.Checkout.Confirm(ctx, orderID, id.CompanyID, id.UserID)
	if err != nil {
		// terminal failures still changed the order; drop any stale cache
		h.dropStatus(ctx, id.CompanyID, orderID)
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, order)
	writeJSON(w, http.StatusOK, toOrderView(order))
}

func (h *CheckoutHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.From(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	orders, err := h.Orders.ListForOwner(ctx, id.CompanyID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]orderView, 0, len(orders))
	for i := range orders {
		out = append(out, toOrderView(&orders[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *CheckoutHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.From(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	order, err := h.Orders.GetForOwner(ctx, chi.URLParam(r, "orderID"), id.CompanyID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(order))
}

// getOrderStatus serves from the Redis cache first; DB is the fallback and
// the truth.
func (h *CheckoutHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.From(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// The key carries the company, so one tenant's cache hit can never
	// answer another tenant's request.
	orderID := chi.URLParam(r, "orderID")
	key := fmt.Sprintf(redisx.KeyOrderStatus, id.CompanyID, orderID)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(s))
		return
	}

	order, err := h.Orders.GetForOwner(ctx, orderID, id.CompanyID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, order)
	writeJSON(w, http.StatusOK, map[string]any{"status": order.Status})
}

func (h *CheckoutHandler) cacheStatus(ctx context.Context, o *market.Order) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.OwnerID, o.ID)
	body, _ := json.Marshal(map[string]any{"status": o.Status})
	_ = h.Redis.Set(ctx, key, body, redisx.TTLStatusCache).Err()
}

func (h *CheckoutHandler) dropStatus(ctx context.Context, ownerID, orderID string) {
	_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyOrderStatus, ownerID, orderID)).Err()
}
