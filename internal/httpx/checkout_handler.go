package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/hollybrook/storefront/internal/checkout"
	"github.com/hollybrook/storefront/internal/redisx"
)

type CheckoutHandler struct {
	Orchestrator *checkout.Orchestrator
	Orders       *checkout.Store
	Redis        *redis.Client
}

func (h *CheckoutHandler) Register(r *chi.Mux) {
	r.Post("/checkout/session", h.createSession)
	r.Get("/orders/{id}", h.getOrder)
}

func (h *CheckoutHandler) createSession(w http.ResponseWriter, r *http.Request) {
	var req checkout.SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	sess, err := h.Orchestrator.CreateSession(ctx, req)
	if err != nil {
		h.writeCheckoutError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// Validation and stock errors carry enough detail for the customer to
// self-correct; provider and datastore failures are logged with correlation
// ids and surfaced as a generic retry message.
func (h *CheckoutHandler) writeCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *checkout.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":  "validation failed",
			"field":  verr.Field,
			"detail": verr.Reason,
		})
		return
	}
	var serr *checkout.InsufficientStockError
	if errors.As(err, &serr) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      "insufficient stock",
			"variant_id": serr.VariantID,
			"requested":  serr.Requested,
			"available":  serr.Available,
		})
		return
	}
	var perr *checkout.PaymentProviderError
	if errors.As(err, &perr) {
		log.Printf("payment provider failure order=%s: %v", perr.OrderID, perr.Err)
		writeError(w, http.StatusBadGateway, "payment could not be started, please try again")
		return
	}
	log.Printf("checkout failure: %v", err)
	writeError(w, http.StatusInternalServerError, "something went wrong, please try again")
}

type orderStatusView struct {
	OrderID    string          `json:"order_id"`
	Number     string          `json:"number"`
	Status     checkout.Status `json:"status"`
	TotalCents int             `json:"total_cents"`
}

func (h *CheckoutHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "missing id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if h.Redis != nil {
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(s))
			return
		}
	}

	o, err := h.Orders.GetOrder(ctx, orderID)
	if errors.Is(err, checkout.ErrOrderNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		log.Printf("get order %s: %v", orderID, err)
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	view := orderStatusView{OrderID: o.ID, Number: o.Number, Status: o.Status, TotalCents: o.TotalCents}
	b, _ := json.Marshal(view)
	// Only terminal statuses are cacheable; pending would go stale the
	// moment the webhook lands.
	if h.Redis != nil && o.Status.Terminal() {
		_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}
