package httpx

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hollybrook/storefront/internal/checkout"
	"github.com/hollybrook/storefront/internal/payment"
)

type eventHandler interface {
	HandleEvent(ctx context.Context, ev checkout.Event) error
}

type WebhookHandler struct {
	Secret     string
	Reconciler eventHandler
}

func (h *WebhookHandler) Register(r *chi.Mux) {
	r.Post("/webhooks/payment", h.handle)
}

func (h *WebhookHandler) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	sig := r.Header.Get(payment.SignatureHeader)
	if sig == "" || !payment.VerifySignature(h.Secret, body, sig) {
		log.Printf("warn: webhook rejected, bad signature from %s", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var ev checkout.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if ev.EventID == "" || ev.ReferenceID == "" {
		writeError(w, http.StatusBadRequest, "missing event_id or reference_id")
		return
	}

	// A non-nil error means infrastructure trouble; a 5xx asks the
	// provider to redeliver. Everything classifiable is acknowledged.
	if err := h.Reconciler.HandleEvent(r.Context(), ev); err != nil {
		log.Printf("webhook event=%s ref=%s: %v", ev.EventID, ev.ReferenceID, err)
		writeError(w, http.StatusInternalServerError, "temporary failure")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
