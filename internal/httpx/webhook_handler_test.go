package httpx

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hollybrook/storefront/internal/checkout"
	"github.com/hollybrook/storefront/internal/payment"
)

type stubReconciler struct {
	events []checkout.Event
	err    error
}

func (s *stubReconciler) HandleEvent(_ context.Context, ev checkout.Event) error {
	s.events = append(s.events, ev)
	return s.err
}

const webhookSecret = "whsec_test"

func postWebhook(t *testing.T, rec *stubReconciler, body []byte, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	h := &WebhookHandler{Secret: webhookSecret, Reconciler: rec}
	h.Register(r)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	if sign {
		req.Header.Set(payment.SignatureHeader, payment.Sign(webhookSecret, body))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhook_AcceptsSignedEvent(t *testing.T) {
	rec := &stubReconciler{}
	body := []byte(`{"event_id":"evt_1","reference_id":"ps_abc","outcome":"succeeded"}`)

	w := postWebhook(t, rec, body, true)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":true}`, w.Body.String())
	require.Len(t, rec.events, 1)
	assert.Equal(t, "evt_1", rec.events[0].EventID)
	assert.Equal(t, "ps_abc", rec.events[0].ReferenceID)
	assert.Equal(t, "succeeded", rec.events[0].Outcome)
}

func TestWebhook_RejectsMissingSignature(t *testing.T) {
	rec := &stubReconciler{}
	body := []byte(`{"event_id":"evt_1","reference_id":"ps_abc","outcome":"succeeded"}`)

	w := postWebhook(t, rec, body, false)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, rec.events, "unverified payloads must never reach the reconciler")
}

func TestWebhook_RejectsTamperedBody(t *testing.T) {
	rec := &stubReconciler{}
	body := []byte(`{"event_id":"evt_1","reference_id":"ps_abc","outcome":"succeeded"}`)

	r := chi.NewRouter()
	h := &WebhookHandler{Secret: webhookSecret, Reconciler: rec}
	h.Register(r)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	req.Header.Set(payment.SignatureHeader, payment.Sign(webhookSecret, []byte("other")))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, rec.events)
}

func TestWebhook_RejectsBadJSON(t *testing.T) {
	rec := &stubReconciler{}
	w := postWebhook(t, rec, []byte(`{not json`), true)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, rec.events)
}

func TestWebhook_RejectsMissingIDs(t *testing.T) {
	rec := &stubReconciler{}
	w := postWebhook(t, rec, []byte(`{"outcome":"succeeded"}`), true)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, rec.events)
}

func TestWebhook_InfraFailureAsksForRedelivery(t *testing.T) {
	rec := &stubReconciler{err: errors.New("db down")}
	body := []byte(`{"event_id":"evt_1","reference_id":"ps_abc","outcome":"succeeded"}`)

	w := postWebhook(t, rec, body, true)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
