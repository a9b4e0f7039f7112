package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"id":"evt_1","type":"payment.succeeded"}`)

	sig := Sign(secret, body)
	assert.True(t, VerifySignature(secret, body, sig))
}

func TestVerifySignature_Rejects(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"id":"evt_1"}`)
	sig := Sign(secret, body)

	assert.False(t, VerifySignature(secret, []byte(`{"id":"evt_2"}`), sig), "tampered body")
	assert.False(t, VerifySignature("whsec_other", body, sig), "wrong secret")
	assert.False(t, VerifySignature(secret, body, ""), "empty signature")
	assert.False(t, VerifySignature(secret, body, "not-hex"), "garbage signature")
}

func TestSign_Deterministic(t *testing.T) {
	secret := "whsec_test"
	body := []byte("payload")
	assert.Equal(t, Sign(secret, body), Sign(secret, body))
	assert.Len(t, Sign(secret, body), 64)
}
