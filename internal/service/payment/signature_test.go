package payment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignatureRoundTrip(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	header := Sign(secret, now, payload)
	require.NoError(t, VerifySignature(secret, header, payload, now, 5*time.Minute))
}

func TestSignatureRejectsTampering(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_1","amount":100}`)
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	header := Sign(secret, now, payload)

	tampered := []byte(`{"id":"evt_1","amount":900}`)
	assert.ErrorIs(t, VerifySignature(secret, header, tampered, now, 5*time.Minute), ErrBadSignature)
	assert.ErrorIs(t, VerifySignature("wrong", header, payload, now, 5*time.Minute), ErrBadSignature)
}

func TestSignatureRejectsStaleTimestamp(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{}`)
	signedAt := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	header := Sign(secret, signedAt, payload)

	require.NoError(t, VerifySignature(secret, header, payload, signedAt.Add(4*time.Minute), 5*time.Minute))
	assert.ErrorIs(t, VerifySignature(secret, header, payload, signedAt.Add(6*time.Minute), 5*time.Minute), ErrBadSignature)
	assert.ErrorIs(t, VerifySignature(secret, header, payload, signedAt.Add(-6*time.Minute), 5*time.Minute), ErrBadSignature)
}

func TestSignatureRejectsMalformedHeaders(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{}`)
	now := time.Now()

	for _, header := range []string{
		"",
		"t=abc,v1=deadbeef",
		"v1=deadbeef",
		"t=1718452800",
		"garbage",
	} {
		assert.ErrorIs(t, VerifySignature(secret, header, payload, now, 5*time.Minute), ErrBadSignature, "header %q", header)
	}
}
