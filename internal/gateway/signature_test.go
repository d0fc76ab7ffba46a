package gateway

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test"

func signedHeader(secret string, ts time.Time, body []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), ComputeSignature(secret, ts.Unix(), body))
}

func TestVerifySignatureValid(t *testing.T) {
	now := time.Now()
	body := []byte(`{"type":"checkout.session.completed"}`)
	header := signedHeader(testWebhookSecret, now, body)

	require.NoError(t, VerifySignature(testWebhookSecret, header, body, now))
}

func TestVerifySignatureToleratesSpacesAndExtraParts(t *testing.T) {
	now := time.Now()
	body := []byte(`{}`)
	header := fmt.Sprintf("t=%d, v0=ignored, v1=%s", now.Unix(), ComputeSignature(testWebhookSecret, now.Unix(), body))

	require.NoError(t, VerifySignature(testWebhookSecret, header, body, now))
}

func TestVerifySignatureRejectsOldDelivery(t *testing.T) {
	now := time.Now()
	body := []byte(`{}`)
	signedAt := now.Add(-SignatureTolerance - time.Second)
	header := signedHeader(testWebhookSecret, signedAt, body)

	err := VerifySignature(testWebhookSecret, header, body, now)
	assert.ErrorIs(t, err, ErrSignatureExpired)
}

func TestVerifySignatureRejectsFutureDelivery(t *testing.T) {
	now := time.Now()
	body := []byte(`{}`)
	signedAt := now.Add(SignatureTolerance + time.Second)
	header := signedHeader(testWebhookSecret, signedAt, body)

	err := VerifySignature(testWebhookSecret, header, body, now)
	assert.ErrorIs(t, err, ErrSignatureExpired)
}

func TestVerifySignatureRejectsMalformedHeader(t *testing.T) {
	now := time.Now()
	body := []byte(`{}`)

	for _, header := range []string{
		"",
		"garbage",
		"t=notanumber,v1=abc",
		fmt.Sprintf("t=%d", now.Unix()),
		"v1=deadbeef",
	} {
		err := VerifySignature(testWebhookSecret, header, body, now)
		assert.ErrorIs(t, err, ErrSignatureFormat, "header %q", header)
	}
}

func TestVerifySignatureRejectsWrongSecret(t *testing.T) {
	now := time.Now()
	body := []byte(`{"amount":49.99}`)
	header := signedHeader("whsec_other", now, body)

	err := VerifySignature(testWebhookSecret, header, body, now)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestVerifySignatureRejectsTamperedBody(t *testing.T) {
	now := time.Now()
	header := signedHeader(testWebhookSecret, now, []byte(`{"amount":49.99}`))

	err := VerifySignature(testWebhookSecret, header, []byte(`{"amount":0.01}`), now)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}
