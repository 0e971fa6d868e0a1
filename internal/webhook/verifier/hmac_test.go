package verifier

import (
	"testing"

	webhookdomain "github.com/smallbiznis/invosync/internal/webhook/domain"
	"github.com/stretchr/testify/assert"
)

func TestVerifyHMAC(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"data":{"ids":[123]}}`)

	err := VerifyHMAC(secret, body, SignBody(secret, body))
	assert.NoError(t, err)

	err = VerifyHMAC(secret, body, "")
	assert.ErrorIs(t, err, webhookdomain.ErrMissingSignature)

	err = VerifyHMAC(secret, body, "deadbeef")
	assert.ErrorIs(t, err, webhookdomain.ErrInvalidSignature)

	// Signature over a different body must not verify.
	other := SignBody(secret, []byte(`{"data":{"ids":[456]}}`))
	err = VerifyHMAC(secret, body, other)
	assert.ErrorIs(t, err, webhookdomain.ErrInvalidSignature)

	// Wrong secret must not verify either.
	err = VerifyHMAC("whsec_other", body, SignBody(secret, body))
	assert.ErrorIs(t, err, webhookdomain.ErrInvalidSignature)
}
