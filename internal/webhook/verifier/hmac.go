// Package verifier authenticates webhook deliveries. Both modes are pure
// functions of (secret-or-key, raw bytes, claimed credential); no I/O.
package verifier

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	webhookdomain "github.com/smallbiznis/invosync/internal/webhook/domain"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Signature"

// SignBody computes the hex HMAC-SHA256 a sender would attach.
func SignBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC checks the claimed signature against the raw body in constant
// time.
func VerifyHMAC(secret string, body []byte, signature string) error {
	if signature == "" {
		return webhookdomain.ErrMissingSignature
	}
	expected := SignBody(secret, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return webhookdomain.ErrInvalidSignature
	}
	return nil
}
