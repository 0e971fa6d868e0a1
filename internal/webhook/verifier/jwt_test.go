package verifier

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	webhookdomain "github.com/smallbiznis/invosync/internal/webhook/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return key, string(pemBytes)
}

func signToken(t *testing.T, key *ecdsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestJWTVerifierValidToken(t *testing.T) {
	key, pub := newTestKey(t)
	v, err := NewJWTVerifier(pub, "fattureincloud", "invosync")
	require.NoError(t, err)

	signed := signToken(t, key, jwt.MapClaims{
		"iss": "fattureincloud",
		"aud": "invosync",
		"sub": "company:12345",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	assert.NoError(t, v.Verify("Bearer "+signed, "company:12345"))
}

func TestJWTVerifierMissingHeader(t *testing.T) {
	_, pub := newTestKey(t)
	v, err := NewJWTVerifier(pub, "", "")
	require.NoError(t, err)

	assert.ErrorIs(t, v.Verify("", "company:12345"), webhookdomain.ErrMissingAuth)
}

func TestJWTVerifierRejectsNonBearer(t *testing.T) {
	key, pub := newTestKey(t)
	v, err := NewJWTVerifier(pub, "", "")
	require.NoError(t, err)

	signed := signToken(t, key, jwt.MapClaims{
		"sub": "company:12345",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	assert.ErrorIs(t, v.Verify(signed, "company:12345"), webhookdomain.ErrInvalidToken)
}

func TestJWTVerifierRejectsExpired(t *testing.T) {
	key, pub := newTestKey(t)
	v, err := NewJWTVerifier(pub, "", "")
	require.NoError(t, err)

	signed := signToken(t, key, jwt.MapClaims{
		"sub": "company:12345",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})

	assert.ErrorIs(t, v.Verify("Bearer "+signed, "company:12345"), webhookdomain.ErrInvalidToken)
}

func TestJWTVerifierRejectsMissingExpiry(t *testing.T) {
	key, pub := newTestKey(t)
	v, err := NewJWTVerifier(pub, "", "")
	require.NoError(t, err)

	signed := signToken(t, key, jwt.MapClaims{"sub": "company:12345"})

	assert.ErrorIs(t, v.Verify("Bearer "+signed, "company:12345"), webhookdomain.ErrInvalidToken)
}

func TestJWTVerifierRejectsSubjectMismatch(t *testing.T) {
	key, pub := newTestKey(t)
	v, err := NewJWTVerifier(pub, "", "")
	require.NoError(t, err)

	signed := signToken(t, key, jwt.MapClaims{
		"sub": "company:99999",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	assert.ErrorIs(t, v.Verify("Bearer "+signed, "company:12345"), webhookdomain.ErrInvalidToken)
}

func TestJWTVerifierRejectsWrongKey(t *testing.T) {
	_, pub := newTestKey(t)
	otherKey, _ := newTestKey(t)
	v, err := NewJWTVerifier(pub, "", "")
	require.NoError(t, err)

	signed := signToken(t, otherKey, jwt.MapClaims{
		"sub": "company:12345",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	assert.ErrorIs(t, v.Verify("Bearer "+signed, "company:12345"), webhookdomain.ErrInvalidToken)
}

func TestNewJWTVerifierRejectsGarbageKey(t *testing.T) {
	_, err := NewJWTVerifier("not a pem", "", "")
	assert.Error(t, err)
}
