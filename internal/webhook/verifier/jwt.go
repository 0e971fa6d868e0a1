package verifier

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	webhookdomain "github.com/smallbiznis/invosync/internal/webhook/domain"
)

// JWTVerifier validates ES256 bearer tokens attached to deliveries when
// token mode is enabled.
type JWTVerifier struct {
	key      *ecdsa.PublicKey
	issuer   string
	audience string
}

// NewJWTVerifier parses the PEM-encoded ES256 public key. Issuer and
// audience are only enforced when non-empty.
func NewJWTVerifier(publicKeyPEM, issuer, audience string) (*JWTVerifier, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, errors.New("jwt verifier: no PEM block in public key")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("jwt verifier: parse public key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("jwt verifier: public key is not ECDSA")
	}
	return &JWTVerifier{key: key, issuer: issuer, audience: audience}, nil
}

// Verify checks the Authorization header value. The token subject must
// match the expected subject for the delivery (company binding).
func (v *JWTVerifier) Verify(authorization, expectedSubject string) error {
	if authorization == "" {
		return webhookdomain.ErrMissingAuth
	}
	raw, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok {
		return webhookdomain.ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return v.key, nil
	}, opts...)
	if err != nil || !token.Valid {
		return webhookdomain.ErrInvalidToken
	}

	if expectedSubject != "" {
		subject, err := token.Claims.GetSubject()
		if err != nil || subject != expectedSubject {
			return webhookdomain.ErrInvalidToken
		}
	}
	return nil
}
