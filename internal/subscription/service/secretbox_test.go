package service

import (
	"crypto/sha256"
	"encoding/json"
	"testing"

	subscriptiondomain "github.com/smallbiznis/invosync/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSecretbox(t *testing.T) *subscriptionService {
	t.Helper()
	sum := sha256.Sum256([]byte("test-encryption-key"))
	return &subscriptionService{encKey: sum[:]}
}

func TestSecretRoundTrip(t *testing.T) {
	s := newSecretbox(t)

	encrypted, err := s.encryptSecret("whsec_abc123")
	require.NoError(t, err)

	var payload encryptedPayload
	require.NoError(t, json.Unmarshal([]byte(encrypted), &payload))
	assert.Equal(t, 1, payload.Version)
	assert.NotContains(t, encrypted, "whsec_abc123")

	plain, err := s.decryptSecret(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "whsec_abc123", plain)
}

func TestSecretNoncesDiffer(t *testing.T) {
	s := newSecretbox(t)

	first, err := s.encryptSecret("same-secret")
	require.NoError(t, err)
	second, err := s.encryptSecret("same-secret")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestDecryptRejectsCorruptedPayload(t *testing.T) {
	s := newSecretbox(t)

	_, err := s.decryptSecret("")
	assert.ErrorIs(t, err, subscriptiondomain.ErrSecretCorrupted)

	_, err = s.decryptSecret("not json")
	assert.ErrorIs(t, err, subscriptiondomain.ErrSecretCorrupted)

	_, err = s.decryptSecret(`{"version":2,"nonce":"","ciphertext":""}`)
	assert.ErrorIs(t, err, subscriptiondomain.ErrSecretCorrupted)
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	s := newSecretbox(t)
	encrypted, err := s.encryptSecret("whsec_abc123")
	require.NoError(t, err)

	otherSum := sha256.Sum256([]byte("another-key"))
	other := &subscriptionService{encKey: otherSum[:]}
	_, err = other.decryptSecret(encrypted)
	assert.ErrorIs(t, err, subscriptiondomain.ErrSecretCorrupted)
}

func TestEncryptRequiresKey(t *testing.T) {
	s := &subscriptionService{}
	_, err := s.encryptSecret("whsec_abc123")
	assert.ErrorIs(t, err, subscriptiondomain.ErrEncryptionKeyMissing)

	_, err = s.decryptSecret(`{"version":1}`)
	assert.ErrorIs(t, err, subscriptiondomain.ErrEncryptionKeyMissing)
}
