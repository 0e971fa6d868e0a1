package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"

	subscriptiondomain "github.com/smallbiznis/invosync/internal/subscription/domain"
)

type encryptedPayload struct {
	Version    int    `json:"version"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

func (s *subscriptionService) encryptSecret(secret string) (string, error) {
	if len(s.encKey) == 0 {
		return "", subscriptiondomain.ErrEncryptionKeyMissing
	}

	block, err := aes.NewCipher(s.encKey)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(secret), nil)
	out, err := json.Marshal(encryptedPayload{
		Version:    1,
		Nonce:      base64.RawStdEncoding.EncodeToString(nonce),
		Ciphertext: base64.RawStdEncoding.EncodeToString(ciphertext),
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (s *subscriptionService) decryptSecret(encrypted string) (string, error) {
	if len(s.encKey) == 0 {
		return "", subscriptiondomain.ErrEncryptionKeyMissing
	}
	if encrypted == "" {
		return "", subscriptiondomain.ErrSecretCorrupted
	}

	var payload encryptedPayload
	if err := json.Unmarshal([]byte(encrypted), &payload); err != nil {
		return "", subscriptiondomain.ErrSecretCorrupted
	}
	if payload.Version != 1 {
		return "", subscriptiondomain.ErrSecretCorrupted
	}

	nonce, err := base64.RawStdEncoding.DecodeString(payload.Nonce)
	if err != nil {
		return "", subscriptiondomain.ErrSecretCorrupted
	}
	ciphertext, err := base64.RawStdEncoding.DecodeString(payload.Ciphertext)
	if err != nil {
		return "", subscriptiondomain.ErrSecretCorrupted
	}

	block, err := aes.NewCipher(s.encKey)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", subscriptiondomain.ErrSecretCorrupted
	}
	return string(plain), nil
}
