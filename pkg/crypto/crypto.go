// Package crypto is the text confidentiality service. Chat text is stored
// as Fernet tokens keyed per user; everything else in the system treats the
// ciphertext as an opaque string.
package crypto

import (
	"errors"
	"fmt"

	"github.com/fernet/fernet-go"
)

// ErrDecrypt is returned when a ciphertext cannot be verified or decrypted
// with the provided key.
var ErrDecrypt = errors.New("ciphertext verification failed")

// GenerateKey creates a new base64-encoded Fernet key.
func GenerateKey() (string, error) {
	var key fernet.Key
	if err := key.Generate(); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return key.Encode(), nil
}

// EncryptString encrypts plaintext with the given base64-encoded key and
// returns the Fernet token.
func EncryptString(key string, plaintext string) (string, error) {
	k, err := fernet.DecodeKey(key)
	if err != nil {
		return "", fmt.Errorf("invalid encryption key: %w", err)
	}
	token, err := fernet.EncryptAndSign([]byte(plaintext), k)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt: %w", err)
	}
	return string(token), nil
}

// DecryptString verifies and decrypts a Fernet token produced by
// EncryptString. Stored chat text must stay readable indefinitely, so the
// TTL check is skipped (a negative TTL disables it; zero would still expire
// tokens after the 60s clock-skew allowance).
func DecryptString(key string, ciphertext string) (string, error) {
	k, err := fernet.DecodeKey(key)
	if err != nil {
		return "", fmt.Errorf("invalid encryption key: %w", err)
	}
	plaintext := fernet.VerifyAndDecrypt([]byte(ciphertext), -1, []*fernet.Key{k})
	if plaintext == nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}
