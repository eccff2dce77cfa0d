// Package cryptox holds the small crypto helpers shared by the gateway and the CLI.
package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

// SecretSize256 is a 256-bit secret, in bytes before encoding.
const SecretSize256 = 32

// MinSecretSize is the shortest HS256 secret the gateway will accept.
const MinSecretSize = SecretSize256

var ErrSecretSize = errors.New("cryptox: secret size must be positive")

// GenerateSecret returns size random bytes encoded as unpadded base64url.
func GenerateSecret(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("%w, got %d", ErrSecretSize, size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptox: read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Fingerprint is a short, stable digest of a token that is safe to log.
// It is the first 12 characters of the base64url SHA-256.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])[:12]
}
