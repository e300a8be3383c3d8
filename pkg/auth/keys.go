package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// APIKeyPrefix marks bearer tokens that are API keys rather than JWTs.
const APIKeyPrefix = "aai-"

// partialKeyLen is how many characters of the secret are kept for display.
const partialKeyLen = 8

// GenerateAPIKey mints a new secret. Only the hash is stored; the full
// secret is shown to the caller once.
func GenerateAPIKey() (secret, partial, hash string, err error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("generating api key: %w", err)
	}
	secret = APIKeyPrefix + base64.RawURLEncoding.EncodeToString(raw)
	return secret, PartialKey(secret), HashKey(secret), nil
}

// HashKey derives the at-rest lookup hash of a secret.
func HashKey(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// PartialKey returns the display form: the first characters followed by
// an ellipsis.
func PartialKey(secret string) string {
	if len(secret) <= partialKeyLen {
		return secret
	}
	return secret[:partialKeyLen] + "****"
}

// IsAPIKey reports whether a bearer token is an API key.
func IsAPIKey(token string) bool {
	return strings.HasPrefix(token, APIKeyPrefix)
}
