// Package auth guards the local dashboard server: bearer tokens checked
// against a bcrypt hash, and per-client rate limits.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// TokenPrefix marks dashboard tokens.
	TokenPrefix = "riq_sk_" // #nosec G101 -- prefix, not a credential

	// TokenLength is the random part of a token in bytes (hex encoded).
	TokenLength = 32

	// maskedPrefixLength is how much of the secret MaskToken keeps.
	maskedPrefixLength = 4
)

// hashCost is the bcrypt cost factor.
var hashCost = 12

// GenerateToken returns a new random dashboard token.
// Format: riq_sk_<64 hex chars>
func GenerateToken() (string, error) {
	b := make([]byte, TokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return TokenPrefix + hex.EncodeToString(b), nil
}

// HashToken creates a bcrypt hash of a token's secret part.
func HashToken(token string) (string, error) {
	secret := strings.TrimPrefix(token, TokenPrefix)
	if secret == "" {
		return "", ErrMissingToken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), hashCost)
	if err != nil {
		return "", fmt.Errorf("hash token: %w", err)
	}
	return string(hash), nil
}

// VerifyToken checks a token against a hash.
func VerifyToken(token, hash string) bool {
	secret := strings.TrimPrefix(token, TokenPrefix)
	if secret == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// IsValidTokenFormat checks the prefix and hex body of a generated token.
func IsValidTokenFormat(token string) bool {
	secret, ok := strings.CutPrefix(token, TokenPrefix)
	if !ok || len(secret) != TokenLength*2 {
		return false
	}
	_, err := hex.DecodeString(secret)
	return err == nil
}

// MaskToken returns a token safe for display, e.g. riq_sk_a1b2****.
func MaskToken(token string) string {
	if len(token) < len(TokenPrefix)+maskedPrefixLength {
		return "****"
	}
	return token[:len(TokenPrefix)+maskedPrefixLength] + "****"
}

// RequestToken extracts the token from an Authorization bearer header, or
// from the token query parameter for clients that cannot set headers.
func RequestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
