// Package pkce implements the PKCE verifier/challenge generation shared by
// the Verification Service (C5) and the Issuance Service (C6) — both flows
// generate their code_verifier and code_challenge identically (§4.5, §4.6).
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// GenerateVerifier returns a 32-byte URL-safe base64 value with no padding.
func GenerateVerifier() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate code verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ChallengeFor computes code_challenge = base64url(sha256(verifier)), no padding.
func ChallengeFor(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
