package biz

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// tokenBytes is the entropy of a link token. 32 bytes of a CSPRNG encode to
// 43 base64url characters; tokens are never derived from owner, filename or
// a sequential counter, so links cannot be enumerated.
const tokenBytes = 32

// NewLinkToken generates a fresh unguessable link token
func NewLinkToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate link token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
