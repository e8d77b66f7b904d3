package access

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// tokenBytes gives 256 bits of entropy per share token
const tokenBytes = 32

// TokenGenerator produces share tokens
type TokenGenerator func() (string, error)

// GenerateToken returns a URL-safe share token from crypto/rand
func GenerateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate share token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
