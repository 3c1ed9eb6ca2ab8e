package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// generateToken returns a 64-character hex capability token. Share links
// and approval tokens are bearer capabilities, so they carry more entropy
// than a plain uuid.
func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("token: read random %w", err)
	}
	return hex.EncodeToString(buf), nil
}
