package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// AccessTokenBytes is the entropy of a quotation share token. The hex form is
// twice as long.
const AccessTokenBytes = 32

// NewAccessToken returns a 64 character lowercase hex token.
func NewAccessToken() (string, error) {
	buf := make([]byte, AccessTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes for access token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// IsAccessToken reports whether s has the shape of a token issued by NewAccessToken.
func IsAccessToken(s string) bool {
	if len(s) != AccessTokenBytes*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
