package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	TokenPrefix = "cb_"
	Alphabet    = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// GenerateToken creates a secure random callback token using NanoID with a prefix.
// The token is handed to the gateway in the notify URL and verified on every
// delivery report before the report touches stored messages.
func GenerateToken() (string, error) {
	id, err := gonanoid.Generate(Alphabet, 32)
	if err != nil {
		return "", err
	}
	return TokenPrefix + id, nil
}

// HashToken returns a SHA-256 hash of the provided token.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", hash)
}

// VerifyToken compares a presented token against the configured hash in
// constant time.
func VerifyToken(presented, wantHash string) bool {
	if presented == "" || wantHash == "" {
		return false
	}
	got := HashToken(presented)
	return subtle.ConstantTimeCompare([]byte(got), []byte(wantHash)) == 1
}
