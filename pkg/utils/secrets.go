package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateSecret returns length random bytes hex encoded. A 16 byte secret
// yields a 32 character string, which is a valid AES-256 key and a good
// CRON_SECRET.
func GenerateSecret(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
