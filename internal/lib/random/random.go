package random

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewSecretSeed returns byteLen random bytes from crypto/rand, hex-encoded.
// 32 bytes gives the 256 bits of entropy a server seed needs.
func NewSecretSeed(byteLen int) (string, error) {
	const op = "lib.random.NewSecretSeed"

	b := make([]byte, byteLen)

	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return hex.EncodeToString(b), nil
}
