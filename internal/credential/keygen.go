// internal/credential/keygen.go
package credential

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// KeyAlphabet is the character set access keys are drawn from.
const KeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultKeyLength matches the keys printed on existing access cards.
const DefaultKeyLength = 8

// KeyGenerator produces candidate keys. Candidates are not guaranteed unique.
type KeyGenerator func() (string, error)

// RandomKeys returns a generator of length-character keys drawn uniformly from KeyAlphabet.
func RandomKeys(length int) KeyGenerator {
	return func() (string, error) {
		return GenerateKey(length)
	}
}

// GenerateKey draws a random key from crypto/rand.
func GenerateKey(length int) (string, error) {
	size := big.NewInt(int64(len(KeyAlphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", fmt.Errorf("generate key: %w", err)
		}
		buf[i] = KeyAlphabet[n.Int64()]
	}
	return string(buf), nil
}
