package domain

import (
	"crypto/rand"
	"fmt"
	"time"
)

const alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// NewNumber builds a certificate number of the form CERT-YYYY-XXXXXXXX.
// Collisions are resolved by the caller retrying with a fresh number.
func NewNumber(now time.Time) (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	suffix := make([]byte, len(buf))
	for i, b := range buf {
		suffix[i] = alphabet[int(b)%len(alphabet)]
	}
	return fmt.Sprintf("CERT-%s-%s", now.UTC().Format("2006"), suffix), nil
}
