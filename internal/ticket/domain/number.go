package domain

import (
	"crypto/rand"
	"fmt"
	"time"
)

// alphabet omits characters easily confused when read aloud at a gate.
const alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// NewNumber builds a ticket number of the form TKT-YYYYMM-XXXXXX. The
// random suffix is drawn from crypto/rand; uniqueness is enforced by the
// database, callers retry on collision.
func NewNumber(now time.Time) (string, error) {
	suffix, err := randomSuffix(6)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("TKT-%s-%s", now.UTC().Format("200601"), suffix), nil
}

func randomSuffix(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out), nil
}
