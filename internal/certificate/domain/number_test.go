package domain_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/entrada-events/entrada/internal/certificate/domain"
)

func TestNewNumberFormat(t *testing.T) {
	now := time.Date(2026, time.November, 2, 18, 0, 0, 0, time.UTC)

	format := regexp.MustCompile(`^CERT-2026-[ABCDEFGHJKMNPQRSTUVWXYZ23456789]{8}$`)
	for i := 0; i < 50; i++ {
		number, err := domain.NewNumber(now)
		if err != nil {
			t.Fatalf("new number: %v", err)
		}
		if !format.MatchString(number) {
			t.Fatalf("number %q does not match expected format", number)
		}
	}
}
