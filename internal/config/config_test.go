package config_test

import (
	"errors"
	"testing"

	"github.com/entrada-events/entrada/internal/config"
)

func setPaymentEnv(t *testing.T, keySecret, webhookSecret string) {
	t.Setenv("PAYMENT_KEY_ID", "rzp_test_key")
	t.Setenv("PAYMENT_KEY_SECRET", keySecret)
	t.Setenv("PAYMENT_WEBHOOK_SECRET", webhookSecret)
}

func TestLoadRequiresSigningSecrets(t *testing.T) {
	setPaymentEnv(t, "checkout-secret", "webhook-secret")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Payment.KeySecret != "checkout-secret" || cfg.Payment.WebhookSecret != "webhook-secret" {
		t.Fatalf("unexpected payment config: %+v", cfg.Payment)
	}

	setPaymentEnv(t, "checkout-secret", "")
	if _, err := config.Load(); !errors.Is(err, config.ErrMissingWebhookSecret) {
		t.Fatalf("expected ErrMissingWebhookSecret, got %v", err)
	}

	// An empty checkout key secret would make every forged signature
	// verify. It must be fatal, not a silently empty HMAC key.
	setPaymentEnv(t, "", "webhook-secret")
	if _, err := config.Load(); !errors.Is(err, config.ErrMissingKeySecret) {
		t.Fatalf("expected ErrMissingKeySecret, got %v", err)
	}

	setPaymentEnv(t, "   ", "webhook-secret")
	if _, err := config.Load(); !errors.Is(err, config.ErrMissingKeySecret) {
		t.Fatalf("expected ErrMissingKeySecret for blank secret, got %v", err)
	}
}
