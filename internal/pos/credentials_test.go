package pos

import (
	"errors"
	"testing"
	"time"
)

func TestSealerOpensWhatItSeals(t *testing.T) {
	sealer, err := NewSealer("unit-test-key")
	if err != nil {
		t.Fatalf("new sealer failed: %v", err)
	}
	creds := Credentials{
		AccessToken:  "at_1",
		RefreshToken: "rt_1",
		Expiry:       time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		MerchantRef:  "MLX1",
	}
	sealed, err := sealer.Seal(creds)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	opened, err := sealer.Open(sealed)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if opened.AccessToken != "at_1" || opened.MerchantRef != "MLX1" || !opened.Expiry.Equal(creds.Expiry) {
		t.Fatalf("unexpected credentials: %+v", opened)
	}

	other, _ := NewSealer("another-key")
	if _, err := other.Open(sealed); !errors.Is(err, ErrCredentialSeal) {
		t.Fatalf("expected seal error with wrong key, got %v", err)
	}
	if _, err := NewSealer("  "); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected config error for empty key, got %v", err)
	}
}
