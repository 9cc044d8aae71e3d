package auth

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateAndValidateToken(t *testing.T) {
	sec := "secret123"
	dev := "kitchen"
	exp := time.Now().Add(5 * time.Minute).Unix()

	tok, err := GenerateDeviceToken(sec, dev, exp)
	if err != nil {
		t.Fatalf("gen: %v", err)
	}

	gotDev, gotExp, err := ValidateDeviceToken(sec, tok, dev, time.Now(), 60)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if gotDev != dev || gotExp != exp {
		t.Fatalf("mismatch: %s/%d", gotDev, gotExp)
	}
}

func TestBadSignature(t *testing.T) {
	exp := time.Now().Add(5 * time.Minute).Unix()
	tok, _ := GenerateDeviceToken("secret123", "kitchen", exp)

	_, _, err := ValidateDeviceToken("other-secret", tok, "kitchen", time.Now(), 60)
	if !errors.Is(err, ErrTokenSig) {
		t.Fatalf("expected ErrTokenSig, got %v", err)
	}
}

func TestExpiredAndMismatch(t *testing.T) {
	exp := time.Now().Add(-5 * time.Minute).Unix()
	tok, _ := GenerateDeviceToken("s", "kitchen", exp)

	if _, _, err := ValidateDeviceToken("s", tok, "kitchen", time.Now(), 30); !errors.Is(err, ErrTokenExp) {
		t.Fatalf("expected ErrTokenExp, got %v", err)
	}
	if _, _, err := ValidateDeviceToken("s", tok, "office", time.Now(), 3600); !errors.Is(err, ErrTokenDevice) {
		t.Fatalf("expected ErrTokenDevice, got %v", err)
	}
	if _, _, err := ValidateDeviceToken("s", "!!!", "", time.Now(), 30); !errors.Is(err, ErrTokenFormat) {
		t.Fatalf("expected ErrTokenFormat, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	if got := BearerToken("Bearer abc"); got != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}
	if got := BearerToken("Basic abc"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
