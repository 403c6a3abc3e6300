package otp

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestGenerateLengthAndAlphabet(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := Generate(DefaultDigits)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if len(code) != DefaultDigits {
			t.Fatalf("expected %d digits, got %q", DefaultDigits, code)
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("unexpected character in %q", code)
			}
		}
	}
}

func TestGenerateRejectsBadDigits(t *testing.T) {
	for _, d := range []int{0, 3, 11} {
		if _, err := Generate(d); !errors.Is(err, ErrInvalidDigits) {
			t.Fatalf("digits=%d: expected ErrInvalidDigits, got %v", d, err)
		}
	}
}

func TestGeneratePropagatesEntropyFailure(t *testing.T) {
	if _, err := generate(bytes.NewReader(nil), 6); err == nil {
		t.Fatal("expected error from exhausted entropy source")
	}
}

func TestMatches(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	exp := Expiry(now, DefaultTTL)

	if !Matches("123456", "123456", exp, now) {
		t.Fatal("expected fresh code to match")
	}
	if !Matches("123456", "123456", exp, exp) {
		t.Fatal("expected code to match at its expiry instant")
	}
	if Matches("123456", "123456", exp, exp.Add(time.Second)) {
		t.Fatal("expected expired code to be rejected")
	}
	if Matches("123456", "654321", exp, now) {
		t.Fatal("expected mismatched code to be rejected")
	}
	if Matches("", "", exp, now) {
		t.Fatal("expected cleared code to be rejected")
	}
	if Matches("123456", "123456", time.Time{}, now) {
		t.Fatal("expected code without expiry to be rejected")
	}
	if Matches("123456", "1234567", exp, now) {
		t.Fatal("expected different-length code to be rejected")
	}
}
