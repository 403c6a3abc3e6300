// Package otp generates and checks short numeric one-time codes.
package otp

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"io"
	"math/big"
	"strings"
	"time"
)

const (
	DefaultDigits = 6
	DefaultTTL    = 5 * time.Minute
	minDigits     = 4
	maxDigits     = 10
)

var ErrInvalidDigits = errors.New("otp digits must be between 4 and 10")

// Generate returns a uniformly random code of exactly digits decimal digits
// (leading zeros kept).
func Generate(digits int) (string, error) {
	return generate(rand.Reader, digits)
}

func generate(r io.Reader, digits int) (string, error) {
	if digits < minDigits || digits > maxDigits {
		return "", ErrInvalidDigits
	}

	var b strings.Builder
	b.Grow(digits)

	ten := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(r, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// Expiry is the instant a code issued at now stops being valid.
func Expiry(now time.Time, ttl time.Duration) time.Time {
	return now.Add(ttl)
}

// Matches reports whether submitted equals stored and is still valid at now.
// An empty stored code or a zero expiry never matches. A code is accepted up
// to and including its expiry instant.
func Matches(stored, submitted string, expiresAt, now time.Time) bool {
	if stored == "" || submitted == "" || expiresAt.IsZero() {
		return false
	}
	if now.After(expiresAt) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(submitted)) == 1
}
