// Package otp issues the short-lived numeric passcodes that gate entry
// into chat and video consultation rooms.
package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const codeDigits = 6

// Generate returns a zero-padded 6-digit code and its expiry instant.
func Generate(ttl time.Duration) (string, time.Time, error) {
	max := big.NewInt(1000000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("read otp entropy: %w", err)
	}
	code := fmt.Sprintf("%0*d", codeDigits, n.Int64())
	return code, time.Now().Add(ttl), nil
}

// Expired reports whether a stored passcode is no longer usable. A nil
// expiry means no code was ever issued.
func Expired(expiresAt *time.Time, now time.Time) bool {
	return expiresAt == nil || now.After(*expiresAt)
}
