// Package common provides small shared utilities: secure random code and
// password generation.
package common

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
)

// Character sets for generated codes and passwords.
const (
	Letters      = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	LowerLetters = "abcdefghijklmnopqrstuvwxyz"
	Digits       = "0123456789"
	PasswordSet  = Letters + LowerLetters + Digits

	// GeneratedPasswordLen is the length of auto-generated passwords sent
	// to users on reset.
	GeneratedPasswordLen = 10
)

// secureRandomInt returns a cryptographically secure random number in [0, max).
func secureRandomInt(max int) (int, error) {
	if max <= 0 {
		return 0, fmt.Errorf("max must be positive, got %d", max)
	}
	if max > math.MaxInt32 {
		return 0, fmt.Errorf("max too large: %d", max)
	}
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("unable to read random bytes: %w", err)
	}
	n := binary.BigEndian.Uint32(buf[:])
	return int(n % uint32(max)), nil
}

// RandomCode returns a random string of the given length drawn from charset.
func RandomCode(charset string, length int) (string, error) {
	if charset == "" {
		return "", fmt.Errorf("charset must not be empty")
	}
	out := make([]byte, length)
	for i := range out {
		idx, err := secureRandomInt(len(charset))
		if err != nil {
			return "", err
		}
		out[i] = charset[idx]
	}
	return string(out), nil
}

// RandomPassword returns a generated password suitable for password resets.
func RandomPassword() (string, error) {
	return RandomCode(PasswordSet, GeneratedPasswordLen)
}
