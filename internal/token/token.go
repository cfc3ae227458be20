package token

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// RawSize is the number of random bytes in a token (256 bits).
	RawSize = 32
	// EncodedSize is the length of a hex encoded token.
	EncodedSize = RawSize * 2

	signedSeparator = "."
)

// Generate returns a fresh hex encoded token read from crypto/rand.
func Generate() (string, error) {
	var raw [RawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}

// Equal reports whether presented and stored hold the same token.
//
// Empty inputs and length mismatches return false immediately. Equal-length inputs
// are compared with crypto/subtle, so the running time does not depend on the
// position of the first differing byte.
func Equal(presented, stored string) bool {
	if presented == "" || stored == "" {
		return false
	}
	if len(presented) != len(stored) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(stored)) == 1
}

// Sign returns value + "." + hex(HMAC-SHA256(secret, value)).
//
// An empty secret yields an empty string; callers validate the secret at startup.
func Sign(value string, secret []byte) string {
	digest, ok := digestOf(value, secret)
	if !ok {
		return ""
	}
	return value + signedSeparator + digest
}

// VerifySigned recomputes the digest of a signed token and compares it in constant time.
// Malformed input (wrong segment count, empty segments) is invalid, not an error.
func VerifySigned(signed string, secret []byte) bool {
	value, digest, ok := Split(signed)
	if !ok {
		return false
	}
	expected, ok := digestOf(value, secret)
	if !ok {
		return false
	}
	return Equal(digest, expected)
}

// Split separates a signed token into its value and digest segments.
func Split(signed string) (value, digest string, ok bool) {
	parts := strings.Split(signed, signedSeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func digestOf(value string, secret []byte) (string, bool) {
	if len(secret) == 0 {
		return "", false
	}
	sig, err := jwt.SigningMethodHS256.Sign(value, secret)
	if err != nil {
		return "", false
	}
	return hex.EncodeToString(sig), true
}
