package util

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// RandomString generates a secure random string of the specified length.
func RandomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// RandomDigits generates a secure numeric code of n digits, zero padded.
func RandomDigits(n int) (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	mod := uint64(1)
	for range n {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", n, binary.BigEndian.Uint64(b[:])%mod), nil
}
