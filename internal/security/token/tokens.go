package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// Fixed widths, in bytes, for every random artifact the server mints.
// Wire values are always the lowercase-hex rendering (2x these lengths).
const (
	ClientIDLen     = 8
	UserIDLen       = 16
	DeveloperIDLen  = 16
	ClientSecretLen = 32
	CodeLen         = 32
	TokenLen        = 32
	HashLen         = sha256.Size
)

// Random returns n cryptographically random bytes.
func Random(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// RandomHex returns n random bytes rendered as lowercase hex.
func RandomHex(n int) (string, error) {
	b, err := Random(n)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Hash returns sha256(plaintext bytes). Only hashes are ever persisted;
// plaintext codes/tokens leave the process exactly once.
func Hash(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

// HashString hashes the raw string form of a presented credential.
func HashString(s string) []byte {
	return Hash([]byte(s))
}

// HexKey renders id/hash bytes as the canonical lowercase-hex map key. Raw
// byte slices are not comparable, so in-memory stores key on this encoding.
func HexKey(b []byte) string {
	return hex.EncodeToString(b)
}
