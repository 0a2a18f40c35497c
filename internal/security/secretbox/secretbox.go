// Package secretbox encrypts small secrets at rest (signing keys on disk)
// with NaCl secretbox under a 32-byte master key from configuration.
// Wire format: base64(nonce)|base64(ciphertext).
package secretbox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	KeyLen   = 32
	nonceLen = 24
	sep      = "|"
)

var ErrDecrypt = errors.New("secretbox: decrypt failed")

type Box struct {
	key [KeyLen]byte
}

// New builds a Box from a base64-encoded 32-byte master key.
func New(masterKeyB64 string) (*Box, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(masterKeyB64))
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimSpace(masterKeyB64))
	}
	if err != nil {
		return nil, fmt.Errorf("secretbox: decode master key: %w", err)
	}
	if len(raw) != KeyLen {
		return nil, fmt.Errorf("secretbox: master key must decode to %d bytes, got %d", KeyLen, len(raw))
	}
	var b Box
	copy(b.key[:], raw)
	return &b, nil
}

func (b *Box) Seal(plaintext []byte) (string, error) {
	var nonce [nonceLen]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("secretbox: nonce: %w", err)
	}
	ct := secretbox.Seal(nil, plaintext, &nonce, &b.key)
	return base64.StdEncoding.EncodeToString(nonce[:]) + sep +
		base64.StdEncoding.EncodeToString(ct), nil
}

func (b *Box) Open(sealed string) ([]byte, error) {
	parts := strings.Split(sealed, sep)
	if len(parts) != 2 {
		return nil, errors.New("secretbox: want base64(nonce)|base64(ciphertext)")
	}
	nonceRaw, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("secretbox: decode nonce: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("secretbox: decode ciphertext: %w", err)
	}
	if len(nonceRaw) != nonceLen {
		return nil, fmt.Errorf("secretbox: nonce must be %d bytes, got %d", nonceLen, len(nonceRaw))
	}
	var nonce [nonceLen]byte
	copy(nonce[:], nonceRaw)
	pt, ok := secretbox.Open(nil, ct, &nonce, &b.key)
	if !ok {
		return nil, ErrDecrypt
	}
	return pt, nil
}
