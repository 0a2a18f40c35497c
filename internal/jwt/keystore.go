// Package jwt owns the server's signing keys and mints id_tokens. Keys are
// Ed25519; private material is sealed with secretbox before touching disk.
// Rotation keeps the outgoing key published in the JWKS for a grace window
// so tokens signed moments before the rotation remain verifiable.
package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/grantd/internal/security/secretbox"
)

type signingKey struct {
	KID       string
	Priv      ed25519.PrivateKey
	Pub       ed25519.PublicKey
	CreatedAt time.Time
	RetiredAt time.Time // zero while active
}

type keyFile struct {
	KID        string    `json:"kid"`
	SealedPriv string    `json:"sealed_priv"`
	Pub        string    `json:"pub"` // base64url
	CreatedAt  time.Time `json:"created_at"`
	RetiredAt  time.Time `json:"retired_at,omitempty"`
}

const (
	activeFile   = "active.json"
	previousFile = "previous.json"
)

type Keystore struct {
	dir   string
	box   *secretbox.Box
	grace time.Duration

	mu       sync.RWMutex
	active   *signingKey
	previous *signingKey
}

// NewKeystore loads the key material under dir, generating a fresh active
// key on first boot.
func NewKeystore(dir string, box *secretbox.Box, grace time.Duration) (*Keystore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("keystore: %w", err)
	}
	k := &Keystore{dir: dir, box: box, grace: grace}

	active, err := k.load(activeFile)
	if err != nil {
		return nil, err
	}
	if active == nil {
		active, err = generateKey()
		if err != nil {
			return nil, err
		}
		if err := k.save(activeFile, active); err != nil {
			return nil, err
		}
	}
	previous, err := k.load(previousFile)
	if err != nil {
		return nil, err
	}
	k.active, k.previous = active, previous
	return k, nil
}

// Active returns the signing key for new tokens.
func (k *Keystore) Active() (kid string, priv ed25519.PrivateKey, pub ed25519.PublicKey) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.active.KID, k.active.Priv, k.active.Pub
}

// PublicKeyByKID resolves a verification key, including the retired one
// while it is still inside the grace window.
func (k *Keystore) PublicKeyByKID(kid string) (ed25519.PublicKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.active.KID == kid {
		return k.active.Pub, nil
	}
	if p := k.previous; p != nil && p.KID == kid && k.inGrace(p) {
		return p.Pub, nil
	}
	return nil, fmt.Errorf("keystore: unknown kid %q", kid)
}

// Rotate retires the active key and installs a fresh one.
func (k *Keystore) Rotate() error {
	fresh, err := generateKey()
	if err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	retiring := *k.active
	retiring.RetiredAt = time.Now()
	if err := k.save(previousFile, &retiring); err != nil {
		return err
	}
	if err := k.save(activeFile, fresh); err != nil {
		return err
	}
	k.previous = &retiring
	k.active = fresh
	return nil
}

func (k *Keystore) inGrace(p *signingKey) bool {
	return time.Now().Before(p.RetiredAt.Add(k.grace))
}

func generateKey() (*signingKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keystore: generate: %w", err)
	}
	return &signingKey{
		KID:       uuid.NewString(),
		Priv:      priv,
		Pub:       pub,
		CreatedAt: time.Now(),
	}, nil
}

func (k *Keystore) load(name string) (*signingKey, error) {
	b, err := os.ReadFile(filepath.Join(k.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("keystore: read %s: %w", name, err)
	}
	var f keyFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("keystore: parse %s: %w", name, err)
	}
	priv, err := k.box.Open(f.SealedPriv)
	if err != nil {
		return nil, fmt.Errorf("keystore: unseal %s: %w", name, err)
	}
	pub, err := base64.RawURLEncoding.DecodeString(f.Pub)
	if err != nil {
		return nil, fmt.Errorf("keystore: decode pub in %s: %w", name, err)
	}
	return &signingKey{
		KID:       f.KID,
		Priv:      ed25519.PrivateKey(priv),
		Pub:       ed25519.PublicKey(pub),
		CreatedAt: f.CreatedAt,
		RetiredAt: f.RetiredAt,
	}, nil
}

func (k *Keystore) save(name string, key *signingKey) error {
	sealed, err := k.box.Seal(key.Priv)
	if err != nil {
		return err
	}
	b, err := json.Marshal(keyFile{
		KID:        key.KID,
		SealedPriv: sealed,
		Pub:        base64.RawURLEncoding.EncodeToString(key.Pub),
		CreatedAt:  key.CreatedAt,
		RetiredAt:  key.RetiredAt,
	})
	if err != nil {
		return err
	}
	path := filepath.Join(k.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("keystore: write %s: %w", name, err)
	}
	return os.Rename(tmp, path)
}
