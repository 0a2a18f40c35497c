package jwt

import (
	"encoding/base64"
	"encoding/json"
)

type jwk struct {
	Kty string `json:"kty"` // "OKP"
	Crv string `json:"crv"` // "Ed25519"
	Kid string `json:"kid"`
	Alg string `json:"alg"` // "EdDSA"
	Use string `json:"use"` // "sig"
	X   string `json:"x"`   // base64url(pub)
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

// JWKSJSON serializes the public keys relying parties may verify against:
// the active key, plus the retired key while its grace window is open.
// Private components never leave the keystore.
func (k *Keystore) JWKSJSON() ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	out := jwks{Keys: []jwk{publicJWK(k.active)}}
	if p := k.previous; p != nil && k.inGrace(p) {
		out.Keys = append(out.Keys, publicJWK(p))
	}
	return json.Marshal(out)
}

func publicJWK(key *signingKey) jwk {
	return jwk{
		Kty: "OKP",
		Crv: "Ed25519",
		Kid: key.KID,
		Alg: "EdDSA",
		Use: "sig",
		X:   base64.RawURLEncoding.EncodeToString(key.Pub),
	}
}
