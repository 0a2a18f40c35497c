package jwt

import (
	"crypto/ed25519"
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Issuer signs id_tokens with the keystore's active key.
type Issuer struct {
	Iss  string
	Keys *Keystore
	TTL  time.Duration
}

func NewIssuer(iss string, ks *Keystore, ttl time.Duration) *Issuer {
	return &Issuer{Iss: iss, Keys: ks, TTL: ttl}
}

// SignIDToken mints the OIDC identity token for an openid grant. Subject
// and audience are the hex renderings of the user and client ids.
func (i *Issuer) SignIDToken(uidHex, clientIDHex string) (string, error) {
	now := time.Now()
	kid, priv, _ := i.Keys.Active()
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, jwtv5.MapClaims{
		"iss": i.Iss,
		"sub": uidHex,
		"aud": clientIDHex,
		"iat": now.Unix(),
		"exp": now.Add(i.TTL).Unix(),
	})
	tk.Header["kid"] = kid
	tk.Header["typ"] = "JWT"
	return tk.SignedString(priv)
}

// Keyfunc resolves the verification key by the token's kid header,
// accepting the retired key during its grace window.
func (i *Issuer) Keyfunc() jwtv5.Keyfunc {
	return func(t *jwtv5.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("kid missing")
		}
		pub, err := i.Keys.PublicKeyByKID(kid)
		if err != nil {
			return nil, err
		}
		return ed25519.PublicKey(pub), nil
	}
}
