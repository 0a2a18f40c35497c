package oauth

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	gocache "github.com/patrickmn/go-cache"

	"github.com/dropDatabas3/grantd/internal/security/token"
)

// ServiceClient is a pre-configured trusted issuer of jwt-bearer
// assertions: its own default scope plus a JWKS endpoint to verify
// signatures against.
type ServiceClient struct {
	Name    string
	ID      []byte
	Scope   string
	JWKSURL string
}

type ServiceClients struct {
	byIssuer map[string]*ServiceClient
	keys     *gocache.Cache
	client   *http.Client
}

// NewServiceClients indexes the configured clients by the hex id they use
// as the jwt iss claim. Fetched key sets are cached.
func NewServiceClients(clients []*ServiceClient, keyTTL time.Duration) *ServiceClients {
	byIssuer := make(map[string]*ServiceClient, len(clients))
	for _, sc := range clients {
		byIssuer[token.HexKey(sc.ID)] = sc
	}
	return &ServiceClients{
		byIssuer: byIssuer,
		keys:     gocache.New(keyTTL, 2*keyTTL),
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Verify checks a jwt-bearer assertion end to end: known issuer, valid
// EdDSA signature against the issuer's published keys, aud naming our
// token endpoint, sane iat/exp, and a hex-shaped sub.
func (s *ServiceClients) Verify(ctx context.Context, assertion, audience string) (*ServiceClient, []byte, error) {
	var matched *ServiceClient

	keyfunc := func(t *jwtv5.Token) (any, error) {
		iss, err := t.Claims.GetIssuer()
		if err != nil || iss == "" {
			return nil, fmt.Errorf("assertion missing iss")
		}
		sc, ok := s.byIssuer[iss]
		if !ok {
			return nil, fmt.Errorf("unknown service client %q", iss)
		}
		matched = sc
		kid, _ := t.Header["kid"].(string)
		return s.publicKey(ctx, sc, kid)
	}

	claims := jwtv5.MapClaims{}
	_, err := jwtv5.ParseWithClaims(assertion, claims, keyfunc,
		jwtv5.WithValidMethods([]string{"EdDSA"}),
		jwtv5.WithAudience(audience),
		jwtv5.WithIssuedAt(),
		jwtv5.WithExpirationRequired(),
	)
	if err != nil {
		return nil, nil, ErrInvalidAssertion()
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return nil, nil, ErrInvalidAssertion()
	}
	uid, err := hex.DecodeString(sub)
	if err != nil || len(uid) != token.UserIDLen {
		return nil, nil, ErrInvalidAssertion()
	}
	return matched, uid, nil
}

type remoteJWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	Kid string `json:"kid"`
	X   string `json:"x"`
}

type remoteJWKS struct {
	Keys []remoteJWK `json:"keys"`
}

func (s *ServiceClients) publicKey(ctx context.Context, sc *ServiceClient, kid string) (ed25519.PublicKey, error) {
	set, err := s.fetchKeys(ctx, sc)
	if err != nil {
		return nil, err
	}
	for _, k := range set.Keys {
		if k.Kty != "OKP" || k.Crv != "Ed25519" {
			continue
		}
		if kid != "" && k.Kid != kid {
			continue
		}
		raw, err := base64.RawURLEncoding.DecodeString(k.X)
		if err != nil || len(raw) != ed25519.PublicKeySize {
			continue
		}
		return ed25519.PublicKey(raw), nil
	}
	return nil, fmt.Errorf("no usable key for %s (kid %q)", sc.Name, kid)
}

func (s *ServiceClients) fetchKeys(ctx context.Context, sc *ServiceClient) (*remoteJWKS, error) {
	if cached, ok := s.keys.Get(sc.JWKSURL); ok {
		return cached.(*remoteJWKS), nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sc.JWKSURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks for %s: %w", sc.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch jwks for %s: status %d", sc.Name, resp.StatusCode)
	}
	var set remoteJWKS
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("fetch jwks for %s: %w", sc.Name, err)
	}
	s.keys.SetDefault(sc.JWKSURL, &set)
	return &set, nil
}
