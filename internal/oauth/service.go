// Package oauth implements the credential issuance and verification engine:
// the authorization flow, the three token-exchange paths, token
// verification with expiry grandfathering, revocation, and the expired
// token purge run.
package oauth

import (
	"time"

	"github.com/dropDatabas3/grantd/internal/jwt"
	"github.com/dropDatabas3/grantd/internal/scope"
	"github.com/dropDatabas3/grantd/internal/store/core"
)

// Options is process-wide policy, built once at startup.
type Options struct {
	CodeTTL          time.Duration
	UntrustedScopes  scope.Set
	LocalRedirects   bool
	GrandfatherEpoch time.Time
	// TokenEndpoint is the audience jwt-bearer assertions must name.
	TokenEndpoint string
}

type Service struct {
	store    core.Store
	verifier AssertionVerifier
	issuer   *jwt.Issuer
	sclients *ServiceClients
	opts     Options
}

func NewService(store core.Store, verifier AssertionVerifier, issuer *jwt.Issuer, sclients *ServiceClients, opts Options) *Service {
	return &Service{
		store:    store,
		verifier: verifier,
		issuer:   issuer,
		sclients: sclients,
		opts:     opts,
	}
}

// Grant is the success payload of a token issuance. Field names are the
// wire names.
type Grant struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	AuthAt       int64  `json:"auth_at,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// OpenIDScope triggers minting an id_token alongside the access token.
const OpenIDScope = "openid"
