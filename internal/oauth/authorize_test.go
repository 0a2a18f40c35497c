package oauth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/grantd/internal/scope"
	"github.com/dropDatabas3/grantd/internal/store/core"
)

func TestAuthorizeCodeFlow(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Authorize(context.Background(), &AuthorizeRequest{
		Assertion: "assertion",
		ClientID:  f.client.ID,
		Scope:     scope.New("profile", "basket"),
		State:     "xyzzy",
	})
	require.NoError(t, err)
	require.Nil(t, res.Grant)

	assert.Equal(t, "xyzzy", queryParam(t, res.RedirectURL, "state"))
	code := queryParam(t, res.RedirectURL, "code")
	assert.Len(t, code, 64, "32 random bytes as hex")
}

func TestAuthorizeUnknownClient(t *testing.T) {
	f := newFixture(t)
	bogus := make([]byte, len(f.client.ID))

	_, err := f.svc.Authorize(context.Background(), &AuthorizeRequest{
		Assertion: "assertion",
		ClientID:  bogus,
		Scope:     scope.New("profile"),
	})
	requireErrno(t, err, ErrnoUnknownClient)
}

func TestAuthorizeAssertionErrorWins(t *testing.T) {
	// Both branches fail; the assertion error must be the one reported,
	// even when the client lookup fails first.
	f := newFixture(t)
	f.verifier.err = ErrInvalidAssertion()
	f.verifier.slow = 20 * time.Millisecond
	bogus := make([]byte, len(f.client.ID))

	_, err := f.svc.Authorize(context.Background(), &AuthorizeRequest{
		Assertion: "garbage",
		ClientID:  bogus,
		Scope:     scope.New("profile"),
	})
	requireErrno(t, err, ErrnoInvalidAssertion)
}

func TestAuthorizeUntrustedScopeAllowList(t *testing.T) {
	f := newFixture(t)
	trusted := false
	require.NoError(t, f.store.UpdateClient(context.Background(), f.client.ID,
		&core.ClientUpdate{Trusted: &trusted}))

	_, err := f.svc.Authorize(context.Background(), &AuthorizeRequest{
		Assertion: "assertion",
		ClientID:  f.client.ID,
		Scope:     scope.New("profile:email", "basket:write", "payments"),
	})
	appErr := requireErrno(t, err, ErrnoInvalidScopes)
	assert.Equal(t, []string{"basket:write", "payments"}, appErr.Scopes)

	// the allow-listed subset goes through
	res, err := f.svc.Authorize(context.Background(), &AuthorizeRequest{
		Assertion: "assertion",
		ClientID:  f.client.ID,
		Scope:     scope.New("profile:email", "profile:uid"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.RedirectURL)
}

func TestAuthorizeRedirectMismatch(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Authorize(context.Background(), &AuthorizeRequest{
		Assertion:   "assertion",
		ClientID:    f.client.ID,
		Scope:       scope.New("profile"),
		RedirectURI: "https://evil.example.com/cb",
	})
	requireErrno(t, err, ErrnoIncorrectRedirect)

	_, err = f.svc.Authorize(context.Background(), &AuthorizeRequest{
		Assertion:   "assertion",
		ClientID:    f.client.ID,
		Scope:       scope.New("profile"),
		RedirectURI: "http://localhost:8080/cb",
	})
	requireErrno(t, err, ErrnoIncorrectRedirect)
}

func TestAuthorizeLocalRedirectOverride(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.LocalRedirects = true })

	res, err := f.svc.Authorize(context.Background(), &AuthorizeRequest{
		Assertion:   "assertion",
		ClientID:    f.client.ID,
		Scope:       scope.New("profile"),
		RedirectURI: "http://127.0.0.1:8080/cb",
	})
	require.NoError(t, err)
	assert.Contains(t, res.RedirectURL, "http://127.0.0.1:8080/cb")

	// the override is for loopback only
	_, err = f.svc.Authorize(context.Background(), &AuthorizeRequest{
		Assertion:   "assertion",
		ClientID:    f.client.ID,
		Scope:       scope.New("profile"),
		RedirectURI: "https://evil.example.com/cb",
	})
	requireErrno(t, err, ErrnoIncorrectRedirect)
}

func TestAuthorizeImplicitGrantGate(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Authorize(context.Background(), &AuthorizeRequest{
		Assertion:    "assertion",
		ClientID:     f.client.ID,
		Scope:        scope.New("profile"),
		ResponseType: "token",
	})
	requireErrno(t, err, ErrnoInvalidResponseType)

	canGrant := true
	require.NoError(t, f.store.UpdateClient(context.Background(), f.client.ID,
		&core.ClientUpdate{CanGrant: &canGrant}))

	res, err := f.svc.Authorize(context.Background(), &AuthorizeRequest{
		Assertion:    "assertion",
		ClientID:     f.client.ID,
		Scope:        scope.New("profile"),
		ResponseType: "token",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Grant)
	assert.NotEmpty(t, res.Grant.AccessToken)
	assert.Equal(t, "bearer", res.Grant.TokenType)
	assert.Equal(t, "profile", res.Grant.Scope)
	assert.NotZero(t, res.Grant.AuthAt)
	assert.Empty(t, res.Grant.RefreshToken, "implicit grant never carries a refresh token")
}

func TestAuthorizePKCERequiresS256(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Authorize(context.Background(), &AuthorizeRequest{
		Assertion:           "assertion",
		ClientID:            f.client.ID,
		Scope:               scope.New("profile"),
		CodeChallenge:       "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		CodeChallengeMethod: "plain",
	})
	appErr := requireErrno(t, err, ErrnoInvalidRequestParameter)
	assert.Equal(t, "code_challenge_method", appErr.Param)
}
