package oauth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/grantd/internal/scope"
	"github.com/dropDatabas3/grantd/internal/security/token"
	"github.com/dropDatabas3/grantd/internal/store/core"
)

func TestCodeGrantSingleUse(t *testing.T) {
	f := newFixture(t)
	code := f.issueCode(t, &AuthorizeRequest{Assertion: "a", ClientID: f.client.ID})

	req := &TokenRequest{ClientID: f.client.ID, ClientSecret: f.secret, Code: code}
	grant, err := f.svc.Token(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, grant.AccessToken)
	assert.Equal(t, "bearer", grant.TokenType)
	assert.Greater(t, grant.ExpiresIn, int64(0))

	// a second redemption is indistinguishable from a never-issued code
	_, err = f.svc.Token(context.Background(), req)
	requireErrno(t, err, ErrnoUnknownCode)
}

func TestCodeGrantMismatchedClient(t *testing.T) {
	f := newFixture(t)
	code := f.issueCode(t, &AuthorizeRequest{Assertion: "a", ClientID: f.client.ID})

	otherID, err := token.Random(token.ClientIDLen)
	require.NoError(t, err)
	otherSecret, err := token.Random(token.ClientSecretLen)
	require.NoError(t, err)
	other := &core.Client{
		ID:           otherID,
		Name:         "other",
		HashedSecret: token.Hash(otherSecret),
		RedirectURI:  "https://other.example.com/cb",
		Trusted:      true,
	}
	require.NoError(t, f.store.RegisterClient(context.Background(), other))

	// correct secret, wrong owner
	_, err = f.svc.Token(context.Background(), &TokenRequest{
		ClientID:     other.ID,
		ClientSecret: token.HexKey(otherSecret),
		Code:         code,
	})
	requireErrno(t, err, ErrnoMismatchCode)
}

func TestCodeGrantExpired(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.CodeTTL = time.Millisecond })
	code := f.issueCode(t, &AuthorizeRequest{Assertion: "a", ClientID: f.client.ID})

	time.Sleep(5 * time.Millisecond)
	_, err := f.svc.Token(context.Background(), &TokenRequest{
		ClientID: f.client.ID, ClientSecret: f.secret, Code: code,
	})
	requireErrno(t, err, ErrnoExpiredCode)
}

func TestCodeGrantSecretRotation(t *testing.T) {
	f := newFixture(t)

	// rotate: fresh secret becomes current, old one stays valid
	freshRaw, err := token.Random(token.ClientSecretLen)
	require.NoError(t, err)
	require.NoError(t, f.store.UpdateClient(context.Background(), f.client.ID, &core.ClientUpdate{
		HashedSecret:         token.Hash(freshRaw),
		HashedSecretPrevious: f.client.HashedSecret,
	}))

	for _, secret := range []string{token.HexKey(freshRaw), f.secret} {
		code := f.issueCode(t, &AuthorizeRequest{Assertion: "a", ClientID: f.client.ID})
		_, err := f.svc.Token(context.Background(), &TokenRequest{
			ClientID: f.client.ID, ClientSecret: secret, Code: code,
		})
		require.NoError(t, err, "both rotation-window secrets must be accepted")
	}

	code := f.issueCode(t, &AuthorizeRequest{Assertion: "a", ClientID: f.client.ID})
	bogus, err := token.RandomHex(token.ClientSecretLen)
	require.NoError(t, err)
	_, err = f.svc.Token(context.Background(), &TokenRequest{
		ClientID: f.client.ID, ClientSecret: bogus, Code: code,
	})
	requireErrno(t, err, ErrnoIncorrectSecret)
}

func TestCodeGrantPKCE(t *testing.T) {
	f := newFixture(t)
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	code := f.issueCode(t, &AuthorizeRequest{
		Assertion:           "a",
		ClientID:            f.client.ID,
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
	})

	// wrong verifier rejected
	_, err := f.svc.Token(context.Background(), &TokenRequest{
		ClientID: f.client.ID, Code: code, CodeVerifier: "wrong-verifier-wrong-verifier-wrong-verif",
	})
	requireErrno(t, err, ErrnoIncorrectSecret)

	// right verifier, no client secret needed
	grant, err := f.svc.Token(context.Background(), &TokenRequest{
		ClientID: f.client.ID, Code: code, CodeVerifier: verifier,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, grant.AccessToken)
}

func TestCodeGrantOfflineGetsRefreshToken(t *testing.T) {
	f := newFixture(t)

	online := f.issueCode(t, &AuthorizeRequest{Assertion: "a", ClientID: f.client.ID})
	grant, err := f.svc.Token(context.Background(), &TokenRequest{
		ClientID: f.client.ID, ClientSecret: f.secret, Code: online,
	})
	require.NoError(t, err)
	assert.Empty(t, grant.RefreshToken)

	offline := f.issueCode(t, &AuthorizeRequest{
		Assertion: "a", ClientID: f.client.ID, AccessType: "offline",
	})
	grant, err = f.svc.Token(context.Background(), &TokenRequest{
		ClientID: f.client.ID, ClientSecret: f.secret, Code: offline,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, grant.RefreshToken)
}

func TestOpenIDScopeMintsIDToken(t *testing.T) {
	f := newFixture(t)
	code := f.issueCode(t, &AuthorizeRequest{
		Assertion: "a", ClientID: f.client.ID, Scope: scope.New("profile", "openid"),
	})

	grant, err := f.svc.Token(context.Background(), &TokenRequest{
		ClientID: f.client.ID, ClientSecret: f.secret, Code: code,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, grant.IDToken)
}

func (f *fixture) offlineGrant(t *testing.T, scopes ...string) *Grant {
	t.Helper()
	code := f.issueCode(t, &AuthorizeRequest{
		Assertion:  "a",
		ClientID:   f.client.ID,
		Scope:      scope.New(scopes...),
		AccessType: "offline",
	})
	grant, err := f.svc.Token(context.Background(), &TokenRequest{
		ClientID: f.client.ID, ClientSecret: f.secret, Code: code,
	})
	require.NoError(t, err)
	require.NotEmpty(t, grant.RefreshToken)
	return grant
}

func TestRefreshGrantNeverRotates(t *testing.T) {
	f := newFixture(t)
	grant := f.offlineGrant(t, "profile")

	refreshed, err := f.svc.Token(context.Background(), &TokenRequest{
		ClientID:     f.client.ID,
		ClientSecret: f.secret,
		RefreshToken: grant.RefreshToken,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.Empty(t, refreshed.RefreshToken, "refresh exchange never mints a new refresh token")

	// the original refresh token stays valid and reusable
	again, err := f.svc.Token(context.Background(), &TokenRequest{
		ClientID:     f.client.ID,
		ClientSecret: f.secret,
		RefreshToken: grant.RefreshToken,
	})
	require.NoError(t, err)
	assert.NotEqual(t, refreshed.AccessToken, again.AccessToken)
}

func TestRefreshGrantScopeNarrowing(t *testing.T) {
	f := newFixture(t)
	grant := f.offlineGrant(t, "foo", "bar:baz")

	// widening fails, naming the offenders
	widened := scope.New("foo:write")
	_, err := f.svc.Token(context.Background(), &TokenRequest{
		ClientID:     f.client.ID,
		ClientSecret: f.secret,
		RefreshToken: grant.RefreshToken,
		Scope:        &widened,
	})
	appErr := requireErrno(t, err, ErrnoInvalidScopes)
	assert.Equal(t, []string{"foo:write"}, appErr.Scopes)

	// narrowing succeeds and the narrowed scope is what comes back
	narrowed := scope.New("foo")
	refreshed, err := f.svc.Token(context.Background(), &TokenRequest{
		ClientID:     f.client.ID,
		ClientSecret: f.secret,
		RefreshToken: grant.RefreshToken,
		Scope:        &narrowed,
	})
	require.NoError(t, err)
	assert.Equal(t, "foo", refreshed.Scope)

	// persisted scope was not narrowed; the full set is still redeemable
	full, err := f.svc.Token(context.Background(), &TokenRequest{
		ClientID:     f.client.ID,
		ClientSecret: f.secret,
		RefreshToken: grant.RefreshToken,
	})
	require.NoError(t, err)
	assert.Equal(t, "bar:baz foo", full.Scope)
}

func TestRefreshGrantWrongOwnerIsOpaque(t *testing.T) {
	f := newFixture(t)
	grant := f.offlineGrant(t, "profile")

	otherID, err := token.Random(token.ClientIDLen)
	require.NoError(t, err)
	otherSecret, err := token.Random(token.ClientSecretLen)
	require.NoError(t, err)
	require.NoError(t, f.store.RegisterClient(context.Background(), &core.Client{
		ID:           otherID,
		Name:         "other",
		HashedSecret: token.Hash(otherSecret),
		RedirectURI:  "https://other.example.com/cb",
	}))

	_, err = f.svc.Token(context.Background(), &TokenRequest{
		ClientID:     otherID,
		ClientSecret: token.HexKey(otherSecret),
		RefreshToken: grant.RefreshToken,
	})
	requireErrno(t, err, ErrnoInvalidToken)
}

func TestDestroy(t *testing.T) {
	f := newFixture(t)
	grant := f.offlineGrant(t, "profile")

	require.NoError(t, f.svc.Destroy(context.Background(), grant.AccessToken, ""))
	_, err := f.svc.Verify(context.Background(), grant.AccessToken)
	requireErrno(t, err, ErrnoInvalidToken)

	require.NoError(t, f.svc.Destroy(context.Background(), "", grant.RefreshToken))
	_, err = f.svc.Token(context.Background(), &TokenRequest{
		ClientID:     f.client.ID,
		ClientSecret: f.secret,
		RefreshToken: grant.RefreshToken,
	})
	requireErrno(t, err, ErrnoInvalidToken)

	err = f.svc.Destroy(context.Background(), grant.AccessToken, "")
	requireErrno(t, err, ErrnoInvalidToken)
}
