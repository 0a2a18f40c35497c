package http

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/grantd/internal/jwt"
	"github.com/dropDatabas3/grantd/internal/oauth"
	"github.com/dropDatabas3/grantd/internal/scope"
	"github.com/dropDatabas3/grantd/internal/security/secretbox"
	tokens "github.com/dropDatabas3/grantd/internal/security/token"
	"github.com/dropDatabas3/grantd/internal/store/core"
	"github.com/dropDatabas3/grantd/internal/store/memory"
)

type stubVerifier struct {
	claims *oauth.AssertionClaims
	err    error
}

func (v *stubVerifier) Verify(ctx context.Context, assertion string) (*oauth.AssertionClaims, error) {
	if v.err != nil {
		return nil, v.err
	}
	return v.claims, nil
}

type apiFixture struct {
	api     *API
	router  http.Handler
	store   *memory.Store
	keys    *jwt.Keystore
	client  *core.Client
	secret  string // hex
	uid     []byte
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	st := memory.New(time.Hour)

	uid, err := tokens.Random(tokens.UserIDLen)
	require.NoError(t, err)
	clientID, err := tokens.Random(tokens.ClientIDLen)
	require.NoError(t, err)
	secretRaw, err := tokens.Random(tokens.ClientSecretLen)
	require.NoError(t, err)
	client := &core.Client{
		ID:           clientID,
		Name:         "relier",
		HashedSecret: tokens.Hash(secretRaw),
		RedirectURI:  "https://relier.example.com/cb",
		Trusted:      true,
	}
	require.NoError(t, st.RegisterClient(context.Background(), client))

	k := make([]byte, secretbox.KeyLen)
	_, err = rand.Read(k)
	require.NoError(t, err)
	box, err := secretbox.New(base64.StdEncoding.EncodeToString(k))
	require.NoError(t, err)
	ks, err := jwt.NewKeystore(t.TempDir(), box, time.Hour)
	require.NoError(t, err)

	verifier := &stubVerifier{claims: &oauth.AssertionClaims{
		UID:    uid,
		Email:  "user@example.com",
		AuthAt: time.Now().Unix(),
	}}
	svc := oauth.NewService(st, verifier, jwt.NewIssuer("https://oauth.example.com", ks, 5*time.Minute), nil, oauth.Options{
		CodeTTL:         15 * time.Minute,
		UntrustedScopes: scope.New("profile:uid", "profile:email", "profile:display_name"),
		TokenEndpoint:   "https://oauth.example.com/v1/token",
	})

	whitelist, err := CompileWhitelist([]string{`admin@example\.com`})
	require.NoError(t, err)

	api := NewAPI(svc, st, ks, whitelist)
	return &apiFixture{
		api:    api,
		router: NewRouter(api, nil),
		store:  st,
		keys:   ks,
		client: client,
		secret: tokens.HexKey(secretRaw),
		uid:    uid,
	}
}

// operatorToken mints a bearer with the given scope and email directly
// in the store, bypassing the issuance flow.
func (f *apiFixture) operatorToken(t *testing.T, email string, scopes ...string) string {
	t.Helper()
	plain, _, err := f.store.GenerateAccessToken(context.Background(), &core.AccessTokenSpec{
		ClientID: f.client.ID,
		UserID:   f.uid,
		Email:    email,
		Scope:    scopes,
	})
	require.NoError(t, err)
	return plain
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func requireErrnoBody(t *testing.T, rec *httptest.ResponseRecorder, status, errno int) map[string]any {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	require.EqualValues(t, errno, body["errno"], rec.Body.String())
	return body
}

func TestAuthorizationCodeFlowOverHTTP(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/authorization", map[string]any{
		"assertion": "assertion-blob",
		"client_id": hex.EncodeToString(f.client.ID),
		"scope":     "profile",
		"state":     "xyz",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	redirect, _ := decodeBody(t, rec)["redirect"].(string)
	require.NotEmpty(t, redirect)

	u, err := url.Parse(redirect)
	require.NoError(t, err)
	code := u.Query().Get("code")
	require.Len(t, code, 2*tokens.CodeLen)
	assert.Equal(t, "xyz", u.Query().Get("state"))

	rec = f.do(t, http.MethodPost, "/v1/token", map[string]any{
		"client_id":     hex.EncodeToString(f.client.ID),
		"client_secret": f.secret,
		"code":          code,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	grant := decodeBody(t, rec)
	access, _ := grant["access_token"].(string)
	require.NotEmpty(t, access)
	assert.Equal(t, "bearer", grant["token_type"])
	assert.Equal(t, "profile", grant["scope"])
	assert.NotContains(t, grant, "refresh_token")

	rec = f.do(t, http.MethodPost, "/v1/verify", map[string]any{"token": access}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	facts := decodeBody(t, rec)
	assert.Equal(t, hex.EncodeToString(f.uid), facts["user"])
	assert.Equal(t, hex.EncodeToString(f.client.ID), facts["client_id"])

	rec = f.do(t, http.MethodPost, "/v1/destroy", map[string]any{"access_token": access}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/v1/verify", map[string]any{"token": access}, "")
	requireErrnoBody(t, rec, http.StatusBadRequest, oauth.ErrnoInvalidToken)
}

func TestAuthorizationGETQueryParams(t *testing.T) {
	f := newAPIFixture(t)

	q := url.Values{
		"assertion": {"assertion-blob"},
		"client_id": {hex.EncodeToString(f.client.ID)},
		"scope":     {"profile"},
		"state":     {"q-state"},
	}
	rec := f.do(t, http.MethodGet, "/v1/authorization?"+q.Encode(), nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	redirect, _ := decodeBody(t, rec)["redirect"].(string)
	require.NotEmpty(t, redirect)
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Equal(t, "q-state", u.Query().Get("state"))
}

func TestErrorEnvelope(t *testing.T) {
	f := newAPIFixture(t)

	bogus := make([]byte, tokens.ClientIDLen)
	rec := f.do(t, http.MethodPost, "/v1/authorization", map[string]any{
		"assertion": "assertion-blob",
		"client_id": hex.EncodeToString(bogus),
		"scope":     "profile",
	}, "")
	body := requireErrnoBody(t, rec, http.StatusBadRequest, oauth.ErrnoUnknownClient)
	assert.Equal(t, "unknown_client", body["error"])
	assert.NotEmpty(t, body["request_id"])
	assert.Equal(t, rec.Header().Get("X-Request-ID"), body["request_id"])
}

func TestBodyMustBeJSON(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/verify", bytes.NewReader([]byte("token=abc")))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	requireErrnoBody(t, rec, http.StatusBadRequest, oauth.ErrnoInvalidRequestParameter)
}

func TestDestroyRequiresExactlyOneToken(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/destroy", map[string]any{}, "")
	requireErrnoBody(t, rec, http.StatusBadRequest, oauth.ErrnoInvalidRequestParameter)

	rec = f.do(t, http.MethodPost, "/v1/destroy", map[string]any{
		"access_token":  "aa",
		"refresh_token": "bb",
	}, "")
	requireErrnoBody(t, rec, http.StatusBadRequest, oauth.ErrnoInvalidRequestParameter)
}

func TestClientCRUDOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	op := f.operatorToken(t, "admin@example.com", scope.ClientManagement)

	rec := f.do(t, http.MethodPost, "/v1/developer/activate", map[string]any{}, op)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "admin@example.com", decodeBody(t, rec)["email"])

	rec = f.do(t, http.MethodPost, "/v1/clients", map[string]any{
		"name":         "notes-web",
		"redirect_uri": "https://notes.example.com/cb",
		"trusted":      true,
	}, op)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody(t, rec)
	idHex, _ := created["id"].(string)
	require.Len(t, idHex, 2*tokens.ClientIDLen)
	secretHex, _ := created["client_secret"].(string)
	require.Len(t, secretHex, 2*tokens.ClientSecretLen)

	// Public projection must not leak secret material.
	rec = f.do(t, http.MethodGet, "/v1/client/"+idHex, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pub := decodeBody(t, rec)
	assert.Equal(t, "notes-web", pub["name"])
	assert.NotContains(t, pub, "client_secret")

	rec = f.do(t, http.MethodGet, "/v1/clients", nil, op)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	listed := decodeBody(t, rec)["clients"].([]any)
	require.Len(t, listed, 1)

	rec = f.do(t, http.MethodPost, "/v1/client/"+idHex, map[string]any{
		"name": "notes-web-renamed",
	}, op)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "notes-web-renamed", decodeBody(t, rec)["name"])

	rec = f.do(t, http.MethodDelete, "/v1/client/"+idHex, nil, op)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/v1/client/"+idHex, nil, "")
	requireErrnoBody(t, rec, http.StatusBadRequest, oauth.ErrnoUnknownClient)
}

func TestSecretRotationOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	op := f.operatorToken(t, "admin@example.com", scope.ClientManagement)

	f.do(t, http.MethodPost, "/v1/developer/activate", map[string]any{}, op)
	rec := f.do(t, http.MethodPost, "/v1/clients", map[string]any{"name": "rotator"}, op)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody(t, rec)
	idHex := created["id"].(string)
	oldSecret := created["client_secret"].(string)

	rec = f.do(t, http.MethodPost, "/v1/client/"+idHex, map[string]any{
		"rotate_secret": true,
	}, op)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	newSecret, _ := decodeBody(t, rec)["client_secret"].(string)
	require.Len(t, newSecret, 2*tokens.ClientSecretLen)
	require.NotEqual(t, oldSecret, newSecret)

	// Both hashes survive on the record: rotation opens a window, it
	// does not revoke the old secret.
	id, err := hex.DecodeString(idHex)
	require.NoError(t, err)
	c, err := f.store.GetClient(context.Background(), id)
	require.NoError(t, err)
	assert.NotEmpty(t, c.HashedSecretPrevious)
}

func TestOperatorGate(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/clients", nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Scoped but not whitelisted.
	outsider := f.operatorToken(t, "stranger@example.com", scope.ClientManagement)
	rec = f.do(t, http.MethodGet, "/v1/clients", nil, outsider)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Whitelisted but missing the management scope.
	unscoped := f.operatorToken(t, "admin@example.com", "profile", "profile:email")
	rec = f.do(t, http.MethodGet, "/v1/clients", nil, unscoped)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestClientTokensOverHTTP(t *testing.T) {
	f := newAPIFixture(t)

	otherID, err := tokens.Random(tokens.ClientIDLen)
	require.NoError(t, err)
	other := &core.Client{ID: otherID, Name: "second-relier"}
	require.NoError(t, f.store.RegisterClient(context.Background(), other))
	_, _, err = f.store.GenerateAccessToken(context.Background(), &core.AccessTokenSpec{
		ClientID: otherID,
		UserID:   f.uid,
		Email:    "user@example.com",
		Scope:    []string{"notes"},
	})
	require.NoError(t, err)

	bearer := f.operatorToken(t, "user@example.com", scope.TokenManagement)

	rec := f.do(t, http.MethodGet, "/v1/client-tokens", nil, bearer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var listed []activeClientView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	// The bearer's own client and the second relier both hold grants.
	require.Len(t, listed, 2)

	rec = f.do(t, http.MethodDelete, "/v1/client-tokens/"+hex.EncodeToString(otherID), nil, bearer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/v1/client-tokens", nil, bearer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	listed = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, hex.EncodeToString(f.client.ID), listed[0].ID)

	// Token management scope is mandatory.
	plain := f.operatorToken(t, "user@example.com", "profile")
	rec = f.do(t, http.MethodGet, "/v1/client-tokens", nil, plain)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestJWKSEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/jwks", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	keys, ok := body["keys"].([]any)
	require.True(t, ok)
	require.Len(t, keys, 1)
	k := keys[0].(map[string]any)
	assert.Equal(t, "OKP", k["kty"])
	assert.Equal(t, "Ed25519", k["crv"])

	require.NoError(t, f.keys.Rotate())
	rec = f.do(t, http.MethodGet, "/v1/jwks", nil, "")
	body = decodeBody(t, rec)
	require.Len(t, body["keys"].([]any), 2)
}

func TestHealthEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/readyz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestListClientsBeforeDeveloperActivation(t *testing.T) {
	f := newAPIFixture(t)

	// Whitelisted operator who has not activated as a developer: the
	// listing is simply empty.
	op := f.operatorToken(t, "admin@example.com", scope.ClientManagement)
	rec := f.do(t, http.MethodGet, "/v1/clients", nil, op)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	listed, ok := decodeBody(t, rec)["clients"].([]any)
	require.True(t, ok)
	assert.Empty(t, listed)
}
