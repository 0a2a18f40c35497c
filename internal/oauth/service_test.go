package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/grantd/internal/jwt"
	"github.com/dropDatabas3/grantd/internal/scope"
	"github.com/dropDatabas3/grantd/internal/security/secretbox"
	"github.com/dropDatabas3/grantd/internal/security/token"
	"github.com/dropDatabas3/grantd/internal/store/core"
	"github.com/dropDatabas3/grantd/internal/store/memory"
)

// stubVerifier returns canned claims, or a canned error.
type stubVerifier struct {
	claims *AssertionClaims
	err    error
	slow   time.Duration
}

func (v *stubVerifier) Verify(ctx context.Context, assertion string) (*AssertionClaims, error) {
	if v.slow > 0 {
		select {
		case <-time.After(v.slow):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if v.err != nil {
		return nil, v.err
	}
	return v.claims, nil
}

type fixture struct {
	svc      *Service
	store    *memory.Store
	verifier *stubVerifier
	client   *core.Client
	secret   string // hex plaintext for client.HashedSecret
	uid      []byte
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	st := memory.New(time.Hour)

	uid, err := token.Random(token.UserIDLen)
	require.NoError(t, err)

	clientID, err := token.Random(token.ClientIDLen)
	require.NoError(t, err)
	secretRaw, err := token.Random(token.ClientSecretLen)
	require.NoError(t, err)
	client := &core.Client{
		ID:           clientID,
		Name:         "relier",
		HashedSecret: token.Hash(secretRaw),
		RedirectURI:  "https://relier.example.com/cb",
		Trusted:      true,
	}
	require.NoError(t, st.RegisterClient(context.Background(), client))

	verifier := &stubVerifier{claims: &AssertionClaims{
		UID:    uid,
		Email:  "user@example.com",
		AuthAt: time.Now().Unix(),
	}}

	opts := Options{
		CodeTTL:         15 * time.Minute,
		UntrustedScopes: scope.New("profile:uid", "profile:email", "profile:display_name"),
		TokenEndpoint:   "https://oauth.example.com/v1/token",
	}
	for _, m := range mutate {
		m(&opts)
	}

	svc := NewService(st, verifier, testIssuer(t), nil, opts)
	return &fixture{
		svc:      svc,
		store:    st,
		verifier: verifier,
		client:   client,
		secret:   token.HexKey(secretRaw),
		uid:      uid,
	}
}

func testIssuer(t *testing.T) *jwt.Issuer {
	t.Helper()
	k := make([]byte, secretbox.KeyLen)
	_, err := rand.Read(k)
	require.NoError(t, err)
	box, err := secretbox.New(base64.StdEncoding.EncodeToString(k))
	require.NoError(t, err)
	ks, err := jwt.NewKeystore(t.TempDir(), box, time.Hour)
	require.NoError(t, err)
	return jwt.NewIssuer("https://oauth.example.com", ks, 5*time.Minute)
}

// issueCode runs the authorization flow and extracts the plaintext code.
func (f *fixture) issueCode(t *testing.T, req *AuthorizeRequest) string {
	t.Helper()
	if req.Scope.Empty() {
		req.Scope = scope.New("profile")
	}
	res, err := f.svc.Authorize(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.RedirectURL)
	return queryParam(t, res.RedirectURL, "code")
}

func queryParam(t *testing.T, rawURL, key string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return u.Query().Get(key)
}

func requireErrno(t *testing.T, err error, errno int) *AppError {
	t.Helper()
	require.Error(t, err)
	appErr, ok := err.(*AppError)
	require.True(t, ok, "want *AppError, got %T: %v", err, err)
	require.Equal(t, errno, appErr.Errno)
	return appErr
}
