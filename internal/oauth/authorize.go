package oauth

import (
	"context"
	"errors"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/grantd/internal/observability/logger"
	"github.com/dropDatabas3/grantd/internal/scope"
	"github.com/dropDatabas3/grantd/internal/security/token"
	"github.com/dropDatabas3/grantd/internal/store/core"
)

type AuthorizeRequest struct {
	Assertion           string
	ClientID            []byte
	Scope               scope.Set
	RedirectURI         string // empty means use the registered one
	ResponseType        string // "code" (default) or "token"
	AccessType          string // "online" (default) or "offline"
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	TTL                 time.Duration // only for response_type=token
}

// AuthorizeResult carries exactly one of the two terminal outputs.
type AuthorizeResult struct {
	RedirectURL string `json:"redirect,omitempty"`
	Grant       *Grant `json:"-"`
}

// Authorize runs assertion verification and client lookup concurrently;
// when the assertion is bad its error wins regardless of which branch
// failed first, and the group context cancels the losing branch.
func (s *Service) Authorize(ctx context.Context, req *AuthorizeRequest) (*AuthorizeResult, error) {
	var (
		claims    *AssertionClaims
		client    *core.Client
		assertErr error
		clientErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The assertion verdict is decisive: its failure cancels the
		// client lookup via the group context.
		claims, assertErr = s.verifier.Verify(gctx, req.Assertion)
		return assertErr
	})
	g.Go(func() error {
		// A client failure is held until the assertion verdict is in;
		// assertion errors take priority over client errors.
		client, clientErr = s.store.GetClient(gctx, req.ClientID)
		if errors.Is(clientErr, core.ErrNotFound) {
			clientErr = ErrUnknownClient(token.HexKey(req.ClientID))
		}
		return nil
	})
	_ = g.Wait()
	if assertErr != nil {
		return nil, assertErr
	}
	if clientErr != nil {
		return nil, clientErr
	}

	if !client.Trusted {
		if offending := req.Scope.Difference(s.opts.UntrustedScopes); len(offending) > 0 {
			return nil, ErrInvalidScopes(offending)
		}
	}

	redirectURI := client.RedirectURI
	if req.RedirectURI != "" && req.RedirectURI != client.RedirectURI {
		if !s.localRedirectOK(req.RedirectURI) {
			return nil, ErrIncorrectRedirect(req.RedirectURI)
		}
		redirectURI = req.RedirectURI
	}

	switch req.ResponseType {
	case "", "code":
		return s.authorizeCode(ctx, req, client, claims, redirectURI)
	case "token":
		if !client.CanGrant {
			return nil, ErrInvalidResponseType()
		}
		return s.authorizeGrant(ctx, req, client, claims)
	default:
		return nil, ErrInvalidRequestParameter("response_type")
	}
}

func (s *Service) authorizeCode(ctx context.Context, req *AuthorizeRequest, client *core.Client, claims *AssertionClaims, redirectURI string) (*AuthorizeResult, error) {
	if req.CodeChallenge != "" && req.CodeChallengeMethod != "S256" {
		return nil, ErrInvalidRequestParameter("code_challenge_method")
	}

	code, err := s.store.GenerateCode(ctx, &core.CodeSpec{
		ClientID:  client.ID,
		UserID:    claims.UID,
		Email:     claims.Email,
		Scope:     req.Scope.Values(),
		AuthAt:    claims.AuthAt,
		Offline:   req.AccessType == "offline",
		Challenge: req.CodeChallenge,
	})
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, ErrIncorrectRedirect(redirectURI)
	}
	q := u.Query()
	q.Set("code", code)
	if req.State != "" {
		q.Set("state", req.State)
	}
	u.RawQuery = q.Encode()

	logger.From(ctx).Info("code issued",
		zap.String("client_id", token.HexKey(client.ID)),
		zap.String("scope", req.Scope.String()))
	return &AuthorizeResult{RedirectURL: u.String()}, nil
}

// authorizeGrant is the implicit path: a direct access token, no refresh
// token since there is no code to mark offline.
func (s *Service) authorizeGrant(ctx context.Context, req *AuthorizeRequest, client *core.Client, claims *AssertionClaims) (*AuthorizeResult, error) {
	grant, err := s.issueGrant(ctx, client, claims.UID, claims.Email, req.Scope, req.TTL, false)
	if err != nil {
		return nil, err
	}
	grant.AuthAt = claims.AuthAt
	logger.From(ctx).Info("direct grant issued",
		zap.String("client_id", token.HexKey(client.ID)))
	return &AuthorizeResult{Grant: grant}, nil
}

func (s *Service) localRedirectOK(uri string) bool {
	if !s.opts.LocalRedirects {
		return false
	}
	u, err := url.Parse(uri)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1"
}

// issueGrant mints an access token (plus optionally a refresh token) and
// the id_token when the scope asks for openid.
func (s *Service) issueGrant(ctx context.Context, client *core.Client, uid []byte, email string, sc scope.Set, ttl time.Duration, offline bool) (*Grant, error) {
	access, at, err := s.store.GenerateAccessToken(ctx, &core.AccessTokenSpec{
		ClientID: client.ID,
		UserID:   uid,
		Email:    email,
		Scope:    sc.Values(),
		TTL:      ttl,
	})
	if err != nil {
		return nil, err
	}
	grant := &Grant{
		AccessToken: access,
		TokenType:   at.Type,
		ExpiresIn:   int64(time.Until(at.ExpiresAt).Seconds()),
		Scope:       sc.String(),
	}
	if offline {
		refresh, _, err := s.store.GenerateRefreshToken(ctx, &core.RefreshTokenSpec{
			ClientID: client.ID,
			UserID:   uid,
			Email:    email,
			Scope:    sc.Values(),
		})
		if err != nil {
			return nil, err
		}
		grant.RefreshToken = refresh
	}
	if sc.Has(OpenIDScope) && s.issuer != nil {
		idToken, err := s.issuer.SignIDToken(token.HexKey(uid), token.HexKey(client.ID))
		if err != nil {
			return nil, err
		}
		grant.IDToken = idToken
	}
	return grant, nil
}
