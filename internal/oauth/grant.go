package oauth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/grantd/internal/observability/logger"
	"github.com/dropDatabas3/grantd/internal/scope"
	"github.com/dropDatabas3/grantd/internal/security/token"
	"github.com/dropDatabas3/grantd/internal/store/core"
)

// GrantTypeJWTBearer selects the service-client assertion path.
const GrantTypeJWTBearer = "urn:ietf:params:oauth:grant-type:jwt-bearer"

type TokenRequest struct {
	GrantType    string
	ClientID     []byte
	ClientSecret string // hex
	Code         string // hex
	CodeVerifier string
	RefreshToken string // hex
	Assertion    string // signed jwt for GrantTypeJWTBearer
	Scope        *scope.Set
	TTL          time.Duration
}

// Token redeems one of the three grant shapes for an access token.
func (s *Service) Token(ctx context.Context, req *TokenRequest) (*Grant, error) {
	switch {
	case req.GrantType == GrantTypeJWTBearer || req.Assertion != "":
		if req.ClientSecret != "" || req.Code != "" || req.CodeVerifier != "" {
			return nil, ErrInvalidRequestParameter("client_secret")
		}
		return s.jwtBearerGrant(ctx, req)
	case req.GrantType == "refresh_token" || req.RefreshToken != "":
		return s.refreshGrant(ctx, req)
	default:
		return s.codeGrant(ctx, req)
	}
}

// codeGrant is the classic/PKCE authorization-code exchange. Single use is
// enforced by deletion: the loser of a concurrent redemption sees the same
// UnknownCode a never-issued code would produce.
func (s *Service) codeGrant(ctx context.Context, req *TokenRequest) (*Grant, error) {
	client, err := s.store.GetClient(ctx, req.ClientID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, ErrUnknownClient(token.HexKey(req.ClientID))
	}
	if err != nil {
		return nil, err
	}

	hash, appErr := hashPresented(req.Code)
	if appErr != nil {
		return nil, ErrUnknownCode()
	}
	code, err := s.store.GetCode(ctx, hash)
	if errors.Is(err, core.ErrNotFound) {
		return nil, ErrUnknownCode()
	}
	if err != nil {
		return nil, err
	}

	// Authenticate the caller: PKCE verifier for challenge-bound codes,
	// client secret otherwise.
	if code.Challenge != "" {
		if req.CodeVerifier == "" {
			return nil, ErrInvalidRequestParameter("code_verifier")
		}
		sum := sha256.Sum256([]byte(req.CodeVerifier))
		derived := base64.RawURLEncoding.EncodeToString(sum[:])
		if subtle.ConstantTimeCompare([]byte(derived), []byte(code.Challenge)) != 1 {
			return nil, ErrIncorrectSecret(token.HexKey(client.ID))
		}
	} else if !secretMatches(req.ClientSecret, client) {
		return nil, ErrIncorrectSecret(token.HexKey(client.ID))
	}

	if !bytesEqual(code.ClientID, client.ID) {
		return nil, ErrMismatchCode()
	}
	if time.Now().After(code.CreatedAt.Add(s.opts.CodeTTL)) {
		return nil, ErrExpiredCode()
	}

	// Consumption point: losing a redemption race reports UnknownCode.
	if err := s.store.RemoveCode(ctx, hash); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, ErrUnknownCode()
		}
		return nil, err
	}

	grant, err := s.issueGrant(ctx, client, code.UserID, code.Email,
		scope.New(code.Scope...), req.TTL, code.Offline)
	if err != nil {
		return nil, err
	}
	grant.AuthAt = code.AuthAt
	logger.From(ctx).Info("code redeemed",
		zap.String("client_id", token.HexKey(client.ID)),
		zap.Bool("offline", code.Offline))
	return grant, nil
}

// refreshGrant mints a fresh access token from a refresh token, optionally
// narrowing scope. It never returns a new refresh token.
func (s *Service) refreshGrant(ctx context.Context, req *TokenRequest) (*Grant, error) {
	client, err := s.store.GetClient(ctx, req.ClientID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, ErrUnknownClient(token.HexKey(req.ClientID))
	}
	if err != nil {
		return nil, err
	}
	if !secretMatches(req.ClientSecret, client) {
		return nil, ErrIncorrectSecret(token.HexKey(client.ID))
	}

	hash, appErr := hashPresented(req.RefreshToken)
	if appErr != nil {
		return nil, ErrInvalidToken()
	}
	rt, err := s.store.GetRefreshToken(ctx, hash)
	if errors.Is(err, core.ErrNotFound) {
		return nil, ErrInvalidToken()
	}
	if err != nil {
		return nil, err
	}
	// Ownership failure reports the same generic invalid token, so a
	// non-owning client learns nothing about the token's existence.
	if !bytesEqual(rt.ClientID, client.ID) {
		return nil, ErrInvalidToken()
	}

	granted := scope.New(rt.Scope...)
	effective := granted
	if req.Scope != nil && !req.Scope.Empty() {
		if offending := req.Scope.Difference(granted); len(offending) > 0 {
			return nil, ErrInvalidScopes(offending)
		}
		effective = *req.Scope
	}

	grant, err := s.issueGrant(ctx, client, rt.UserID, rt.Email, effective, req.TTL, false)
	if err != nil {
		return nil, err
	}
	if err := s.store.UsedRefreshToken(ctx, hash); err != nil {
		logger.From(ctx).Warn("touch refresh token failed", zap.Error(err))
	}
	return grant, nil
}

// jwtBearerGrant redeems a signed assertion from a pre-configured service
// client. Access token only.
func (s *Service) jwtBearerGrant(ctx context.Context, req *TokenRequest) (*Grant, error) {
	if s.sclients == nil {
		// No service clients configured: no issuer can be trusted.
		return nil, ErrInvalidAssertion()
	}
	sc, uid, err := s.sclients.Verify(ctx, req.Assertion, s.opts.TokenEndpoint)
	if err != nil {
		return nil, err
	}
	client, err := s.store.GetClient(ctx, sc.ID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, ErrUnknownClient(token.HexKey(sc.ID))
	}
	if err != nil {
		return nil, err
	}

	defaultScope := scope.Parse(sc.Scope)
	effective := defaultScope
	if req.Scope != nil && !req.Scope.Empty() {
		if offending := req.Scope.Difference(defaultScope); len(offending) > 0 {
			return nil, ErrInvalidScopes(offending)
		}
		effective = *req.Scope
	}

	grant, err := s.issueGrant(ctx, client, uid, "", effective, req.TTL, false)
	if err != nil {
		return nil, err
	}
	logger.From(ctx).Info("jwt-bearer grant issued",
		zap.String("service_client", sc.Name),
		zap.String("uid", token.HexKey(uid)))
	return grant, nil
}

// Destroy revokes a presented access or refresh token.
func (s *Service) Destroy(ctx context.Context, accessToken, refreshToken string) error {
	presented, refresh := accessToken, false
	if presented == "" {
		presented, refresh = refreshToken, true
	}
	hash, appErr := hashPresented(presented)
	if appErr != nil {
		return ErrInvalidToken()
	}
	var err error
	if refresh {
		err = s.store.RemoveRefreshToken(ctx, hash)
	} else {
		err = s.store.RemoveAccessToken(ctx, hash)
	}
	if errors.Is(err, core.ErrNotFound) {
		return ErrInvalidToken()
	}
	return err
}

// hashPresented decodes a wire-format hex credential and hashes it for
// lookup. Malformed input behaves like an unknown credential.
func hashPresented(hexTok string) ([]byte, *AppError) {
	raw, err := hex.DecodeString(hexTok)
	if err != nil || len(raw) == 0 {
		return nil, ErrInvalidToken()
	}
	return token.Hash(raw), nil
}

// secretMatches accepts the current secret or, during a rotation window,
// the previous one.
func secretMatches(secretHex string, client *core.Client) bool {
	raw, err := hex.DecodeString(secretHex)
	if err != nil || len(raw) == 0 {
		return false
	}
	h := token.Hash(raw)
	if subtle.ConstantTimeCompare(h, client.HashedSecret) == 1 {
		return true
	}
	return len(client.HashedSecretPrevious) > 0 &&
		subtle.ConstantTimeCompare(h, client.HashedSecretPrevious) == 1
}

func bytesEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
