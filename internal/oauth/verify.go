package oauth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/grantd/internal/observability/logger"
	"github.com/dropDatabas3/grantd/internal/scope"
	"github.com/dropDatabas3/grantd/internal/security/token"
	"github.com/dropDatabas3/grantd/internal/store/core"
)

const profileEmailScope = "profile:email"

// longLivedWarnAge surfaces reliance on old tokens; purely a log signal.
const longLivedWarnAge = 24 * time.Hour

type VerifyResult struct {
	UID      []byte
	ClientID []byte
	Scope    []string
	Email    string // only with profile:email or the client-management scope
}

// Verify resolves a presented access token to its authorization facts. An
// expired token normally fails, except when its expiry predates the
// grandfathering epoch: then it is still honored, with a warning, so an
// operator can shrink lifetimes without a flag-day revocation.
func (s *Service) Verify(ctx context.Context, presented string) (*VerifyResult, error) {
	hash, appErr := hashPresented(presented)
	if appErr != nil {
		return nil, appErr
	}
	at, err := s.store.GetAccessToken(ctx, hash)
	if errors.Is(err, core.ErrNotFound) {
		return nil, ErrInvalidToken()
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if at.ExpiresAt.Before(now) {
		if s.opts.GrandfatherEpoch.IsZero() || !at.ExpiresAt.Before(s.opts.GrandfatherEpoch) {
			return nil, ErrExpiredToken(at.ExpiresAt)
		}
		logger.From(ctx).Warn("honoring grandfathered expired token",
			zap.String("client_id", token.HexKey(at.ClientID)),
			zap.Time("expired_at", at.ExpiresAt))
	} else if now.Sub(at.CreatedAt) > longLivedWarnAge {
		logger.From(ctx).Warn("long-lived token in use",
			zap.String("client_id", token.HexKey(at.ClientID)),
			zap.Duration("age", now.Sub(at.CreatedAt)))
	}

	res := &VerifyResult{
		UID:      at.UserID,
		ClientID: at.ClientID,
		Scope:    at.Scope,
	}
	sc := scope.New(at.Scope...)
	if sc.Has(profileEmailScope) || sc.Has(scope.ClientManagement) {
		res.Email = at.Email
	}
	return res, nil
}
