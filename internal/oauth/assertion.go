package oauth

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dropDatabas3/grantd/internal/observability/logger"
	"github.com/dropDatabas3/grantd/internal/security/token"
	"go.uber.org/zap"
)

// AssertionClaims are the verified facts extracted from an identity
// assertion. The assertion format itself is the verifier's business.
type AssertionClaims struct {
	UID        []byte
	Email      string
	AuthAt     int64
	Generation int64
}

type AssertionVerifier interface {
	Verify(ctx context.Context, assertion string) (*AssertionClaims, error)
}

// HTTPAssertionVerifier posts the opaque assertion to an external verifier
// service and maps its response onto AssertionClaims.
type HTTPAssertionVerifier struct {
	URL    string
	Client *http.Client
}

func NewHTTPAssertionVerifier(url string, timeout time.Duration) *HTTPAssertionVerifier {
	return &HTTPAssertionVerifier{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

type verifierResponse struct {
	Status     string `json:"status"`
	UID        string `json:"uid"`
	Email      string `json:"email"`
	AuthAt     int64  `json:"auth_at"`
	Generation int64  `json:"generation"`
	Reason     string `json:"reason"`
}

func (v *HTTPAssertionVerifier) Verify(ctx context.Context, assertion string) (*AssertionClaims, error) {
	body, err := json.Marshal(map[string]string{"assertion": assertion})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("assertion verifier: %w", err)
	}
	defer resp.Body.Close()

	var vr verifierResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("assertion verifier: %w", err)
	}
	if resp.StatusCode != http.StatusOK || vr.Status != "okay" {
		logger.From(ctx).Info("assertion rejected",
			zap.String("reason", vr.Reason),
			zap.Int("status", resp.StatusCode))
		return nil, ErrInvalidAssertion()
	}

	uid, err := hex.DecodeString(vr.UID)
	if err != nil || len(uid) != token.UserIDLen {
		return nil, ErrInvalidAssertion()
	}
	return &AssertionClaims{
		UID:        uid,
		Email:      vr.Email,
		AuthAt:     vr.AuthAt,
		Generation: vr.Generation,
	}, nil
}
