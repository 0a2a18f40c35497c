package http

import (
	"encoding/hex"
	"net/http"
	"strconv"

	"github.com/dropDatabas3/grantd/internal/oauth"
	"github.com/dropDatabas3/grantd/internal/scope"
	tokens "github.com/dropDatabas3/grantd/internal/security/token"
)

type authorizationRequest struct {
	Assertion           string `json:"assertion"`
	ClientID            string `json:"client_id"`
	Scope               string `json:"scope"`
	State               string `json:"state"`
	RedirectURI         string `json:"redirect_uri"`
	ResponseType        string `json:"response_type"`
	AccessType          string `json:"access_type"`
	CodeChallenge       string `json:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method"`
	TTL                 int64  `json:"ttl"`
}

// Authorization handles both shapes of /v1/authorization: GET carries
// the parameters in the query string, POST as a JSON body. Both resolve
// to the same issuance call.
func (a *API) Authorization(w http.ResponseWriter, r *http.Request) {
	var req authorizationRequest
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		req = authorizationRequest{
			Assertion:           q.Get("assertion"),
			ClientID:            q.Get("client_id"),
			Scope:               q.Get("scope"),
			State:               q.Get("state"),
			RedirectURI:         q.Get("redirect_uri"),
			ResponseType:        q.Get("response_type"),
			AccessType:          q.Get("access_type"),
			CodeChallenge:       q.Get("code_challenge"),
			CodeChallengeMethod: q.Get("code_challenge_method"),
		}
		if ttl := q.Get("ttl"); ttl != "" {
			secs, err := strconv.ParseInt(ttl, 10, 64)
			if err != nil {
				WriteAppError(w, oauth.ErrInvalidRequestParameter("ttl"))
				return
			}
			req.TTL = secs
		}
	} else if !ReadJSON(w, r, &req) {
		return
	}

	if req.Assertion == "" {
		WriteAppError(w, oauth.ErrInvalidRequestParameter("assertion"))
		return
	}
	clientID, ok := decodeClientID(w, req.ClientID)
	if !ok {
		return
	}

	res, err := a.svc.Authorize(r.Context(), &oauth.AuthorizeRequest{
		Assertion:           req.Assertion,
		ClientID:            clientID,
		Scope:               scope.Parse(req.Scope),
		RedirectURI:         req.RedirectURI,
		ResponseType:        req.ResponseType,
		AccessType:          req.AccessType,
		State:               req.State,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		TTL:                 parseTTL(req.TTL),
	})
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if res.Grant != nil {
		countIssued("implicit")
		WriteJSON(w, http.StatusOK, res.Grant)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Code         string `json:"code"`
	CodeVerifier string `json:"code_verifier"`
	RefreshToken string `json:"refresh_token"`
	Assertion    string `json:"assertion"`
	Scope        string `json:"scope"`
	TTL          int64  `json:"ttl"`
}

func (a *API) Token(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !ReadJSON(w, r, &req) {
		return
	}

	treq := &oauth.TokenRequest{
		GrantType:    req.GrantType,
		ClientSecret: req.ClientSecret,
		Code:         req.Code,
		CodeVerifier: req.CodeVerifier,
		RefreshToken: req.RefreshToken,
		Assertion:    req.Assertion,
		TTL:          parseTTL(req.TTL),
	}
	if req.ClientID != "" {
		id, ok := decodeClientID(w, req.ClientID)
		if !ok {
			return
		}
		treq.ClientID = id
	}
	if req.Scope != "" {
		s := scope.Parse(req.Scope)
		treq.Scope = &s
	}

	grant, err := a.svc.Token(r.Context(), treq)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	countIssued(grantLabel(treq))
	WriteJSON(w, http.StatusOK, grant)
}

func grantLabel(req *oauth.TokenRequest) string {
	switch {
	case req.GrantType == oauth.GrantTypeJWTBearer || req.Assertion != "":
		return "jwt_bearer"
	case req.GrantType == "refresh_token" || req.RefreshToken != "":
		return "refresh_token"
	default:
		return "authorization_code"
	}
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	User     string   `json:"user"`
	ClientID string   `json:"client_id"`
	Scope    []string `json:"scope"`
	Email    string   `json:"email,omitempty"`
}

func (a *API) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	res, err := a.svc.Verify(r.Context(), req.Token)
	if err != nil {
		countVerification("fail")
		WriteAppError(w, err)
		return
	}
	countVerification("ok")
	WriteJSON(w, http.StatusOK, verifyResponse{
		User:     hex.EncodeToString(res.UID),
		ClientID: hex.EncodeToString(res.ClientID),
		Scope:    res.Scope,
		Email:    res.Email,
	})
}

type destroyRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Destroy revokes exactly one presented credential, access or refresh.
func (a *API) Destroy(w http.ResponseWriter, r *http.Request) {
	var req destroyRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	if (req.AccessToken == "") == (req.RefreshToken == "") {
		WriteAppError(w, oauth.ErrInvalidRequestParameter("token"))
		return
	}
	if err := a.svc.Destroy(r.Context(), req.AccessToken, req.RefreshToken); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, struct{}{})
}

func decodeClientID(w http.ResponseWriter, idHex string) ([]byte, bool) {
	id, err := hex.DecodeString(idHex)
	if err != nil || len(id) != tokens.ClientIDLen {
		WriteAppError(w, oauth.ErrInvalidRequestParameter("client_id"))
		return nil, false
	}
	return id, true
}
