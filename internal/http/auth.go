package http

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/dropDatabas3/grantd/internal/oauth"
	"github.com/dropDatabas3/grantd/internal/scope"
)

// bearer resolves the Authorization header to verified token facts. A
// missing or garbled header is Unauthorized; a bad token surfaces the
// verifier's own error.
func (a *API) bearer(w http.ResponseWriter, r *http.Request) (*oauth.VerifyResult, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		WriteAppError(w, oauth.ErrUnauthorized("missing authorization header"))
		return nil, false
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		WriteAppError(w, oauth.ErrUnauthorized("malformed authorization header"))
		return nil, false
	}
	res, err := a.svc.Verify(r.Context(), strings.TrimSpace(parts[1]))
	if err != nil {
		WriteAppError(w, err)
		return nil, false
	}
	return res, true
}

// requireScope gates a handler on a token scope. The client-management
// prefix exception applies, so an "oauth" token has clearance for any
// "oauth:*" requirement.
func requireScope(w http.ResponseWriter, res *oauth.VerifyResult, tok string) bool {
	if !scope.New(res.Scope...).Contains(tok) {
		WriteAppError(w, oauth.ErrForbidden())
		return false
	}
	return true
}

// requireOperator additionally checks the verified email against the
// operator whitelist. An empty whitelist admits nobody.
func (a *API) requireOperator(w http.ResponseWriter, res *oauth.VerifyResult) bool {
	if !requireScope(w, res, scope.ClientManagement) {
		return false
	}
	for _, re := range a.adminWhitelist {
		if re.MatchString(res.Email) {
			return true
		}
	}
	WriteAppError(w, oauth.ErrForbidden())
	return false
}

// CompileWhitelist turns the configured operator patterns into anchored
// regexps. Patterns are matched against the full verified email.
func CompileWhitelist(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if !strings.HasPrefix(p, "^") {
			p = "^" + p
		}
		if !strings.HasSuffix(p, "$") {
			p = p + "$"
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}
