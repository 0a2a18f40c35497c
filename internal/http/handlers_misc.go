package http

import (
	"net/http"

	"github.com/dropDatabas3/grantd/internal/oauth"
)

// JWKS serves the public signing keys, including the previous key while
// its rotation grace window is open.
func (a *API) JWKS(w http.ResponseWriter, r *http.Request) {
	body, err := a.keys.JWKSJSON()
	if err != nil {
		WriteAppError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *API) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Ping(r.Context()); err != nil {
		WriteAppError(w, oauth.ErrServiceUnavailable())
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
