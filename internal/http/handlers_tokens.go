package http

import (
	"encoding/hex"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/grantd/internal/scope"
)

type activeClientView struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	LastAccessTime int64    `json:"lastAccessTime"`
	Scope          []string `json:"scope"`
}

// ListClientTokens returns, per client holding live grants for the
// bearer's user, the most recent grant time and the union of scopes.
func (a *API) ListClientTokens(w http.ResponseWriter, r *http.Request) {
	res, ok := a.bearer(w, r)
	if !ok {
		return
	}
	if !requireScope(w, res, scope.TokenManagement) {
		return
	}
	active, err := a.store.GetActiveClientTokensByUID(r.Context(), res.UID)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	out := make([]activeClientView, 0, len(active))
	for _, t := range active {
		out = append(out, activeClientView{
			ID:             hex.EncodeToString(t.ClientID),
			Name:           t.ClientName,
			LastAccessTime: t.LastAccessTime.Unix(),
			Scope:          t.Scope,
		})
	}
	WriteJSON(w, http.StatusOK, out)
}

// DeleteClientTokens revokes every access token the path client holds
// for the bearer's user. Idempotent.
func (a *API) DeleteClientTokens(w http.ResponseWriter, r *http.Request) {
	res, ok := a.bearer(w, r)
	if !ok {
		return
	}
	if !requireScope(w, res, scope.TokenManagement) {
		return
	}
	id, ok := decodeClientID(w, chi.URLParam(r, "client_id"))
	if !ok {
		return
	}
	if err := a.store.DeleteActiveClientTokens(r.Context(), id, res.UID); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, struct{}{})
}
