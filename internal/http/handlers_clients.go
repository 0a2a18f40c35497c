package http

import (
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/grantd/internal/oauth"
	tokens "github.com/dropDatabas3/grantd/internal/security/token"
	"github.com/dropDatabas3/grantd/internal/store/core"
)

type clientView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	RedirectURI string `json:"redirect_uri"`
	ImageURI    string `json:"image_uri"`
	Trusted     bool   `json:"trusted"`
	CanGrant    bool   `json:"can_grant"`
}

func viewClient(c *core.Client) clientView {
	return clientView{
		ID:          hex.EncodeToString(c.ID),
		Name:        c.Name,
		RedirectURI: c.RedirectURI,
		ImageURI:    c.ImageURI,
		Trusted:     c.Trusted,
		CanGrant:    c.CanGrant,
	}
}

// GetClient is the public projection of a registered client; no
// authentication, no secret material.
func (a *API) GetClient(w http.ResponseWriter, r *http.Request) {
	idHex := chi.URLParam(r, "client_id")
	id, ok := decodeClientID(w, idHex)
	if !ok {
		return
	}
	c, err := a.store.GetClient(r.Context(), id)
	if errors.Is(err, core.ErrNotFound) {
		WriteAppError(w, oauth.ErrUnknownClient(idHex))
		return
	}
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, viewClient(c))
}

// ListClients returns the clients owned by the authenticated developer.
func (a *API) ListClients(w http.ResponseWriter, r *http.Request) {
	res, ok := a.bearer(w, r)
	if !ok {
		return
	}
	if !a.requireOperator(w, res) {
		return
	}
	clients, err := a.store.GetClients(r.Context(), res.Email)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	out := make([]clientView, 0, len(clients))
	for _, c := range clients {
		out = append(out, viewClient(c))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"clients": out})
}

type registerClientRequest struct {
	Name        string `json:"name"`
	RedirectURI string `json:"redirect_uri"`
	ImageURI    string `json:"image_uri"`
	Trusted     bool   `json:"trusted"`
	CanGrant    bool   `json:"can_grant"`
}

type registeredClient struct {
	clientView
	ClientSecret string `json:"client_secret"`
}

// RegisterClient mints a client id and secret. The plaintext secret is
// returned exactly once; only its hash is stored. The caller must be an
// activated developer, who becomes the owner.
func (a *API) RegisterClient(w http.ResponseWriter, r *http.Request) {
	res, ok := a.bearer(w, r)
	if !ok {
		return
	}
	if !a.requireOperator(w, res) {
		return
	}
	var req registerClientRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		WriteAppError(w, oauth.ErrInvalidRequestParameter("name"))
		return
	}

	dev, err := a.store.GetDeveloper(r.Context(), res.Email)
	if errors.Is(err, core.ErrNotFound) {
		WriteAppError(w, oauth.ErrForbidden())
		return
	}
	if err != nil {
		WriteAppError(w, err)
		return
	}

	id, err := tokens.Random(tokens.ClientIDLen)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	secret, err := tokens.Random(tokens.ClientSecretLen)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	c := &core.Client{
		ID:           id,
		Name:         req.Name,
		HashedSecret: tokens.Hash(secret),
		RedirectURI:  req.RedirectURI,
		ImageURI:     req.ImageURI,
		Trusted:      req.Trusted,
		CanGrant:     req.CanGrant,
	}
	if err := a.store.RegisterClient(r.Context(), c); err != nil {
		WriteAppError(w, err)
		return
	}
	if err := a.store.RegisterClientDeveloper(r.Context(), dev.DeveloperID, id); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, registeredClient{
		clientView:   viewClient(c),
		ClientSecret: hex.EncodeToString(secret),
	})
}

type updateClientRequest struct {
	Name         *string `json:"name"`
	RedirectURI  *string `json:"redirect_uri"`
	ImageURI     *string `json:"image_uri"`
	Trusted      *bool   `json:"trusted"`
	CanGrant     *bool   `json:"can_grant"`
	RotateSecret bool    `json:"rotate_secret"`
}

type updatedClient struct {
	clientView
	ClientSecret string `json:"client_secret,omitempty"`
}

// UpdateClient applies a partial update; absent fields stay untouched.
// With rotate_secret the current hash moves to the previous slot so both
// secrets keep working during the rotation window, and the new plaintext
// is returned once.
func (a *API) UpdateClient(w http.ResponseWriter, r *http.Request) {
	id, ok := a.ownedClient(w, r)
	if !ok {
		return
	}

	var req updateClientRequest
	if !ReadJSON(w, r, &req) {
		return
	}

	u := &core.ClientUpdate{
		Name:        req.Name,
		RedirectURI: req.RedirectURI,
		ImageURI:    req.ImageURI,
		Trusted:     req.Trusted,
		CanGrant:    req.CanGrant,
	}
	var newSecret []byte
	if req.RotateSecret {
		current, err := a.store.GetClient(r.Context(), id)
		if err != nil {
			WriteAppError(w, err)
			return
		}
		newSecret, err = tokens.Random(tokens.ClientSecretLen)
		if err != nil {
			WriteAppError(w, err)
			return
		}
		u.HashedSecret = tokens.Hash(newSecret)
		u.HashedSecretPrevious = current.HashedSecret
	}

	if err := a.store.UpdateClient(r.Context(), id, u); err != nil {
		WriteAppError(w, err)
		return
	}
	c, err := a.store.GetClient(r.Context(), id)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	out := updatedClient{clientView: viewClient(c)}
	if newSecret != nil {
		out.ClientSecret = hex.EncodeToString(newSecret)
	}
	WriteJSON(w, http.StatusOK, out)
}

func (a *API) DeleteClient(w http.ResponseWriter, r *http.Request) {
	id, ok := a.ownedClient(w, r)
	if !ok {
		return
	}
	if err := a.store.RemoveClient(r.Context(), id); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, struct{}{})
}

// ActivateDeveloper registers the authenticated operator's email as a
// developer; re-activation is a conflict.
func (a *API) ActivateDeveloper(w http.ResponseWriter, r *http.Request) {
	res, ok := a.bearer(w, r)
	if !ok {
		return
	}
	if !a.requireOperator(w, res) {
		return
	}
	dev, err := a.store.ActivateDeveloper(r.Context(), res.Email)
	if errors.Is(err, core.ErrConflict) {
		WriteAppError(w, oauth.ErrExistingKey(res.Email))
		return
	}
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]string{
		"developer_id": hex.EncodeToString(dev.DeveloperID),
		"email":        dev.Email,
	})
}

// ownedClient runs the full mutation gate: bearer auth, operator check,
// and developer ownership of the path client.
func (a *API) ownedClient(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	res, ok := a.bearer(w, r)
	if !ok {
		return nil, false
	}
	if !a.requireOperator(w, res) {
		return nil, false
	}
	id, ok := decodeClientID(w, chi.URLParam(r, "client_id"))
	if !ok {
		return nil, false
	}
	owns, err := a.store.DeveloperOwnsClient(r.Context(), res.Email, id)
	if err != nil {
		WriteAppError(w, err)
		return nil, false
	}
	if !owns {
		WriteAppError(w, oauth.ErrUnauthorized("developer does not own this client"))
		return nil, false
	}
	return id, true
}
