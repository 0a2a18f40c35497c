// Package http is the transport layer: it decodes requests, hands the
// typed inputs to the oauth service, and maps results and typed errors
// back to JSON bodies.
package http

import (
	"regexp"

	"github.com/dropDatabas3/grantd/internal/jwt"
	"github.com/dropDatabas3/grantd/internal/oauth"
	"github.com/dropDatabas3/grantd/internal/store/core"
)

type API struct {
	svc            *oauth.Service
	store          core.Store
	keys           *jwt.Keystore
	adminWhitelist []*regexp.Regexp
}

func NewAPI(svc *oauth.Service, store core.Store, keys *jwt.Keystore, adminWhitelist []*regexp.Regexp) *API {
	return &API{
		svc:            svc,
		store:          store,
		keys:           keys,
		adminWhitelist: adminWhitelist,
	}
}
