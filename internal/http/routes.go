package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter assembles the full route table. metricsHandler may be nil
// when metrics are not registered (tests).
func NewRouter(a *API, metricsHandler http.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(WithRequestID)
	r.Use(WithRecover)
	r.Use(WithMetrics)
	r.Use(WithLogging)

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Readyz)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/authorization", a.Authorization)
		r.Post("/authorization", a.Authorization)
		r.Post("/token", a.Token)
		r.Post("/verify", a.Verify)
		r.Post("/destroy", a.Destroy)

		r.Get("/jwks", a.JWKS)

		r.Get("/client/{client_id}", a.GetClient)
		r.Post("/client/{client_id}", a.UpdateClient)
		r.Delete("/client/{client_id}", a.DeleteClient)
		r.Get("/clients", a.ListClients)
		r.Post("/clients", a.RegisterClient)
		r.Post("/developer/activate", a.ActivateDeveloper)

		r.Get("/client-tokens", a.ListClientTokens)
		r.Delete("/client-tokens/{client_id}", a.DeleteClientTokens)
	})

	return r
}
