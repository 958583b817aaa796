package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/joestump/bio-links/internal/auth"
	"github.com/joestump/bio-links/internal/store"
)

// Deps holds all dependencies required to build the API router.
type Deps struct {
	BearerAuth     *auth.BearerTokenMiddleware
	Links          store.LinkStoreIface
	Profiles       *store.ProfileStore
	Tokens         auth.TokenStore
	AllowedOrigins []string
}

// NewAPIRouter creates a chi sub-router for /api/v1. Every route returns
// application/json. All routes except /public/{username} require a Bearer token.
func NewAPIRouter(deps Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.New(cors.Options{
		AllowedOrigins: deps.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}).Handler)
	r.Use(jsonContentType)

	registerPublicRoutes(r, deps.Links)

	r.Group(func(r chi.Router) {
		r.Use(deps.BearerAuth.Authenticate)
		registerLinkRoutes(r, deps.Links)
		registerProfileRoutes(r, deps.Profiles)
		registerTokenRoutes(r, deps.Tokens)
	})

	return r
}

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
