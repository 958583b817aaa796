package handler

import (
	"io"
	"io/fs"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/andybalholm/brotli"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/joestump/bio-links/docs/swagger"
	"github.com/joestump/bio-links/internal/api"
	"github.com/joestump/bio-links/internal/auth"
	"github.com/joestump/bio-links/internal/store"
	"github.com/joestump/bio-links/web"
)

// Deps holds all dependencies required to build the HTTP router.
type Deps struct {
	SessionManager *scs.SessionManager
	AuthHandlers   *auth.Handlers
	AuthMiddleware *auth.Middleware
	Links          store.LinkStoreIface
	Profiles       *store.ProfileStore
	Clicks         *store.ClickStore
	ClickCh        chan<- store.ClickEvent
	Users          *store.UserStore
	Tokens         auth.TokenStore
	BearerAuth     *auth.BearerTokenMiddleware
	AllowedOrigins []string
}

// NewRouter assembles the full chi router with all middleware and routes.
// Named routes are registered before the /u/ pages so reserved usernames
// never shadow them.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: logrus.StandardLogger(), NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(newCompressor().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Static assets (embedded). Use fs.Sub so the file server sees
	// css/app.css directly, not static/css/... paths.
	staticSub, err := fs.Sub(web.StaticFS, "static")
	if err != nil {
		panic("failed to sub static FS: " + err.Error())
	}
	r.Handle("/static/*", http.StripPrefix("/static", http.FileServer(http.FS(staticSub))))

	// Swagger UI and the token-authenticated API carry no session cookie.
	r.Get("/api/docs/*", httpSwagger.WrapHandler)
	r.Mount("/api/v1", api.NewAPIRouter(api.Deps{
		BearerAuth:     deps.BearerAuth,
		Links:          deps.Links,
		Profiles:       deps.Profiles,
		Tokens:         deps.Tokens,
		AllowedOrigins: deps.AllowedOrigins,
	}))

	r.Group(func(r chi.Router) {
		r.Use(deps.SessionManager.LoadAndSave)

		r.Get("/auth/login", deps.AuthHandlers.Login)
		r.Get("/auth/callback", deps.AuthHandlers.Callback)
		r.Post("/auth/logout", deps.AuthHandlers.Logout)

		r.Post("/theme", NewThemeHandler().Toggle)

		landing := NewLandingHandler()
		r.With(deps.AuthMiddleware.OptionalUser).Get("/", landing.Index)

		dashboard := NewDashboardHandler(deps.Links, deps.Profiles, deps.Clicks)
		links := NewLinksHandler(deps.Links, deps.Clicks)
		tokensWeb := NewTokensHandler(deps.Tokens)

		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)

			r.Get("/dashboard", dashboard.Show)
			r.Post("/dashboard/profile", dashboard.SaveProfile)
			r.Get("/dashboard/profile/check-username", dashboard.CheckUsername)

			r.Post("/dashboard/links", links.Create)
			r.Get("/dashboard/links/{id}/edit", links.Edit)
			r.Put("/dashboard/links/{id}", links.Update)
			r.Post("/dashboard/links/{id}", links.Update)
			r.Delete("/dashboard/links/{id}", links.Delete)
			r.Post("/dashboard/links/{id}/toggle", links.Toggle)
			r.Post("/dashboard/links/{id}/move", links.Move)

			r.Get("/dashboard/settings/tokens", tokensWeb.Index)
			r.Post("/dashboard/settings/tokens", tokensWeb.Create)
			r.Post("/dashboard/settings/tokens/{id}/rotate", tokensWeb.Rotate)
			r.Delete("/dashboard/settings/tokens/{id}", tokensWeb.Revoke)
		})

		profiles := NewProfileHandler(deps.Links, deps.ClickCh)
		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.OptionalUser)
			r.Get("/u/{username}", profiles.Show)
			r.Get("/u/{username}/{id}", profiles.Click)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		renderNotFound(w, r, nil)
	})

	return r
}

// newCompressor gzips or deflates text responses and prefers brotli when the
// client accepts it.
func newCompressor() *middleware.Compressor {
	c := middleware.NewCompressor(5, "text/html", "text/css", "application/javascript", "text/javascript", "application/json")
	c.SetEncoder("br", func(w io.Writer, level int) io.Writer {
		return brotli.NewWriterLevel(w, level)
	})
	return c
}
