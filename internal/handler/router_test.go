package handler

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joestump/bio-links/internal/auth"
	"github.com/joestump/bio-links/internal/store"
	"github.com/joestump/bio-links/internal/testutil"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	db := testutil.NewTestDB(t)
	profiles := store.NewProfileStore(db)
	users := store.NewUserStore(db)
	sm := auth.NewSessionManager(db, "sqlite3", time.Hour, false)
	tokens := auth.NewSQLTokenStore(db)
	bearer := auth.NewBearerTokenMiddleware(tokens, users)
	t.Cleanup(bearer.Wait)

	return NewRouter(Deps{
		SessionManager: sm,
		AuthHandlers:   auth.NewHandlers(nil, sm, users, false),
		AuthMiddleware: auth.NewMiddleware(sm, users),
		Links:          store.NewLinkStore(db, profiles),
		Profiles:       profiles,
		Clicks:         store.NewClickStore(db),
		ClickCh:        make(chan store.ClickEvent, 1),
		Users:          users,
		Tokens:         tokens,
		BearerAuth:     bearer,
		AllowedOrigins: []string{"*"},
	})
}

func TestRouter(t *testing.T) {
	router := newTestRouter(t)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	t.Run("healthz", func(t *testing.T) {
		rec := get("/healthz")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", rec.Body.String())
	})

	t.Run("metrics", func(t *testing.T) {
		rec := get("/metrics")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "biolinks_")
	})

	t.Run("dashboard requires a session", func(t *testing.T) {
		rec := get("/dashboard")
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/auth/login?redirect="))
	})

	t.Run("landing", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, get("/").Code)
	})

	t.Run("static", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, get("/static/css/app.css").Code)
	})

	t.Run("brotli when accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/static/css/app.css", nil)
		req.Header.Set("Accept-Encoding", "gzip, br")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "br", rec.Header().Get("Content-Encoding"))

		body, err := io.ReadAll(brotli.NewReader(rec.Body))
		require.NoError(t, err)
		assert.NotEmpty(t, body)
	})

	t.Run("unknown public page", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, get("/u/nobody").Code)
	})

	t.Run("unmatched route", func(t *testing.T) {
		rec := get("/no/such/page")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "Not found")
	})

	t.Run("api is mounted", func(t *testing.T) {
		rec := get("/api/v1/public/nobody")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

		assert.Equal(t, http.StatusUnauthorized, get("/api/v1/links").Code)
	})
}
