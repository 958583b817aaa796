package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joestump/bio-links/internal/api"
	"github.com/joestump/bio-links/internal/auth"
	"github.com/joestump/bio-links/internal/store"
	"github.com/joestump/bio-links/internal/testutil"
)

// testEnv holds all stores and helpers needed for API integration tests.
type testEnv struct {
	Router     http.Handler
	Links      *store.LinkStore
	Profiles   *store.ProfileStore
	Users      *store.UserStore
	TokenStore *auth.SQLTokenStore
}

// newTestEnv wires the full API router against an in-memory SQLite database.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewTestDB(t)

	profiles := store.NewProfileStore(db)
	links := store.NewLinkStore(db, profiles)
	users := store.NewUserStore(db)
	tokens := auth.NewSQLTokenStore(db)
	bearer := auth.NewBearerTokenMiddleware(tokens, users)
	// Runs before the database is closed.
	t.Cleanup(bearer.Wait)

	router := api.NewAPIRouter(api.Deps{
		BearerAuth:     bearer,
		Links:          links,
		Profiles:       profiles,
		Tokens:         tokens,
		AllowedOrigins: []string{"https://app.example"},
	})
	return &testEnv{Router: router, Links: links, Profiles: profiles, Users: users, TokenStore: tokens}
}

// seedUser creates a user and returns the user record.
func seedUser(t *testing.T, env *testEnv, email string) *store.User {
	t.Helper()
	u, err := env.Users.Upsert(context.Background(), "test", "sub-"+email, email, "Test User")
	require.NoError(t, err)
	return u
}

// seedToken issues a write-scoped API token for a user and returns the Bearer value.
func seedToken(t *testing.T, env *testEnv, userID string) string {
	t.Helper()
	return seedScopedToken(t, env, userID, auth.ScopeWrite)
}

func seedScopedToken(t *testing.T, env *testEnv, userID string, scope auth.Scope) string {
	t.Helper()
	issued, err := env.TokenStore.Issue(context.Background(), userID, auth.TokenSpec{Name: "test-token", Scope: scope})
	require.NoError(t, err)
	return issued.Plaintext
}

// do sends method/path with an optional JSON body and Bearer token.
func (env *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			r = bytes.NewBufferString(b)
		default:
			buf, err := json.Marshal(b)
			require.NoError(t, err)
			r = bytes.NewReader(buf)
		}
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.Router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}
